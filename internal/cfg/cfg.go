package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	ClaudeAPIKey          string
	ClaudeModel           string
	ContextTTLMinutes     int
	SweepIntervalMinutes  int
	GuidelinesPath        string
	LexiconPath           string
	DatabaseURL           string
	SlackWebhookURL       string
	APIToken              string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.IntVar(&c.ContextTTLMinutes, "context-ttl-minutes", 30, "minutes an idle conversation context is retained (1..1440)")
	fs.IntVar(&c.SweepIntervalMinutes, "sweep-interval-minutes", 5, "minutes between expired-context sweeps (1..1440, at most the context TTL)")
	fs.StringVar(&c.GuidelinesPath, "guidelines-path", "", "path to a triage guidelines document (empty = no guideline context)")
	fs.StringVar(&c.LexiconPath, "lexicon-path", "", "path to a YAML keyword lexicon replacing the built-in one")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the guideline store (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for urgent-queue notifications")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = auth disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude API key is required for LLM access
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}

	// Claude model is required for LLM access
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	if c.ContextTTLMinutes <= 0 || c.ContextTTLMinutes > 1440 {
		errs = append(errs, fmt.Errorf("invalid CONTEXT_TTL_MINUTES %d (must be 1..1440)", c.ContextTTLMinutes))
	}
	if c.SweepIntervalMinutes <= 0 || c.SweepIntervalMinutes > 1440 {
		errs = append(errs, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES %d (must be 1..1440)", c.SweepIntervalMinutes))
	}

	// Sweep interval must not exceed the context TTL
	if c.SweepIntervalMinutes > c.ContextTTLMinutes {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL_MINUTES %d must not exceed CONTEXT_TTL_MINUTES %d", c.SweepIntervalMinutes, c.ContextTTLMinutes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
