// Package inquiry defines the inbound patient-inquiry types shared by the API
// layer, the agent processor, and the dispatch queue.
package inquiry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel identifies how an inquiry reached the front desk.
type Channel string

const (
	ChannelPhone     Channel = "phone"
	ChannelChat      Channel = "chat"
	ChannelWebPortal Channel = "web_portal"
)

// Valid reports whether c is one of the known intake channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPhone, ChannelChat, ChannelWebPortal:
		return true
	}
	return false
}

// Inquiry is a single free-text message from a patient.
type Inquiry struct {
	SubjectID string       `json:"user_id"`
	Channel   Channel      `json:"channel,omitempty"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp,omitempty"`
	Patient   *PatientInfo `json:"patient,omitempty"`
}

// PatientInfo is the optional demographic snapshot attached to an inquiry.
// It rides along on queue entries so staff see it when the subject is served.
type PatientInfo struct {
	FullName           string   `json:"full_name"`
	DateOfBirth        string   `json:"date_of_birth,omitempty"`
	Sex                string   `json:"sex,omitempty"`
	ContactNumber      string   `json:"contact_number,omitempty"`
	MedicalHistory     []string `json:"medical_history,omitempty"`
	CurrentMedications []string `json:"current_medications,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	EmergencyContact   string   `json:"emergency_contact,omitempty"`
}

// Validate checks the fields a handler must reject before processing starts.
// An empty channel is allowed; callers default it to chat.
func (in *Inquiry) Validate() error {
	var errs []error
	if strings.TrimSpace(in.SubjectID) == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if strings.TrimSpace(in.Message) == "" {
		errs = append(errs, errors.New("message is required"))
	}
	if in.Channel != "" && !in.Channel.Valid() {
		errs = append(errs, fmt.Errorf("unknown channel %q", in.Channel))
	}
	return errors.Join(errs...)
}
