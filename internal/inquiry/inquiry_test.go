package inquiry

import (
	"strings"
	"testing"
)

func TestChannelValid(t *testing.T) {
	t.Parallel()

	for _, c := range []Channel{ChannelPhone, ChannelChat, ChannelWebPortal} {
		if !c.Valid() {
			t.Errorf("Valid() = false for %q", c)
		}
	}
	if Channel("carrier_pigeon").Valid() {
		t.Error("Valid() = true for unknown channel")
	}
	if Channel("").Valid() {
		t.Error("Valid() = true for empty channel")
	}
}

func TestInquiryValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      Inquiry
		wantErr string
	}{
		{
			name: "ok",
			in:   Inquiry{SubjectID: "u1", Channel: ChannelChat, Message: "hello"},
		},
		{
			name: "empty channel ok",
			in:   Inquiry{SubjectID: "u1", Message: "hello"},
		},
		{
			name:    "missing subject",
			in:      Inquiry{Message: "hello"},
			wantErr: "user_id is required",
		},
		{
			name:    "blank message",
			in:      Inquiry{SubjectID: "u1", Message: "   "},
			wantErr: "message is required",
		},
		{
			name:    "bad channel",
			in:      Inquiry{SubjectID: "u1", Channel: "fax", Message: "hello"},
			wantErr: `unknown channel "fax"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.in.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInquiryValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	err := (&Inquiry{Channel: "fax"}).Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"user_id is required", "message is required", "unknown channel"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}
