package domain

import (
	"errors"
	"strings"
	"testing"
)

func validEmailRequest() *NotificationRequest {
	return &NotificationRequest{
		IdempotencyKey:  "key-1",
		Channel:         ChannelEmail,
		ProviderType:    ProviderSendGrid,
		Recipients:      Recipients{To: []string{"user@example.com"}},
		Subject:         "Hello",
		RenderedContent: "<p>Hi</p>",
	}
}

func validSMSRequest() *NotificationRequest {
	return &NotificationRequest{
		IdempotencyKey:  "key-1",
		Channel:         ChannelSMS,
		ProviderType:    ProviderTwilio,
		Recipients:      Recipients{To: []string{"+15551234567"}},
		RenderedContent: "Your code is 1234",
	}
}

func TestNotificationRequestValidate(t *testing.T) {
	t.Parallel()

	manyRecipients := make([]string, MaxRecipients+1)
	for i := range manyRecipients {
		manyRecipients[i] = "user@example.com"
	}

	tests := []struct {
		name    string
		mutate  func(n *NotificationRequest)
		wantErr bool
	}{
		{
			name:   "valid email",
			mutate: func(n *NotificationRequest) {},
		},
		{
			name:    "missing idempotency key",
			mutate:  func(n *NotificationRequest) { n.IdempotencyKey = "  " },
			wantErr: true,
		},
		{
			name:    "invalid channel",
			mutate:  func(n *NotificationRequest) { n.Channel = Channel("FAX") },
			wantErr: true,
		},
		{
			name:    "invalid provider type",
			mutate:  func(n *NotificationRequest) { n.ProviderType = ProviderType("PIGEON") },
			wantErr: true,
		},
		{
			name:    "no recipients",
			mutate:  func(n *NotificationRequest) { n.Recipients = Recipients{} },
			wantErr: true,
		},
		{
			name:    "blank recipient",
			mutate:  func(n *NotificationRequest) { n.Recipients.To = []string{" "} },
			wantErr: true,
		},
		{
			name:    "too many recipients",
			mutate:  func(n *NotificationRequest) { n.Recipients.To = manyRecipients },
			wantErr: true,
		},
		{
			name: "recipient cap counts cc and bcc",
			mutate: func(n *NotificationRequest) {
				n.Recipients.Cc = manyRecipients[:MaxRecipients/2]
				n.Recipients.Bcc = manyRecipients[:MaxRecipients/2]
			},
			wantErr: true,
		},
		{
			name:    "empty rendered content",
			mutate:  func(n *NotificationRequest) { n.RenderedContent = "" },
			wantErr: true,
		},
		{
			name:    "subject too long",
			mutate:  func(n *NotificationRequest) { n.Subject = strings.Repeat("a", MaxSubjectLength+1) },
			wantErr: true,
		},
		{
			name:    "body too long",
			mutate:  func(n *NotificationRequest) { n.RenderedContent = strings.Repeat("a", MaxBodyLength+1) },
			wantErr: true,
		},
		{
			name:   "subject at the limit",
			mutate: func(n *NotificationRequest) { n.Subject = strings.Repeat("a", MaxSubjectLength) },
		},
		{
			name: "multibyte content counts runes not bytes",
			mutate: func(n *NotificationRequest) {
				n.RenderedContent = strings.Repeat("ü", MaxBodyLength)
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := validEmailRequest()
			tc.mutate(n)

			err := n.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestNotificationRequestValidateSMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(n *NotificationRequest)
		wantErr bool
	}{
		{
			name:   "valid sms",
			mutate: func(n *NotificationRequest) {},
		},
		{
			name: "sms rejects multiple recipients",
			mutate: func(n *NotificationRequest) {
				n.Recipients.To = []string{"+15551234567", "+15557654321"}
			},
			wantErr: true,
		},
		{
			name:    "sms rejects cc",
			mutate:  func(n *NotificationRequest) { n.Recipients.Cc = []string{"+15557654321"} },
			wantErr: true,
		},
		{
			name:    "sms content too long",
			mutate:  func(n *NotificationRequest) { n.RenderedContent = strings.Repeat("a", MaxSMSLength+1) },
			wantErr: true,
		},
		{
			name:   "sms content at the limit",
			mutate: func(n *NotificationRequest) { n.RenderedContent = strings.Repeat("a", MaxSMSLength) },
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := validSMSRequest()
			tc.mutate(n)

			err := n.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPreview, false},
		{StatusQueued, false},
		{StatusSending, false},
		{StatusSent, true},
		{StatusFailed, true},
	}
	for _, tc := range tests {
		tc := tc
		if got := tc.status.IsTerminal(); got != tc.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	if st, err := ParseStatusFromString(" queued "); err != nil || st != StatusQueued {
		t.Errorf("ParseStatusFromString(queued) = %v, %v", st, err)
	}
	if _, err := ParseStatusFromString("done"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseStatusFromString(done) error = %v, want ErrValidation", err)
	}

	if ch, err := ParseChannelFromString("sms"); err != nil || ch != ChannelSMS {
		t.Errorf("ParseChannelFromString(sms) = %v, %v", ch, err)
	}
	if _, err := ParseChannelFromString("fax"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseChannelFromString(fax) error = %v, want ErrValidation", err)
	}

	if pt, err := ParseProviderTypeFromString("sendgrid"); err != nil || pt != ProviderSendGrid {
		t.Errorf("ParseProviderTypeFromString(sendgrid) = %v, %v", pt, err)
	}
	if _, err := ParseProviderTypeFromString("pigeon"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseProviderTypeFromString(pigeon) error = %v, want ErrValidation", err)
	}
}
