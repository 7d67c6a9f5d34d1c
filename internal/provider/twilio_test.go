package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
)

func twilioConfig() SendConfig {
	return SendConfig{
		Credentials: Credentials{AccountSID: "AC123", AuthToken: "token"},
		Metadata:    domain.ProviderMetadata{FromNumber: "+15550000000"},
	}
}

func TestTwilioProviderSendSMSSuccess(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotForm map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotForm = map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer server.Close()

	p, err := NewTwilioProviderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewTwilioProviderWithClient() error = %v", err)
	}

	result, err := p.SendSMS(context.Background(), twilioConfig(), SMSPayload{
		To:      "+15551112233",
		Message: "Your code is 1234",
	})
	if err != nil {
		t.Fatalf("SendSMS() error = %v", err)
	}

	if result.MessageID != "SM123" {
		t.Fatalf("message id = %q, want SM123", result.MessageID)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotForm["To"] != "+15551112233" || gotForm["From"] != "+15550000000" {
		t.Fatalf("form = %v", gotForm)
	}
}

func TestTwilioProviderReportedFailureIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM9","status":"failed","error_message":"invalid number"}`))
	}))
	defer server.Close()

	p, err := NewTwilioProviderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewTwilioProviderWithClient() error = %v", err)
	}

	_, err = p.SendSMS(context.Background(), twilioConfig(), SMSPayload{To: "+1", Message: "m"})
	if err == nil {
		t.Fatal("SendSMS() expected error")
	}
	if IsTransient(err) {
		t.Fatal("provider-reported failure should be permanent")
	}
}

func TestTwilioProviderServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p, err := NewTwilioProviderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewTwilioProviderWithClient() error = %v", err)
	}

	_, err = p.SendSMS(context.Background(), twilioConfig(), SMSPayload{To: "+1", Message: "m"})
	if err == nil {
		t.Fatal("SendSMS() expected error")
	}
	if !IsTransient(err) {
		t.Fatal("503 should be transient")
	}

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMockProviderNeverFails(t *testing.T) {
	t.Parallel()

	p := NewMockProvider(nil)

	emailResult, err := p.SendEmail(context.Background(), SendConfig{}, EmailPayload{To: []string{"a@b.c"}, Subject: "s", HTML: "b"})
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}
	if emailResult.MessageID == "" {
		t.Fatal("mock email should synthesize a message id")
	}

	smsResult, err := p.SendSMS(context.Background(), SendConfig{}, SMSPayload{To: "+1", Message: "m"})
	if err != nil {
		t.Fatalf("SendSMS() error = %v", err)
	}
	if smsResult.MessageID == "" {
		t.Fatal("mock sms should synthesize a message id")
	}
}
