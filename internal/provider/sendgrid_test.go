package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-gateway/internal/domain"
)

func sendGridConfig() SendConfig {
	return SendConfig{
		Credentials: Credentials{APIKey: "SG.test"},
		Metadata:    domain.ProviderMetadata{FromEmail: "noreply@example.com", FromName: "Example"},
	}
}

func TestSendGridProviderSendEmailSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody sendGridRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Errorf("request body is not valid JSON: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p, err := NewSendGridProviderWithClient(server.URL, resty.New())
	if err != nil {
		t.Fatalf("NewSendGridProviderWithClient() error = %v", err)
	}

	result, err := p.SendEmail(context.Background(), sendGridConfig(), EmailPayload{
		To:      []string{"user@example.com"},
		Cc:      []string{"cc@example.com"},
		Subject: "Welcome",
		HTML:    "<h1>Hello</h1>",
		Text:    "Hello",
	})
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}

	if result.MessageID != "sg-msg-1" {
		t.Fatalf("message id = %q, want sg-msg-1", result.MessageID)
	}
	if gotAuth != "Bearer SG.test" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if len(gotBody.Personalizations) != 1 || gotBody.Personalizations[0].To[0].Email != "user@example.com" {
		t.Fatalf("unexpected personalizations: %+v", gotBody.Personalizations)
	}
	if gotBody.From.Email != "noreply@example.com" {
		t.Fatalf("from = %q", gotBody.From.Email)
	}
	if len(gotBody.Content) != 2 || gotBody.Content[0].Type != "text/plain" || gotBody.Content[1].Type != "text/html" {
		t.Fatalf("unexpected content order: %+v", gotBody.Content)
	}
}

func TestSendGridProviderErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{name: "server error retries", status: http.StatusInternalServerError, wantTransient: true},
		{name: "rate limited retries", status: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", status: http.StatusBadRequest, wantTransient: false},
		{name: "unauthorized is permanent", status: http.StatusUnauthorized, wantTransient: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			p, err := NewSendGridProviderWithClient(server.URL, resty.New())
			if err != nil {
				t.Fatalf("NewSendGridProviderWithClient() error = %v", err)
			}

			_, err = p.SendEmail(context.Background(), sendGridConfig(), EmailPayload{
				To:      []string{"user@example.com"},
				Subject: "s",
				HTML:    "b",
			})
			if err == nil {
				t.Fatal("SendEmail() expected error")
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("error type = %T", err)
			}
			if providerErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", providerErr.StatusCode, tt.status)
			}
			if IsTransient(err) != tt.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", IsTransient(err), tt.wantTransient)
			}
		})
	}
}

func TestSendGridProviderRejectsMissingConfig(t *testing.T) {
	t.Parallel()

	p := NewSendGridProvider()

	if _, err := p.SendEmail(context.Background(), SendConfig{}, EmailPayload{To: []string{"a@b.c"}}); err == nil {
		t.Fatal("SendEmail() should fail without an api key")
	}

	cfg := SendConfig{Credentials: Credentials{APIKey: "k"}}
	if _, err := p.SendEmail(context.Background(), cfg, EmailPayload{To: []string{"a@b.c"}}); err == nil {
		t.Fatal("SendEmail() should fail without fromEmail metadata")
	}
}
