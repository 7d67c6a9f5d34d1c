package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultSendGridBaseURL = "https://api.sendgrid.com"
	defaultHTTPTimeout     = 10 * time.Second
)

// SendGridProvider delivers email through the SendGrid v3 mail send API.
type SendGridProvider struct {
	client  *resty.Client
	baseURL string
}

func NewSendGridProvider() *SendGridProvider {
	client := resty.New()
	client.SetTimeout(defaultHTTPTimeout)
	client.SetRetryCount(0)
	return &SendGridProvider{client: client, baseURL: defaultSendGridBaseURL}
}

// NewSendGridProviderWithClient exists for tests pointing at a local server.
func NewSendGridProviderWithClient(baseURL string, client *resty.Client) (*SendGridProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("sendgrid base url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	client.SetRetryCount(0)
	return &SendGridProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To  []sendGridAddress `json:"to"`
	Cc  []sendGridAddress `json:"cc,omitempty"`
	Bcc []sendGridAddress `json:"bcc,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridAttachment struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
	Type     string `json:"type,omitempty"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Attachments      []sendGridAttachment      `json:"attachments,omitempty"`
}

func (p *SendGridProvider) SendEmail(ctx context.Context, cfg SendConfig, payload EmailPayload) (*SendResult, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if strings.TrimSpace(cfg.Credentials.APIKey) == "" {
		return nil, &ProviderError{Message: "sendgrid api key is missing", Transient: false}
	}
	if len(payload.To) == 0 {
		return nil, &ProviderError{Message: "no recipients", Transient: false}
	}

	from := cfg.Metadata.FromEmail
	if from == "" {
		return nil, &ProviderError{Message: "fromEmail metadata is missing", Transient: false}
	}

	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{
			To:  toSendGridAddresses(payload.To),
			Cc:  toSendGridAddresses(payload.Cc),
			Bcc: toSendGridAddresses(payload.Bcc),
		}},
		From:    sendGridAddress{Email: from, Name: cfg.Metadata.FromName},
		Subject: payload.Subject,
	}

	if payload.Text != "" {
		body.Content = append(body.Content, sendGridContent{Type: "text/plain", Value: payload.Text})
	}
	body.Content = append(body.Content, sendGridContent{Type: "text/html", Value: payload.HTML})

	if replyTo := firstNonEmpty(payload.ReplyTo, cfg.Metadata.ReplyTo); replyTo != "" {
		body.ReplyTo = &sendGridAddress{Email: replyTo}
	}
	for _, a := range payload.Attachments {
		body.Attachments = append(body.Attachments, sendGridAttachment{
			Content:  a.Content,
			Filename: a.Filename,
			Type:     a.ContentType,
		})
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+cfg.Credentials.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(p.baseURL + "/v3/mail/send")
	if err != nil {
		return nil, &ProviderError{
			Message:   "sendgrid request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResult{
			MessageID:  strings.TrimSpace(response.Header().Get("X-Message-Id")),
			StatusCode: statusCode,
			Body:       responseBody,
		}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    httpErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func toSendGridAddresses(emails []string) []sendGridAddress {
	if len(emails) == 0 {
		return nil
	}
	addresses := make([]sendGridAddress, 0, len(emails))
	for _, e := range emails {
		addresses = append(addresses, sendGridAddress{Email: e})
	}
	return addresses
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
