package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioProvider delivers SMS through the Twilio Messages API.
type TwilioProvider struct {
	client  *resty.Client
	baseURL string
}

func NewTwilioProvider() *TwilioProvider {
	client := resty.New()
	client.SetTimeout(defaultHTTPTimeout)
	client.SetRetryCount(0)
	return &TwilioProvider{client: client, baseURL: defaultTwilioBaseURL}
}

// NewTwilioProviderWithClient exists for tests pointing at a local server.
func NewTwilioProviderWithClient(baseURL string, client *resty.Client) (*TwilioProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("twilio base url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	client.SetRetryCount(0)
	return &TwilioProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (p *TwilioProvider) SendSMS(ctx context.Context, cfg SendConfig, payload SMSPayload) (*SendResult, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if cfg.Credentials.AccountSID == "" || cfg.Credentials.AuthToken == "" {
		return nil, &ProviderError{Message: "twilio credentials are missing", Transient: false}
	}

	from := firstNonEmpty(payload.From, cfg.Metadata.FromNumber)
	if from == "" {
		return nil, &ProviderError{Message: "fromNumber metadata is missing", Transient: false}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, cfg.Credentials.AccountSID)

	response, err := p.client.R().
		SetContext(ctx).
		SetBasicAuth(cfg.Credentials.AccountSID, cfg.Credentials.AuthToken).
		SetFormData(map[string]string{
			"To":   payload.To,
			"From": from,
			"Body": payload.Message,
		}).
		Post(endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "twilio request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		var msg twilioMessageResponse
		if err := json.Unmarshal(response.Body(), &msg); err == nil && msg.Status == "failed" {
			return nil, &ProviderError{
				StatusCode: statusCode,
				Message:    firstNonEmpty(msg.ErrorMessage, "twilio reported message failure"),
				Transient:  false,
			}
		} else if err == nil {
			return &SendResult{MessageID: msg.SID, StatusCode: statusCode, Body: responseBody}, nil
		}
		return &SendResult{StatusCode: statusCode, Body: responseBody}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    httpErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}
