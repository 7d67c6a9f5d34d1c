package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// SMTPProvider delivers email over a direct SMTP connection. Connection
// state (host/port/credentials) differs per tenant config, so the client
// is built per send from the decrypted credentials rather than shared.
type SMTPProvider struct{}

func NewSMTPProvider() *SMTPProvider {
	return &SMTPProvider{}
}

func (p *SMTPProvider) SendEmail(ctx context.Context, cfg SendConfig, payload EmailPayload) (*SendResult, error) {
	if strings.TrimSpace(cfg.Credentials.Host) == "" {
		return nil, &ProviderError{Message: "smtp host is missing", Transient: false}
	}
	if cfg.Metadata.FromEmail == "" {
		return nil, &ProviderError{Message: "fromEmail metadata is missing", Transient: false}
	}

	msg, err := buildMessage(cfg, payload)
	if err != nil {
		return nil, err
	}

	client, err := newSMTPClient(cfg.Credentials)
	if err != nil {
		return nil, &ProviderError{Message: "failed to build smtp client", Transient: false, Cause: err}
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, &ProviderError{
			Message:   "smtp send failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return &SendResult{MessageID: msg.GetMessageID()}, nil
}

func newSMTPClient(creds Credentials) (*mail.Client, error) {
	port := creds.Port
	if port == 0 {
		port = 587
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(defaultHTTPTimeout),
	}
	if creds.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(creds.Username),
			mail.WithPassword(creds.Password),
		)
	}
	if creds.UseTLS {
		opts = append(opts, mail.WithSSLPort(false))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	return mail.NewClient(creds.Host, opts...)
}

func buildMessage(cfg SendConfig, payload EmailPayload) (*mail.Msg, error) {
	msg := mail.NewMsg()

	var err error
	if cfg.Metadata.FromName != "" {
		err = msg.FromFormat(cfg.Metadata.FromName, cfg.Metadata.FromEmail)
	} else {
		err = msg.From(cfg.Metadata.FromEmail)
	}
	if err != nil {
		return nil, &ProviderError{Message: "invalid from address", Transient: false, Cause: err}
	}

	if err := msg.To(payload.To...); err != nil {
		return nil, &ProviderError{Message: "invalid recipient address", Transient: false, Cause: err}
	}
	if len(payload.Cc) > 0 {
		if err := msg.Cc(payload.Cc...); err != nil {
			return nil, &ProviderError{Message: "invalid cc address", Transient: false, Cause: err}
		}
	}
	if len(payload.Bcc) > 0 {
		if err := msg.Bcc(payload.Bcc...); err != nil {
			return nil, &ProviderError{Message: "invalid bcc address", Transient: false, Cause: err}
		}
	}
	if replyTo := firstNonEmpty(payload.ReplyTo, cfg.Metadata.ReplyTo); replyTo != "" {
		if err := msg.ReplyTo(replyTo); err != nil {
			return nil, &ProviderError{Message: "invalid reply-to address", Transient: false, Cause: err}
		}
	}

	msg.Subject(payload.Subject)
	msg.SetBodyString(mail.TypeTextHTML, payload.HTML)
	if payload.Text != "" {
		msg.AddAlternativeString(mail.TypeTextPlain, payload.Text)
	}

	for _, a := range payload.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return nil, &ProviderError{
				Message:   fmt.Sprintf("attachment %q is not valid base64", a.Filename),
				Transient: false,
				Cause:     err,
			}
		}
		if err := msg.AttachReader(a.Filename, bytes.NewReader(content)); err != nil {
			return nil, &ProviderError{
				Message:   fmt.Sprintf("failed to attach %q", a.Filename),
				Transient: false,
				Cause:     err,
			}
		}
	}

	msg.SetMessageID()
	return msg, nil
}
