// Package sender turns a message into a mail.send request, adds the account
// credentials and hands it to a delivery provider.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shineum/sgmail/internal/email"
	"github.com/shineum/sgmail/internal/provider"
)

// DefaultEndpoint is the mail.send API URL.
const DefaultEndpoint = "https://api.sendgrid.com/api/mail.send.json"

// Credential field names added to every request.
const (
	FieldAPIUser = "api_user"
	FieldAPIKey  = "api_key"
)

// ErrEmptyInput is returned for an Input that holds neither a description
// nor a message.
var ErrEmptyInput = errors.New("sender: input holds no message")

// Kind tells which variant an Input holds.
type Kind int

const (
	KindDescription Kind = iota + 1
	KindMessage
)

// Input is either a raw Description or an already built Message.
type Input struct {
	kind        Kind
	description *email.Description
	message     *email.Message
}

// FromDescription wraps a description. A new Message is built from it on send.
func FromDescription(d *email.Description) Input {
	return Input{kind: KindDescription, description: d}
}

// FromMessage wraps a built message.
func FromMessage(m *email.Message) Input {
	return Input{kind: KindMessage, message: m}
}

// Kind returns the variant held by in, or 0 for the zero Input.
func (in Input) Kind() Kind {
	return in.kind
}

func (in Input) build() (*email.Message, error) {
	switch in.kind {
	case KindDescription:
		return email.New(in.description), nil
	case KindMessage:
		if in.message == nil {
			return nil, ErrEmptyInput
		}
		return in.message, nil
	default:
		return nil, ErrEmptyInput
	}
}

// Credentials identify the sending account.
type Credentials struct {
	APIUser string
	APIKey  string
}

// Configured returns true if both values are set.
func (c Credentials) Configured() bool {
	return c.APIUser != "" && c.APIKey != ""
}

// Config holds the configuration for creating a Sender.
type Config struct {
	Provider    provider.Provider
	Credentials Credentials

	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
}

// Sender dispatches messages through a provider. It holds no per-message
// state and is safe for concurrent use if its provider is.
type Sender struct {
	provider    provider.Provider
	credentials Credentials
	endpoint    string
}

// New creates a Sender with the given configuration.
func New(cfg Config) *Sender {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Sender{
		provider:    cfg.Provider,
		credentials: cfg.Credentials,
		endpoint:    endpoint,
	}
}

// BuildRequest finalizes the input and returns the form-encoded POST request
// that Send would deliver. Empty credentials are left out of the form.
func (s *Sender) BuildRequest(in Input) (*provider.Request, error) {
	msg, err := in.build()
	if err != nil {
		return nil, err
	}

	fields, err := msg.Finalize()
	if err != nil {
		return nil, err
	}

	form := fields.Values()
	if s.credentials.APIUser != "" {
		form.Set(FieldAPIUser, s.credentials.APIUser)
	}
	if s.credentials.APIKey != "" {
		form.Set(FieldAPIKey, s.credentials.APIKey)
	}

	return &provider.Request{
		Method: http.MethodPost,
		URL:    s.endpoint,
		Header: http.Header{"Content-Type": {provider.ContentTypeForm}},
		Form:   form,
	}, nil
}

// Send builds the request for in and delivers it. Provider errors are
// returned unchanged.
func (s *Sender) Send(ctx context.Context, in Input) (*provider.Response, error) {
	req, err := s.BuildRequest(in)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.provider.Send(ctx, req)
	if err != nil {
		slog.Error("provider send failed",
			"provider", s.provider.Name(),
			"error", err,
		)
		return nil, err
	}

	slog.Info("message sent",
		"provider", s.provider.Name(),
		"status", resp.StatusCode,
		"message_id", resp.MessageID,
	)
	return resp, nil
}

// ProviderName returns the name of the configured provider.
func (s *Sender) ProviderName() string {
	return s.provider.Name()
}
