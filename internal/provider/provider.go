// Package provider defines the transport boundary for delivering a finalized
// mail.send request.
package provider

import (
	"context"
	"net/http"
	"net/url"
)

// ContentTypeForm is the content type of every mail.send request body.
const ContentTypeForm = "application/x-www-form-urlencoded"

// Request is a fully built mail.send request: the finalized message fields
// plus credentials, ready to be form-encoded.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Form   url.Values
}

// Response is the outcome of a successful delivery.
type Response struct {
	StatusCode int
	Body       []byte

	// MessageID is set by providers that return one.
	MessageID string
}

// Provider is the interface that delivery backends must implement.
// Each provider handles the actual transmission of a built request to the
// target service (the mail.send web API, SES, stdout).
type Provider interface {
	// Send delivers the request. Transport failures are returned as-is and
	// never retried.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Name returns the human-readable name of this provider.
	Name() string
}
