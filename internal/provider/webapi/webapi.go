// Package webapi implements a Provider that posts form-encoded requests to the
// mail.send web API.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shineum/sgmail/internal/provider"
)

// defaultTimeout bounds a single mail.send round trip.
const defaultTimeout = 30 * time.Second

// ErrMissingCredentials is returned when a request lacks api_user or api_key.
var ErrMissingCredentials = errors.New("mail.send request is missing api_user or api_key")

// Config holds the configuration for creating a Provider.
type Config struct {
	Timeout time.Duration
}

// Provider posts requests to the mail.send endpoint over HTTP.
type Provider struct {
	httpClient *http.Client
}

// New creates a new Provider with the given configuration.
func New(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Provider{httpClient: &http.Client{Timeout: timeout}}
}

// NewWithClient creates a Provider with a custom HTTP client, used for testing.
func NewWithClient(client *http.Client) *Provider {
	return &Provider{httpClient: client}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "webapi"
}

// apiReply is the JSON body returned by mail.send.
type apiReply struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// APIError is a rejected mail.send request.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("mail.send error (HTTP %d): %s", e.StatusCode, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("mail.send error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Send posts the form to req.URL. A 2xx reply whose message is not "error"
// is a success; anything else is returned as *APIError.
func (p *Provider) Send(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if req.Form.Get("api_user") == "" || req.Form.Get("api_key") == "" {
		return nil, ErrMissingCredentials
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, strings.NewReader(req.Form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", provider.ContentTypeForm)
	}

	slog.Debug("posting mail.send request",
		"url", req.URL,
		"fields", len(req.Form),
	)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mail.send request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mail.send response: %w", err)
	}

	var reply apiReply
	jsonErr := json.Unmarshal(body, &reply)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || reply.Message == "error" {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: reply.Message, Errors: reply.Errors}
		if jsonErr != nil {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		slog.Warn("mail.send rejected request",
			"status", resp.StatusCode,
			"error", apiErr,
		)
		return nil, apiErr
	}

	return &provider.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
