// Package stdout implements a Provider that prints requests to standard output
// instead of sending them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/sgmail/internal/email"
	"github.com/shineum/sgmail/internal/provider"
)

// maskedFields are never printed in clear.
var maskedFields = map[string]bool{
	"api_key": true,
}

// filePreviewLimit is the size above which attachment content is summarized.
const filePreviewLimit = 64

// Provider prints mail.send requests in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the request and returns a generated message id.
// It only fails if the writer fails.
func (p *Provider) Send(_ context.Context, req *provider.Request) (*provider.Response, error) {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("%s %s\n", req.Method, req.URL))

	keys := make([]string, 0, len(req.Form))
	for k := range req.Form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filePrefix := email.FieldFiles + "["
	for _, k := range keys {
		v := req.Form.Get(k)
		switch {
		case maskedFields[k]:
			v = "********"
		case strings.HasPrefix(k, filePrefix) && len(v) > filePreviewLimit:
			v = fmt.Sprintf("(%s)", formatSize(len(v)))
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", k, v))
	}

	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	return &provider.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"message":"success"}`),
		MessageID:  "stdout-" + uuid.New().String(),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
