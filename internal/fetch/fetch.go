// Package fetch retrieves remote attachment content over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// defaultTimeout bounds a single download.
const defaultTimeout = 30 * time.Second

// Config holds the configuration for creating an HTTPFetcher.
type Config struct {
	Timeout time.Duration

	// CacheTTL keeps fetched content in memory for reuse across messages.
	// Zero disables caching.
	CacheTTL time.Duration
}

// StatusError is returned when the remote server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected HTTP status %d", e.URL, e.StatusCode)
}

// HTTPFetcher downloads files with GET requests. It is safe for concurrent use.
type HTTPFetcher struct {
	httpClient *http.Client
	cache      *gocache.Cache
	inflight   singleflight.Group
}

// New creates an HTTPFetcher with the given configuration.
func New(cfg Config) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithClient(&http.Client{Timeout: timeout}, cfg.CacheTTL)
}

// NewWithClient creates an HTTPFetcher with a custom HTTP client, used for testing.
func NewWithClient(client *http.Client, cacheTTL time.Duration) *HTTPFetcher {
	f := &HTTPFetcher{httpClient: client}
	if cacheTTL > 0 {
		f.cache = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return f
}

// Fetch returns the body of ref. Cached content is returned without a request,
// and concurrent fetches of the same ref share one request. The shared request
// is not cancelled by any single caller; each caller stops waiting when its
// own ctx is done.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if f.cache != nil {
		if v, ok := f.cache.Get(ref); ok {
			if b, ok := v.([]byte); ok {
				slog.Debug("attachment cache hit", "url", ref)
				return b, nil
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shared := context.WithoutCancel(ctx)
	ch := f.inflight.DoChan(ref, func() (any, error) {
		return f.get(shared, ref)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.Debug("attachment fetch shared", "url", ref)
		}
		return res.Val.([]byte), nil
	}
}

func (f *HTTPFetcher) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}

	slog.Debug("fetching attachment", "url", ref)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("attachment fetch failed", "url", ref, "status", resp.StatusCode)
		return nil, &StatusError{URL: ref, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}

	if f.cache != nil {
		f.cache.SetDefault(ref, body)
	}
	return body, nil
}
