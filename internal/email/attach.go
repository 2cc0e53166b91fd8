package email

import (
	"context"
	"fmt"
)

// Fetcher retrieves the content of a remote file.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Callbacks receive the outcome of a remote attachment. Either field may be nil.
type Callbacks struct {
	OnSuccess func()
	OnError   func(err error)
}

// AttachRemote fetches ref and stores its content under files[filename].
// On failure the message is left unchanged and the fetch error is returned.
func (m *Message) AttachRemote(ctx context.Context, f Fetcher, filename, ref string) error {
	content, err := f.Fetch(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to fetch attachment %q: %w", filename, err)
	}
	m.AttachBytes(filename, content)
	return nil
}

// AttachRemoteAsync runs AttachRemote in a new goroutine. The returned channel
// yields exactly one value, nil on success, and is then closed. The message
// must not be used until that value has been received.
func (m *Message) AttachRemoteAsync(ctx context.Context, f Fetcher, filename, ref string) <-chan error {
	return m.AttachRemoteWithCallbacks(ctx, f, filename, ref, Callbacks{})
}

// AttachRemoteWithCallbacks is AttachRemoteAsync that also reports the outcome
// to cb before it is sent on the channel.
func (m *Message) AttachRemoteWithCallbacks(ctx context.Context, f Fetcher, filename, ref string, cb Callbacks) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := m.AttachRemote(ctx, f, filename, ref)
		switch {
		case err != nil && cb.OnError != nil:
			cb.OnError(err)
		case err == nil && cb.OnSuccess != nil:
			cb.OnSuccess()
		}
		done <- err
	}()
	return done
}
