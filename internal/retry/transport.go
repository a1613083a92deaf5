package retry

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// Transport retries requests through Base according to On and Backoff.
// Requests with a body are replayed through GetBody, so they must be built
// with http.NewRequest from a rewindable reader.
type Transport struct {
	Base    http.RoundTripper
	Backoff Backoff
	On      *On
	// PerTryTimeout bounds each attempt when positive. A timed out attempt
	// is retried like a 504.
	PerTryTimeout time.Duration
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	ctx := request.Context()

	for attempt := uint(0); ; attempt++ {
		response, timedOut, err := t.try(request)

		if !t.retriable(response, timedOut, err) {
			return response, err
		}
		delay, exhausted := t.backoff().Delay(attempt)
		if exhausted {
			return response, err
		}
		if request.Body != nil && request.GetBody == nil {
			return response, err
		}

		if response != nil {
			_, _ = io.Copy(io.Discard, response.Body)
			_ = response.Body.Close()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		if request.GetBody != nil {
			body, err := request.GetBody()
			if err != nil {
				return nil, xerrors.Errorf("failed to rewind request body: %w", err)
			}
			request = request.Clone(ctx)
			request.Body = body
		}
	}
}

func (t *Transport) retriable(response *http.Response, timedOut bool, err error) bool {
	switch {
	case t.On == nil:
		return false
	case timedOut:
		return t.On.timeout()
	case err != nil:
		return t.On.Error(err)
	default:
		return t.On.Response(response)
	}
}

// try runs one attempt. timedOut reports that PerTryTimeout expired while
// the caller's context is still alive.
func (t *Transport) try(request *http.Request) (*http.Response, bool, error) {
	if t.PerTryTimeout <= 0 {
		response, err := t.base().RoundTrip(request)
		return response, false, err
	}

	ctx, cancel := context.WithTimeout(request.Context(), t.PerTryTimeout)
	response, err := t.base().RoundTrip(request.WithContext(ctx))
	if err != nil {
		timedOut := ctx.Err() == context.DeadlineExceeded && request.Context().Err() == nil
		cancel()
		return nil, timedOut, err
	}
	response.Body = &cancelBody{ReadCloser: response.Body, cancel: cancel}
	return response, false, nil
}

// cancelBody releases the attempt context once the caller is done with the body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) backoff() Backoff {
	if t.Backoff != nil {
		return t.Backoff
	}
	return NoRetry{}
}
