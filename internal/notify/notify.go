package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/xerrors"

	"lmsdownloader/internal/retry"
)

type Config struct {
	// Timeout bounds the whole delivery including retries and backoff.
	Timeout time.Duration
	// PerTryTimeout bounds a single attempt.
	PerTryTimeout time.Duration
	Backoff       retry.Backoff
	On            *retry.On
}

func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		PerTryTimeout: 5 * time.Second,
		Backoff:       retry.Exponential{Base: 100 * time.Millisecond, Max: 2 * time.Second, Attempts: 4},
		On:            retry.DefaultOn(),
	}
}

// Callback reports run results to an HTTP endpoint with PATCH requests.
type Callback struct {
	url    string
	client *http.Client
}

func NewCallback(url string, config Config) *Callback {
	return &Callback{
		url: url,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: otelhttp.NewTransport(&retry.Transport{
				Base:          http.DefaultTransport,
				Backoff:       config.Backoff,
				On:            config.On,
				PerTryTimeout: config.PerTryTimeout,
			}),
		},
	}
}

// Send marshals payload as JSON and delivers it. Non-2xx answers left after
// retries are errors.
func (c *Callback) Send(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Errorf("failed to marshal payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.url, bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return xerrors.Errorf("callback answered %s", response.Status)
	}
	return nil
}
