package retry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"lmsdownloader/internal/retry"

	"github.com/google/go-cmp/cmp"
)

func TestTransportReplaysBody(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &http.Client{Transport: &retry.Transport{
		Backoff: retry.Exponential{Base: time.Millisecond, Max: 10 * time.Millisecond, Attempts: 5},
		On:      retry.DefaultOn(),
	}}
	request, err := http.NewRequest(http.MethodPatch, server.URL, strings.NewReader(`{"pages":3}`))
	if err != nil {
		t.Fatal(err)
	}
	response, err := client.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusNoContent {
		t.Errorf("want %d, got %d", http.StatusNoContent, response.StatusCode)
	}
	if diff := cmp.Diff([]string{`{"pages":3}`, `{"pages":3}`, `{"pages":3}`}, bodies); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestTransportGivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := &http.Client{Transport: &retry.Transport{
		Backoff: retry.Exponential{Base: time.Millisecond, Max: time.Millisecond, Attempts: 2},
		On:      retry.DefaultOn(),
	}}
	response, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("want %d, got %d", http.StatusServiceUnavailable, response.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("want 3 attempts, got %d", got)
	}
}

func TestTransportHonoursContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := &http.Client{Transport: &retry.Transport{
		Backoff: retry.Exponential{Base: time.Hour, Max: time.Hour, Attempts: 5},
		On:      retry.DefaultOn(),
	}}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Do(request); err == nil {
		t.Error("want error after context deadline")
	}
}

func TestTransportRetriesSlowAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			<-r.Context().Done()
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	client := &http.Client{Transport: &retry.Transport{
		Backoff:       retry.Exponential{Base: time.Millisecond, Max: time.Millisecond, Attempts: 2},
		On:            retry.DefaultOn(),
		PerTryTimeout: 100 * time.Millisecond,
	}}
	response, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read body after attempt returned: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("want body %q, got %q", "ok", body)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("want 2 attempts, got %d", got)
	}
}
