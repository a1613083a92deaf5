package retry_test

import (
	"fmt"
	"math"
	"runtime"
	"testing"
	"time"

	"lmsdownloader/internal/retry"

	"github.com/google/go-cmp/cmp"
)

// identity returns the jitter ceiling itself so delays are deterministic.
func identity(n int64) int64 { return n }

func TestBackoffDelay(t *testing.T) {
	type in struct {
		attempt uint
	}

	type want struct {
		delay     time.Duration
		exhausted bool
	}

	tests := []struct {
		name     string
		receiver retry.Backoff
		in       in
		want     want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NoRetry{},
			in{0},
			want{0, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential{Base: time.Second, Max: time.Minute, Attempts: 3, Jitter: identity},
			in{0},
			want{time.Second, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential{Base: time.Second, Max: time.Minute, Attempts: 3, Jitter: identity},
			in{2},
			want{4 * time.Second, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential{Base: time.Second, Max: time.Minute, Attempts: 3, Jitter: identity},
			in{3},
			want{0, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential{Base: time.Second, Max: 5 * time.Second, Attempts: 10, Jitter: identity},
			in{6},
			want{5 * time.Second, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.Exponential{Base: time.Hour, Max: math.MaxInt64, Attempts: math.MaxUint32, Jitter: identity},
			in{100},
			want{math.MaxInt64, false},
		},
	}
	for _, tt := range tests {
		name := tt.name
		receiver := tt.receiver
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			delay, exhausted := receiver.Delay(in.attempt)
			if diff := cmp.Diff(want.delay, delay); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want.exhausted, exhausted); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}
