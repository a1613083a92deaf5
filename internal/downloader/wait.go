package downloader

import (
	"context"
	"time"

	"golang.org/x/xerrors"
	"k8s.io/apimachinery/pkg/util/wait"

	"lmsdownloader/internal/capture"
)

// waitAny polls until one of locs matches and returns its position in locs.
// Lookup errors count as "not yet" since frames may be mid-navigation.
func (r *run) waitAny(ctx context.Context, locs ...capture.Locator) (int, error) {
	found := -1
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, r.timing.PollInterval, r.timing.ElementTimeout, true, func(ctx context.Context) (bool, error) {
		for i, loc := range locs {
			n, err := r.driver.Count(ctx, loc)
			if err != nil {
				lastErr = err
				continue
			}
			if n > 0 {
				found = i
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return -1, ctxErr
		}
		if wait.Interrupted(err) {
			if lastErr != nil {
				return -1, xerrors.Errorf("%w: %v after %s (last error: %v)", ErrElementTimeout, locs, r.timing.ElementTimeout, lastErr)
			}
			return -1, xerrors.Errorf("%w: %v after %s", ErrElementTimeout, locs, r.timing.ElementTimeout)
		}
		return -1, err
	}
	return found, nil
}

func (r *run) present(ctx context.Context, loc capture.Locator) (bool, error) {
	n, err := r.driver.Count(ctx, loc)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// sleep waits d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
