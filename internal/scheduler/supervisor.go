package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrExitOnLimit is returned by OnRateLimited when the provider config has
// exit_on_429 set, after the process has already been asked to exit.
var ErrExitOnLimit = fmt.Errorf("scheduler: rate limited and exit_on_429 is set")

// OnRateLimited reacts to a 429 response from the provider: pause every
// future admission, wait out the configured backoff, then resume. With
// exitOnLimit set, it logs and calls os.Exit(1) instead of waiting, per the
// spec's choice to fail a run outright rather than silently extend it when
// an operator wants rate-limit pressure surfaced immediately.
func (s *Scheduler) OnRateLimited(ctx context.Context, exitOnLimit bool) error {
	if exitOnLimit {
		s.logger.Error("rate limited by provider, exiting (exit_on_429 is set)")
		os.Exit(1)

		return ErrExitOnLimit
	}

	s.logger.Warn("rate limited by provider, pausing scheduler", slog.Duration("backoff", s.pauseBackoff))
	s.Pause()

	select {
	case <-time.After(s.pauseBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("resuming scheduler after rate-limit backoff")
	s.Resume()

	return nil
}
