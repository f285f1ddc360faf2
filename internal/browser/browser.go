// Package browser opens a URL in the user's browser after a delay without
// blocking the caller.
package browser

import (
	"context"
	"time"

	"github.com/skratchdot/open-golang/open"

	"calibrator/internal/debug"
)

// openURL is a function variable to allow overriding in tests.
var openURL = open.Start

// OpenAfter opens url after delay in a background goroutine. Errors are
// logged and dropped. Cancelling ctx before the delay elapses skips the
// open. The returned channel is closed once the goroutine finishes.
func OpenAfter(ctx context.Context, url string, delay time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if url == "" {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				debug.Warn("browser opener panicked", "panic", r)
			}
		}()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := openURL(url); err != nil {
			debug.Warn("could not open browser", "url", url, "err", err)
			return
		}
		debug.Info("browser opened", "url", url)
	}()
	return done
}
