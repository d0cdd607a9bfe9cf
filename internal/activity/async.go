package activity

import (
	"context"
	"log/slog"
	"time"
)

// recordTimeout bounds a single asynchronous record.
const recordTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before shutting down
// telemetry providers, so in-flight asynchronous records have time to complete.
const ShutdownDrainDuration = recordTimeout

type async struct {
	next    Recorder
	timeout time.Duration
}

// Async wraps r so Record returns immediately. The record runs in a goroutine on a background
// context with a short timeout, so request cancellation does not abort it; errors are logged.
// A nil r yields Nop.
func Async(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return &async{next: r, timeout: recordTimeout}
}

func (a *async) Record(_ context.Context, e Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.Record(ctx, e); err != nil {
			slog.Warn("activity: async record failed", "type", e.Type, "company_id", e.CompanyID, "error", err)
		}
	}()
	return nil
}
