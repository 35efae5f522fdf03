package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/spigot/internal/stream"
	"github.com/dyluth/spigot/pkg/statusboard"
)

// StatusReader is the subset of statusboard.Client used to follow a run.
type StatusReader interface {
	GetStatus(ctx context.Context) (*statusboard.Event, error)
	Subscribe(ctx context.Context) (*statusboard.Subscription, error)
}

// PollForStatus polls until a status has been published for the instance.
// Polls every 200ms for up to timeout.
func PollForStatus(ctx context.Context, client StatusReader, timeout time.Duration) (*statusboard.Event, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		e, err := client.GetStatus(ctx)
		if err == nil {
			return e, nil
		}
		if !statusboard.IsNotFound(err) {
			return nil, fmt.Errorf("failed to query status: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for status after %v", timeout)
		case <-ticker.C:
		}
	}
}

// Follow writes the current status and then every published event until the
// run reaches a terminal status, the subscription ends or ctx is cancelled.
// It returns the last event seen.
func Follow(ctx context.Context, client StatusReader, w io.Writer, format OutputFormat) (*statusboard.Event, error) {
	sub, err := client.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	last, err := client.GetStatus(ctx)
	switch {
	case err == nil:
		if err := WriteEvent(w, last, format); err != nil {
			return last, err
		}
		if IsTerminal(last) {
			return last, nil
		}
	case statusboard.IsNotFound(err):
		last = nil
	default:
		return nil, fmt.Errorf("failed to query status: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return last, nil
		case err, ok := <-sub.Errors():
			if !ok {
				return last, nil
			}
			fmt.Fprintf(w, "warning: %v\n", err)
		case e, ok := <-sub.Events():
			if !ok {
				return last, nil
			}
			last = e
			if err := WriteEvent(w, e, format); err != nil {
				return last, err
			}
			if IsTerminal(e) {
				return last, nil
			}
		}
	}
}

// IsTerminal reports whether e ends a run.
func IsTerminal(e *statusboard.Event) bool {
	return e != nil && (e.Status == string(stream.StatusStopped) || e.Status == string(stream.StatusFailed))
}
