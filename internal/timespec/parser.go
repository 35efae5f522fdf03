// Package timespec parses the --since and --until flags of the status command.
package timespec

import (
	"fmt"
	"time"
)

// Parse turns spec into an absolute time. spec is either a Go duration
// ("90s", "1h30m"), meaning that long before now, or an RFC3339 timestamp.
func Parse(spec string, now time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("negative duration: %s", spec)
		}
		return now.Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// Range is a closed time window in Unix milliseconds. Zero means unbounded.
type Range struct {
	SinceMs int64
	UntilMs int64
}

// ParseRange parses the --since and --until flags. Empty flags leave the
// matching bound open.
func ParseRange(since, until string, now time.Time) (Range, error) {
	var r Range

	if since != "" {
		t, err := Parse(since, now)
		if err != nil {
			return Range{}, fmt.Errorf("invalid --since: %w", err)
		}
		r.SinceMs = t.UnixMilli()
	}

	if until != "" {
		t, err := Parse(until, now)
		if err != nil {
			return Range{}, fmt.Errorf("invalid --until: %w", err)
		}
		r.UntilMs = t.UnixMilli()
	}

	if r.SinceMs > 0 && r.UntilMs > 0 && r.SinceMs >= r.UntilMs {
		return Range{}, fmt.Errorf("--since must be before --until")
	}

	return r, nil
}
