package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/dyluth/spigot/pkg/statusboard"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatText, OutputFormatJSONL:
		return OutputFormat(s), nil
	case "":
		return OutputFormatText, nil
	}
	return "", fmt.Errorf("invalid output format: %s (must be 'text' or 'jsonl')", s)
}

// WriteEvent writes one event in the given format.
func WriteEvent(w io.Writer, e *statusboard.Event, format OutputFormat) error {
	if format == OutputFormatJSONL {
		return FormatJSONL(w, []*statusboard.Event{e})
	}
	_, err := fmt.Fprintln(w, FormatLine(e))
	return err
}

// FormatLine renders an event as a single human-readable line.
func FormatLine(e *statusboard.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-8s digits=%s rate=%s/s avg=%s/s run=%s",
		formatClock(e.TimestampMs),
		strings.ToUpper(e.Status),
		strconv.FormatUint(e.DigitsWritten, 10),
		formatRate(e.Rate),
		formatRate(e.SmoothedRate),
		formatID(e.RunID),
	)
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%q", e.Reason)
	}
	return b.String()
}

// FormatTable writes events as a table. Returns the number of rows.
func FormatTable(w io.Writer, events []*statusboard.Event, instance string, now time.Time) int {
	if len(events) == 0 {
		fmt.Fprintf(w, "No status history for instance '%s'\n", instance)
		return 0
	}

	fmt.Fprintf(w, "Status history for instance '%s':\n\n", instance)
	fmt.Fprintf(w, "%-10s %-9s %-14s %-10s %-20s %s\n",
		"RUN", "STATUS", "DIGITS", "RATE", "AGE", "REASON")
	fmt.Fprintf(w, "%-10s %-9s %-14s %-10s %-20s %s\n",
		"----------", "---------", "--------------", "----------", "--------------------", "--------------------")

	for _, e := range events {
		fmt.Fprintf(w, "%-10s %-9s %-14d %-10s %-20s %s\n",
			formatID(e.RunID),
			e.Status,
			e.DigitsWritten,
			formatRate(e.SmoothedRate)+"/s",
			formatAge(e.TimestampMs, now),
			formatReason(e.Reason),
		)
	}

	noun := "event"
	if len(events) != 1 {
		noun = "events"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(events), noun)
	return len(events)
}

// FormatJSONL writes events as line-delimited JSON.
func FormatJSONL(w io.Writer, events []*statusboard.Event) error {
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// formatID truncates a run ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', 0, 64)
}

func formatReason(reason string) string {
	if reason == "" {
		return "-"
	}
	if len(reason) > 40 {
		return reason[:37] + "..."
	}
	return reason
}

func formatClock(timestampMs int64) string {
	if timestampMs == 0 {
		return "--:--:--"
	}
	return time.UnixMilli(timestampMs).Format("15:04:05")
}

// formatAge renders the time since timestampMs, e.g. "3 minutes ago".
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}
	d := now.Sub(time.UnixMilli(timestampMs))
	if d < 0 {
		d = 0
	}
	return units.HumanDuration(d) + " ago"
}
