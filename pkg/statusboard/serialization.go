package statusboard

import (
	"fmt"
	"strconv"
)

// EventToHash converts an event to Redis hash fields.
func EventToHash(e *Event) map[string]interface{} {
	return map[string]interface{}{
		"run_id":         e.RunID,
		"instance":       e.Instance,
		"host":           e.Host,
		"output_dir":     e.OutputDir,
		"status":         e.Status,
		"digits_written": strconv.FormatUint(e.DigitsWritten, 10),
		"start_digits":   strconv.FormatUint(e.StartDigits, 10),
		"resumed":        strconv.FormatBool(e.Resumed),
		"rate":           strconv.FormatFloat(e.Rate, 'f', -1, 64),
		"smoothed_rate":  strconv.FormatFloat(e.SmoothedRate, 'f', -1, 64),
		"reason":         e.Reason,
		"timestamp_ms":   strconv.FormatInt(e.TimestampMs, 10),
	}
}

// HashToEvent converts Redis hash fields back to an event.
func HashToEvent(hash map[string]string) (*Event, error) {
	digits, err := strconv.ParseUint(hash["digits_written"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid digits_written field: %w", err)
	}
	start, err := strconv.ParseUint(hash["start_digits"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid start_digits field: %w", err)
	}
	resumed, err := strconv.ParseBool(hash["resumed"])
	if err != nil {
		return nil, fmt.Errorf("invalid resumed field: %w", err)
	}
	rate, err := strconv.ParseFloat(hash["rate"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid rate field: %w", err)
	}
	smoothed, err := strconv.ParseFloat(hash["smoothed_rate"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid smoothed_rate field: %w", err)
	}
	ts, err := strconv.ParseInt(hash["timestamp_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp_ms field: %w", err)
	}

	return &Event{
		RunID:         hash["run_id"],
		Instance:      hash["instance"],
		Host:          hash["host"],
		OutputDir:     hash["output_dir"],
		Status:        hash["status"],
		DigitsWritten: digits,
		StartDigits:   start,
		Resumed:       resumed,
		Rate:          rate,
		SmoothedRate:  smoothed,
		Reason:        hash["reason"],
		TimestampMs:   ts,
	}, nil
}
