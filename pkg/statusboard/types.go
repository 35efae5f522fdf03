package statusboard

import (
	"errors"
	"fmt"
)

// Event is one status snapshot of a run.
type Event struct {
	RunID         string  `json:"run_id"`
	Instance      string  `json:"instance"`
	Host          string  `json:"host,omitempty"`
	OutputDir     string  `json:"output_dir,omitempty"`
	Status        string  `json:"status"`
	DigitsWritten uint64  `json:"digits_written"`
	StartDigits   uint64  `json:"start_digits"`
	Resumed       bool    `json:"resumed"`
	Rate          float64 `json:"rate"`
	SmoothedRate  float64 `json:"smoothed_rate"`
	Reason        string  `json:"reason,omitempty"`
	TimestampMs   int64   `json:"timestamp_ms"`
}

// Validate checks required fields.
func (e *Event) Validate() error {
	var errs []error
	if e.RunID == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if e.Instance == "" {
		errs = append(errs, errors.New("instance is required"))
	}
	if e.Status == "" {
		errs = append(errs, errors.New("status is required"))
	}
	if e.TimestampMs <= 0 {
		errs = append(errs, fmt.Errorf("timestamp_ms must be positive, got %d", e.TimestampMs))
	}
	if e.DigitsWritten < e.StartDigits {
		errs = append(errs, fmt.Errorf("digits_written %d is below start_digits %d", e.DigitsWritten, e.StartDigits))
	}
	return errors.Join(errs...)
}
