package stream

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the loop's scheduling parameters.
type Config struct {
	CheckpointInterval uint64        // digits between checkpoints
	SyncInterval       uint64        // digits between durability barriers
	ProgressInterval   time.Duration // cadence of progress reports
	Alpha              float64       // smoothing factor for SmoothedRate, in [0,1]
	LineWidth          int           // digits per artifact line, 0 disables line breaks
	PausePollInterval  time.Duration // sleep between backpressure polls while paused
	MaxDigits          uint64        // stop once this many digits exist, 0 for unbounded
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		CheckpointInterval: 50_000,
		SyncInterval:       50_000,
		ProgressInterval:   500 * time.Millisecond,
		Alpha:              0.15,
		PausePollInterval:  2 * time.Second,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.CheckpointInterval == 0 {
		errs = append(errs, errors.New("checkpoint interval must be >= 1"))
	}
	if c.SyncInterval == 0 {
		errs = append(errs, errors.New("sync interval must be >= 1"))
	}
	if c.ProgressInterval <= 0 {
		errs = append(errs, errors.New("progress interval must be positive"))
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		errs = append(errs, fmt.Errorf("smoothing factor must be within [0,1], got %v", c.Alpha))
	}
	if c.LineWidth < 0 {
		errs = append(errs, fmt.Errorf("line width must be >= 0, got %d", c.LineWidth))
	}
	if c.PausePollInterval <= 0 {
		errs = append(errs, errors.New("pause poll interval must be positive"))
	}
	return errors.Join(errs...)
}
