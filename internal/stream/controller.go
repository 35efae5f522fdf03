// Package stream drives the π spigot: it steps the engine, appends digits to
// the artifact, schedules syncs and checkpoints, and honours backpressure and
// cancellation at step boundaries.
//
// The controller is single-threaded. All collaborators are polled
// synchronously between steps, so a step (engine advance, append, counter
// update) is never interrupted.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/spigot/internal/checkpoint"
	"github.com/dyluth/spigot/internal/engine"
	"github.com/dyluth/spigot/internal/sink"
	"github.com/google/uuid"
)

// CheckpointStore persists and restores checkpoints.
type CheckpointStore interface {
	Save(c checkpoint.Checkpoint) error
	Load() (*checkpoint.Checkpoint, error)
}

// Sink is the append-only artifact.
type Sink interface {
	Append(c byte) error
	Sync() error
	Unsynced() int
	LastByte() byte
	Close() error
}

// Controller owns all mutable run state. Create one per run with New.
type Controller struct {
	cfg          Config
	store        CheckpointStore
	artifactPath string
	openSink     func(path string) (Sink, error)

	progress     ProgressSink
	backpressure Backpressure
	cancel       Cancellation
	logger       *slog.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration)
	runID        string

	status         Status
	state          engine.State
	sink           Sink
	digits         uint64
	startDigits    uint64
	resumed        bool
	lastSync       uint64
	lastCheckpoint uint64

	lastReport       time.Time
	lastReportDigits uint64
	smoothedRate     float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithProgressSink sets where progress reports go.
func WithProgressSink(s ProgressSink) Option {
	return func(c *Controller) {
		if s != nil {
			c.progress = s
		}
	}
}

// WithBackpressure sets the pause predicate.
func WithBackpressure(b Backpressure) Option {
	return func(c *Controller) {
		if b != nil {
			c.backpressure = b
		}
	}
}

// WithCancellation sets an additional stop source polled with the run context.
func WithCancellation(s Cancellation) Option {
	return func(c *Controller) {
		if s != nil {
			c.cancel = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces the wall clock and the pause sleeper.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration)) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithRunID sets the identifier attached to logs and progress reports.
func WithRunID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.runID = id
		}
	}
}

// New creates a controller writing digits to the artifact at artifactPath and
// checkpoints through store.
func New(cfg Config, store CheckpointStore, artifactPath string, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if artifactPath == "" {
		return nil, errors.New("artifact path is required")
	}

	c := &Controller{
		cfg:          cfg,
		store:        store,
		artifactPath: artifactPath,
		openSink: func(path string) (Sink, error) {
			return sink.Open(path)
		},
		progress:     NopSink,
		backpressure: NoBackpressure,
		cancel:       NoCancellation,
		logger:       slog.Default(),
		now:          time.Now,
		sleep:        sleepContext,
		runID:        uuid.New().String(),
		status:       StatusBootstrapping,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "stream", "run_id", c.runID)
	return c, nil
}

// Status returns the current lifecycle state.
func (c *Controller) Status() Status { return c.status }

// DigitsWritten returns the number of fractional digits appended so far.
func (c *Controller) DigitsWritten() uint64 { return c.digits }

// Run bootstraps, streams digits until a stop is requested, then drains.
// It returns nil only after the final checkpoint has been written. Any
// durability or arithmetic failure aborts the run without a further checkpoint.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.bootstrap(); err != nil {
		c.fail(err)
		return err
	}

	for {
		if c.stopRequested(ctx) {
			return c.drain()
		}

		if pause, reason := c.backpressure.ShouldPause(); pause {
			c.pause(ctx, reason)
			continue
		}
		if c.status == StatusPaused {
			c.unpause()
		}

		if err := c.step(); err != nil {
			c.fail(err)
			return err
		}
		c.maybeReport()
	}
}

func (c *Controller) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil || c.cancel.StopRequested() {
		return true
	}
	return c.cfg.MaxDigits > 0 && c.digits >= c.cfg.MaxDigits
}

// step advances the engine by one digit and performs any scheduled I/O.
func (c *Controller) step() error {
	d, next, err := engine.Step(c.state)
	if err != nil {
		return fmt.Errorf("engine step at digit %d: %w", c.digits+1, err)
	}

	if err := c.sink.Append(byte('0' + d)); err != nil {
		return &DurabilityError{Op: "append", Digits: c.digits, Err: err}
	}
	c.state = next
	c.digits++

	if c.cfg.LineWidth > 0 && c.digits%uint64(c.cfg.LineWidth) == 0 {
		if err := c.sink.Append('\n'); err != nil {
			return &DurabilityError{Op: "append", Digits: c.digits, Err: err}
		}
	}

	if c.digits-c.lastSync >= c.cfg.SyncInterval {
		if err := c.syncSink(); err != nil {
			return err
		}
	}
	if c.digits-c.lastCheckpoint >= c.cfg.CheckpointInterval {
		if err := c.checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) syncSink() error {
	if err := c.sink.Sync(); err != nil {
		return &DurabilityError{Op: "sync", Digits: c.digits, Err: err}
	}
	c.lastSync = c.digits
	return nil
}

// checkpoint syncs outstanding characters first so the saved count never
// exceeds what is durable in the artifact.
func (c *Controller) checkpoint() error {
	if c.sink.Unsynced() > 0 {
		if err := c.syncSink(); err != nil {
			return err
		}
	}
	cp := checkpoint.Checkpoint{
		State:         c.state,
		DigitsWritten: c.digits,
		UpdatedAt:     c.now().UTC(),
	}
	if err := c.store.Save(cp); err != nil {
		return &DurabilityError{Op: "checkpoint", Digits: c.digits, Err: err}
	}
	c.lastCheckpoint = c.digits
	c.logger.Debug("checkpoint_saved", "digits_written", c.digits)
	return nil
}

func (c *Controller) pause(ctx context.Context, reason string) {
	if c.status != StatusPaused {
		c.transition(StatusPaused)
		c.logger.Warn("paused", "reason", reason, "digits_written", c.digits)
	}
	c.report(0, reason)
	c.sleep(ctx, c.cfg.PausePollInterval)
}

func (c *Controller) unpause() {
	c.transition(StatusRunning)
	c.logger.Info("resumed", "digits_written", c.digits)
	// Restart the rate window so the paused interval is not averaged in.
	c.lastReport = c.now()
	c.lastReportDigits = c.digits
}

func (c *Controller) maybeReport() {
	now := c.now()
	elapsed := now.Sub(c.lastReport)
	if elapsed < c.cfg.ProgressInterval {
		return
	}

	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(c.digits-c.lastReportDigits) / secs
	}
	if c.smoothedRate == 0 {
		c.smoothedRate = rate
	} else {
		c.smoothedRate = c.cfg.Alpha*rate + (1-c.cfg.Alpha)*c.smoothedRate
	}
	c.lastReport = now
	c.lastReportDigits = c.digits
	c.report(rate, "")
}

func (c *Controller) report(rate float64, reason string) {
	c.progress.Report(Progress{
		RunID:         c.runID,
		DigitsWritten: c.digits,
		StartDigits:   c.startDigits,
		Resumed:       c.resumed,
		Rate:          rate,
		SmoothedRate:  c.smoothedRate,
		Status:        c.status,
		Reason:        reason,
		At:            c.now(),
	})
}

// drain performs the final sync and the unconditional final checkpoint.
func (c *Controller) drain() error {
	c.transition(StatusDraining)
	c.report(0, "")

	if err := c.syncSink(); err != nil {
		c.fail(err)
		return err
	}
	if err := c.checkpoint(); err != nil {
		c.fail(err)
		return err
	}
	if err := c.sink.Close(); err != nil {
		closeErr := &DurabilityError{Op: "close", Digits: c.digits, Err: err}
		c.sink = nil
		c.fail(closeErr)
		return closeErr
	}
	c.sink = nil

	c.transition(StatusStopped)
	c.logger.Info("stopped", "digits_written", c.digits)
	c.report(0, "")
	return nil
}

// fail releases the artifact without checkpointing and reports the failure.
func (c *Controller) fail(err error) {
	if c.sink != nil {
		if closeErr := c.sink.Close(); closeErr != nil {
			c.logger.Error("failed to close artifact", "error", closeErr)
		}
		c.sink = nil
	}
	c.transition(StatusFailed)
	c.logger.Error("run aborted", "error", err, "digits_written", c.digits)
	c.report(0, err.Error())
}

func (c *Controller) transition(to Status) {
	if c.status == to {
		return
	}
	c.logger.Debug("state_transition", "from", string(c.status), "to", string(to))
	c.status = to
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
