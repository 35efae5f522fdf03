package stream

import (
	"fmt"

	"github.com/dyluth/spigot/internal/checkpoint"
	"github.com/dyluth/spigot/internal/engine"
	"github.com/dyluth/spigot/internal/sink"
)

// bootstrap resolves the starting state from the checkpoint and the artifact,
// opens the artifact and makes sure a checkpoint matching it exists.
//
// The artifact is authoritative for how many digits exist; the checkpoint is
// authoritative for the recurrence state at its own count. Any digits past the
// checkpoint are regenerated from its state and verified against the artifact
// before the run continues, so a lost or stale checkpoint never shifts the
// digit stream.
func (c *Controller) bootstrap() error {
	c.transition(StatusBootstrapping)

	cp, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	artifactDigits, err := sink.CountDigits(c.artifactPath)
	if err != nil {
		return fmt.Errorf("failed to inspect artifact: %w", err)
	}

	var (
		state engine.State
		base  uint64
	)
	if cp != nil {
		state = cp.State
		base = cp.DigitsWritten
		c.logger.Info("checkpoint_loaded", "digits_written", base, "updated_at", cp.UpdatedAt)
	} else {
		state, err = engine.AfterPrefix()
		if err != nil {
			return err
		}
		if artifactDigits > 0 {
			c.logger.Warn("checkpoint missing, regenerating from the beginning",
				"artifact_digits", artifactDigits)
		}
	}

	if artifactDigits < base {
		return &ReconcileError{
			CheckpointDigits: base,
			ArtifactDigits:   artifactDigits,
			Message:          "artifact holds fewer digits than the checkpoint recorded as durable",
		}
	}
	if artifactDigits > base {
		state, err = c.fastForward(state, base, artifactDigits)
		if err != nil {
			return err
		}
	}

	s, err := c.openSink(c.artifactPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	c.sink = s

	c.state = state
	c.digits = artifactDigits
	c.startDigits = artifactDigits
	c.resumed = artifactDigits > 0
	c.lastSync = artifactDigits
	c.lastCheckpoint = artifactDigits
	c.lastReport = c.now()
	c.lastReportDigits = artifactDigits

	if err := c.repairLineBreak(); err != nil {
		return err
	}

	if cp == nil || base != artifactDigits {
		// Regenerated digits were read back from the page cache; make them
		// durable before a checkpoint vouches for them.
		if err := c.syncSink(); err != nil {
			return err
		}
		if err := c.checkpoint(); err != nil {
			return err
		}
	}

	c.transition(StatusRunning)
	c.logger.Info("started", "digits_written", c.digits, "resumed", c.resumed)
	c.report(0, "")
	return nil
}

// fastForward regenerates digits base+1..target from state, checking each one
// against the artifact, and returns the state positioned after target.
func (c *Controller) fastForward(state engine.State, base, target uint64) (engine.State, error) {
	c.logger.Info("regenerating digits past checkpoint", "from", base, "to", target)
	return replay(c.artifactPath, state, base, target)
}

func replay(path string, state engine.State, base, target uint64) (engine.State, error) {
	cur := state
	_, err := sink.ScanDigits(path, func(pos uint64, digit byte) error {
		if pos <= base || pos > target {
			return nil
		}
		d, next, err := engine.Step(cur)
		if err != nil {
			return fmt.Errorf("engine step at digit %d: %w", pos, err)
		}
		if byte('0'+d) != digit {
			return &ReconcileError{
				CheckpointDigits: base,
				ArtifactDigits:   target,
				Position:         pos,
				Message:          fmt.Sprintf("artifact has %c, generator produced %d", digit, d),
			}
		}
		cur = next
		return nil
	})
	if err != nil {
		return engine.State{}, err
	}
	return cur, nil
}

// repairLineBreak appends the newline a crash may have cut off after the last
// digit of a full line.
func (c *Controller) repairLineBreak() error {
	width := uint64(c.cfg.LineWidth)
	if width == 0 || c.digits == 0 || c.digits%width != 0 {
		return nil
	}
	if c.sink.LastByte() == '\n' {
		return nil
	}
	if err := c.sink.Append('\n'); err != nil {
		return &DurabilityError{Op: "append", Digits: c.digits, Err: err}
	}
	return nil
}

var _ CheckpointStore = (*checkpoint.Store)(nil)
