package stream

import (
	"github.com/dyluth/spigot/internal/checkpoint"
	"github.com/dyluth/spigot/internal/engine"
	"github.com/dyluth/spigot/internal/sink"
)

// VerifyResult summarises a VerifyArtifact run.
type VerifyResult struct {
	ArtifactDigits uint64
	Verified       uint64
	// CheckpointMatched is set when the checkpoint's state was compared with
	// the regenerated state at its digit count and found equal.
	CheckpointMatched bool
}

// VerifyArtifact regenerates the first limit digits (all of them when limit
// is 0) and compares them with the artifact at path. A mismatch is reported
// as a *ReconcileError carrying the first differing position.
//
// When cp is non-nil and its digit count lies within the verified range, the
// recurrence state at that count must also equal cp.State; otherwise a
// resume from cp would continue with wrong digits.
func VerifyArtifact(path string, cp *checkpoint.Checkpoint, limit uint64) (VerifyResult, error) {
	n, err := sink.CountDigits(path)
	if err != nil {
		return VerifyResult{}, err
	}
	res := VerifyResult{ArtifactDigits: n}

	target := n
	if limit > 0 && limit < n {
		target = limit
	}

	state, err := engine.AfterPrefix()
	if err != nil {
		return res, err
	}

	var done uint64
	if cp != nil && cp.DigitsWritten <= target {
		if state, err = replay(path, state, 0, cp.DigitsWritten); err != nil {
			return res, err
		}
		if !state.Equal(cp.State) {
			return res, &ReconcileError{
				CheckpointDigits: cp.DigitsWritten,
				ArtifactDigits:   n,
				Message:          "checkpoint state differs from the regenerated state at its digit count",
			}
		}
		res.CheckpointMatched = true
		done = cp.DigitsWritten
	}

	if _, err := replay(path, state, done, target); err != nil {
		return res, err
	}
	res.Verified = target
	return res, nil
}
