package stream

import "fmt"

// DurabilityError reports a failed append, sync or checkpoint write. The run is
// aborted because the durable state of the artifact is unknown.
type DurabilityError struct {
	Op     string
	Digits uint64
	Err    error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durability failure during %s at digit %d: %v", e.Op, e.Digits, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

// ReconcileError reports that the checkpoint and the artifact cannot be made
// consistent without risking corruption.
type ReconcileError struct {
	CheckpointDigits uint64
	ArtifactDigits   uint64
	Position         uint64 // first mismatching digit, 0 when not applicable
	Message          string
}

func (e *ReconcileError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("artifact mismatch at digit %d: %s", e.Position, e.Message)
	}
	return fmt.Sprintf("cannot reconcile checkpoint (%d digits) with artifact (%d digits): %s",
		e.CheckpointDigits, e.ArtifactDigits, e.Message)
}
