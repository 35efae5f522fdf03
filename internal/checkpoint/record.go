package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/dyluth/spigot/internal/engine"
)

// Checkpoint is an immutable snapshot of the recurrence state and the number of
// fractional digits the artifact held when it was taken.
type Checkpoint struct {
	State         engine.State
	DigitsWritten uint64
	UpdatedAt     time.Time
}

// Validate checks the snapshot before it is written or after it is read.
func (c Checkpoint) Validate() error {
	var errs []error
	if err := c.State.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("state: %w", err))
	}
	if c.UpdatedAt.IsZero() {
		errs = append(errs, errors.New("updated_at is required"))
	}
	return errors.Join(errs...)
}

// record is the on-disk layout. Integers are written as exact decimal strings.
type record struct {
	Q             decimal   `json:"q"`
	R             decimal   `json:"r"`
	T             decimal   `json:"t"`
	K             decimal   `json:"k"`
	N             decimal   `json:"n"`
	L             decimal   `json:"l"`
	DigitsWritten uint64    `json:"digits_written"`
	UpdatedAt     timestamp `json:"updated_at"`
}

func toRecord(c Checkpoint) record {
	return record{
		Q:             decimal{c.State.Q},
		R:             decimal{c.State.R},
		T:             decimal{c.State.T},
		K:             decimal{c.State.K},
		N:             decimal{c.State.N},
		L:             decimal{c.State.L},
		DigitsWritten: c.DigitsWritten,
		UpdatedAt:     timestamp(c.UpdatedAt.UTC()),
	}
}

func (r record) checkpoint() Checkpoint {
	return Checkpoint{
		State: engine.State{
			Q: r.Q.Int,
			R: r.R.Int,
			T: r.T.Int,
			K: r.K.Int,
			N: r.N.Int,
			L: r.L.Int,
		},
		DigitsWritten: r.DigitsWritten,
		UpdatedAt:     time.Time(r.UpdatedAt),
	}
}

// decimal is an arbitrary-precision integer encoded as a JSON string.
// Bare JSON numbers are accepted on read for state files from older tools.
type decimal struct {
	*big.Int
}

func (d decimal) MarshalJSON() ([]byte, error) {
	if d.Int == nil {
		return nil, errors.New("nil integer")
	}
	return json.Marshal(d.Int.String())
}

func (d *decimal) UnmarshalJSON(data []byte) error {
	text := string(bytes.TrimSpace(data))
	if text == "null" {
		return errors.New("integer field is null")
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return fmt.Errorf("invalid decimal integer %q", text)
	}
	d.Int = v
	return nil
}

// timestamp is RFC 3339 on write; epoch seconds are accepted on read.
type timestamp time.Time

func (t timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid updated_at: %w", err)
		}
		*t = timestamp(parsed.UTC())
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid updated_at: %w", err)
	}
	whole, frac := math.Modf(secs)
	*t = timestamp(time.Unix(int64(whole), int64(frac*1e9)).UTC())
	return nil
}
