// Package engine implements the Rabinowitz–Wagon spigot for π as a pure step
// function over exact arbitrary-precision state.
//
// The engine performs no I/O. Every call to Step returns a freshly allocated
// State; the input State is never mutated, so a State loaded from a checkpoint
// can be stepped, discarded and stepped again with identical results.
package engine

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInconsistent reports an arithmetic inconsistency inside the recurrence.
// It indicates a defect or a corrupted state and must never be retried.
var ErrInconsistent = errors.New("spigot state is arithmetically inconsistent")

// maxProductionSteps bounds the number of production-rule iterations a single
// Step may take before a digit becomes safe. Valid states need only a handful.
const maxProductionSteps = 1 << 16

// IntegerDigit is the leading digit of π, written to the artifact as part of
// the "3." prefix rather than emitted by the stream.
const IntegerDigit = 3

var (
	bigTwo   = big.NewInt(2)
	bigThree = big.NewInt(3)
	bigFour  = big.NewInt(4)
	bigSeven = big.NewInt(7)
	bigTen   = big.NewInt(10)
)

// State is the complete recurrence state. All six fields are required.
type State struct {
	Q *big.Int
	R *big.Int
	T *big.Int
	K *big.Int
	N *big.Int
	L *big.Int
}

// Canonical returns the recurrence's starting values (q=1, r=0, t=1, k=1, n=3, l=3).
// Its first emitted digit is the integer part of π.
func Canonical() State {
	return State{
		Q: big.NewInt(1),
		R: big.NewInt(0),
		T: big.NewInt(1),
		K: big.NewInt(1),
		N: big.NewInt(3),
		L: big.NewInt(3),
	}
}

// AfterPrefix returns the state positioned at the first fractional digit, i.e.
// Canonical stepped once past the integer digit.
func AfterPrefix() (State, error) {
	d, next, err := Step(Canonical())
	if err != nil {
		return State{}, err
	}
	if d != IntegerDigit {
		return State{}, fmt.Errorf("%w: integer digit %d, want %d", ErrInconsistent, d, IntegerDigit)
	}
	return next, nil
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	return State{
		Q: new(big.Int).Set(s.Q),
		R: new(big.Int).Set(s.R),
		T: new(big.Int).Set(s.T),
		K: new(big.Int).Set(s.K),
		N: new(big.Int).Set(s.N),
		L: new(big.Int).Set(s.L),
	}
}

// Equal reports whether both states hold identical values.
func (s State) Equal(o State) bool {
	if s.Validate() != nil || o.Validate() != nil {
		return false
	}
	return s.Q.Cmp(o.Q) == 0 &&
		s.R.Cmp(o.R) == 0 &&
		s.T.Cmp(o.T) == 0 &&
		s.K.Cmp(o.K) == 0 &&
		s.N.Cmp(o.N) == 0 &&
		s.L.Cmp(o.L) == 0
}

// Validate checks the structural invariants every reachable state satisfies:
// q > 0, t > 0, k >= 1 and l == 2k+1.
func (s State) Validate() error {
	if s.Q == nil || s.R == nil || s.T == nil || s.K == nil || s.N == nil || s.L == nil {
		return errors.New("state has missing fields")
	}
	if s.Q.Sign() <= 0 {
		return fmt.Errorf("q must be positive, got %s", s.Q)
	}
	if s.T.Sign() <= 0 {
		return fmt.Errorf("t must be positive, got %s", s.T)
	}
	if s.K.Sign() <= 0 {
		return fmt.Errorf("k must be >= 1, got %s", s.K)
	}
	wantL := new(big.Int).Mul(s.K, bigTwo)
	wantL.Add(wantL, big.NewInt(1))
	if s.L.Cmp(wantL) != 0 {
		return fmt.Errorf("l must equal 2k+1 (%s), got %s", wantL, s.L)
	}
	return nil
}

// Step advances the recurrence until one digit is safe to emit and returns it
// together with the successor state.
func Step(s State) (int, State, error) {
	if err := s.Validate(); err != nil {
		return 0, State{}, fmt.Errorf("%w: %v", ErrInconsistent, err)
	}

	q, r, t, k, n, l := s.Q, s.R, s.T, s.K, s.N, s.L
	lhs := new(big.Int)
	rhs := new(big.Int)

	for i := 0; i < maxProductionSteps; i++ {
		// 4q + r - t < n*t
		lhs.Mul(q, bigFour).Add(lhs, r).Sub(lhs, t)
		rhs.Mul(n, t)

		if lhs.Cmp(rhs) < 0 {
			if !n.IsInt64() || n.Int64() < 0 || n.Int64() > 9 {
				return 0, State{}, fmt.Errorf("%w: candidate digit %s out of range", ErrInconsistent, n)
			}
			digit := int(n.Int64())

			// n' = floor(10(3q+r)/t) - 10n
			nn := new(big.Int).Mul(q, bigThree)
			nn.Add(nn, r).Mul(nn, bigTen).Div(nn, t)
			nn.Sub(nn, new(big.Int).Mul(n, bigTen))

			// r' = 10(r - n*t)
			nr := new(big.Int).Sub(r, rhs)
			nr.Mul(nr, bigTen)

			return digit, State{
				Q: new(big.Int).Mul(q, bigTen),
				R: nr,
				T: new(big.Int).Set(t),
				K: new(big.Int).Set(k),
				N: nn,
				L: new(big.Int).Set(l),
			}, nil
		}

		// n' = floor((q(7k+2) + r*l) / (t*l))
		nt := new(big.Int).Mul(t, l)
		nn := new(big.Int).Mul(k, bigSeven)
		nn.Add(nn, bigTwo).Mul(nn, q)
		nn.Add(nn, new(big.Int).Mul(r, l))
		nn.Div(nn, nt)

		// r' = (2q + r) * l
		nr := new(big.Int).Mul(q, bigTwo)
		nr.Add(nr, r).Mul(nr, l)

		q = new(big.Int).Mul(q, k)
		r = nr
		t = nt
		n = nn
		k = new(big.Int).Add(k, big.NewInt(1))
		l = new(big.Int).Add(l, bigTwo)
	}

	return 0, State{}, fmt.Errorf("%w: no safe digit after %d production steps", ErrInconsistent, maxProductionSteps)
}

// Digits steps count times from s and returns the emitted digits as ASCII
// characters together with the final state.
func Digits(s State, count int) ([]byte, State, error) {
	out := make([]byte, 0, count)
	cur := s
	for i := 0; i < count; i++ {
		d, next, err := Step(cur)
		if err != nil {
			return out, cur, err
		}
		out = append(out, byte('0'+d))
		cur = next
	}
	return out, cur, nil
}
