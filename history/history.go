// Package history keeps ordered runs of versioned states, either as full
// snapshots or compressed to one delta per version. A compressed run can
// be rebuilt into the full run (and vice versa) without the intermediate
// states being present, which is the whole point of storing deltas.
package history

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"

	"github.com/robjtede/deltoid"
	"github.com/robjtede/deltoid/deltoid_errors"
)

// Full is one version of the tracked state, held whole.
type Full[T any] struct {
	ID        uuid.UUID `cbor:"id"`
	Origin    string    `cbor:"o"`
	Timestamp time.Time `cbor:"t"`
	State     T         `cbor:"s"`
}

// Compressed is one version of the tracked state, held as the delta from
// the previous version. Sum fingerprints the resulting state so replay can
// detect a drifted baseline before handing out a wrong value.
type Compressed[T, D any] struct {
	ID        uuid.UUID `cbor:"id"`
	Origin    string    `cbor:"o"`
	Timestamp time.Time `cbor:"t"`
	Delta     D         `cbor:"d"`
	Sum       uint64    `cbor:"x"`
}

// Fingerprint hashes the canonical encoding of a state.
func Fingerprint[T any](state T) (uint64, error) {
	raw, err := deltoid.Marshal(state)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(raw), nil
}

// Uncompress replays a run of deltas from the zero state of T, verifying
// each step's fingerprint. A mismatch fails with the offending snapshot ID
// on the error path; no partial run is returned.
func Uncompress[T, D any](dt deltoid.Differ[T, D], run []Compressed[T, D]) ([]Full[T], error) {
	fulls := make([]Full[T], 0, len(run))
	var state T
	for _, c := range run {
		next, err := dt.Apply(state, c.Delta)
		if err != nil {
			return nil, deltoid_errors.Nest(err, c.ID.String())
		}
		sum, err := Fingerprint(next)
		if err != nil {
			return nil, err
		}
		if sum != c.Sum {
			return nil, deltoid_errors.Nest(
				fmt.Errorf("%w: fingerprint mismatch", deltoid_errors.ErrBadDelta), c.ID.String())
		}
		state = next
		fulls = append(fulls, Full[T]{ID: c.ID, Origin: c.Origin, Timestamp: c.Timestamp, State: state})
	}
	return fulls, nil
}

// Compress converts a run of full snapshots into deltas, each computed
// against the previous snapshot (the zero state of T for the first).
func Compress[T, D any](dt deltoid.Differ[T, D], run []Full[T]) ([]Compressed[T, D], error) {
	comps := make([]Compressed[T, D], 0, len(run))
	var prev T
	for _, f := range run {
		d, err := dt.Compute(prev, f.State)
		if err != nil {
			return nil, deltoid_errors.Nest(err, f.ID.String())
		}
		sum, err := Fingerprint(f.State)
		if err != nil {
			return nil, err
		}
		comps = append(comps, Compressed[T, D]{ID: f.ID, Origin: f.Origin, Timestamp: f.Timestamp, Delta: d, Sum: sum})
		prev = f.State
	}
	return comps, nil
}

// Log accumulates compressed versions of one tracked value, keeping only
// the latest state whole.
type Log[T, D any] struct {
	dt      deltoid.Differ[T, D]
	entries []Compressed[T, D]
	current Full[T]
	now     func() time.Time
}

func NewLog[T, D any](dt deltoid.Differ[T, D]) *Log[T, D] {
	return &Log[T, D]{
		dt:      dt,
		current: Full[T]{Origin: "default"},
		now:     time.Now,
	}
}

// Current is the latest pushed version, whole.
func (l *Log[T, D]) Current() Full[T] { return l.current }

func (l *Log[T, D]) Len() int { return len(l.entries) }

// Push records state as the next version, storing only its delta from the
// current state.
func (l *Log[T, D]) Push(origin string, state T) (Compressed[T, D], error) {
	d, err := l.dt.Compute(l.current.State, state)
	if err != nil {
		return Compressed[T, D]{}, err
	}
	sum, err := Fingerprint(state)
	if err != nil {
		return Compressed[T, D]{}, err
	}
	entry := Compressed[T, D]{
		ID:        uuid.New(),
		Origin:    origin,
		Timestamp: l.now(),
		Delta:     d,
		Sum:       sum,
	}
	l.entries = append(l.entries, entry)
	l.current = Full[T]{ID: entry.ID, Origin: origin, Timestamp: entry.Timestamp, State: state}
	return entry, nil
}

// Entries returns a copy of the compressed run.
func (l *Log[T, D]) Entries() []Compressed[T, D] {
	out := make([]Compressed[T, D], len(l.entries))
	copy(out, l.entries)
	return out
}

// Drain hands over the compressed run and empties the log; the current
// state stays, so pushing continues from where it left off.
func (l *Log[T, D]) Drain() []Compressed[T, D] {
	out := l.entries
	l.entries = nil
	return out
}

// Rebuild replays the whole run into full snapshots.
func (l *Log[T, D]) Rebuild() ([]Full[T], error) {
	return Uncompress(l.dt, l.entries)
}
