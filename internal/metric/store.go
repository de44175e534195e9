package metric

import "codeberg.org/mutker/embedids/internal/errors"

// Datapoint is one sample. Timestamps are supplied by the caller and are
// not checked for ordering.
type Datapoint struct {
	Value       Value
	TimestampMs uint64
}

// Store is a fixed-capacity circular history over a buffer owned by the
// caller. It never grows or reallocates the buffer.
//
// The most recent slot is always (writeIndex-1) mod cap. Once the buffer
// is full the oldest slot is writeIndex, before that it is slot 0.
type Store struct {
	history    []Datapoint
	writeIndex int
	size       int
}

// NewStore binds buf as the backing storage. len(buf) is the capacity.
func NewStore(buf []Datapoint) Store {
	return Store{history: buf}
}

// Cap returns the fixed capacity.
func (s *Store) Cap() int { return len(s.history) }

// Len returns how many slots hold data; it saturates at Cap.
func (s *Store) Len() int { return s.size }

// WriteIndex returns the slot the next Append writes to.
func (s *Store) WriteIndex() int { return s.writeIndex }

// Bound reports whether backing storage is attached.
func (s *Store) Bound() bool { return s.history != nil }

// Append records a datapoint, overwriting the oldest slot when full.
func (s *Store) Append(v Value, timestampMs uint64) error {
	if len(s.history) == 0 {
		return errors.New().New(errors.ErrConfigInvalid)
	}

	s.history[s.writeIndex] = Datapoint{Value: v, TimestampMs: timestampMs}
	s.writeIndex = (s.writeIndex + 1) % len(s.history)
	if s.size < len(s.history) {
		s.size++
	}

	return nil
}

// Latest returns the most recently written datapoint.
func (s *Store) Latest() (Datapoint, bool) {
	return s.NthFromLatest(0)
}

// NthFromLatest returns the datapoint k steps before the latest one.
// ok is false when k is outside the retained history.
func (s *Store) NthFromLatest(k int) (Datapoint, bool) {
	if k < 0 || k >= s.size {
		return Datapoint{}, false
	}
	n := len(s.history)
	return s.history[((s.writeIndex-1-k)%n+n)%n], true
}

// Oldest returns the oldest retained datapoint.
func (s *Store) Oldest() (Datapoint, bool) {
	if s.size == 0 {
		return Datapoint{}, false
	}
	if s.size == len(s.history) {
		return s.history[s.writeIndex], true
	}
	return s.history[0], true
}

// Reset forgets all samples and zeroes the backing buffer.
func (s *Store) Reset() {
	for i := range s.history {
		s.history[i] = Datapoint{}
	}
	s.writeIndex = 0
	s.size = 0
}
