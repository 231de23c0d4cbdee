// Package reassemble implements a generic, best-effort sequence-ordered
// reassembly buffer shared by the TCP byte-stream path and the per-decoder
// RTP packet sequencing path.
package reassemble

import "errors"

// ErrFinalized is returned by Process when called again after Finalize.
var ErrFinalized = errors.New("reassemble: process called after finalize")

// Mode selects how the expected sequence number advances on each admitted
// item: by one (PacketMode) or by the admitted item's byte length (DataMode).
type Mode int

const (
	// PacketMode advances the expected sequence by 1 per admitted item.
	PacketMode Mode = iota
	// DataMode advances the expected sequence by the item's length, as
	// reported by the LenFunc supplied to New.
	DataMode
)

// Emission is one (item, skipped) pair produced by Process. A nil Item with
// Skipped false is the end-of-stream sentinel emitted once, at the end of
// Finalize.
type Emission[T any] struct {
	Item    *T
	Skipped bool
}

// LenFunc reports the byte length an item advances the expected sequence by
// in DataMode. Unused in PacketMode.
type LenFunc[T any] func(item T) uint64

// Reassembler is a best-effort reorder buffer over a cyclic sequence space
// of width W bits, holding at most K out-of-order items before it forces
// progress.
type Reassembler[T any] struct {
	width  uint8
	window uint64
	mode   Mode
	lenOf  LenFunc[T]

	space uint64

	started   bool
	finalized bool
	expected  uint64
	held      map[uint64]T
}

// New constructs a Reassembler over a sequence space of 2^width, holding at
// most window out-of-order items. lenOf is required (and only consulted) in
// DataMode; pass nil for PacketMode.
func New[T any](width uint8, window uint64, mode Mode, lenOf LenFunc[T]) *Reassembler[T] {
	if width == 0 || width > 63 {
		panic("reassemble: width must be in [1,63]")
	}
	return &Reassembler[T]{
		width:  width,
		window: window,
		mode:   mode,
		lenOf:  lenOf,
		space:  uint64(1) << width,
		held:   make(map[uint64]T),
	}
}

// advancePast returns seq advanced by one (PacketMode) or by item's byte
// length (DataMode), modulo the sequence space.
func (r *Reassembler[T]) advancePast(seq uint64, item T) uint64 {
	var step uint64
	if r.mode == DataMode {
		step = r.lenOf(item)
	} else {
		step = 1
	}
	return (seq + step) % r.space
}

// cyclicDistance returns how far ahead seq is of expected in the cyclic
// sequence space, in [0, space).
func (r *Reassembler[T]) cyclicDistance(seq uint64) uint64 {
	return ((seq%r.space)-(r.expected%r.space)+r.space) % r.space
}

// isAhead reports whether seq is strictly ahead of expected (and not merely
// a huge wraparound jump counted as "behind").
func (r *Reassembler[T]) isAhead(seq uint64) bool {
	d := r.cyclicDistance(seq)
	half := r.space / 2
	return d != 0 && d < half
}

// Process admits one item at the given sequence number and returns the
// emissions it produces (possibly none, possibly several when a gap closes).
// Calling Process after Finalize returns ErrFinalized.
func (r *Reassembler[T]) Process(item T, seq uint64) ([]Emission[T], error) {
	if r.finalized {
		return nil, ErrFinalized
	}
	seq %= r.space

	if !r.started {
		r.started = true
		r.expected = seq
	}

	var out []Emission[T]

	if seq == r.expected {
		out = append(out, Emission[T]{Item: &item})
		r.expected = r.advancePast(r.expected, item)
		out = append(out, r.drainContiguous()...)
		return out, nil
	}

	if r.isAhead(seq) {
		r.held[seq] = item
		if uint64(len(r.held)) > r.window {
			out = append(out, r.forceProgress()...)
		}
		return out, nil
	}

	// Behind expected: stale, best-effort drop.
	return out, nil
}

// drainContiguous emits held items whose sequence equals the current
// expected, advancing expected each time, until a gap is reached.
func (r *Reassembler[T]) drainContiguous() []Emission[T] {
	var out []Emission[T]
	for {
		next, ok := r.held[r.expected]
		if !ok {
			return out
		}
		delete(r.held, r.expected)
		out = append(out, Emission[T]{Item: &next})
		r.expected = r.advancePast(r.expected, next)
	}
}

// forceProgress rebases expected onto the smallest held sequence (by cyclic
// distance), emits it flagged as skipped, then drains any contiguous run
// that follows it.
func (r *Reassembler[T]) forceProgress() []Emission[T] {
	if len(r.held) == 0 {
		return nil
	}

	var smallestSeq uint64
	var smallestDist uint64 = ^uint64(0)
	for s := range r.held {
		d := r.cyclicDistance(s)
		if d < smallestDist {
			smallestDist = d
			smallestSeq = s
		}
	}

	item := r.held[smallestSeq]
	delete(r.held, smallestSeq)

	r.expected = smallestSeq
	out := []Emission[T]{{Item: &item, Skipped: true}}
	r.expected = r.advancePast(r.expected, item)
	out = append(out, r.drainContiguous()...)
	return out
}

// Finalize drains all remaining held items in ascending sequence order,
// flags any gap as skipped, and appends the end-of-stream sentinel. The
// Reassembler rejects further Process calls afterward.
func (r *Reassembler[T]) Finalize() []Emission[T] {
	if r.finalized {
		return nil
	}
	r.finalized = true

	var out []Emission[T]
	for len(r.held) > 0 {
		var minSeq uint64
		var minDist uint64 = ^uint64(0)
		for s := range r.held {
			d := r.cyclicDistance(s)
			if d < minDist {
				minDist = d
				minSeq = s
			}
		}
		item := r.held[minSeq]
		delete(r.held, minSeq)

		skipped := minSeq != r.expected
		if skipped {
			r.expected = minSeq
		}
		out = append(out, Emission[T]{Item: &item, Skipped: skipped})
		r.expected = r.advancePast(r.expected, item)
	}

	out = append(out, Emission[T]{Item: nil, Skipped: false})
	return out
}

// Pending reports the number of currently held out-of-order items.
func (r *Reassembler[T]) Pending() int {
	return len(r.held)
}
