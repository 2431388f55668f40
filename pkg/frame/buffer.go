package frame

import (
	"go.uber.org/atomic"

	"cam2-shutter/pkg/yuv"
)

// Buffer holds the latest frame as contiguous I420 planes plus, when
// rotation is active, a rotated copy. Planes only ever grow.
//
// One flag guards the contents: the consumer holds it between TryAcquire and
// Release, the producer holds it while writing. Whoever fails the
// compare-and-set backs off without blocking.
type Buffer struct {
	busy atomic.Bool

	y, u, v    []byte
	ry, ru, rv []byte

	width, height int
	turns         int
	hasFrame      bool

	timestamp atomic.Int64
	allocs    atomic.Int64
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// TryAcquire takes the flag and returns the current frame. It returns ErrBusy
// when the producer is writing or another acquire is outstanding. Every
// successful call must be paired with exactly one Release.
func (b *Buffer) TryAcquire() (View, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return View{}, ErrBusy
	}
	return b.view(), nil
}

// Release clears the flag taken by TryAcquire.
func (b *Buffer) Release() {
	b.busy.Store(false)
}

// Busy reports whether the flag is currently held.
func (b *Buffer) Busy() bool {
	return b.busy.Load()
}

// Timestamp is the capture time of the last published frame.
func (b *Buffer) Timestamp() int64 {
	return b.timestamp.Load()
}

// Allocations counts plane allocations since the buffer was created.
func (b *Buffer) Allocations() int64 {
	return b.allocs.Load()
}

func (b *Buffer) view() View {
	if !b.hasFrame {
		return View{Timestamp: b.timestamp.Load()}
	}
	luma, chroma := yuv.PlaneLens(b.width, b.height)
	if b.turns == 0 {
		return View{
			Y: b.y[:luma], U: b.u[:chroma], V: b.v[:chroma],
			Width: b.width, Height: b.height,
			Timestamp: b.timestamp.Load(),
		}
	}
	w, h := rotatedSize(b.width, b.height, b.turns)
	return View{
		Y: b.ry[:luma], U: b.ru[:chroma], V: b.rv[:chroma],
		Width: w, Height: h,
		Timestamp: b.timestamp.Load(),
	}
}

func (b *Buffer) beginWrite() bool {
	return b.busy.CompareAndSwap(false, true)
}

func (b *Buffer) endWrite() {
	b.busy.Store(false)
}

// EnsureCapacity sizes the planes for a width x height frame at the given
// quarter-turn orientation. Only undersized planes are reallocated. The
// caller must hold the flag.
func (b *Buffer) EnsureCapacity(width, height, turns int) {
	turns = normalizeTurns(turns)
	luma, chroma := yuv.PlaneLens(width, height)

	b.y = b.grow(b.y, luma)
	b.u = b.grow(b.u, chroma)
	b.v = b.grow(b.v, chroma)
	if turns != 0 {
		// rotated planes hold the same sample count with swapped dimensions
		b.ry = b.grow(b.ry, luma)
		b.ru = b.grow(b.ru, chroma)
		b.rv = b.grow(b.rv, chroma)
	}

	b.width, b.height, b.turns = width, height, turns
}

func (b *Buffer) grow(p []byte, n int) []byte {
	if cap(p) >= n {
		return p[:cap(p)]
	}
	b.allocs.Inc()
	return make([]byte, n)
}

// Reset drops the planes and the last timestamp.
func (b *Buffer) Reset() {
	b.y, b.u, b.v = nil, nil, nil
	b.ry, b.ru, b.rv = nil, nil, nil
	b.width, b.height, b.turns = 0, 0, 0
	b.hasFrame = false
	b.timestamp.Store(0)
}

func normalizeTurns(turns int) int {
	return ((turns % 4) + 4) % 4
}

func rotatedSize(w, h, turns int) (int, int) {
	if turns%2 == 1 {
		return h, w
	}
	return w, h
}
