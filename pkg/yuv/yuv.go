// Package yuv packs strided YUV 4:2:0 sensor frames into contiguous I420
// planes and rotates I420 frames by quarter turns.
package yuv

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSize = errors.New("invalid frame size")
	ErrShortPlane  = errors.New("plane too small")
)

// Plane is a view of one color plane inside a device buffer.
// The sample at (x, y) is Data[y*RowStride + x*PixelStride].
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

func (p Plane) need(cols, rows int) int {
	if cols == 0 || rows == 0 {
		return 0
	}
	return (rows-1)*p.RowStride + (cols-1)*p.PixelStride + 1
}

// ChromaSize returns the chroma plane dimensions for a w x h frame.
func ChromaSize(w, h int) (int, int) {
	return w / 2, h / 2
}

// PlaneLens returns the contiguous luma and chroma plane lengths for a w x h frame.
func PlaneLens(w, h int) (luma, chroma int) {
	cw, ch := ChromaSize(w, h)
	return w * h, cw * ch
}

// Library is the pure Go conversion backend.
type Library struct{}

// PackI420 copies the three source planes of a w x h frame into contiguous
// I420 planes. Chroma pixel strides of 1 (planar) and 2 (semi-planar) are
// both handled, as is any luma pixel stride.
func (Library) PackI420(y, u, v Plane, w, h int, dstY, dstU, dstV []byte) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	cw, ch := ChromaSize(w, h)
	lumaLen, chromaLen := PlaneLens(w, h)
	if len(dstY) < lumaLen || len(dstU) < chromaLen || len(dstV) < chromaLen {
		return fmt.Errorf("%w: destination", ErrShortPlane)
	}
	if err := copyPlane(y, w, h, dstY); err != nil {
		return fmt.Errorf("luma: %w", err)
	}
	if err := copyPlane(u, cw, ch, dstU); err != nil {
		return fmt.Errorf("chroma u: %w", err)
	}
	if err := copyPlane(v, cw, ch, dstV); err != nil {
		return fmt.Errorf("chroma v: %w", err)
	}

	return nil
}

func copyPlane(src Plane, cols, rows int, dst []byte) error {
	if src.PixelStride <= 0 || src.RowStride < (cols-1)*src.PixelStride+1 {
		return fmt.Errorf("%w: stride %d/%d for width %d", ErrInvalidSize, src.RowStride, src.PixelStride, cols)
	}
	if len(src.Data) < src.need(cols, rows) {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortPlane, len(src.Data), src.need(cols, rows))
	}
	for r := 0; r < rows; r++ {
		row := src.Data[r*src.RowStride:]
		out := dst[r*cols : (r+1)*cols]
		if src.PixelStride == 1 {
			copy(out, row[:cols])
			continue
		}
		for c := range out {
			out[c] = row[c*src.PixelStride]
		}
	}

	return nil
}

// RotateI420 rotates a contiguous w x h I420 frame clockwise by turns quarter
// turns into the destination planes, which must describe a dw x dh frame.
func (Library) RotateI420(srcY, srcU, srcV []byte, w, h int,
	dstY, dstU, dstV []byte, dw, dh int, turns int) error {
	turns = ((turns % 4) + 4) % 4
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	if turns%2 == 1 && (dw != h || dh != w) || turns%2 == 0 && (dw != w || dh != h) {
		return fmt.Errorf("%w: %dx%d rotated %d turns is not %dx%d", ErrInvalidSize, w, h, turns, dw, dh)
	}
	lumaLen, chromaLen := PlaneLens(w, h)
	if len(srcY) < lumaLen || len(srcU) < chromaLen || len(srcV) < chromaLen {
		return fmt.Errorf("%w: source", ErrShortPlane)
	}
	if len(dstY) < lumaLen || len(dstU) < chromaLen || len(dstV) < chromaLen {
		return fmt.Errorf("%w: destination", ErrShortPlane)
	}

	cw, ch := ChromaSize(w, h)
	rotatePlane(srcY, w, h, dstY, turns)
	rotatePlane(srcU, cw, ch, dstU, turns)
	rotatePlane(srcV, cw, ch, dstV, turns)

	return nil
}

func rotatePlane(src []byte, w, h int, dst []byte, turns int) {
	switch turns {
	case 0:
		copy(dst, src[:w*h])
	case 1:
		// (x, y) -> (h-1-y, x), destination is h wide
		for y := 0; y < h; y++ {
			row := src[y*w : (y+1)*w]
			dx := h - 1 - y
			for x, s := range row {
				dst[x*h+dx] = s
			}
		}
	case 2:
		n := w * h
		for i, s := range src[:n] {
			dst[n-1-i] = s
		}
	case 3:
		// (x, y) -> (y, w-1-x)
		for y := 0; y < h; y++ {
			row := src[y*w : (y+1)*w]
			for x, s := range row {
				dst[(w-1-x)*h+y] = s
			}
		}
	}
}
