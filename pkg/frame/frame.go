// Package frame turns raw multi-plane sensor frames into a single latest-wins
// I420 frame that a consumer can read without blocking the producer.
package frame

import (
	"errors"

	pionframe "github.com/pion/mediadevices/pkg/frame"

	"cam2-shutter/pkg/yuv"
)

var (
	ErrBusy              = errors.New("frame buffer busy")
	ErrUnsupportedFormat = errors.New("unsupported frame format")
)

// RawFrame is one device frame. Planes may be strided and semi-planar; they
// stay valid until Close is called.
type RawFrame struct {
	Width, Height int
	Format        pionframe.Format
	Y, U, V       yuv.Plane
	// Timestamp is the device capture time in nanoseconds.
	Timestamp int64

	// Release returns the frame's storage to the device queue.
	Release func()
}

// Close releases the frame. It is safe to call more than once.
func (f *RawFrame) Close() {
	if f == nil || f.Release == nil {
		return
	}
	release := f.Release
	f.Release = nil
	release()
}

// Reader is the device side frame queue. AcquireNextFrame returns nil once
// the queue is empty.
type Reader interface {
	AcquireNextFrame() *RawFrame
}

// Converter packs and rotates I420 planes. yuv.Library is the default.
type Converter interface {
	PackI420(y, u, v yuv.Plane, w, h int, dstY, dstU, dstV []byte) error
	RotateI420(srcY, srcU, srcV []byte, w, h int, dstY, dstU, dstV []byte, dw, dh int, turns int) error
}

// View is the consumer's read-only look at the buffered frame. Its slices
// alias the buffer and must not be used after Buffer.Release.
type View struct {
	Y, U, V       []byte
	Width, Height int
	Timestamp     int64
}

func supported(f pionframe.Format) bool {
	switch f {
	case pionframe.FormatI420, pionframe.FormatNV12, pionframe.FormatNV21, pionframe.FormatYUY2:
		return true
	}
	return false
}
