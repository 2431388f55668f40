package sim

import (
	"image"
	"sync"

	pionframe "github.com/pion/mediadevices/pkg/frame"

	"cam2-shutter/pkg/frame"
	"cam2-shutter/pkg/yuv"
	imageutil "cam2-shutter/pkg/utils/image"
)

// rowAlign pads every row like a hardware image buffer.
const rowAlign = 64

// imageQueue is the preview output: a bounded queue of frames that
// implements frame.Reader. Released buffers are reused.
type imageQueue struct {
	mu     sync.Mutex
	depth  int
	queued []*frame.RawFrame
	free   [][]byte
	drops  int
}

func newImageQueue(depth int) *imageQueue {
	return &imageQueue{depth: depth}
}

func (q *imageQueue) AcquireNextFrame() *frame.RawFrame {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queued) == 0 {
		return nil
	}
	f := q.queued[0]
	q.queued = q.queued[1:]
	return f
}

// push queues f, or drops it when the reader has fallen behind.
func (q *imageQueue) push(build func(buf []byte) *frame.RawFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queued) >= q.depth {
		q.drops++
		return false
	}
	var buf []byte
	if n := len(q.free); n > 0 {
		buf, q.free = q.free[n-1], q.free[:n-1]
	}
	f := build(buf)
	data := f.Y.Data[:cap(f.Y.Data)]
	f.Release = func() { q.recycle(data) }
	q.queued = append(q.queued, f)
	return true
}

func (q *imageQueue) recycle(buf []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.free) < q.depth {
		q.free = append(q.free, buf)
	}
}

func (q *imageQueue) clear() {
	q.mu.Lock()
	queued := q.queued
	q.queued = nil
	q.mu.Unlock()
	for _, f := range queued {
		f.Close()
	}
}

// synthFrame returns a builder for an NV21 frame of a moving gradient. The
// luma plane and the interleaved VU plane share one buffer, rows padded to
// rowAlign.
func synthFrame(width, height int, n, ts int64) func([]byte) *frame.RawFrame {
	return func(buf []byte) *frame.RawFrame {
		stride := (width + rowAlign - 1) / rowAlign * rowAlign
		_, ch := yuv.ChromaSize(width, height)
		size := stride*height + stride*ch
		if cap(buf) < size {
			buf = make([]byte, size)
		}
		buf = buf[:size]

		shift := int(n)
		for y := 0; y < height; y++ {
			row := buf[y*stride : y*stride+width]
			for x := range row {
				row[x] = byte(x + y + shift)
			}
		}
		vu := buf[stride*height:]
		for y := 0; y < ch; y++ {
			row := vu[y*stride : y*stride+width]
			for x := 0; x+1 < len(row); x += 2 {
				row[x] = byte(128 + y)   // V
				row[x+1] = byte(128 + x) // U
			}
		}

		return &frame.RawFrame{
			Width:     width,
			Height:    height,
			Format:    pionframe.FormatNV21,
			Y:         yuv.Plane{Data: buf[:stride*height], RowStride: stride, PixelStride: 1},
			U:         yuv.Plane{Data: vu[1:], RowStride: stride, PixelStride: 2},
			V:         yuv.Plane{Data: vu, RowStride: stride, PixelStride: 2},
			Timestamp: ts,
		}
	}
}

// synthStill renders the gradient at still size, applies the JPEG
// orientation and encodes it.
func synthStill(width, height int, n int64, orientation, quality int) ([]byte, error) {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	shift := int(n)
	for y := 0; y < height; y++ {
		row := img.Y[y*img.YStride : y*img.YStride+width]
		for x := range row {
			row[x] = byte(x + y + shift)
		}
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	return imageutil.EncodeJPEGBytes(imageutil.Rotate(img, orientation/90), quality)
}

func (q *imageQueue) dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}
