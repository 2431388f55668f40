package frame

import (
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"cam2-shutter/pkg/utils"
	"cam2-shutter/pkg/yuv"
)

// Stats counts what happened to the frames handed to a Pipeline.
type Stats struct {
	Processed    uint64 `json:"processed"`
	DroppedBusy  uint64 `json:"droppedBusy"`
	DroppedStale uint64 `json:"droppedStale"`
	Failed       uint64 `json:"failed"`
}

// Pipeline is the producer side: it packs each raw frame into the Buffer,
// rotates it when needed and stamps the capture time. All calls except
// Stats, Initialized and SetOrientation must come from one goroutine.
type Pipeline struct {
	buf    *Buffer
	conv   Converter
	logger *zap.SugaredLogger

	turns       atomic.Int32
	initialized atomic.Bool

	processed    atomic.Uint64
	droppedBusy  atomic.Uint64
	droppedStale atomic.Uint64
	failed       atomic.Uint64
}

// NewPipeline returns a pipeline writing into buf. A nil conv uses
// yuv.Library and a nil logger uses the shared one.
func NewPipeline(buf *Buffer, conv Converter, logger *zap.SugaredLogger) *Pipeline {
	if buf == nil {
		buf = NewBuffer()
	}
	if conv == nil {
		conv = yuv.Library{}
	}
	if logger == nil {
		logger = utils.GetLogger().Named("frame")
	}
	return &Pipeline{buf: buf, conv: conv, logger: logger}
}

func (p *Pipeline) Buffer() *Buffer {
	return p.buf
}

// SetOrientation sets the clockwise quarter turns applied to later frames.
func (p *Pipeline) SetOrientation(turns int) {
	p.turns.Store(int32(normalizeTurns(turns)))
}

func (p *Pipeline) Orientation() int {
	return int(p.turns.Load())
}

// Initialized reports whether at least one frame has been published.
func (p *Pipeline) Initialized() bool {
	return p.initialized.Load()
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:    p.processed.Load(),
		DroppedBusy:  p.droppedBusy.Load(),
		DroppedStale: p.droppedStale.Load(),
		Failed:       p.failed.Load(),
	}
}

// OnFrameAvailable drains r, releasing every frame but the newest, and
// processes that one.
func (p *Pipeline) OnFrameAvailable(r Reader) {
	var latest *RawFrame
	for {
		f := r.AcquireNextFrame()
		if f == nil {
			break
		}
		if latest != nil {
			latest.Close()
			p.droppedStale.Inc()
		}
		latest = f
	}
	if latest == nil {
		return
	}
	if err := p.Process(latest); err != nil {
		p.logger.Warnf("drop frame %dx%d: %v", latest.Width, latest.Height, err)
	}
}

// Process publishes f into the buffer and closes it. A frame that arrives
// while the consumer holds the buffer is dropped and nil is returned.
func (p *Pipeline) Process(f *RawFrame) error {
	defer f.Close()

	if !supported(f.Format) {
		p.failed.Inc()
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Format)
	}
	if !p.buf.beginWrite() {
		p.droppedBusy.Inc()
		return nil
	}
	defer p.buf.endWrite()

	turns := p.Orientation()
	p.buf.EnsureCapacity(f.Width, f.Height, turns)
	b := p.buf
	if err := p.conv.PackI420(f.Y, f.U, f.V, f.Width, f.Height, b.y, b.u, b.v); err != nil {
		p.failed.Inc()
		b.hasFrame = false
		return fmt.Errorf("pack: %w", err)
	}
	if turns != 0 {
		dw, dh := rotatedSize(f.Width, f.Height, turns)
		if err := p.conv.RotateI420(b.y, b.u, b.v, f.Width, f.Height, b.ry, b.ru, b.rv, dw, dh, turns); err != nil {
			p.failed.Inc()
			b.hasFrame = false
			return fmt.Errorf("rotate: %w", err)
		}
	}
	b.hasFrame = true
	b.timestamp.Store(f.Timestamp)

	p.processed.Inc()
	p.initialized.Store(true)

	return nil
}

// Reset clears the counters and the initialized flag for a new session. The
// buffered planes are dropped unless the consumer still holds them.
func (p *Pipeline) Reset() {
	if p.buf.beginWrite() {
		p.buf.Reset()
		p.buf.endWrite()
	}
	p.initialized.Store(false)
	p.processed.Store(0)
	p.droppedBusy.Store(0)
	p.droppedStale.Store(0)
	p.failed.Store(0)
}
