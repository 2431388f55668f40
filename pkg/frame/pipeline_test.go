package frame

import (
	"sync"
	"testing"

	pionframe "github.com/pion/mediadevices/pkg/frame"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"cam2-shutter/pkg/yuv"
)

type queue struct {
	frames   []*RawFrame
	released int
}

func (q *queue) AcquireNextFrame() *RawFrame {
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f
}

func (q *queue) push(f *RawFrame) {
	f.Release = func() { q.released++ }
	q.frames = append(q.frames, f)
}

// solid returns an I420 frame whose every sample is fill.
func solid(w, h int, fill byte, ts int64) *RawFrame {
	luma, chroma := yuv.PlaneLens(w, h)
	cw, _ := yuv.ChromaSize(w, h)
	plane := func(n, stride int) yuv.Plane {
		d := make([]byte, n)
		for i := range d {
			d[i] = fill
		}
		return yuv.Plane{Data: d, RowStride: stride, PixelStride: 1}
	}
	return &RawFrame{
		Width: w, Height: h,
		Format:    pionframe.FormatI420,
		Y:         plane(luma, w),
		U:         plane(chroma, cw),
		V:         plane(chroma, cw),
		Timestamp: ts,
	}
}

func newTestPipeline(t *testing.T) *Pipeline {
	return NewPipeline(nil, nil, zaptest.NewLogger(t).Sugar())
}

func TestPipelinePublishes(t *testing.T) {
	p := newTestPipeline(t)
	test.That(t, p.Initialized(), test.ShouldBeFalse)

	err := p.Process(solid(4, 4, 7, 100))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Initialized(), test.ShouldBeTrue)
	test.That(t, p.Buffer().Timestamp(), test.ShouldEqual, int64(100))

	v, err := p.Buffer().TryAcquire()
	test.That(t, err, test.ShouldBeNil)
	defer p.Buffer().Release()
	test.That(t, v.Width, test.ShouldEqual, 4)
	test.That(t, v.Height, test.ShouldEqual, 4)
	test.That(t, v.Timestamp, test.ShouldEqual, int64(100))
	test.That(t, v.Y[15], test.ShouldEqual, byte(7))
	test.That(t, len(v.U), test.ShouldEqual, 4)
}

func TestPipelineDropsWhileConsumerHolds(t *testing.T) {
	p := newTestPipeline(t)
	test.That(t, p.Process(solid(2, 2, 1, 1)), test.ShouldBeNil)

	_, err := p.Buffer().TryAcquire()
	test.That(t, err, test.ShouldBeNil)

	q := &queue{}
	for i := 2; i <= 4; i++ {
		q.push(solid(2, 2, byte(i), int64(i)))
		p.OnFrameAvailable(q)
	}
	test.That(t, q.released, test.ShouldEqual, 3)
	test.That(t, p.Stats().DroppedBusy, test.ShouldEqual, uint64(3))
	test.That(t, p.Buffer().Timestamp(), test.ShouldEqual, int64(1))

	p.Buffer().Release()
	q.push(solid(2, 2, 5, 5))
	p.OnFrameAvailable(q)

	v, err := p.Buffer().TryAcquire()
	test.That(t, err, test.ShouldBeNil)
	defer p.Buffer().Release()
	test.That(t, v.Timestamp, test.ShouldEqual, int64(5))
	test.That(t, v.Y[0], test.ShouldEqual, byte(5))
}

func TestPipelineKeepsLatest(t *testing.T) {
	p := newTestPipeline(t)
	q := &queue{}
	for i := 1; i <= 4; i++ {
		q.push(solid(2, 2, byte(i), int64(i)))
	}
	p.OnFrameAvailable(q)

	st := p.Stats()
	test.That(t, st.Processed, test.ShouldEqual, uint64(1))
	test.That(t, st.DroppedStale, test.ShouldEqual, uint64(3))
	test.That(t, q.released, test.ShouldEqual, 4)

	v, err := p.Buffer().TryAcquire()
	test.That(t, err, test.ShouldBeNil)
	defer p.Buffer().Release()
	test.That(t, v.Y[0], test.ShouldEqual, byte(4))
	test.That(t, v.Timestamp, test.ShouldEqual, int64(4))
}

func TestPipelineRotates(t *testing.T) {
	p := newTestPipeline(t)
	p.SetOrientation(1)

	f := solid(4, 2, 0, 9)
	copy(f.Y.Data, []byte{0, 1, 2, 3, 4, 5, 6, 7})
	test.That(t, p.Process(f), test.ShouldBeNil)

	v, err := p.Buffer().TryAcquire()
	test.That(t, err, test.ShouldBeNil)
	defer p.Buffer().Release()
	test.That(t, v.Width, test.ShouldEqual, 2)
	test.That(t, v.Height, test.ShouldEqual, 4)
	test.That(t, v.Y, test.ShouldResemble, []byte{4, 0, 5, 1, 6, 2, 7, 3})
}

func TestPipelineRejectsUnknownFormat(t *testing.T) {
	p := newTestPipeline(t)
	f := solid(2, 2, 0, 1)
	f.Format = pionframe.FormatRGBA
	released := false
	f.Release = func() { released = true }

	test.That(t, p.Process(f), test.ShouldBeError)
	test.That(t, released, test.ShouldBeTrue)
	test.That(t, p.Initialized(), test.ShouldBeFalse)
	test.That(t, p.Stats().Failed, test.ShouldEqual, uint64(1))
}

func TestPipelineReset(t *testing.T) {
	p := newTestPipeline(t)
	test.That(t, p.Process(solid(2, 2, 1, 1)), test.ShouldBeNil)
	p.Reset()
	test.That(t, p.Initialized(), test.ShouldBeFalse)
	test.That(t, p.Stats(), test.ShouldResemble, Stats{})
	test.That(t, p.Buffer().Timestamp(), test.ShouldEqual, int64(0))
}

// Every frame is a single value in all planes, so a torn read shows up as a
// view holding more than one value or a value that disagrees with its timestamp.
func TestPipelineNoTornReads(t *testing.T) {
	p := newTestPipeline(t)
	const frames = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= frames; i++ {
			_ = p.Process(solid(16, 8, byte(i), int64(i)))
		}
	}()

	done := make(chan struct{})
	var bad int
	go func() {
		defer close(done)
		for reads := 0; reads < frames; reads++ {
			v, err := p.Buffer().TryAcquire()
			if err != nil {
				continue
			}
			if len(v.Y) > 0 {
				want := byte(v.Timestamp)
				for _, plane := range [][]byte{v.Y, v.U, v.V} {
					for _, s := range plane {
						if s != want {
							bad++
							break
						}
					}
				}
			}
			p.Buffer().Release()
		}
	}()

	wg.Wait()
	<-done
	test.That(t, bad, test.ShouldEqual, 0)
	st := p.Stats()
	test.That(t, st.Processed+st.DroppedBusy, test.ShouldEqual, uint64(frames))
}
