package sim

import (
	"bytes"
	"context"
	"image/jpeg"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/frame"
)

func openSim(t *testing.T, opts Options) (*Device, chan camera.Event) {
	t.Helper()
	opts.FrameInterval = 5 * time.Millisecond
	d := New(opts, zaptest.NewLogger(t).Sugar())
	events := make(chan camera.Event, 256)
	test.That(t, d.Open(context.Background(), func(ev camera.Event) {
		select {
		case events <- ev:
		default:
			if ev.Kind == camera.EventFrameAvailable {
				for f := ev.Frames.AcquireNextFrame(); f != nil; f = ev.Frames.AcquireNextFrame() {
					f.Close()
				}
			}
		}
	}), test.ShouldBeNil)
	t.Cleanup(func() { _ = d.Close() })
	return d, events
}

func next(t *testing.T, events chan camera.Event, kind camera.EventKind) camera.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == camera.EventFrameAvailable && kind != camera.EventFrameAvailable {
				for f := ev.Frames.AcquireNextFrame(); f != nil; f = ev.Frames.AcquireNextFrame() {
					f.Close()
				}
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

var previewOut = []camera.OutputConfig{
	{Output: camera.OutputPreview, Size: camera.Size{Width: 64, Height: 48}},
	{Output: camera.OutputStill, Size: camera.Size{Width: 96, Height: 64}},
}

func TestOpenConfigurePreview(t *testing.T) {
	d, events := openSim(t, DefaultOptions())
	next(t, events, camera.EventOpened)

	test.That(t, d.SetRepeatingRequest(&camera.CaptureRequest{Repeating: true}), test.ShouldBeError)
	test.That(t, d.CreateSession(previewOut), test.ShouldBeNil)
	next(t, events, camera.EventConfigured)

	s := camera.Settings{Modes: camera.Modes{AF: camera.AFModeContinuousPicture, AE: camera.AEModeOn}}
	test.That(t, d.SetRepeatingRequest(s.PreviewRequest()), test.ShouldBeNil)

	ev := next(t, events, camera.EventFrameAvailable)
	f := ev.Frames.AcquireNextFrame()
	test.That(t, f, test.ShouldNotBeNil)
	test.That(t, f.Width, test.ShouldEqual, 64)
	test.That(t, f.Height, test.ShouldEqual, 48)
	test.That(t, f.Y.RowStride, test.ShouldEqual, 64)
	test.That(t, f.U.PixelStride, test.ShouldEqual, 2)

	p := frame.NewPipeline(nil, nil, zaptest.NewLogger(t).Sugar())
	test.That(t, p.Process(f), test.ShouldBeNil)
	v, err := p.Buffer().TryAcquire()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v.Width, test.ShouldEqual, 64)
	test.That(t, v.U[0], test.ShouldEqual, byte(128))
	p.Buffer().Release()

	res := next(t, events, camera.EventCaptureCompleted)
	test.That(t, res.Result.Request.Repeating, test.ShouldBeTrue)
	test.That(t, res.Result.AF, test.ShouldNotBeNil)
	test.That(t, res.Result.AE, test.ShouldNotBeNil)
}

func TestBadOutputsFailConfiguration(t *testing.T) {
	d, events := openSim(t, DefaultOptions())
	next(t, events, camera.EventOpened)
	test.That(t, d.CreateSession([]camera.OutputConfig{{Output: camera.OutputPreview, Size: camera.Size{Width: 63, Height: 48}}}), test.ShouldBeNil)
	next(t, events, camera.EventConfigureFailed)
}

func TestFocusTriggerLocks(t *testing.T) {
	opts := DefaultOptions()
	opts.FocusFrames = 2
	d, events := openSim(t, opts)
	test.That(t, d.CreateSession(previewOut), test.ShouldBeNil)
	next(t, events, camera.EventConfigured)

	s := camera.Settings{Modes: camera.Modes{AF: camera.AFModeAuto, AE: camera.AEModeOff}}
	req := s.TriggerRequest(1, camera.TriggerStart, camera.TriggerIdle)
	for i := 0; i < 2; i++ {
		test.That(t, d.Capture(req), test.ShouldBeNil)
		ev := next(t, events, camera.EventCaptureCompleted)
		test.That(t, *ev.Result.AF, test.ShouldEqual, camera.AFStateActiveScan)
		test.That(t, *ev.Result.AE, test.ShouldEqual, camera.AEStateInactive)
		req = s.TriggerRequest(1, camera.TriggerIdle, camera.TriggerIdle)
	}
	test.That(t, d.Capture(req), test.ShouldBeNil)
	ev := next(t, events, camera.EventCaptureCompleted)
	test.That(t, *ev.Result.AF, test.ShouldEqual, camera.AFStateFocusedLocked)
}

func TestStillIsRotatedJPEG(t *testing.T) {
	d, events := openSim(t, DefaultOptions())
	test.That(t, d.CreateSession(previewOut), test.ShouldBeNil)
	next(t, events, camera.EventConfigured)

	s := camera.Settings{QuarterTurns: 1}
	still := s.StillRequest(7)
	test.That(t, d.Capture(still), test.ShouldBeNil)

	ev := next(t, events, camera.EventStillAvailable)
	test.That(t, ev.StillRequest.ID, test.ShouldEqual, still.ID)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(ev.Still))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Width, test.ShouldEqual, 64)
	test.That(t, cfg.Height, test.ShouldEqual, 96)
}

func TestAbortFailsPending(t *testing.T) {
	d, events := openSim(t, DefaultOptions())
	test.That(t, d.CreateSession(previewOut), test.ShouldBeNil)
	next(t, events, camera.EventConfigured)

	// hold the lock so the run loop cannot complete the request first
	d.mu.Lock()
	d.pending = append(d.pending, &camera.CaptureRequest{ID: 42})
	d.abortPending()
	d.mu.Unlock()
	test.That(t, d.AbortCaptures(), test.ShouldBeNil)

	ev := next(t, events, camera.EventCaptureFailed)
	test.That(t, ev.Result.Request.ID, test.ShouldEqual, uint64(42))
}

func TestCloseIsIdempotent(t *testing.T) {
	d, _ := openSim(t, DefaultOptions())
	test.That(t, d.Close(), test.ShouldBeNil)
	test.That(t, d.Close(), test.ShouldBeNil)
	test.That(t, d.CreateSession(previewOut), test.ShouldBeError)
}
