package video

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"cam2-shutter/pkg/frame"
	"cam2-shutter/pkg/types"
)

type fakeSource struct {
	busy     bool
	empty    bool
	acquired int
	released int
}

func (f *fakeSource) TryAcquireLatestFrame() (frame.View, error) {
	if f.busy {
		return frame.View{}, frame.ErrBusy
	}
	f.acquired++
	if f.empty {
		return frame.View{}, nil
	}
	return frame.View{
		Y:     make([]byte, 16*8),
		U:     make([]byte, 8*4),
		V:     make([]byte, 8*4),
		Width: 16, Height: 8,
	}, nil
}

func (f *fakeSource) ReleaseFrame() { f.released++ }

func TestRecorderStopsAtMaxFrames(t *testing.T) {
	src := &fakeSource{}
	path := filepath.Join(t.TempDir(), "out.avi")
	r := NewRecorder(src, path, types.VideoSetting{FPS: 100, MaxFrames: 3}, clock.New(), zaptest.NewLogger(t).Sugar())

	test.That(t, r.Start(context.Background()), test.ShouldBeNil)
	test.That(t, r.Start(context.Background()), test.ShouldEqual, ErrRecording)

	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}
	n, err := r.Stop()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 3)
	test.That(t, src.released, test.ShouldEqual, src.acquired)

	fi, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fi.Size(), test.ShouldBeGreaterThan, 0)

	n, err = r.Stop()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 0)
}

func TestSampleSkipsBusyAndEmpty(t *testing.T) {
	src := &fakeSource{busy: true}
	r := NewRecorder(src, filepath.Join(t.TempDir(), "out.avi"), types.VideoSetting{}, nil, zaptest.NewLogger(t).Sugar())

	n, err := r.sample()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 0)

	src.busy, src.empty = false, true
	n, err = r.sample()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 0)
	test.That(t, src.released, test.ShouldEqual, 1)
	test.That(t, r.skipped, test.ShouldEqual, 2)
	test.That(t, r.builder, test.ShouldBeNil)
}

func TestSampleScales(t *testing.T) {
	src := &fakeSource{}
	r := NewRecorder(src, filepath.Join(t.TempDir(), "out.avi"), types.VideoSetting{MaxWidth: 8}, nil, zaptest.NewLogger(t).Sugar())
	n, err := r.sample()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)
	test.That(t, r.builder.width, test.ShouldEqual, 8)
	test.That(t, r.builder.height, test.ShouldEqual, 4)
	test.That(t, r.builder.Close(), test.ShouldBeNil)
}
