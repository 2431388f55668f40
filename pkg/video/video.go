// Package video records the latest preview frames into an MJPEG AVI.
package video

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/icza/mjpeg"
	"go.uber.org/zap"

	"cam2-shutter/pkg/frame"
	"cam2-shutter/pkg/types"
	"cam2-shutter/pkg/utils"
	imageutil "cam2-shutter/pkg/utils/image"
)

var ErrRecording = errors.New("already recording")

type Builder struct {
	width  int
	height int
	fps    int

	cnt int
	aw  mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

func (b *Builder) Add(frame []byte) error {
	err := b.aw.AddFrame(frame)
	if err != nil {
		return err
	}
	b.cnt++

	return nil
}

func (b *Builder) Close() error {
	return b.aw.Close()
}

func (b *Builder) GetCnt() int {
	return b.cnt
}

// FrameSource is the consumer side of a camera session.
type FrameSource interface {
	TryAcquireLatestFrame() (frame.View, error)
	ReleaseFrame()
}

const defaultQuality = 75

// Recorder samples a FrameSource at a fixed rate and appends each sample
// as a JPEG frame. The AVI is created on the first frame, sized to it.
type Recorder struct {
	src     FrameSource
	path    string
	setting types.VideoSetting
	quality int
	clk     clock.Clock
	logger  *zap.SugaredLogger

	lock    sync.Mutex
	builder *Builder
	skipped int
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func NewRecorder(src FrameSource, path string, setting types.VideoSetting, clk clock.Clock, logger *zap.SugaredLogger) *Recorder {
	if setting.FPS <= 0 {
		setting.FPS = 10
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = utils.GetLogger().Named("video")
	}
	return &Recorder{
		src:     src,
		path:    path,
		setting: setting,
		quality: defaultQuality,
		clk:     clk,
		logger:  logger,
	}
}

func (r *Recorder) Path() string {
	return r.path
}

// Start records in the background until Stop, ctx ends or MaxFrames is reached.
func (r *Recorder) Start(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.done != nil {
		return ErrRecording
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
	r.logger.Infof("recording %s at %d fps", r.path, r.setting.FPS)
	return nil
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	t := r.clk.Ticker(time.Second / time.Duration(r.setting.FPS))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := r.sample()
			if err != nil {
				r.logger.Errorf("record frame: %v", err)
				r.lock.Lock()
				r.err = err
				r.lock.Unlock()
				return
			}
			if r.setting.MaxFrames > 0 && n >= r.setting.MaxFrames {
				return
			}
		}
	}
}

// sample appends the buffered frame, if one is free, and returns the frame
// count so far.
func (r *Recorder) sample() (int, error) {
	v, err := r.src.TryAcquireLatestFrame()
	if err != nil {
		r.skipped++
		return r.count(), nil
	}
	if v.Y == nil {
		r.src.ReleaseFrame()
		r.skipped++
		return r.count(), nil
	}
	img := imageutil.Scale(imageutil.FromI420(v.Y, v.U, v.V, v.Width, v.Height), r.setting.MaxWidth)
	r.src.ReleaseFrame()

	data, err := imageutil.EncodeJPEGBytes(img, r.quality)
	if err != nil {
		return r.count(), err
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if r.builder == nil {
		b := img.Bounds()
		r.builder, err = NewBuilder(r.path, b.Dx(), b.Dy(), r.setting.FPS)
		if err != nil {
			return 0, err
		}
	}
	if err = r.builder.Add(data); err != nil {
		return r.builder.GetCnt(), err
	}
	return r.builder.GetCnt(), nil
}

func (r *Recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.builder == nil {
		return 0
	}
	return r.builder.GetCnt()
}

// Stop ends the recording, finalizes the AVI and returns the frame count.
func (r *Recorder) Stop() (int, error) {
	r.lock.Lock()
	cancel, done := r.cancel, r.done
	r.lock.Unlock()
	if done == nil {
		return 0, nil
	}
	cancel()
	<-done

	r.lock.Lock()
	defer r.lock.Unlock()
	err := r.err
	n := 0
	if r.builder != nil {
		n = r.builder.GetCnt()
		if cerr := r.builder.Close(); err == nil {
			err = cerr
		}
		r.builder = nil
	}
	r.done = nil
	r.logger.Infof("recorded %d frames to %s (%d skipped)", n, r.path, r.skipped)
	return n, err
}
