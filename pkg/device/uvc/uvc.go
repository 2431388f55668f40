//go:build linux

// Package uvc drives a V4L2 webcam through go4vl as a camera.Device.
//
// UVC cameras have no per-request 3A metadata, so capture results carry no
// AF or AE state and the capture controller treats them as converged. Modes
// are applied as V4L2 controls where the driver has them. Stills are taken by
// reopening the stream at the still size.
package uvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/utils"
)

const (
	DefaultDevice = "/dev/video0"

	openRetries  = 5
	stillTimeout = 5 * time.Second
)

var (
	ErrNotOpen   = errors.New("device not open")
	ErrOpened    = errors.New("device already open")
	ErrNoSession = errors.New("no capture session")
)

type Options struct {
	Path        string
	FPS         int
	BufferSize  int
	JPEGQuality int
}

// stream is one open go4vl device at a fixed size.
type stream struct {
	dev    *device.Device
	cancel context.CancelFunc
	size   camera.Size
}

type Device struct {
	opts   Options
	logger *zap.SugaredLogger

	mu         sync.Mutex
	handler    camera.Handler
	opened     bool
	configured bool
	preview    camera.Size
	still      camera.Size
	repeating  *camera.CaptureRequest
	src        <-chan []byte
	outbox     []camera.Event
	abortGen   uint64
	chars      *camera.Characteristics

	// streamMu serializes opening and closing the video stream.
	streamMu sync.Mutex
	stream   *stream

	frames *slot
	stills sync.WaitGroup
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	start  time.Time
}

func New(opts Options, logger *zap.SugaredLogger) *Device {
	if opts.Path == "" {
		opts.Path = DefaultDevice
	}
	if opts.FPS <= 0 {
		opts.FPS = camera.DefaultFPS
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 2
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}
	if logger == nil {
		logger = utils.GetLogger().Named("uvc")
	}
	return &Device{
		opts:   opts,
		logger: logger,
		frames: &slot{},
		wake:   make(chan struct{}, 1),
	}
}

// Characteristics lists the YUYV frame sizes the driver enumerates.
func (d *Device) Characteristics(context.Context) (camera.Characteristics, error) {
	d.mu.Lock()
	if d.chars != nil {
		defer d.mu.Unlock()
		return *d.chars, nil
	}
	d.mu.Unlock()

	dev, err := device.Open(d.opts.Path)
	if err != nil {
		return camera.Characteristics{}, errors.Wrapf(err, "open %s", d.opts.Path)
	}
	defer dev.Close()

	enums, err := v4l2.GetAllFormatFrameSizes(dev.Fd())
	if err != nil {
		return camera.Characteristics{}, errors.Wrap(err, "frame sizes")
	}
	var sizes []camera.Size
	for _, e := range enums {
		if e.PixelFormat != v4l2.PixelFmtYUYV {
			continue
		}
		s := camera.Size{Width: int(e.Size.MaxWidth), Height: int(e.Size.MaxHeight)}
		if !lo.Contains(sizes, s) {
			sizes = append(sizes, s)
		}
	}
	if len(sizes) == 0 {
		return camera.Characteristics{}, fmt.Errorf("%s has no YUYV format", d.opts.Path)
	}

	ch := camera.Characteristics{
		Name:         d.opts.Path,
		PreviewSizes: sizes,
		StillSizes:   sizes,
		AFModes:      []camera.AFMode{camera.AFModeOff, camera.AFModeContinuousPicture},
		AEModes:      []camera.AEMode{camera.AEModeOff, camera.AEModeOn},
		AWBModes:     []camera.AWBMode{camera.AWBModeOff, camera.AWBModeAuto},
		FPSRanges:    []camera.FPSRange{{Min: d.opts.FPS, Max: d.opts.FPS}},
	}
	d.mu.Lock()
	d.chars = &ch
	d.mu.Unlock()
	return ch, nil
}

func (d *Device) Open(ctx context.Context, h camera.Handler) error {
	d.mu.Lock()
	if d.opened {
		d.mu.Unlock()
		return ErrOpened
	}
	d.handler = h
	d.opened = true
	d.quit = make(chan struct{})
	d.done = make(chan struct{})
	d.start = time.Now()
	go d.run()
	d.mu.Unlock()

	_, err := d.Characteristics(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.post(camera.Event{Kind: camera.EventError, Err: err})
		return nil
	}
	d.post(camera.Event{Kind: camera.EventOpened})
	return nil
}

// CreateSession checks that the driver accepts both sizes.
func (d *Device) CreateSession(outputs []camera.OutputConfig) error {
	d.mu.Lock()
	if !d.opened {
		d.mu.Unlock()
		return ErrNotOpen
	}
	d.mu.Unlock()

	preview, still := camera.Size{}, camera.Size{}
	for _, o := range outputs {
		switch o.Output {
		case camera.OutputPreview:
			preview = o.Size
		case camera.OutputStill:
			still = o.Size
		}
	}

	err := d.probe(preview)
	if err == nil && still != preview {
		err = d.probe(still)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.logger.Warnf("configure %s/%s: %v", preview, still, err)
		d.post(camera.Event{Kind: camera.EventConfigureFailed, Err: err})
		return nil
	}
	d.preview, d.still = preview, still
	d.configured = true
	d.post(camera.Event{Kind: camera.EventConfigured})
	return nil
}

func (d *Device) probe(size camera.Size) error {
	if size.Width <= 0 || size.Height <= 0 || size.Width%2 != 0 || size.Height%2 != 0 {
		return fmt.Errorf("invalid size %s", size)
	}
	d.streamMu.Lock()
	defer d.streamMu.Unlock()
	if d.stream != nil {
		return nil
	}
	dev, err := d.openDevice(size)
	if err != nil {
		return err
	}
	return dev.Close()
}

// SetRepeatingRequest starts the preview stream if it is not running.
func (d *Device) SetRepeatingRequest(req *camera.CaptureRequest) error {
	d.mu.Lock()
	if !d.configured {
		d.mu.Unlock()
		return ErrNoSession
	}
	d.repeating = req
	size := d.preview
	d.mu.Unlock()

	d.streamMu.Lock()
	defer d.streamMu.Unlock()
	if d.stream != nil && d.stream.size == size {
		d.applyControls(d.stream.dev, req.Modes)
		return nil
	}
	d.stopStream()
	s, err := d.openStream(size)
	if err != nil {
		return err
	}
	d.applyControls(s.dev, req.Modes)
	d.stream = s

	d.mu.Lock()
	d.src = s.dev.GetOutput()
	d.signal()
	d.mu.Unlock()
	return nil
}

// Capture completes trigger requests at once. Still requests are taken on
// their own goroutine.
func (d *Device) Capture(req *camera.CaptureRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNoSession
	}
	if req.Target != camera.OutputStill {
		d.post(progressed(req))
		d.post(completed(req))
		return nil
	}
	gen := d.abortGen
	d.stills.Add(1)
	go d.captureStill(req, gen)
	return nil
}

func (d *Device) StopRepeating() error {
	d.mu.Lock()
	if !d.configured {
		d.mu.Unlock()
		return ErrNoSession
	}
	d.repeating = nil
	d.src = nil
	d.signal()
	d.mu.Unlock()

	d.streamMu.Lock()
	defer d.streamMu.Unlock()
	d.stopStream()
	return nil
}

// AbortCaptures fails the stills in flight once they return.
func (d *Device) AbortCaptures() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNoSession
	}
	d.abortGen++
	return nil
}

func (d *Device) CloseSession() error {
	d.mu.Lock()
	d.configured = false
	d.repeating = nil
	d.src = nil
	d.abortGen++
	d.mu.Unlock()

	d.streamMu.Lock()
	defer d.streamMu.Unlock()
	d.stopStream()
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	if !d.opened {
		d.mu.Unlock()
		return nil
	}
	d.opened = false
	d.configured = false
	d.repeating = nil
	d.src = nil
	d.abortGen++
	quit, done := d.quit, d.done
	d.mu.Unlock()

	d.stills.Wait()
	d.streamMu.Lock()
	err := d.stopStream()
	d.streamMu.Unlock()

	close(quit)
	<-done
	d.frames.clear()

	d.mu.Lock()
	d.outbox = nil
	d.mu.Unlock()
	return err
}

// DroppedFrames counts preview frames replaced before they were read.
func (d *Device) DroppedFrames() int {
	return d.frames.dropped()
}

func (d *Device) captureStill(req *camera.CaptureRequest, gen uint64) {
	defer d.stills.Done()

	d.mu.Lock()
	size := d.still
	d.mu.Unlock()

	data, err := d.grab(size)
	var jpg []byte
	if err == nil {
		jpg, err = encodeStill(data, size, req.JPEGOrientation, d.opts.JPEGQuality)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.abortGen || !d.configured {
		d.post(failed(req))
		return
	}
	if err != nil {
		d.logger.Errorf("still %s: %v", size, err)
		d.post(failed(req))
		return
	}
	d.post(progressed(req))
	d.post(completed(req))
	d.post(camera.Event{Kind: camera.EventStillAvailable, Still: jpg, StillRequest: req})
}

// grab opens the stream at size and returns its first frame.
func (d *Device) grab(size camera.Size) ([]byte, error) {
	d.streamMu.Lock()
	defer d.streamMu.Unlock()

	// 拍照前关闭预览流
	d.stopStream()
	s, err := d.openStream(size)
	if err != nil {
		return nil, err
	}
	d.stream = s
	defer d.stopStream()

	timeout := time.NewTimer(stillTimeout)
	defer timeout.Stop()
	select {
	case data, ok := <-s.dev.GetOutput():
		if !ok {
			return nil, errors.New("capture stream closed")
		}
		return append([]byte(nil), data...), nil
	case <-timeout.C:
		return nil, fmt.Errorf("no frame within %s", stillTimeout)
	}
}

// openStream starts streaming at size, retrying while the driver still
// reports the previous stream busy. Callers hold streamMu.
func (d *Device) openStream(size camera.Size) (*stream, error) {
	var err error
	for i := 0; i < openRetries; i++ {
		var s *stream
		s, err = d.startStream(size)
		if err == nil {
			return s, nil
		}
		if !isBusyErr(err) {
			break
		}
		d.logger.Warnf("device busy, will retry %d/%d: %v", i+1, openRetries, err)
		time.Sleep(150 * time.Millisecond)
	}
	return nil, err
}

func (d *Device) startStream(size camera.Size) (*stream, error) {
	d.logger.Infof("start stream in %s", size)
	dev, err := d.openDevice(size)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		return nil, multierr.Append(errors.Wrap(err, "start stream"), dev.Close())
	}
	return &stream{dev: dev, cancel: cancel, size: size}, nil
}

func (d *Device) openDevice(size camera.Size) (*device.Device, error) {
	dev, err := device.Open(
		d.opts.Path,
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtYUYV,
			Width:       uint32(size.Width),
			Height:      uint32(size.Height),
			Field:       v4l2.FieldNone,
		}),
		device.WithBufferSize(uint32(d.opts.BufferSize)),
		device.WithFPS(uint32(d.opts.FPS)),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s at %s", d.opts.Path, size)
	}
	return dev, nil
}

// stopStream closes the running stream. Callers hold streamMu.
func (d *Device) stopStream() error {
	s := d.stream
	if s == nil {
		return nil
	}
	d.stream = nil
	// 先取消上下文，让底层流 goroutine 自行停止，再关闭设备
	s.cancel()
	time.Sleep(100 * time.Millisecond)
	return s.dev.Close()
}

func (d *Device) applyControls(dev *device.Device, m camera.Modes) {
	for id, val := range controlsFor(m) {
		if err := dev.SetControlValue(v4l2.CtrlID(id), v4l2.CtrlValue(val)); err != nil {
			d.logger.Debugf("set ctrl(%#x) to %d: %v", id, val, err)
		}
	}
}

// post queues an event. Callers hold d.mu.
func (d *Device) post(ev camera.Event) {
	d.outbox = append(d.outbox, ev)
	d.signal()
}

func (d *Device) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run delivers queued events and forwards preview frames, all from one
// goroutine.
func (d *Device) run() {
	defer close(d.done)
	var current <-chan []byte
	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
			d.mu.Lock()
			events := d.outbox
			d.outbox = nil
			current = d.src
			d.mu.Unlock()
			for _, ev := range events {
				d.handler(ev)
			}
		case data, ok := <-current:
			if !ok {
				// 源已结束，等待新的预览流
				current = nil
				continue
			}
			d.onPreviewFrame(data)
		}
	}
}

func (d *Device) onPreviewFrame(data []byte) {
	d.mu.Lock()
	req, size := d.repeating, d.preview
	d.mu.Unlock()
	if req == nil {
		return
	}

	f, err := yuyvFrame(data, size, time.Since(d.start).Nanoseconds())
	if err != nil {
		d.logger.Warnf("drop preview frame: %v", err)
		return
	}
	d.frames.put(f)
	d.handler(camera.Event{Kind: camera.EventFrameAvailable, Frames: d.frames})
	d.handler(progressed(req))
	d.handler(completed(req))
}

func progressed(req *camera.CaptureRequest) camera.Event {
	return camera.Event{Kind: camera.EventCaptureProgressed, Result: &camera.CaptureResult{Request: req, Partial: true}}
}

func completed(req *camera.CaptureRequest) camera.Event {
	return camera.Event{Kind: camera.EventCaptureCompleted, Result: &camera.CaptureResult{Request: req}}
}

func failed(req *camera.CaptureRequest) camera.Event {
	return camera.Event{Kind: camera.EventCaptureFailed, Result: &camera.CaptureResult{Request: req}}
}
