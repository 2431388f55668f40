// Package sim is a simulated camera that behaves like a camera2 device:
// NV21 preview frames with padded rows, per-request capture results with
// AF/AE states that converge over a few frames, and JPEG stills.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/utils"
)

var (
	ErrNotOpen   = errors.New("device not open")
	ErrOpened    = errors.New("device already open")
	ErrNoSession = errors.New("no capture session")
)

type Options struct {
	Characteristics camera.Characteristics

	FrameInterval time.Duration
	// FocusFrames and ExposureFrames are the results needed for AF to lock
	// after a trigger and for AE to converge.
	FocusFrames    int
	ExposureFrames int
	// MaxImages bounds the preview frames waiting to be read.
	MaxImages   int
	JPEGQuality int

	// ReportAF/ReportAE false leaves that state out of results.
	ReportAF bool
	ReportAE bool
}

func DefaultOptions() Options {
	return Options{
		Characteristics: camera.Characteristics{
			Name:         "sim",
			PreviewSizes: []camera.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}},
			StillSizes:   []camera.Size{{Width: 1920, Height: 1080}, {Width: 1280, Height: 720}},
			AFModes: []camera.AFMode{
				camera.AFModeOff, camera.AFModeAuto, camera.AFModeContinuousPicture,
			},
			AEModes:   []camera.AEMode{camera.AEModeOff, camera.AEModeOn},
			AWBModes:  []camera.AWBMode{camera.AWBModeOff, camera.AWBModeAuto},
			FPSRanges: []camera.FPSRange{{Min: 15, Max: 30}, {Min: 30, Max: 30}},
			EVRange:   &camera.EVRange{Lower: -2, Upper: 2},
		},
		FrameInterval:  33 * time.Millisecond,
		FocusFrames:    3,
		ExposureFrames: 3,
		MaxImages:      3,
		JPEGQuality:    90,
		ReportAF:       true,
		ReportAE:       true,
	}
}

// Device is the simulated camera. Commands only queue work; events are
// delivered from one internal goroutine.
type Device struct {
	opts   Options
	logger *zap.SugaredLogger

	mu         sync.Mutex
	handler    camera.Handler
	opened     bool
	configured bool
	outputs    map[camera.Output]camera.Size
	repeating  *camera.CaptureRequest
	pending    []*camera.CaptureRequest
	outbox     []camera.Event
	frameNo    int64
	lens       lens

	// FailCapture rejects single requests for which it returns an error.
	FailCapture func(*camera.CaptureRequest) error

	images *imageQueue
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	start  time.Time
}

func New(opts Options, logger *zap.SugaredLogger) *Device {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 33 * time.Millisecond
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 3
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}
	if logger == nil {
		logger = utils.GetLogger().Named("sim")
	}
	return &Device{
		opts:    opts,
		logger:  logger,
		outputs: make(map[camera.Output]camera.Size),
		images:  newImageQueue(opts.MaxImages),
		wake:    make(chan struct{}, 1),
	}
}

func (d *Device) Characteristics(context.Context) (camera.Characteristics, error) {
	return d.opts.Characteristics, nil
}

func (d *Device) Open(_ context.Context, h camera.Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return ErrOpened
	}
	d.handler = h
	d.opened = true
	d.quit = make(chan struct{})
	d.done = make(chan struct{})
	d.start = time.Now()
	d.post(camera.Event{Kind: camera.EventOpened})
	go d.run()
	return nil
}

func (d *Device) CreateSession(outputs []camera.OutputConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return ErrNotOpen
	}
	for _, o := range outputs {
		if o.Size.Width <= 0 || o.Size.Height <= 0 || o.Size.Width%2 != 0 || o.Size.Height%2 != 0 {
			d.post(camera.Event{Kind: camera.EventConfigureFailed})
			return nil
		}
		d.outputs[o.Output] = o.Size
	}
	d.configured = true
	d.post(camera.Event{Kind: camera.EventConfigured})
	return nil
}

func (d *Device) SetRepeatingRequest(req *camera.CaptureRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNoSession
	}
	d.repeating = req
	return nil
}

func (d *Device) Capture(req *camera.CaptureRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNoSession
	}
	if d.FailCapture != nil {
		if err := d.FailCapture(req); err != nil {
			return err
		}
	}
	d.pending = append(d.pending, req)
	d.signal()
	return nil
}

func (d *Device) StopRepeating() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNoSession
	}
	d.repeating = nil
	return nil
}

func (d *Device) AbortCaptures() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return ErrNoSession
	}
	d.abortPending()
	return nil
}

func (d *Device) abortPending() {
	for _, req := range d.pending {
		d.post(failed(req))
	}
	d.pending = nil
}

func (d *Device) CloseSession() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = false
	d.repeating = nil
	d.pending = nil
	return nil
}

// Disconnect simulates the device going away.
func (d *Device) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = false
	d.repeating = nil
	d.post(camera.Event{Kind: camera.EventDisconnected})
}

// Fail simulates a fatal device error.
func (d *Device) Fail(code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = false
	d.repeating = nil
	d.post(camera.Event{Kind: camera.EventError, Code: code, Err: fmt.Errorf("sim error %d", code)})
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
	d.pending = nil
	d.outbox = nil
	quit, done := d.quit, d.done
	d.mu.Unlock()

	close(quit)
	<-done
	d.images.clear()
	return nil
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

func (d *Device) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
			d.flush(d.step(false))
		case <-ticker.C:
			d.flush(d.step(true))
		}
	}
}

// step advances the simulation and returns the events to deliver.
func (d *Device) step(tick bool) []camera.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := d.outbox
	d.outbox = nil
	if !d.configured {
		return events
	}

	for _, req := range d.pending {
		events = append(events, d.complete(req)...)
	}
	d.pending = nil

	if tick && d.repeating != nil {
		size := d.outputs[camera.OutputPreview]
		d.frameNo++
		ts := time.Since(d.start).Nanoseconds()
		if d.images.push(synthFrame(size.Width, size.Height, d.frameNo, ts)) {
			events = append(events, camera.Event{Kind: camera.EventFrameAvailable, Frames: d.images})
		}
		events = append(events, d.complete(d.repeating)...)
	}
	return events
}

// complete produces the results of one request. Callers hold d.mu.
func (d *Device) complete(req *camera.CaptureRequest) []camera.Event {
	af, ae := d.lens.advance(req, d.opts)

	res := &camera.CaptureResult{Request: req}
	if d.opts.ReportAF {
		res.AF = camera.AF(af)
	}
	if d.opts.ReportAE {
		res.AE = camera.AE(ae)
	}
	partial := *res
	partial.Partial = true

	events := []camera.Event{
		{Kind: camera.EventCaptureProgressed, Result: &partial},
		{Kind: camera.EventCaptureCompleted, Result: res},
	}
	if req.Target == camera.OutputStill {
		size := d.outputs[camera.OutputStill]
		data, err := synthStill(size.Width, size.Height, d.frameNo, req.JPEGOrientation, d.opts.JPEGQuality)
		if err != nil {
			d.logger.Errorf("encode still: %v", err)
			return []camera.Event{failed(req)}
		}
		events = append(events, camera.Event{Kind: camera.EventStillAvailable, Still: data, StillRequest: req})
	}
	return events
}

func (d *Device) flush(events []camera.Event) {
	for _, ev := range events {
		d.handler(ev)
	}
}

func failed(req *camera.CaptureRequest) camera.Event {
	return camera.Event{Kind: camera.EventCaptureFailed, Result: &camera.CaptureResult{Request: req}}
}

// DroppedFrames counts preview frames discarded because the reader had
// MaxImages frames outstanding.
func (d *Device) DroppedFrames() int {
	return d.images.dropped()
}
