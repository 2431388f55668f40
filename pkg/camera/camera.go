package camera

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cam2-shutter/pkg/frame"
	"cam2-shutter/pkg/utils"
)

const eventBuffer = 16

// Still is an encoded still image delivered by the device.
type Still struct {
	Data     []byte    `json:"-"`
	Sequence uint64    `json:"sequence"`
	At       time.Time `json:"at"`
}

type Stats struct {
	State              CaptureState `json:"state"`
	Initialized        bool         `json:"initialized"`
	LastFrameTimestamp int64        `json:"lastFrameTimestamp"`
	Completed          uint64       `json:"completed"`
	Aborted            uint64       `json:"aborted"`
	Frames             frame.Stats  `json:"frames"`
}

type Option func(*Session)

func WithClock(clk clock.Clock) Option {
	return func(s *Session) { s.clock = clk }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Session) { s.logger = logger }
}

func WithConverter(conv frame.Converter) Option {
	return func(s *Session) { s.conv = conv }
}

// Session owns one open device: it resolves the configuration, runs the
// preview, feeds frames to the frame pipeline and capture results to the
// Controller. All device events are handled on a single goroutine.
type Session struct {
	dev    Device
	cfg    Config
	clock  clock.Clock
	logger *zap.SugaredLogger
	conv   frame.Converter

	pipeline *frame.Pipeline
	ctrl     atomic.Pointer[Controller]

	events  chan Event
	cmds    chan func()
	quit    chan struct{}
	done    chan struct{}
	started chan error

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
	running   atomic.Bool
	closed    atomic.Bool
	failed    atomic.Bool
	err       atomic.Error

	lastStill atomic.Pointer[Still]

	// owned by the event loop
	startSignaled bool
	waiters       []waiter
}

type waiter struct {
	seq uint64
	ch  chan stillResult
}

type stillResult struct {
	data []byte
	err  error
}

func NewSession(dev Device, cfg Config, opts ...Option) *Session {
	s := &Session{
		dev:     dev,
		cfg:     cfg,
		events:  make(chan Event, eventBuffer),
		cmds:    make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		started: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = utils.GetLogger().Named("camera")
	}
	s.pipeline = frame.NewPipeline(nil, s.conv, s.logger.Named("frame"))
	return s
}

// Start resolves the configuration against the device, opens it and waits
// until the preview is running.
func (s *Session) Start(ctx context.Context) error {
	err := ErrClosed
	s.startOnce.Do(func() {
		err = s.start(ctx)
	})
	if err != nil {
		return err
	}

	select {
	case err = <-s.started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	ch, err := s.dev.Characteristics(ctx)
	if err != nil {
		return errors.Wrapf(ErrDeviceAccess, "characteristics: %v", err)
	}
	settings, err := ResolveSettings(ch, s.cfg, s.logger)
	if err != nil {
		return errors.Wrap(err, "resolve settings")
	}
	s.logger.Infof("%s: %s, preview %s, still %s, rotation %d", ch.Name, settings.Modes,
		settings.PreviewSize, settings.StillSize, settings.QuarterTurns*90)

	s.pipeline.SetOrientation(settings.QuarterTurns)
	s.ctrl.Store(NewController(s.dev, settings, s.clock, s.logger))

	s.running.Store(true)
	go s.loop()

	if err = s.dev.Open(ctx, s.handle); err != nil {
		s.failed.Store(true)
		err = errors.Wrapf(ErrDeviceAccess, "open: %v", err)
		s.err.Store(err)
		return err
	}
	return nil
}

// handle is the device callback. It only queues the event for the loop.
func (s *Session) handle(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
		discard(ev)
	}
}

func discard(ev Event) {
	if ev.Kind != EventFrameAvailable || ev.Frames == nil {
		return
	}
	for f := ev.Frames.AcquireNextFrame(); f != nil; f = ev.Frames.AcquireNextFrame() {
		f.Close()
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case cmd := <-s.cmds:
			cmd()
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev Event) {
	ctrl := s.ctrl.Load()
	switch ev.Kind {
	case EventOpened:
		s.logger.Debug("device opened")
		outputs := []OutputConfig{
			{Output: OutputPreview, Size: ctrl.Settings().PreviewSize},
			{Output: OutputStill, Size: ctrl.Settings().StillSize},
		}
		if err := s.dev.CreateSession(outputs); err != nil {
			s.fail(errors.Wrapf(ErrDeviceAccess, "create session: %v", err))
		}
	case EventConfigured:
		if err := ctrl.StartPreview(); err != nil {
			s.fail(err)
			return
		}
		s.logger.Info("preview started")
		s.signalStarted(nil)
	case EventConfigureFailed:
		s.fail(ErrConfigurationFailed)
	case EventError:
		s.fail(errors.Wrapf(ErrDeviceAccess, "device error %d: %v", ev.Code, ev.Err))
	case EventDisconnected:
		s.fail(errors.Wrap(ErrDeviceAccess, "device disconnected"))
	case EventCaptureProgressed, EventCaptureCompleted, EventCaptureFailed:
		aborted := ctrl.Aborted()
		ctrl.OnCaptureEvent(ev)
		if ctrl.Aborted() != aborted {
			s.failWaiters(ErrSequenceAborted)
		}
	case EventFrameAvailable:
		s.pipeline.OnFrameAvailable(ev.Frames)
	case EventStillAvailable:
		s.onStill(ev)
	}
}

func (s *Session) onStill(ev Event) {
	st := &Still{Data: ev.Still, At: s.clock.Now()}
	if ev.StillRequest != nil {
		st.Sequence = ev.StillRequest.Sequence
	}
	s.lastStill.Store(st)
	s.logger.Infof("still #%d: %d bytes", st.Sequence, len(st.Data))

	kept := s.waiters[:0]
	for _, w := range s.waiters {
		if st.Sequence != 0 && w.seq != st.Sequence {
			kept = append(kept, w)
			continue
		}
		w.ch <- stillResult{data: st.Data}
	}
	s.waiters = kept
}

func (s *Session) fail(err error) {
	s.logger.Errorf("%v", err)
	s.err.Store(err)
	s.failed.Store(true)
	if ctrl := s.ctrl.Load(); ctrl != nil {
		ctrl.StopPreview()
	}
	s.signalStarted(err)
	s.failWaiters(err)
}

func (s *Session) signalStarted(err error) {
	if s.startSignaled {
		return
	}
	s.startSignaled = true
	s.started <- err
}

func (s *Session) failWaiters(err error) {
	for _, w := range s.waiters {
		w.ch <- stillResult{err: err}
	}
	s.waiters = nil
}

// do runs fn on the event loop and returns its error.
func (s *Session) do(ctx context.Context, fn func() error) error {
	if !s.running.Load() {
		return ErrNotReady
	}
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-reply
}

// RequestCapture starts a still sequence. It returns ErrNotReady before
// preview runs and ErrCaptureInFlight while another sequence is active.
func (s *Session) RequestCapture(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.ctrl.Load().RequestCapture()
	})
}

// Capture runs a still sequence and waits for its encoded image.
func (s *Session) Capture(ctx context.Context) ([]byte, error) {
	ch := make(chan stillResult, 1)
	err := s.do(ctx, func() error {
		ctrl := s.ctrl.Load()
		if err := ctrl.RequestCapture(); err != nil {
			return err
		}
		s.waiters = append(s.waiters, waiter{seq: ctrl.Sequence(), ch: ch})
		return nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// TryAcquireLatestFrame returns the newest frame without blocking, or
// frame.ErrBusy. A successful call must be followed by ReleaseFrame.
func (s *Session) TryAcquireLatestFrame() (frame.View, error) {
	return s.pipeline.Buffer().TryAcquire()
}

func (s *Session) ReleaseFrame() {
	s.pipeline.Buffer().Release()
}

// IsInitialized reports whether frames are flowing and the device is healthy.
func (s *Session) IsInitialized() bool {
	return s.pipeline.Initialized() && !s.failed.Load() && !s.closed.Load()
}

func (s *Session) LastFrameTimestamp() int64 {
	return s.pipeline.Buffer().Timestamp()
}

// LastStill returns the most recent still image.
func (s *Session) LastStill() ([]byte, bool) {
	st := s.lastStill.Load()
	if st == nil {
		return nil, false
	}
	return st.Data, true
}

func (s *Session) LastStillInfo() (Still, bool) {
	st := s.lastStill.Load()
	if st == nil {
		return Still{}, false
	}
	return *st, true
}

func (s *Session) State() CaptureState {
	if ctrl := s.ctrl.Load(); ctrl != nil {
		return ctrl.State()
	}
	return StateIdle
}

// Err returns the device error that stopped the session, if any.
func (s *Session) Err() error {
	return s.err.Load()
}

func (s *Session) Settings() Settings {
	if ctrl := s.ctrl.Load(); ctrl != nil {
		return ctrl.Settings()
	}
	return Settings{}
}

func (s *Session) Stats() Stats {
	st := Stats{
		State:              s.State(),
		Initialized:        s.IsInitialized(),
		LastFrameTimestamp: s.LastFrameTimestamp(),
		Frames:             s.pipeline.Stats(),
	}
	if ctrl := s.ctrl.Load(); ctrl != nil {
		st.Completed = ctrl.Completed()
		st.Aborted = ctrl.Aborted()
	}
	return st
}

// Close stops preview, closes the capture session and the device, and waits
// for the event loop to exit. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if !s.running.Load() {
			s.closeErr = s.dev.Close()
			return
		}

		var errs error
		_ = s.do(context.Background(), func() error {
			if ctrl := s.ctrl.Load(); ctrl != nil && ctrl.Previewing() {
				errs = multierr.Append(errs, s.dev.StopRepeating())
				ctrl.StopPreview()
			}
			errs = multierr.Append(errs, s.dev.CloseSession())
			s.failWaiters(ErrClosed)
			return nil
		})
		close(s.quit)
		<-s.done

		errs = multierr.Append(errs, s.dev.Close())
	drain:
		for {
			select {
			case ev := <-s.events:
				discard(ev)
			default:
				break drain
			}
		}
		s.pipeline.Reset()
		s.closeErr = errs
		s.logger.Info("session closed")
	})
	return s.closeErr
}
