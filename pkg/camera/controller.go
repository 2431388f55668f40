package camera

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"cam2-shutter/pkg/utils"
)

// CaptureState is a still sequence state.
type CaptureState string

const (
	StateIdle                CaptureState = "idle"
	StateWaitingLock         CaptureState = "waiting_lock"
	StateWaitingPrecapture   CaptureState = "waiting_precapture"
	StatePictureTaken        CaptureState = "picture_taken"
	StateWaitingStillCapture CaptureState = "waiting_still_capture"
)

const (
	evLock       = "lock"
	evLocked     = "locked"
	evPrecapture = "precapture"
	evShoot      = "shoot"
	evDone       = "done"
	evAbort      = "abort"
)

// Controller 把一次拍照请求转换为 对焦锁定 → 预捕获测光 → 拍照 → 恢复预览 的请求序列。
//
// It is driven from a single goroutine: RequestCapture, StartPreview and
// OnCaptureEvent must not be called concurrently. State and the counters
// may be read from anywhere.
type Controller struct {
	fsm      *fsm.FSM
	dev      Submitter
	settings Settings
	clock    clock.Clock
	logger   *zap.SugaredLogger

	// 预览是否在运行（拍照前置条件）
	previewing bool

	seq   uint64
	still *CaptureRequest

	lockStart       time.Time
	precaptureStart time.Time

	completed atomic.Uint64
	aborted   atomic.Uint64
}

// NewController returns an idle controller issuing requests to dev.
func NewController(dev Submitter, settings Settings, clk clock.Clock, logger *zap.SugaredLogger) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = utils.GetLogger().Named("camera")
	}
	if settings.PrecaptureTimeout <= 0 {
		settings.PrecaptureTimeout = DefaultPrecaptureTimeout * time.Millisecond
	}
	c := &Controller{dev: dev, settings: settings, clock: clk, logger: logger}
	c.fsm = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evLock, Src: []string{string(StateIdle)}, Dst: string(StateWaitingLock)},
			{Name: evLocked, Src: []string{string(StateWaitingLock)}, Dst: string(StatePictureTaken)},
			{Name: evPrecapture, Src: []string{string(StateWaitingLock)}, Dst: string(StateWaitingPrecapture)},
			{Name: evShoot, Src: []string{string(StatePictureTaken), string(StateWaitingPrecapture)}, Dst: string(StateWaitingStillCapture)},
			{Name: evDone, Src: []string{string(StateWaitingStillCapture)}, Dst: string(StateIdle)},
			{Name: evAbort, Src: []string{
				string(StateWaitingLock),
				string(StateWaitingPrecapture),
				string(StatePictureTaken),
				string(StateWaitingStillCapture),
			}, Dst: string(StateIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				c.logger.Debugf("capture #%d: %s -> %s (%s)", c.seq, e.Src, e.Dst, e.Event)
			},
		},
	)
	return c
}

func (c *Controller) State() CaptureState {
	return CaptureState(c.fsm.Current())
}

// Visualize renders the capture state table as a Graphviz digraph.
func (c *Controller) Visualize() string {
	return fsm.Visualize(c.fsm)
}

func (c *Controller) Settings() Settings {
	return c.settings
}

// Previewing reports whether the repeating preview request is active.
func (c *Controller) Previewing() bool {
	return c.previewing
}

// Sequence is the number of the latest still sequence.
func (c *Controller) Sequence() uint64 {
	return c.seq
}

// Completed and Aborted count finished still sequences.
func (c *Controller) Completed() uint64 { return c.completed.Load() }
func (c *Controller) Aborted() uint64   { return c.aborted.Load() }

// StartPreview submits the repeating preview request.
func (c *Controller) StartPreview() error {
	if err := c.dev.SetRepeatingRequest(c.settings.PreviewRequest()); err != nil {
		c.previewing = false
		return errors.Wrapf(ErrDeviceAccess, "start preview: %v", err)
	}
	c.previewing = true
	return nil
}

// StopPreview marks preview as gone, e.g. after the device disconnected.
// Any sequence in flight is dropped without issuing requests.
func (c *Controller) StopPreview() {
	c.previewing = false
	c.still = nil
	if c.State() != StateIdle {
		c.setIdle()
	}
}

// RequestCapture starts a still sequence. The rest of the sequence runs as
// capture events arrive.
func (c *Controller) RequestCapture() error {
	if !c.previewing {
		return ErrNotReady
	}
	if c.State() != StateIdle {
		return ErrCaptureInFlight
	}

	c.seq++
	if err := c.transition(evLock); err != nil {
		return err
	}
	c.lockStart = c.clock.Now()

	af := TriggerIdle
	if c.settings.Modes.AF != AFModeOff {
		af = TriggerStart
	}
	if err := c.dev.Capture(c.settings.TriggerRequest(c.seq, af, TriggerIdle)); err != nil {
		c.setIdle()
		return errors.Wrapf(ErrDeviceAccess, "submit lock request: %v", err)
	}
	return nil
}

// OnCaptureEvent advances the sequence on a capture result. Failures,
// panics included, end the sequence: the AF trigger is cancelled, preview
// resumes and the state returns to idle.
func (c *Controller) OnCaptureEvent(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.abort(errors.Wrapf(ErrSequenceAborted, "capture #%d in %s: panic: %v", c.seq, c.State(), r))
		}
	}()
	if err := c.dispatch(ev); err != nil {
		c.abort(errors.Wrapf(ErrSequenceAborted, "capture #%d in %s: %v", c.seq, c.State(), err))
	}
}

func (c *Controller) dispatch(ev Event) error {
	res := ev.Result
	if res == nil || res.Request == nil {
		return nil
	}

	switch c.State() {
	case StateWaitingLock:
		if !c.correlated(res.Request) {
			return nil
		}
		if ev.Kind == EventCaptureFailed {
			return c.ownFailure(res.Request)
		}
		return c.onWaitingLock(res)
	case StateWaitingPrecapture:
		if !c.correlated(res.Request) {
			return nil
		}
		if ev.Kind == EventCaptureFailed {
			return c.ownFailure(res.Request)
		}
		return c.onWaitingPrecapture(res)
	case StateWaitingStillCapture:
		if c.still == nil || res.Request.ID != c.still.ID {
			return nil
		}
		switch ev.Kind {
		case EventCaptureCompleted:
			c.finish()
			c.completed.Inc()
		case EventCaptureFailed:
			c.logger.Warnf("capture #%d: still request failed", c.seq)
			c.finish()
			c.aborted.Inc()
		}
	}
	// 其余状态下的事件直接忽略
	return nil
}

// correlated accepts results of the repeating preview request and of single
// requests issued by the current sequence.
func (c *Controller) correlated(req *CaptureRequest) bool {
	return req.Repeating || req.Sequence == c.seq
}

func (c *Controller) ownFailure(req *CaptureRequest) error {
	if req.Repeating {
		return nil
	}
	return fmt.Errorf("request %d failed", req.ID)
}

func (c *Controller) onWaitingLock(res *CaptureResult) error {
	if !c.afSatisfied(res.AF) {
		if c.settings.LockTimeout <= 0 || c.clock.Now().Sub(c.lockStart) < c.settings.LockTimeout {
			return nil
		}
		c.logger.Warnf("capture #%d: focus did not lock within %s", c.seq, c.settings.LockTimeout)
	}

	if c.aeSatisfied(res.AE) {
		if err := c.transition(evLocked); err != nil {
			return err
		}
		c.captureStill()
		return nil
	}

	c.precaptureStart = c.clock.Now()
	if err := c.transition(evPrecapture); err != nil {
		return err
	}
	if err := c.dev.Capture(c.settings.TriggerRequest(c.seq, TriggerIdle, TriggerStart)); err != nil {
		return errors.Wrap(err, "submit precapture trigger")
	}
	return nil
}

func (c *Controller) onWaitingPrecapture(res *CaptureResult) error {
	timedOut := c.clock.Now().Sub(c.precaptureStart) >= c.settings.PrecaptureTimeout
	if res.AE != nil && *res.AE != AEStateConverged && *res.AE != AEStateFlashRequired && !timedOut {
		return nil
	}
	if timedOut {
		c.logger.Warnf("capture #%d: precapture timed out after %s", c.seq, c.settings.PrecaptureTimeout)
	}
	c.captureStill()
	return nil
}

func (c *Controller) afSatisfied(s *AFState) bool {
	if s == nil || c.settings.Modes.AF.neverConverges() {
		return true
	}
	return *s == AFStateFocusedLocked || *s == AFStateNotFocusedLocked
}

func (c *Controller) aeSatisfied(s *AEState) bool {
	if s == nil || c.settings.Modes.AE.neverConverges() {
		return true
	}
	return *s == AEStateConverged
}

// captureStill stops preview and submits the still request. Any failure is
// cleaned up here, so callers only log the returned error.
func (c *Controller) captureStill() error {
	err := c.submitStill()
	if err != nil {
		c.logger.Errorf("capture #%d: %v", c.seq, err)
		c.finish()
		c.aborted.Inc()
	}
	return err
}

func (c *Controller) submitStill() error {
	if err := c.transition(evShoot); err != nil {
		return err
	}
	// 停止预览并清空队列，保证单次拍照干净
	c.previewing = false
	if err := c.dev.StopRepeating(); err != nil {
		return errors.Wrapf(ErrDeviceAccess, "stop repeating: %v", err)
	}
	if err := c.dev.AbortCaptures(); err != nil {
		return errors.Wrapf(ErrDeviceAccess, "abort captures: %v", err)
	}
	req := c.settings.StillRequest(c.seq)
	c.still = req
	if err := c.dev.Capture(req); err != nil {
		return errors.Wrapf(ErrDeviceAccess, "submit still: %v", err)
	}
	return nil
}

func (c *Controller) abort(err error) {
	c.logger.Errorf("%v", err)
	c.aborted.Inc()
	c.finish()
}

// finish cancels the AF trigger, resumes preview with AE/AWB unlocked and
// returns to idle. Each step runs even if an earlier one fails.
func (c *Controller) finish() {
	c.still = nil
	if c.settings.Modes.AF != AFModeOff {
		c.safely("cancel af trigger", func() error {
			return c.dev.Capture(c.settings.TriggerRequest(0, TriggerCancel, TriggerIdle))
		})
	}
	c.safely("resume preview", c.StartPreview)
	c.setIdle()
}

func (c *Controller) safely(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("%s: panic: %v", what, r)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Errorf("%s: %v", what, err)
	}
}

func (c *Controller) setIdle() {
	ev := evAbort
	if c.fsm.Can(evDone) {
		ev = evDone
	}
	if c.State() == StateIdle {
		return
	}
	if err := c.fsm.Event(ev); err != nil {
		c.logger.Warnf("force idle from %s: %v", c.State(), err)
		c.fsm.SetState(string(StateIdle))
	}
}

func (c *Controller) transition(event string) error {
	if err := c.fsm.Event(event); err != nil {
		return errors.Wrapf(err, "%s from %s", event, c.State())
	}
	return nil
}
