// Package schedule takes a still at a fixed interval and stores it.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"cam2-shutter/pkg/utils"
)

type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

type Saver interface {
	SaveStill(data []byte, at time.Time) (string, error)
}

type Status struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	Taken    uint64        `json:"taken"`
	Failed   uint64        `json:"failed"`
	Last     string        `json:"last,omitempty"`
}

type Scheduler struct {
	t        *time.Ticker
	camera   Capturer
	store    Saver
	lock     sync.Mutex
	interval time.Duration
	last     string
	timeout  time.Duration
	logger   *zap.SugaredLogger

	taken  atomic.Uint64
	failed atomic.Uint64
	done   chan struct{}
}

func New(ctx context.Context, camera Capturer, store Saver, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = utils.GetLogger().Named("schedule")
	}
	t := time.NewTicker(time.Second)
	t.Stop()

	s := &Scheduler{
		t:       t,
		camera:  camera,
		store:   store,
		timeout: 30 * time.Second,
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.startDeal(ctx)

	return s
}

// Begin (re)starts the schedule with interval ms between stills.
func (s *Scheduler) Begin(interval int) {
	d := utils.MsToDuration(interval)
	s.lock.Lock()
	s.interval = d
	s.lock.Unlock()
	s.t.Reset(d)
	s.logger.Infof("scheduler: every %s", d)
}

func (s *Scheduler) Stop() {
	s.logger.Info("scheduler: stopped")
	s.t.Stop()
	s.lock.Lock()
	s.interval = 0
	s.lock.Unlock()
}

func (s *Scheduler) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Status{
		Running:  s.interval > 0,
		Interval: s.interval,
		Taken:    s.taken.Load(),
		Failed:   s.failed.Load(),
		Last:     s.last,
	}
}

// Done is closed once the scheduler's context has ended and it has stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) startDeal(ctx context.Context) {
	go func(s *Scheduler) {
		defer close(s.done)
		for {
			select {
			case start := <-s.t.C:
				s.lock.Lock()
				running := s.interval > 0
				s.lock.Unlock()
				if !running {
					s.logger.Warn("scheduler: tick while stopped")
					continue
				}
				s.logger.Debugf("scheduler: starting deal: %v", start)
				s.deal(ctx)
				s.logger.Infof("scheduler: took %s to get the image", time.Since(start))
			case <-ctx.Done():
				s.t.Stop()
				s.logger.Info("scheduler: stopped!")
				return
			}
		}
	}(s)
}

func (s *Scheduler) deal(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	still, err := s.camera.Capture(ctx)
	if err != nil {
		s.failed.Inc()
		s.logger.Errorf("scheduler: capture err: %s", err)
		return
	}
	p, err := s.store.SaveStill(still, time.Now())
	if err != nil {
		s.failed.Inc()
		s.logger.Errorf("scheduler: save image err: %s", err)
		return
	}
	s.taken.Inc()
	s.lock.Lock()
	s.last = p
	s.lock.Unlock()
}
