package teardown

import (
	"context"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/events"
	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/metrics"
	"github.com/bigredeye/cqa/internal/models"
)

type Driver interface {
	Stop(ctx context.Context, stackName, version string) error
}

type AccessStore interface {
	LastAccessTime(ctx context.Context, buildID string) (time.Time, error)
}

type BuildLister interface {
	FindBuildsByStatus(ctx context.Context, status string) ([]*models.Build, error)
}

type timer struct {
	timer clockwork.Timer
	gen   uint64
}

// Scheduler stops the stacks of succeeded builds once nobody accessed them
// for a whole idle window. Each build has at most one pending timer.
type Scheduler struct {
	clock   clockwork.Clock
	window  time.Duration
	store   AccessStore
	driver  Driver
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	gen    uint64
	timers map[string]timer
}

type Options struct {
	Clock   clockwork.Clock
	Window  time.Duration
	Store   AccessStore
	Driver  Driver
	Bus     *events.Bus
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func NewScheduler(opts Options) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:   clock,
		window:  opts.Window,
		store:   opts.Store,
		driver:  opts.Driver,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		logger:  opts.Logger.Named("teardown"),
		timers:  make(map[string]timer),
	}
}

// nextDelay tells how long to wait before the stack becomes idle, or that it
// already is. A build that was never accessed is idle.
func nextDelay(lastAccess, now time.Time, window time.Duration) (time.Duration, bool) {
	if lastAccess.IsZero() {
		return 0, true
	}
	elapsed := now.Sub(lastAccess)
	if elapsed < window {
		return window - elapsed, false
	}
	return 0, true
}

// Subscribe arms a timer for every succeeded build and drops the timer of
// builds stopped elsewhere.
func (s *Scheduler) Subscribe(ctx context.Context) {
	s.bus.Subscribe(events.BuildFinished, func(event events.Event) {
		switch event.Build.Status {
		case models.BuildStatusSucceeded:
			s.Arm(ctx, event.Build)
		case models.BuildStatusStopped:
			s.Cancel(event.Build.ID)
		}
	})
}

// Resume arms a timer for every build that was already up when the gateway
// started, so stacks left by a previous run are torn down too.
func (s *Scheduler) Resume(ctx context.Context, builds BuildLister) error {
	succeeded, err := builds.FindBuildsByStatus(ctx, models.BuildStatusSucceeded)
	if err != nil {
		return errors.Wrap(err, "Failed to list running builds")
	}
	for _, build := range succeeded {
		s.Arm(ctx, build)
	}
	if len(succeeded) > 0 {
		s.logger.Info("Resumed teardown of running stacks", zap.Int("count", len(succeeded)))
	}
	return nil
}

func (s *Scheduler) Arm(ctx context.Context, build *models.Build) {
	s.schedule(ctx, build, s.window)
}

func (s *Scheduler) Cancel(buildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, found := s.timers[buildID]; found {
		t.timer.Stop()
		delete(s.timers, buildID)
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) schedule(ctx context.Context, build *models.Build, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, found := s.timers[build.ID]; found {
		previous.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[build.ID] = timer{
		gen:   gen,
		timer: s.clock.AfterFunc(delay, func() { s.fire(ctx, build, gen) }),
	}
	s.logger.Debug("Scheduled teardown", lf.BuildID(build.ID), lf.Delay(delay), zap.String("in", units.HumanDuration(delay)))
}

// current reports whether gen is still the pending timer of the build.
func (s *Scheduler) current(buildID string, gen uint64, drop bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.timers[buildID]
	if !found || t.gen != gen {
		return false
	}
	if drop {
		delete(s.timers, buildID)
	}
	return true
}

func (s *Scheduler) fire(ctx context.Context, build *models.Build, gen uint64) {
	if !s.current(build.ID, gen, false) {
		return
	}
	log := s.logger.With(lf.BuildID(build.ID), lf.ProjectName(build.Project.Name), lf.Version(build.Version))

	lastAccess, err := s.store.LastAccessTime(ctx, build.ID)
	if err != nil {
		log.Warn("Failed to read last access time, retrying later", zap.Error(err))
		s.schedule(ctx, build, s.window)
		return
	}

	delay, idle := nextDelay(lastAccess, s.clock.Now(), s.window)
	if !idle {
		s.schedule(ctx, build, delay)
		return
	}
	if !s.current(build.ID, gen, true) {
		return
	}

	log.Info("Tearing down idle stack", zap.Time("last_access", lastAccess))
	if err := s.driver.Stop(ctx, build.Project.Name, build.Version); err != nil {
		log.Error("Failed to stop idle stack, retrying later", zap.Error(err))
		s.schedule(ctx, build, s.window)
		return
	}
	if err := build.SetStatus(models.BuildStatusStopped); err != nil {
		log.Warn("Stack stopped but build status was not updated", zap.Error(err))
		return
	}
	s.metrics.StackTornDown()
	s.bus.Publish(events.Event{Kind: events.BuildFinished, Build: build})
}
