package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bigredeye/cqa/internal/events"
	"github.com/bigredeye/cqa/internal/hostname"
	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/metrics"
	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/platform/base"
)

type Action int

const (
	// ActionCreated: a new build was just started, show the wait page.
	ActionCreated Action = iota
	// ActionWait: the build is pending, running or failed, show its progress.
	ActionWait
	// ActionProxy: the stack is up, forward the request to Address.
	ActionProxy
	// ActionRetry: the stack died behind our back, ask the client to retry.
	ActionRetry
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionWait:
		return "wait"
	case ActionProxy:
		return "proxy"
	case ActionRetry:
		return "retry"
	default:
		return "unknown"
	}
}

type Decision struct {
	Action  Action
	Build   *models.Build
	Address string
}

type Decoder interface {
	Decode(hostname string) (hostname.Target, error)
}

type Store interface {
	FindLastBuild(ctx context.Context, projectName, version string) (*models.Build, error)
	StoreLastAccessTime(ctx context.Context, buildID string, at time.Time) error
}

type Driver interface {
	IsUp(ctx context.Context, stackName, version string) (bool, error)
	Address(ctx context.Context, stackName, version string) (string, error)
}

type Options struct {
	Clock    clockwork.Clock
	Codec    Decoder
	Projects base.ProjectsFetcher
	Store    Store
	Driver   Driver
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Router decides what to do with a request for a preview hostname.
// The store must be fed from the bus, created builds are only written through
// build.created.
type Router struct {
	clock    clockwork.Clock
	codec    Decoder
	projects base.ProjectsFetcher
	store    Store
	driver   Driver
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger

	creating singleflight.Group
}

func NewRouter(opts Options) *Router {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Router{
		clock:    clock,
		codec:    opts.Codec,
		projects: opts.Projects,
		store:    opts.Store,
		driver:   opts.Driver,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		logger:   opts.Logger.Named("gateway"),
	}
}

func (r *Router) Route(ctx context.Context, host string) (*Decision, error) {
	target, err := r.codec.Decode(host)
	if err != nil {
		return nil, err
	}

	projectName := target.ProjectName()
	project, err := r.projects.FetchProject(ctx, projectName)
	if err != nil {
		return nil, err
	}

	build, err := r.store.FindLastBuild(ctx, projectName, target.Version)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to find last build")
	}

	if build == nil || build.Status == models.BuildStatusStopped {
		return r.create(ctx, host, project, target.Version)
	}

	if build.Status != models.BuildStatusSucceeded {
		return &Decision{Action: ActionWait, Build: build}, nil
	}

	up, err := r.driver.IsUp(ctx, projectName, target.Version)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to check stack")
	}
	if !up {
		r.markStopped(build)
		return &Decision{Action: ActionRetry, Build: build}, nil
	}

	address, err := r.driver.Address(ctx, projectName, target.Version)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to resolve stack address")
	}
	return &Decision{Action: ActionProxy, Build: build, Address: address}, nil
}

// create starts at most one build per key at a time. Concurrent requests that
// saw no usable build share the one created by the first of them.
func (r *Router) create(ctx context.Context, host string, project *models.Project, version string) (*Decision, error) {
	key := project.Name + "@" + version
	result, err, _ := r.creating.Do(key, func() (interface{}, error) {
		build, err := r.store.FindLastBuild(ctx, project.Name, version)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to find last build")
		}
		if build != nil && build.Status != models.BuildStatusStopped {
			return &Decision{Action: ActionWait, Build: build}, nil
		}

		build = models.NewBuild(host, *project, version)
		build.CreatedAt = r.clock.Now()
		r.logger.Info("Creating build",
			lf.BuildID(build.ID),
			lf.ProjectName(project.Name),
			lf.Version(version),
			lf.Hostname(host),
		)
		r.metrics.BuildCreated()
		r.bus.Publish(events.Event{Kind: events.BuildCreated, Build: build})
		return &Decision{Action: ActionCreated, Build: build}, nil
	})
	if err != nil {
		return nil, err
	}
	decision := result.(*Decision)
	return &Decision{Action: decision.Action, Build: decision.Build.Clone()}, nil
}

func (r *Router) markStopped(build *models.Build) {
	log := r.logger.With(lf.BuildID(build.ID), lf.ProjectName(build.Project.Name), lf.Version(build.Version))
	if err := build.SetStatus(models.BuildStatusStopped); err != nil {
		log.Error("Failed to mark build stopped", zap.Error(err))
		return
	}
	log.Warn("Stack is gone, build marked stopped")
	r.bus.Publish(events.Event{Kind: events.BuildFinished, Build: build})
}

// Touch records a proxied request for idle teardown accounting.
func (r *Router) Touch(ctx context.Context, build *models.Build) {
	r.metrics.RequestProxied()
	if err := r.store.StoreLastAccessTime(ctx, build.ID, r.clock.Now()); err != nil {
		r.logger.Error("Failed to store last access time", lf.BuildID(build.ID), zap.Error(err))
	}
}
