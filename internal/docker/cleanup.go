package docker

import (
	"context"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	lf "github.com/bigredeye/cqa/internal/logfield"
)

type Scope string

const (
	ScopeAll     Scope = "ALL"
	ScopeStopped Scope = "STOPPED"
)

const cleanupParallelism = 8

func ParseScope(raw string) (Scope, error) {
	switch scope := Scope(strings.ToUpper(raw)); scope {
	case ScopeAll, ScopeStopped:
		return scope, nil
	default:
		return "", newError(InvalidScope, raw, nil)
	}
}

func (s Scope) statuses() []string {
	if s == ScopeAll {
		return []string{"created", "restarting", "running", "removing", "paused", "exited", "dead"}
	}
	return []string{"created", "removing", "exited", "dead"}
}

// Cleanup reclaims managed containers, then networks, then images. Every
// phase runs even if the previous one failed, the errors are combined.
func (d *Driver) Cleanup(ctx context.Context, scope Scope) error {
	if scope != ScopeAll && scope != ScopeStopped {
		return newError(InvalidScope, string(scope), nil)
	}
	log := d.logger.With(lf.Scope(string(scope)))

	var errs error
	for _, phase := range []struct {
		name string
		run  func(context.Context, Scope) error
	}{
		{"containers", d.cleanupContainers},
		{"networks", d.cleanupNetworks},
		{"images", d.cleanupImages},
	} {
		log.Info("Cleaning up " + phase.name)
		if err := phase.run(ctx, scope); err != nil {
			log.Warn("Failed to clean up "+phase.name, zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (d *Driver) cleanupContainers(ctx context.Context, scope Scope) error {
	containers, err := d.backend.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: managedFilters(statusFilters(scope.statuses())...),
	})
	if err != nil {
		return errors.Wrap(err, "Failed to list containers")
	}
	return forEach(ctx, containers, d.removeContainer)
}

func (d *Driver) cleanupNetworks(ctx context.Context, scope Scope) error {
	networks, err := d.backend.NetworkList(ctx, network.ListOptions{Filters: managedFilters()})
	if err != nil {
		return errors.Wrap(err, "Failed to list networks")
	}
	return forEach(ctx, networks, func(ctx context.Context, summary network.Summary) error {
		return d.removeNetwork(ctx, summary.ID, scope)
	})
}

// STOPPED leaves images alone: they may back containers that are still running.
func (d *Driver) cleanupImages(ctx context.Context, scope Scope) error {
	if scope != ScopeAll {
		return nil
	}
	images, err := d.backend.ImageList(ctx, image.ListOptions{Filters: managedFilters()})
	if err != nil {
		return errors.Wrap(err, "Failed to list images")
	}
	return forEach(ctx, images, func(ctx context.Context, summary image.Summary) error {
		d.logger.Debug("Removing image",
			zap.String("image_id", summary.ID),
			zap.Strings("tags", summary.RepoTags),
			zap.String("size", units.HumanSize(float64(summary.Size))),
		)
		_, err := d.backend.ImageRemove(ctx, summary.ID, image.RemoveOptions{Force: true, PruneChildren: true})
		if err != nil && !errdefs.IsNotFound(err) {
			return errors.Wrapf(err, "Failed to remove image %s", summary.ID)
		}
		return nil
	})
}

// forEach applies fn to all items concurrently and combines every error.
func forEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error) error {
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(cleanupParallelism)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
