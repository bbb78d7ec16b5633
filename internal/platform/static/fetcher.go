package static

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/platform/base"
)

// Fetcher serves projects from a YAML catalog stored in a file or behind a URL.
type Fetcher struct {
	current atomic.Value

	source   string
	interval time.Duration
	logger   *zap.Logger
}

func NewFetcher(source string, interval time.Duration, logger *zap.Logger) (*Fetcher, error) {
	fetcher := &Fetcher{
		source:   source,
		interval: interval,
		logger:   logger,
	}

	if err := fetcher.reload(); err != nil {
		return nil, err
	}

	return fetcher, nil
}

// Run reloads the catalog until ctx is done. Failed reloads keep the previous catalog.
func (f *Fetcher) Run(ctx context.Context) {
	if f.source == "" || f.interval <= 0 {
		return
	}

	tick := time.NewTicker(f.interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if err := f.reload(); err != nil {
				f.logger.Error("Failed to reload project catalog", zap.Error(err))
			}
		case <-ctx.Done():
			f.logger.Info("Stopping project catalog reloader")
			return
		}
	}
}

func (f *Fetcher) reload() error {
	catalog, err := fetch(f.source)
	if err != nil {
		return err
	}

	f.current.Store(catalog)
	f.logger.Info("Reloaded project catalog",
		zap.Int("projects", len(catalog.Projects)),
		zap.Bool("strict", catalog.Strict),
	)
	return nil
}

func (f *Fetcher) Catalog() *Catalog {
	return f.current.Load().(*Catalog)
}

func (f *Fetcher) FetchProject(ctx context.Context, name string) (*models.Project, error) {
	project, found := f.Catalog().Lookup(name)
	if !found {
		return nil, &base.ProjectNotFoundError{Name: name}
	}
	return project, nil
}

var _ base.ProjectsFetcher = (*Fetcher)(nil)
