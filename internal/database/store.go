package database

import (
	"context"
	"time"

	"github.com/bigredeye/cqa/internal/models"
)

// Store keeps builds and the last time each one was proxied to.
// FindLastBuild returns nil without error when nothing was built for the key yet,
// LastAccessTime returns the zero time for builds that were never accessed.
type Store interface {
	FindLastBuild(ctx context.Context, projectName, version string) (*models.Build, error)
	FindBuildsByStatus(ctx context.Context, status string) ([]*models.Build, error)
	StoreBuild(ctx context.Context, build *models.Build) error
	LastAccessTime(ctx context.Context, buildID string) (time.Time, error)
	StoreLastAccessTime(ctx context.Context, buildID string, at time.Time) error
}
