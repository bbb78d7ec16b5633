package base

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/bigredeye/cqa/internal/models"
)

type ProjectsFetcher interface {
	FetchProject(ctx context.Context, name string) (*models.Project, error)
}

type ProjectNotFoundError struct {
	Name string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project %q not found", e.Name)
}

func IsProjectNotFound(err error) bool {
	var notFound *ProjectNotFoundError
	return errors.As(err, &notFound)
}

var SupportedDrivers = []string{models.DriverDocker}

// Normalize fills the defaults and checks that the gateway knows how to run the project.
func Normalize(project models.Project) (*models.Project, error) {
	project = project.WithDefaults()
	if project.Name == "" {
		return nil, errors.New("Project name is empty")
	}
	if project.Source == "" {
		return nil, errors.Errorf("Project %s has no source location", project.Name)
	}
	if !slices.Contains(SupportedDrivers, project.Driver) {
		return nil, errors.Errorf("Project %s uses unsupported driver %s", project.Name, project.Driver)
	}
	return &project, nil
}
