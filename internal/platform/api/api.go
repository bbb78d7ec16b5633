package api

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/platform/base"
	"github.com/bigredeye/cqa/pkg/client/projects"
)

const RepoTypeGit = "git"

// ProjectsFetcher asks a project metadata service over HTTP.
type ProjectsFetcher struct {
	client *projects.Client
	logger *zap.Logger
}

func NewProjectsFetcher(endpoint, token string, logger *zap.Logger) (*ProjectsFetcher, error) {
	client, err := projects.NewClient(endpoint, token)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create projects client")
	}
	return &ProjectsFetcher{client: client, logger: logger}, nil
}

func (f *ProjectsFetcher) FetchProject(ctx context.Context, name string) (*models.Project, error) {
	project, err := f.client.GetProject(ctx, name)
	if errors.Is(err, projects.ErrNotFound) {
		return nil, &base.ProjectNotFoundError{Name: name}
	} else if err != nil {
		f.logger.Error("Failed to fetch project", lf.ProjectName(name), zap.Error(err))
		return nil, err
	}

	if project.RepoType != "" && project.RepoType != RepoTypeGit {
		return nil, errors.Errorf("Project %s uses unsupported repository type %s", name, project.RepoType)
	}

	return base.Normalize(models.Project{
		Name:   name,
		Source: project.RepoURL,
		Driver: project.Driver,
		Steps:  project.Steps,
	})
}

var _ base.ProjectsFetcher = (*ProjectsFetcher)(nil)
