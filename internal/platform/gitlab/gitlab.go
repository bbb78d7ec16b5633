package gitlab

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/xanzy/go-gitlab"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/platform/base"
)

// Optional per-repository overrides read from the default branch.
const ProjectConfigFile = ".cqa.yml"

type projectConfig struct {
	Driver string   `yaml:"driver"`
	Steps  []string `yaml:"steps"`
}

type ProjectsFetcher struct {
	Gitlab *gitlab.Client
	Logger *zap.Logger
}

func NewProjectsFetcher(baseURL, token string, logger *zap.Logger) (*ProjectsFetcher, error) {
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create gitlab client")
	}
	return &ProjectsFetcher{Gitlab: client, Logger: logger}, nil
}

func (f *ProjectsFetcher) FetchProject(ctx context.Context, name string) (*models.Project, error) {
	log := f.Logger.With(lf.ProjectName(name))

	project, resp, err := f.Gitlab.Projects.GetProject(name, &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		log.Info("Project was not found")
		return nil, &base.ProjectNotFoundError{Name: name}
	} else if err != nil {
		log.Error("Failed to get project", zap.Error(err))
		return nil, errors.Wrap(err, "Failed to get project")
	}

	result := models.Project{
		Name:   name,
		Source: project.HTTPURLToRepo,
	}

	override, err := f.fetchConfig(ctx, project)
	if err != nil {
		log.Warn("Failed to read project config, using defaults", zap.Error(err))
	} else if override != nil {
		result.Driver = override.Driver
		result.Steps = override.Steps
	}

	return base.Normalize(result)
}

func (f *ProjectsFetcher) fetchConfig(ctx context.Context, project *gitlab.Project) (*projectConfig, error) {
	if project.DefaultBranch == "" {
		return nil, nil
	}

	raw, resp, err := f.Gitlab.RepositoryFiles.GetRawFile(project.ID, ProjectConfigFile, &gitlab.GetRawFileOptions{
		Ref: gitlab.String(project.DefaultBranch),
	}, gitlab.WithContext(ctx))
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "Failed to get project config")
	}

	config := &projectConfig{}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, errors.Wrap(err, "Failed to unmarshal project config")
	}
	return config, nil
}

var _ base.ProjectsFetcher = (*ProjectsFetcher)(nil)
