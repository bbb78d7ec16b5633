package executors

import (
	"context"

	"github.com/bigredeye/cqa/internal/docker"
	"github.com/bigredeye/cqa/internal/models"
)

// StackDriver is what the docker steps need from the container driver.
type StackDriver interface {
	Build(ctx context.Context, path, tag string, labels map[string]string, logf docker.LogFunc) error
	Start(ctx context.Context, name, tag string, labels map[string]string, logf docker.LogFunc) (*docker.Stack, error)
}

func DockerBuildExecutor(driver StackDriver) Executor {
	return ExecutorFunc(func(ctx context.Context, build *models.Build, logf LogFunc) (models.StepOutput, error) {
		path, err := playedOutput(build, GitClone, "path")
		if err != nil {
			return nil, err
		}
		tag := docker.ImageTag(build.Project.Name, build.Version)
		err = driver.Build(ctx, path, tag, docker.StackLabels(build.Project.Name, build.Version), docker.LogFunc(logf))
		if err != nil {
			return nil, err
		}
		return models.StepOutput{"tag": tag}, nil
	})
}

func DockerStartExecutor(driver StackDriver) Executor {
	return ExecutorFunc(func(ctx context.Context, build *models.Build, logf LogFunc) (models.StepOutput, error) {
		tag, err := playedOutput(build, DockerBuild, "tag")
		if err != nil {
			return nil, err
		}
		labels := docker.StackLabels(build.Project.Name, build.Version)
		stack, err := driver.Start(ctx, docker.ContainerName(build.ID), tag, labels, docker.LogFunc(logf))
		if err != nil {
			return nil, err
		}
		return models.StepOutput{
			"container": stack.ContainerID,
			"network":   stack.NetworkID,
		}, nil
	})
}

// NewDefaultRegistry registers every step a project may list.
func NewDefaultRegistry(clone *GitCloneExecutor, driver StackDriver) *Registry {
	registry := NewRegistry()
	registry.Register(GitClone, clone)
	registry.Register(DockerBuild, DockerBuildExecutor(driver))
	registry.Register(DockerStart, DockerStartExecutor(driver))
	return registry
}
