package executors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bigredeye/cqa/internal/models"
)

const (
	GitClone    = "git.clone"
	DockerBuild = "docker.build"
	DockerStart = "docker.start"
)

// LogFunc appends one line to the log of the running step.
type LogFunc func(line string)

// Executor plays one step of a build. It may read the outputs of the steps
// played before it but must not modify the build.
type Executor interface {
	Execute(ctx context.Context, build *models.Build, logf LogFunc) (models.StepOutput, error)
}

type ExecutorFunc func(ctx context.Context, build *models.Build, logf LogFunc) (models.StepOutput, error)

func (f ExecutorFunc) Execute(ctx context.Context, build *models.Build, logf LogFunc) (models.StepOutput, error) {
	return f(ctx, build, logf)
}

type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

func (r *Registry) Register(name string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = executor
}

func (r *Registry) Lookup(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, found := r.executors[name]
	return executor, found
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type MissingStepError struct {
	Step string
}

func (e *MissingStepError) Error() string {
	return fmt.Sprintf("step %q has to be played first", e.Step)
}

// playedOutput returns the output of the last successful step with the given name.
func playedOutput(build *models.Build, name, key string) (string, error) {
	step := build.FindStep(name)
	if step == nil || step.Status != models.StepStatusSucceeded || step.Out[key] == "" {
		return "", &MissingStepError{Step: name}
	}
	return step.Out[key], nil
}
