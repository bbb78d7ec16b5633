package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

const (
	BuildStatusCreated   = "created"
	BuildStatusRunning   = "running"
	BuildStatusSucceeded = "succeeded"
	BuildStatusFailed    = "failed"
	BuildStatusStopped   = "stopped"
)

type BuildStatus = string

var buildTransitions = map[BuildStatus][]BuildStatus{
	BuildStatusCreated:   {BuildStatusRunning},
	BuildStatusRunning:   {BuildStatusSucceeded, BuildStatusFailed},
	BuildStatusSucceeded: {BuildStatusStopped},
}

type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

func IsInvalidTransition(err error) bool {
	_, ok := err.(*InvalidTransitionError)
	return ok
}

// Build is one attempt to bring up the stack of a (project, version).
type Build struct {
	ID        string
	Hostname  string
	Project   Project
	Version   string
	Steps     []*Step
	Status    BuildStatus
	CreatedAt time.Time
}

func NewBuild(hostname string, project Project, version string) *Build {
	return &Build{
		ID:        uuid.New().String(),
		Hostname:  hostname,
		Project:   project,
		Version:   version,
		Steps:     make([]*Step, 0, len(project.Steps)),
		Status:    BuildStatusCreated,
		CreatedAt: time.Now(),
	}
}

func CanTransition(from, to BuildStatus) bool {
	return slices.Contains(buildTransitions[from], to)
}

// SetStatus moves the build forward. Statuses never go back, the only
// transition out of a terminal success is the teardown to stopped.
func (b *Build) SetStatus(status BuildStatus) error {
	if !CanTransition(b.Status, status) {
		return &InvalidTransitionError{From: b.Status, To: status}
	}
	b.Status = status
	return nil
}

func (b *Build) AddStep(step *Step) {
	b.Steps = append(b.Steps, step)
}

// FindStep returns the last played step with the given name.
func (b *Build) FindStep(name string) *Step {
	for i := len(b.Steps) - 1; i >= 0; i-- {
		if b.Steps[i].Name == name {
			return b.Steps[i]
		}
	}
	return nil
}

func (b *Build) HasFailedStep() bool {
	for _, step := range b.Steps {
		if step.Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (b *Build) Clone() *Build {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Project.Steps = slices.Clone(b.Project.Steps)
	clone.Steps = make([]*Step, len(b.Steps))
	for i, step := range b.Steps {
		clone.Steps[i] = step.Clone()
	}
	return &clone
}
