package models

import (
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

const (
	StepStatusRunning   = "running"
	StepStatusSucceeded = "succeeded"
	StepStatusFailed    = "failed"
)

type StepStatus = string

// StepOutput is what an executor hands over to the following steps.
type StepOutput map[string]string

type Step struct {
	ID     string
	Name   string
	Logs   []string
	Out    StepOutput
	Status StepStatus
}

func NewStep(name string) *Step {
	return &Step{
		ID:     uuid.New().String(),
		Name:   name,
		Logs:   []string{},
		Out:    StepOutput{},
		Status: StepStatusRunning,
	}
}

func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Logs = slices.Clone(s.Logs)
	if s.Out != nil {
		clone.Out = make(StepOutput, len(s.Out))
		for k, v := range s.Out {
			clone.Out[k] = v
		}
	}
	return &clone
}
