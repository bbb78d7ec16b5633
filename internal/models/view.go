package models

import "github.com/bigredeye/cqa/api"

func (s *Step) View() api.StepView {
	logs := make([]string, len(s.Logs))
	copy(logs, s.Logs)
	return api.StepView{
		ID:     s.ID,
		Name:   s.Name,
		Logs:   logs,
		Status: s.Status,
	}
}

func (b *Build) View() api.BuildView {
	steps := make([]api.StepView, 0, len(b.Steps))
	for _, step := range b.Steps {
		steps = append(steps, step.View())
	}
	return api.BuildView{
		ID:          b.ID,
		Hostname:    b.Hostname,
		ProjectName: b.Project.Name,
		Version:     b.Version,
		Status:      b.Status,
		Steps:       steps,
	}
}
