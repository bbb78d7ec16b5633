package api

// Projections of builds that are safe to show to whoever hits a preview
// hostname: no step outputs, no source location.

type StepView struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Logs   []string `json:"logs"`
	Status string   `json:"status"`
}

type BuildView struct {
	ID          string     `json:"id"`
	Hostname    string     `json:"hostname"`
	ProjectName string     `json:"project_name"`
	Version     string     `json:"version"`
	Status      string     `json:"status"`
	Steps       []StepView `json:"steps"`
}

type Event struct {
	Kind  string    `json:"kind"`
	Build BuildView `json:"build"`
	Step  *StepView `json:"step,omitempty"`
	Line  string    `json:"line,omitempty"`
}
