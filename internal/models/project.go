package models

const (
	DriverDocker = "docker"
)

// Default pipeline for projects whose metadata does not list any step.
var DefaultSteps = []string{"git.clone", "docker.build", "docker.start"}

// Project is owned by the metadata service; builds keep a snapshot of it.
type Project struct {
	Name   string   `json:"name" yaml:"name"`
	Source string   `json:"source" yaml:"source"`
	Driver string   `json:"driver" yaml:"driver"`
	Steps  []string `json:"steps" yaml:"steps"`
}

// WithDefaults fills driver and steps when the metadata left them empty.
func (p Project) WithDefaults() Project {
	if p.Driver == "" {
		p.Driver = DriverDocker
	}
	if len(p.Steps) == 0 {
		p.Steps = append([]string(nil), DefaultSteps...)
	}
	return p
}
