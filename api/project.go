package api

// Project is served by a project metadata service.
type Project struct {
	Name     string   `json:"name"`
	Driver   string   `json:"driver"`
	RepoURL  string   `json:"repoUrl"`
	RepoType string   `json:"repoType"`
	Steps    []string `json:"steps,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
