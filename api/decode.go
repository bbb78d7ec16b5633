package api

type DecodeResponse struct {
	Owner       string `json:"owner"`
	Project     string `json:"project"`
	ProjectName string `json:"project_name"`
	Version     string `json:"version"`
}
