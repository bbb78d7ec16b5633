package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/platform/base"
)

func TestFetchProject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.EscapedPath() {
		case "/api/projects/octo%2Fcat":
			_, _ = w.Write([]byte(`{"name":"octo/cat","driver":"docker","repoUrl":"https://github.com/octo/cat","repoType":"git"}`))
		case "/api/projects/octo%2Fsvn":
			_, _ = w.Write([]byte(`{"name":"octo/svn","driver":"docker","repoUrl":"svn://example.com/octo","repoType":"svn"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fetcher, err := NewProjectsFetcher(server.URL, "", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	project, err := fetcher.FetchProject(ctx, "octo/cat")
	if err != nil {
		t.Fatal(err)
	}
	if project.Source != "https://github.com/octo/cat" || project.Driver != models.DriverDocker {
		t.Errorf("Unexpected project %+v", project)
	}
	if len(project.Steps) != len(models.DefaultSteps) {
		t.Errorf("Expected default steps, got %v", project.Steps)
	}

	if _, err := fetcher.FetchProject(ctx, "not/found"); !base.IsProjectNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := fetcher.FetchProject(ctx, "octo/svn"); err == nil {
		t.Error("Expected unsupported repository type to fail")
	}
}
