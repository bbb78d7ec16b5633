package static

import (
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/platform/base"
)

// Reserved name that no catalog resolves.
const UnknownProject = "not/found"

const DefaultSourcePrefix = "https://github.com/"

type Catalog struct {
	// Strict catalogs only know the listed projects.
	Strict   bool             `yaml:"strict"`
	Projects []models.Project `yaml:"projects"`

	index map[string]*models.Project
}

func parseCatalog(body []byte) (*Catalog, error) {
	catalog := &Catalog{}
	if err := yaml.UnmarshalStrict(body, catalog); err != nil {
		return nil, errors.Wrap(err, "Failed to unmarshal project catalog")
	}

	catalog.index = make(map[string]*models.Project, len(catalog.Projects))
	for _, project := range catalog.Projects {
		normalized, err := base.Normalize(project)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid project catalog")
		}
		if _, found := catalog.index[normalized.Name]; found {
			return nil, errors.Errorf("Duplicate project %s in catalog", normalized.Name)
		}
		catalog.index[normalized.Name] = normalized
	}
	return catalog, nil
}

func (c *Catalog) Lookup(name string) (*models.Project, bool) {
	if name == UnknownProject {
		return nil, false
	}
	if project, found := c.index[name]; found {
		copied := *project
		copied.Steps = append([]string(nil), project.Steps...)
		return &copied, true
	}
	if c.Strict {
		return nil, false
	}

	project, err := base.Normalize(models.Project{
		Name:   name,
		Source: DefaultSourcePrefix + name,
	})
	if err != nil {
		return nil, false
	}
	return project, true
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func fetch(source string) (*Catalog, error) {
	if source == "" {
		return parseCatalog(nil)
	}

	if !isURL(source) {
		body, err := os.ReadFile(source)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to read project catalog")
		}
		return parseCatalog(body)
	}

	resp, err := resty.New().
		SetTimeout(time.Second * 10).
		SetRetryCount(3).
		R().
		Get(source)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to fetch project catalog")
	}
	if resp.IsError() {
		return nil, errors.Errorf("Failed to fetch project catalog: %s", resp.Status())
	}
	return parseCatalog(resp.Body())
}
