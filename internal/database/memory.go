package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bigredeye/cqa/internal/models"
)

type buildKey struct {
	projectName string
	version     string
}

type Memory struct {
	mu       sync.Mutex
	builds   map[string]*models.Build
	history  map[buildKey][]string
	accesses map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		builds:   make(map[string]*models.Build),
		history:  make(map[buildKey][]string),
		accesses: make(map[string]time.Time),
	}
}

func (m *Memory) FindLastBuild(ctx context.Context, projectName, version string) (*models.Build, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *models.Build
	for _, id := range m.history[buildKey{projectName, version}] {
		build := m.builds[id]
		if last == nil || !build.CreatedAt.Before(last.CreatedAt) {
			last = build
		}
	}
	return last.Clone(), nil
}

func (m *Memory) FindBuildsByStatus(ctx context.Context, status string) ([]*models.Build, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var builds []*models.Build
	for _, build := range m.builds {
		if build.Status == status {
			builds = append(builds, build.Clone())
		}
	}
	sort.Slice(builds, func(i, j int) bool {
		return builds[i].CreatedAt.Before(builds[j].CreatedAt)
	})
	return builds, nil
}

func (m *Memory) StoreBuild(ctx context.Context, build *models.Build) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.builds[build.ID]; !found {
		key := buildKey{build.Project.Name, build.Version}
		m.history[key] = append(m.history[key], build.ID)
	}
	m.builds[build.ID] = build.Clone()
	return nil
}

func (m *Memory) LastAccessTime(ctx context.Context, buildID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accesses[buildID], nil
}

func (m *Memory) StoreLastAccessTime(ctx context.Context, buildID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.After(m.accesses[buildID]) {
		m.accesses[buildID] = at
	}
	return nil
}
