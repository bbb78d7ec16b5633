package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/database"
	"github.com/bigredeye/cqa/internal/events"
	"github.com/bigredeye/cqa/internal/hostname"
	"github.com/bigredeye/cqa/internal/models"
	"github.com/bigredeye/cqa/internal/platform/base"
)

const host = "v1.repo.owner.cqa"

type fakeProjects struct{}

func (fakeProjects) FetchProject(ctx context.Context, name string) (*models.Project, error) {
	if name == "not/found" {
		return nil, &base.ProjectNotFoundError{Name: name}
	}
	return base.Normalize(models.Project{Name: name, Source: "https://github.com/" + name})
}

type fakeDriver struct {
	mu sync.Mutex
	up bool
}

func (d *fakeDriver) IsUp(ctx context.Context, stackName, version string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up, nil
}

func (d *fakeDriver) Address(ctx context.Context, stackName, version string) (string, error) {
	return "172.18.0.5", nil
}

type env struct {
	router *Router
	store  *database.Memory
	driver *fakeDriver
	clock  clockwork.FakeClock

	mu     sync.Mutex
	events []events.Event
}

func newEnv(t *testing.T) *env {
	t.Helper()
	codec := hostname.NewCodec("cqa", 16)
	t.Cleanup(codec.Stop)

	e := &env{
		store:  database.NewMemory(),
		driver: &fakeDriver{},
		clock:  clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	bus := events.NewBus()
	database.Persist(bus, e.store, zap.NewNop())
	bus.SubscribeAll(func(event events.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.events = append(e.events, event)
	})

	e.router = NewRouter(Options{
		Clock:    e.clock,
		Codec:    codec,
		Projects: fakeProjects{},
		Store:    e.store,
		Driver:   e.driver,
		Bus:      bus,
		Logger:   zap.NewNop(),
	})
	return e
}

func (e *env) count(kind events.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, event := range e.events {
		if event.Kind == kind {
			n++
		}
	}
	return n
}

func (e *env) finish(t *testing.T, status string) *models.Build {
	t.Helper()
	ctx := context.Background()
	build, err := e.store.FindLastBuild(ctx, "owner/repo", "v1")
	if err != nil || build == nil {
		t.Fatalf("No build stored: %v", err)
	}
	if err := build.SetStatus(models.BuildStatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := build.SetStatus(status); err != nil {
		t.Fatal(err)
	}
	if err := e.store.StoreBuild(ctx, build); err != nil {
		t.Fatal(err)
	}
	return build
}

func TestRouteRejectsUnknownTargets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.router.Route(ctx, "localhost"); !hostname.IsInvalidHostname(err) {
		t.Errorf("Expected invalid hostname, got %v", err)
	}
	if _, err := e.router.Route(ctx, "v1.found.not.cqa"); !base.IsProjectNotFound(err) {
		t.Errorf("Expected project not found, got %v", err)
	}
	if e.count(events.BuildCreated) != 0 {
		t.Error("Rejected request created a build")
	}
}

func TestRouteCreatesThenWaits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	decision, err := e.router.Route(ctx, host)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != ActionCreated || decision.Build.Status != models.BuildStatusCreated {
		t.Fatalf("Unexpected decision %v %+v", decision.Action, decision.Build)
	}
	if decision.Build.Hostname != host || decision.Build.Project.Name != "owner/repo" || decision.Build.Version != "v1" {
		t.Errorf("Unexpected build %+v", decision.Build)
	}
	if !decision.Build.CreatedAt.Equal(e.clock.Now()) {
		t.Errorf("Unexpected creation time %v", decision.Build.CreatedAt)
	}

	again, err := e.router.Route(ctx, host)
	if err != nil {
		t.Fatal(err)
	}
	if again.Action != ActionWait || again.Build.ID != decision.Build.ID {
		t.Errorf("Unexpected decision %v for build %s", again.Action, again.Build.ID)
	}

	e.finish(t, models.BuildStatusFailed)
	failed, err := e.router.Route(ctx, host)
	if err != nil {
		t.Fatal(err)
	}
	if failed.Action != ActionWait || failed.Build.Status != models.BuildStatusFailed {
		t.Errorf("Unexpected decision %v %s", failed.Action, failed.Build.Status)
	}
	if e.count(events.BuildCreated) != 1 {
		t.Errorf("Expected one build, got %d", e.count(events.BuildCreated))
	}
}

func TestRouteProxiesRunningStack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.router.Route(ctx, host); err != nil {
		t.Fatal(err)
	}
	build := e.finish(t, models.BuildStatusSucceeded)
	e.driver.up = true

	decision, err := e.router.Route(ctx, host)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != ActionProxy || decision.Address != "172.18.0.5" {
		t.Fatalf("Unexpected decision %v %q", decision.Action, decision.Address)
	}

	e.clock.Advance(time.Minute)
	e.router.Touch(ctx, decision.Build)
	accessed, err := e.store.LastAccessTime(ctx, build.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !accessed.Equal(e.clock.Now()) {
		t.Errorf("Unexpected access time %v", accessed)
	}
}

func TestRouteRetriesAfterExternalDeath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.router.Route(ctx, host); err != nil {
		t.Fatal(err)
	}
	build := e.finish(t, models.BuildStatusSucceeded)

	decision, err := e.router.Route(ctx, host)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Action != ActionRetry {
		t.Fatalf("Unexpected decision %v", decision.Action)
	}

	stored, err := e.store.FindLastBuild(ctx, "owner/repo", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.BuildStatusStopped {
		t.Errorf("Unexpected stored status %s", stored.Status)
	}
	if e.count(events.BuildFinished) != 1 {
		t.Errorf("Expected build.finished, got %d", e.count(events.BuildFinished))
	}

	retried, err := e.router.Route(ctx, host)
	if err != nil {
		t.Fatal(err)
	}
	if retried.Action != ActionCreated || retried.Build.ID == build.ID {
		t.Errorf("Expected a fresh build, got %v %s", retried.Action, retried.Build.ID)
	}
}

func TestRouteCreatesOneBuildPerKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.router.Route(ctx, host); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := e.count(events.BuildCreated); n != 1 {
		t.Errorf("Expected exactly one build, got %d", n)
	}
}

func TestActionString(t *testing.T) {
	for action, expected := range map[Action]string{
		ActionCreated: "created",
		ActionWait:    "wait",
		ActionProxy:   "proxy",
		ActionRetry:   "retry",
		Action(42):    "unknown",
	} {
		if action.String() != expected {
			t.Errorf("Unexpected %d.String() = %s", action, action.String())
		}
	}
}
