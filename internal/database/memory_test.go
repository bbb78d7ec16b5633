package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/events"
	"github.com/bigredeye/cqa/internal/models"
)

var (
	_ Store = (*Memory)(nil)
	_ Store = (*DataBase)(nil)
)

func TestMemoryReturnsMostRecentBuild(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	project := models.Project{Name: "nir/cqa-dummy-repo"}

	if build, err := store.FindLastBuild(ctx, project.Name, "v1"); err != nil || build != nil {
		t.Fatalf("Expected no build, got %v, %v", build, err)
	}

	first := models.NewBuild("v1.cqa-dummy-repo.nir.cqa", project, "v1")
	first.CreatedAt = time.Unix(100, 0)
	second := models.NewBuild("v1.cqa-dummy-repo.nir.cqa", project, "v1")
	second.CreatedAt = time.Unix(200, 0)
	other := models.NewBuild("v2.cqa-dummy-repo.nir.cqa", project, "v2")
	other.CreatedAt = time.Unix(300, 0)

	for _, build := range []*models.Build{second, first, other} {
		if err := store.StoreBuild(ctx, build); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.FindLastBuild(ctx, project.Name, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("Unexpected build (-want +got):\n%s", diff)
	}
}

func TestMemoryStoresCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	build := models.NewBuild("h", models.Project{Name: "o/p"}, "v1")
	if err := store.StoreBuild(ctx, build); err != nil {
		t.Fatal(err)
	}

	build.AddStep(models.NewStep("git.clone"))
	got, _ := store.FindLastBuild(ctx, "o/p", "v1")
	if len(got.Steps) != 0 {
		t.Fatal("Store aliases the caller's build")
	}

	got.Status = models.BuildStatusFailed
	again, _ := store.FindLastBuild(ctx, "o/p", "v1")
	if again.Status != models.BuildStatusCreated {
		t.Fatal("Store aliases the returned build")
	}

	if err := store.StoreBuild(ctx, build); err != nil {
		t.Fatal(err)
	}
	got, _ = store.FindLastBuild(ctx, "o/p", "v1")
	if len(got.Steps) != 1 {
		t.Errorf("Update was not stored: %+v", got)
	}
}

func TestMemoryAccessTime(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	at, err := store.LastAccessTime(ctx, "missing")
	if err != nil || !at.IsZero() {
		t.Fatalf("Expected zero time, got %v, %v", at, err)
	}

	now := time.Unix(1000, 0)
	_ = store.StoreLastAccessTime(ctx, "b", now)
	_ = store.StoreLastAccessTime(ctx, "b", now.Add(-time.Minute))

	at, _ = store.LastAccessTime(ctx, "b")
	if !at.Equal(now) {
		t.Errorf("Access time went back: %v", at)
	}
}

func TestPersistStoresEverySnapshot(t *testing.T) {
	bus := events.NewBus()
	store := NewMemory()
	Persist(bus, store, zap.NewNop())

	var observed string
	bus.Subscribe(events.BuildFinished, func(event events.Event) {
		stored, err := store.FindLastBuild(context.Background(), "owner/repo", "v1")
		if err != nil || stored == nil {
			t.Errorf("Build is not stored before other consumers run: %v", err)
			return
		}
		observed = stored.Status
	})

	build := models.NewBuild("v1.repo.owner.cqa", models.Project{Name: "owner/repo"}, "v1")
	bus.Publish(events.Event{Kind: events.BuildCreated, Build: build})
	if err := build.SetStatus(models.BuildStatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := build.SetStatus(models.BuildStatusFailed); err != nil {
		t.Fatal(err)
	}
	bus.Publish(events.Event{Kind: events.BuildFinished, Build: build})

	if observed != models.BuildStatusFailed {
		t.Errorf("Unexpected stored status %q", observed)
	}
}

func TestMemoryFindsBuildsByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	project := models.Project{Name: "o/p"}

	late := models.NewBuild("v1.p.o.cqa", project, "v1")
	late.CreatedAt = time.Unix(200, 0)
	late.Status = models.BuildStatusSucceeded
	early := models.NewBuild("v2.p.o.cqa", project, "v2")
	early.CreatedAt = time.Unix(100, 0)
	early.Status = models.BuildStatusSucceeded
	stopped := models.NewBuild("v3.p.o.cqa", project, "v3")
	stopped.Status = models.BuildStatusStopped

	for _, build := range []*models.Build{late, stopped, early} {
		if err := store.StoreBuild(ctx, build); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.FindBuildsByStatus(ctx, models.BuildStatusSucceeded)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]*models.Build{early, late}, got); diff != "" {
		t.Errorf("Unexpected builds (-want +got):\n%s", diff)
	}

	got, _ = store.FindBuildsByStatus(ctx, models.BuildStatusFailed)
	if len(got) != 0 {
		t.Errorf("Unexpected failed builds %v", got)
	}
}
