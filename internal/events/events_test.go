package events

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigredeye/cqa/internal/models"
)

func TestHandlersRunInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var calls []string
	bus.Subscribe(BuildFinished, func(Event) { calls = append(calls, "store") })
	bus.SubscribeAll(func(e Event) { calls = append(calls, "notify:"+string(e.Kind)) })
	bus.Subscribe(BuildFinished, func(Event) { calls = append(calls, "teardown") })

	bus.Publish(Event{Kind: BuildFinished, Build: models.NewBuild("h", models.Project{}, "v1")})
	bus.Publish(Event{Kind: BuildCreated, Build: models.NewBuild("h", models.Project{}, "v1")})

	expected := []string{"store", "notify:build.finished", "teardown", "notify:build.created"}
	if diff := cmp.Diff(expected, calls); diff != "" {
		t.Errorf("Unexpected calls (-want +got):\n%s", diff)
	}
}

func TestPublishSendsSnapshots(t *testing.T) {
	bus := NewBus()
	var got *models.Build
	bus.Subscribe(BuildStepStarted, func(e Event) { got = e.Build })

	build := models.NewBuild("h", models.Project{}, "v1")
	step := models.NewStep("git.clone")
	build.AddStep(step)
	bus.Publish(Event{Kind: BuildStepStarted, Build: build, Step: step})

	step.Status = models.StepStatusFailed
	build.AddStep(models.NewStep("docker.build"))

	if len(got.Steps) != 1 || got.Steps[0].Status != models.StepStatusRunning {
		t.Errorf("Handler observed later mutations: %+v", got.Steps)
	}
}
