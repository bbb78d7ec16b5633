package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/events"
	lf "github.com/bigredeye/cqa/internal/logfield"
)

// Persist stores the build snapshot of every lifecycle event. Subscribe it
// before any other consumer so that they observe what is already stored.
func Persist(bus *events.Bus, store Store, logger *zap.Logger) {
	logger = logger.Named("persist")
	bus.SubscribeAll(func(event events.Event) {
		if event.Build == nil {
			return
		}
		if err := store.StoreBuild(context.Background(), event.Build); err != nil {
			logger.Error("Failed to store build",
				lf.BuildID(event.Build.ID),
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)
		}
	})
}
