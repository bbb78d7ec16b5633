package events

import (
	"sync"

	"github.com/bigredeye/cqa/internal/models"
)

type Kind string

const (
	BuildCreated      Kind = "build.created"
	BuildStepStarted  Kind = "build.step_started"
	BuildStepLogs     Kind = "build.step_logs"
	BuildStepFinished Kind = "build.step_finished"
	BuildFinished     Kind = "build.finished"
)

var AllKinds = []Kind{BuildCreated, BuildStepStarted, BuildStepLogs, BuildStepFinished, BuildFinished}

// Event carries snapshots: handlers may keep them, the pipeline keeps mutating
// its own copy of the build.
type Event struct {
	Kind  Kind
	Build *models.Build
	Step  *models.Step
	Line  string
}

type Handler func(Event)

// Bus delivers every event to the handlers of its kind synchronously and in
// subscription order. Handlers doing long work must spawn a goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

func (b *Bus) SubscribeAll(handler Handler) {
	for _, kind := range AllKinds {
		b.Subscribe(kind, handler)
	}
}

func (b *Bus) Publish(event Event) {
	event.Build = event.Build.Clone()
	event.Step = event.Step.Clone()

	b.mu.RLock()
	handlers := b.handlers[event.Kind]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
