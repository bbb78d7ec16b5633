package notify

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/api"
	"github.com/bigredeye/cqa/internal/events"
	lf "github.com/bigredeye/cqa/internal/logfield"
)

const subscriptionBuffer = 64

type Subscription struct {
	hostname string
	C        <-chan api.Event

	ch     chan api.Event
	closed bool
}

// Hub fans build events out to the watchers of a preview hostname.
// Slow watchers lose events instead of stalling the pipeline.
type Hub struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}

	active    atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("notify"),
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) Attach(bus *events.Bus) {
	bus.SubscribeAll(h.Handle)
}

func (h *Hub) Subscribe(hostname string) *Subscription {
	ch := make(chan api.Event, subscriptionBuffer)
	sub := &Subscription{hostname: hostname, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[hostname] == nil {
		h.subs[hostname] = make(map[*Subscription]struct{})
	}
	h.subs[hostname][sub] = struct{}{}
	h.active.Inc()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked(sub)
}

func (h *Hub) closeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	h.active.Dec()

	subs := h.subs[sub.hostname]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, sub.hostname)
	}
}

// Handle delivers one bus event. build.finished closes every watcher of the hostname.
func (h *Hub) Handle(event events.Event) {
	if event.Build == nil {
		return
	}
	message := Sanitize(event)

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[event.Build.Hostname] {
		select {
		case sub.ch <- message:
			h.delivered.Inc()
		default:
			h.dropped.Inc()
			h.logger.Debug("Dropped event for slow watcher",
				lf.Hostname(event.Build.Hostname),
				zap.String("kind", string(event.Kind)),
			)
		}
	}

	if event.Kind == events.BuildFinished {
		for sub := range h.subs[event.Build.Hostname] {
			h.closeLocked(sub)
		}
	}
}

func Sanitize(event events.Event) api.Event {
	message := api.Event{
		Kind:  string(event.Kind),
		Build: event.Build.View(),
		Line:  event.Line,
	}
	if event.Step != nil {
		step := event.Step.View()
		message.Step = &step
	}
	return message
}

type Stats struct {
	Active    int64
	Delivered int64
	Dropped   int64
}

func (h *Hub) Stats() Stats {
	return Stats{
		Active:    h.active.Load(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}
