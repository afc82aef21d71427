package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// Event types published after a ranking service mutation was observed
const (
	EventGameSubmitted  = "game:submitted"
	EventPlayerAdded    = "player:added"
	EventPlayerDeleted  = "player:deleted"
	EventRegionAdded    = "region:added"
	EventOperatorLogin  = "operator:login"
	EventOperatorLogout = "operator:logout"
)

// Event represents a pubsub event
type Event struct {
	Type    string                 `json:"type"`
	At      time.Time              `json:"at"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current time
func NewEvent(typ string, payload map[string]interface{}) Event {
	return Event{Type: typ, At: time.Now().UTC(), Payload: payload}
}

// Bus is implemented by the in-process PubSub and the NATS backends
type Bus interface {
	Publish(Event)
	Subscribe() chan Event
	Unsubscribe(chan Event)
}

// Upstream is a Bus that fans events out to other instances (e.g., NATS)
type Upstream = Bus

// PubSub implements a simple publish-subscribe system
type PubSub struct {
	fan      fanout
	upstream Upstream
}

// New creates a new PubSub instance
func New() *PubSub {
	return &PubSub{fan: fanout{buffer: 10}}
}

// NewWithUpstream creates a PubSub that bridges to an upstream publisher.
// Published events go to the upstream, which broadcasts them back to every
// instance, this one included.
func NewWithUpstream(upstream Upstream) *PubSub {
	ps := &PubSub{fan: fanout{buffer: 10}, upstream: upstream}

	ch := upstream.Subscribe()
	go func() {
		for event := range ch {
			ps.fan.broadcast(event)
		}
		logger.Debug("PubSub: Upstream channel closed")
	}()

	return ps
}

// Subscribe adds a new subscriber and returns a channel for receiving events
func (ps *PubSub) Subscribe() chan Event {
	return ps.fan.subscribe()
}

// Unsubscribe removes a subscriber and closes its channel
func (ps *PubSub) Unsubscribe(ch chan Event) {
	ps.fan.unsubscribe(ch)
}

// Publish sends an event to all subscribers, through the upstream when set
func (ps *PubSub) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if ps.upstream != nil {
		ps.upstream.Publish(event)
		return
	}
	ps.fan.broadcast(event)
}

// SubscriberCount returns the number of local subscribers
func (ps *PubSub) SubscriberCount() int {
	return ps.fan.count()
}

// Listen calls handle for every event of the given types (all when none are
// given) until ctx is done.
func Listen(ctx context.Context, bus Bus, handle func(Event), types ...string) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if len(want) == 0 || want[event.Type] {
				handle(event)
			}
		}
	}
}

// fanout delivers events to buffered subscriber channels without blocking;
// a full channel misses the event.
type fanout struct {
	mu     sync.RWMutex
	subs   []chan Event
	buffer int
}

func (f *fanout) subscribe() chan Event {
	ch := make(chan Event, f.buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	n := len(f.subs)
	f.mu.Unlock()
	logger.Debug("PubSub: New subscriber added", "totalSubscribers", n)
	return ch
}

func (f *fanout) unsubscribe(ch chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == ch {
			close(ch)
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

func (f *fanout) broadcast(event Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
			logger.Warn("PubSub: Skipping slow subscriber", "type", event.Type)
		}
	}
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
