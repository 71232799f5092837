// Package events fans route change events out to stream subscribers.
package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
)

// AllRoutes subscribes to events of every route.
const AllRoutes int64 = 0

// Broker delivers route events to subscribers of the event's route and to
// AllRoutes subscribers. Delivery is best-effort: a full subscriber buffer drops the event.
type Broker interface {
	Subscribe(routeID int64) chan model.RouteEvent
	Unsubscribe(routeID int64, ch chan model.RouteEvent)
	Publish(ctx context.Context, evt model.RouteEvent) error
}

// Memory is an in-process Broker.
type Memory struct {
	mu   sync.Mutex
	subs map[int64]map[chan model.RouteEvent]struct{}
	log  logrus.FieldLogger
}

func NewMemory() *Memory {
	return &Memory{subs: map[int64]map[chan model.RouteEvent]struct{}{}, log: logrus.StandardLogger()}
}

// WithLogger sets the logger used to report dropped events.
func (b *Memory) WithLogger(log logrus.FieldLogger) *Memory {
	if log != nil {
		b.log = log
	}
	return b
}

func (b *Memory) Subscribe(routeID int64) chan model.RouteEvent {
	ch := make(chan model.RouteEvent, 8)
	b.mu.Lock()
	if b.subs[routeID] == nil {
		b.subs[routeID] = map[chan model.RouteEvent]struct{}{}
	}
	b.subs[routeID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(routeID int64, ch chan model.RouteEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[routeID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, routeID)
	}
	close(ch)
}

func (b *Memory) Publish(_ context.Context, evt model.RouteEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver(evt.RouteID, evt)
	if evt.RouteID != AllRoutes {
		b.deliver(AllRoutes, evt)
	}
	return nil
}

func (b *Memory) deliver(routeID int64, evt model.RouteEvent) {
	for ch := range b.subs[routeID] {
		select {
		case ch <- evt:
		default:
			metrics.EventsDropped.WithLabelValues("memory").Inc()
			b.log.WithFields(logrus.Fields{"event": evt.Type, "event_id": evt.ID, "route_id": evt.RouteID}).
				Warn("subscriber buffer full, route event dropped")
		}
	}
}

var (
	_ Broker = (*Memory)(nil)
	_ Broker = (*Redis)(nil)
)
