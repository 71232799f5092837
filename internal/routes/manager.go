// Package routes implements route management and the enriched route queries.
package routes

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"flagroutes/internal/apperr"
	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
	"flagroutes/internal/store"
)

// Publisher receives route change events after a mutation commits.
type Publisher interface {
	Publish(ctx context.Context, evt model.RouteEvent) error
}

// Manager owns route CRUD and client assignment.
type Manager struct {
	store store.Store
	pub   Publisher
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewManager wires a Manager. pub may be nil when nobody listens for changes.
func NewManager(s store.Store, pub Publisher, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{store: s, pub: pub, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (m *Manager) CreateRoute(ctx context.Context, name, description string) (id int64, err error) {
	defer m.observe("create", &err)
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, apperr.Validation("name", "is required")
	}
	id, err = m.store.CreateRoute(ctx, name, description, m.now())
	if err != nil {
		return 0, apperr.Persistence("create route", err)
	}
	if id <= 0 {
		return 0, apperr.Persistence("create route", nil)
	}
	m.log.WithFields(logrus.Fields{"route_id": id, "name": name}).Info("route created")
	m.publish(ctx, model.RouteEvent{Type: model.EventRouteCreated, RouteID: id, Data: map[string]any{"name": name}})
	return id, nil
}

func (m *Manager) GetRoute(ctx context.Context, id int64) (model.Route, error) {
	if id <= 0 {
		return model.Route{}, apperr.Validation("id", "must be positive")
	}
	r, err := m.store.GetRoute(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Route{}, apperr.NotFound("route", id)
	}
	if err != nil {
		return model.Route{}, apperr.Persistence("get route", err)
	}
	return r, nil
}

// UpdateRoute renames a route and refreshes its updated timestamp. A missing
// route is reported as NotFound.
func (m *Manager) UpdateRoute(ctx context.Context, id int64, name, description string) (err error) {
	defer m.observe("update", &err)
	if id <= 0 {
		return apperr.Validation("id", "must be positive")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Validation("name", "is required")
	}
	err = m.store.UpdateRoute(ctx, id, name, description, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("route", id)
	}
	if err != nil {
		return apperr.Persistence("update route", err)
	}
	m.log.WithFields(logrus.Fields{"route_id": id, "name": name}).Info("route updated")
	m.publish(ctx, model.RouteEvent{Type: model.EventRouteUpdated, RouteID: id, Data: map[string]any{"name": name}})
	return nil
}

// DeleteRoute removes the route and all its assignments atomically. Deleting
// an absent route succeeds.
func (m *Manager) DeleteRoute(ctx context.Context, id int64) (err error) {
	defer m.observe("delete", &err)
	if id <= 0 {
		return apperr.Validation("id", "must be positive")
	}
	if err = m.store.DeleteRoute(ctx, id); err != nil {
		return apperr.Persistence("delete route", err)
	}
	m.log.WithField("route_id", id).Info("route deleted")
	m.publish(ctx, model.RouteEvent{Type: model.EventRouteDeleted, RouteID: id})
	return nil
}

// AssignClient is idempotent: assigning an existing pair succeeds without a write.
func (m *Manager) AssignClient(ctx context.Context, clientID, routeID int64) (err error) {
	defer m.observe("assign", &err)
	if err = validIDs(clientID, routeID); err != nil {
		return err
	}
	created, err := m.store.AssignClient(ctx, clientID, routeID, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("route", routeID)
	}
	if err != nil {
		return apperr.Persistence("assign client", err)
	}
	log := m.log.WithFields(logrus.Fields{"client_id": clientID, "route_id": routeID})
	if !created {
		log.Debug("client already assigned to route")
		return nil
	}
	log.Info("client assigned to route")
	m.publish(ctx, model.RouteEvent{Type: model.EventClientAssigned, RouteID: routeID, ClientID: clientID})
	return nil
}

// RemoveClient drops one assignment when routeID is set, otherwise every
// assignment of the client. Removing nothing succeeds.
func (m *Manager) RemoveClient(ctx context.Context, clientID int64, routeID *int64) (err error) {
	defer m.observe("remove", &err)
	if routeID == nil {
		if err = validIDs(clientID); err != nil {
			return err
		}
		// Collect the affected routes first so each one gets its event.
		as, err := m.store.ClientAssignments(ctx, clientID)
		if err != nil {
			return apperr.Persistence("remove client", err)
		}
		n, err := m.store.RemoveClientFromAll(ctx, clientID)
		if err != nil {
			return apperr.Persistence("remove client", err)
		}
		m.log.WithFields(logrus.Fields{"client_id": clientID, "removed": n}).Info("client removed from all routes")
		for _, a := range as {
			m.publish(ctx, model.RouteEvent{Type: model.EventClientRemoved, RouteID: a.RouteID, ClientID: clientID})
		}
		return nil
	}

	if err = validIDs(clientID, *routeID); err != nil {
		return err
	}
	n, err := m.store.RemoveClient(ctx, clientID, *routeID)
	if err != nil {
		return apperr.Persistence("remove client", err)
	}
	m.log.WithFields(logrus.Fields{"client_id": clientID, "route_id": *routeID, "removed": n}).Info("client removed from route")
	if n > 0 {
		m.publish(ctx, model.RouteEvent{Type: model.EventClientRemoved, RouteID: *routeID, ClientID: clientID})
	}
	return nil
}

// ClientRoute returns the client's earliest assignment.
func (m *Manager) ClientRoute(ctx context.Context, clientID int64) (int64, bool, error) {
	as, err := m.ClientRoutes(ctx, clientID)
	if err != nil || len(as) == 0 {
		return 0, false, err
	}
	return as[0].RouteID, true, nil
}

// ClientRoutes lists every assignment of the client, earliest first.
func (m *Manager) ClientRoutes(ctx context.Context, clientID int64) ([]model.Assignment, error) {
	if err := validIDs(clientID); err != nil {
		return nil, err
	}
	as, err := m.store.ClientAssignments(ctx, clientID)
	if err != nil {
		return nil, apperr.Persistence("client routes", err)
	}
	return as, nil
}

func (m *Manager) observe(op string, err *error) {
	metrics.RouteMutations.WithLabelValues(op, metrics.Outcome(*err)).Inc()
}

// publish never fails the mutation; it has already committed.
func (m *Manager) publish(ctx context.Context, evt model.RouteEvent) {
	if m.pub == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.TS = m.now()
	err := m.pub.Publish(ctx, evt)
	metrics.EventsPublished.WithLabelValues(evt.Type, metrics.Outcome(err)).Inc()
	if err != nil {
		m.log.WithError(err).WithField("event", evt.Type).Warn("publish route event failed")
	}
}

func validIDs(ids ...int64) error {
	names := []string{"client_id", "route_id"}
	for i, id := range ids {
		if id <= 0 {
			return apperr.Validation(names[i], "must be positive")
		}
	}
	return nil
}
