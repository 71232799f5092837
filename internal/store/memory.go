package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"flagroutes/internal/model"
)

// Memory is a simple in-memory store used when no database is configured and in tests.
// Billing-side records are seeded with the Put* helpers.
type Memory struct {
	mu          sync.Mutex
	routes      map[int64]model.Route
	assignments []model.Assignment
	nextRouteID int64
	nextAssign  int64

	clients  map[int64]model.Client
	groups   map[int64]model.ClientGroup
	products map[int64]model.Product
	orders   map[int64]model.Order
	addons   map[int64][]model.Addon // order id -> addons
}

func NewMemory() *Memory {
	return &Memory{
		routes:   map[int64]model.Route{},
		clients:  map[int64]model.Client{},
		groups:   map[int64]model.ClientGroup{},
		products: map[int64]model.Product{},
		orders:   map[int64]model.Order{},
		addons:   map[int64][]model.Addon{},
	}
}

func (m *Memory) PutClient(c model.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

func (m *Memory) PutGroup(g model.ClientGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
}

func (m *Memory) PutProduct(p model.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) PutOrder(o model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *Memory) PutAddon(a model.Addon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addons[a.OrderID] = append(m.addons[a.OrderID], a)
}

func (m *Memory) ListRoutes(ctx context.Context) ([]model.RouteWithCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RouteWithCount, 0, len(m.routes))
	for _, r := range m.routes {
		seen := map[int64]struct{}{}
		for _, a := range m.assignments {
			if a.RouteID == r.ID {
				seen[a.ClientID] = struct{}{}
			}
		}
		out = append(out, model.RouteWithCount{ID: r.ID, Name: r.Name, Description: r.Description, ClientCount: len(seen)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetRoute(ctx context.Context, id int64) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) CreateRoute(ctx context.Context, name, description string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRouteID++
	id := m.nextRouteID
	m.routes[id] = model.Route{ID: id, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	return id, nil
}

func (m *Memory) UpdateRoute(ctx context.Context, id int64, name, description string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return ErrNotFound
	}
	r.Name = name
	r.Description = description
	r.UpdatedAt = now
	m.routes[id] = r
	return nil
}

func (m *Memory) DeleteRoute(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.RouteID != id {
			kept = append(kept, a)
		}
	}
	m.assignments = kept
	delete(m.routes, id)
	return nil
}

func (m *Memory) AssignClient(ctx context.Context, clientID, routeID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[routeID]; !ok {
		return false, ErrNotFound
	}
	for _, a := range m.assignments {
		if a.ClientID == clientID && a.RouteID == routeID {
			return false, nil
		}
	}
	m.nextAssign++
	m.assignments = append(m.assignments, model.Assignment{ID: m.nextAssign, ClientID: clientID, RouteID: routeID, CreatedAt: now})
	return true, nil
}

func (m *Memory) RemoveClient(ctx context.Context, clientID, routeID int64) (int64, error) {
	return m.removeWhere(func(a model.Assignment) bool { return a.ClientID == clientID && a.RouteID == routeID }), nil
}

func (m *Memory) RemoveClientFromAll(ctx context.Context, clientID int64) (int64, error) {
	return m.removeWhere(func(a model.Assignment) bool { return a.ClientID == clientID }), nil
}

func (m *Memory) removeWhere(match func(model.Assignment) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if match(a) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.assignments = kept
	return n
}

func (m *Memory) ClientAssignments(ctx context.Context, clientID int64) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Assignment{}
	for _, a := range m.assignments {
		if a.ClientID == clientID {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (m *Memory) RouteClients(ctx context.Context, routeID int64) ([]model.ClientRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ClientRow{}
	for _, a := range m.assignments {
		if a.RouteID != routeID {
			continue
		}
		c, ok := m.clients[a.ClientID]
		if !ok {
			continue
		}
		row := m.clientRow(c)
		at := a.CreatedAt
		row.AssignedAt = &at
		out = append(out, row)
	}
	sortClientRows(out)
	return out, nil
}

func (m *Memory) UnassignedClients(ctx context.Context) ([]model.ClientRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assigned := map[int64]struct{}{}
	for _, a := range m.assignments {
		assigned[a.ClientID] = struct{}{}
	}
	out := []model.ClientRow{}
	for _, c := range m.clients {
		if _, ok := assigned[c.ID]; ok {
			continue
		}
		out = append(out, m.clientRow(c))
	}
	sortClientRows(out)
	return out, nil
}

// clientRow must be called with m.mu held.
func (m *Memory) clientRow(c model.Client) model.ClientRow {
	row := model.ClientRow{ClientID: c.ID, FirstName: c.FirstName, LastName: c.LastName, Email: c.Email}
	if g, ok := m.groups[c.GroupID]; ok {
		row.GroupName = g.Title
	}
	if o, ok := m.latestFlagOrder(c.ID, nil); ok {
		row.FlagOrderID = o.ID
		row.FlagOrderTitle = o.Title
	}
	if o, ok := m.latestFlagOrder(c.ID, ActiveOrderStatuses); ok {
		row.ActiveOrderStatus = o.Status
	}
	return row
}

// latestFlagOrder must be called with m.mu held. A nil statuses slice matches any status.
func (m *Memory) latestFlagOrder(clientID int64, statuses []string) (model.Order, bool) {
	var best model.Order
	found := false
	for _, o := range m.orders {
		if o.ClientID != clientID || !m.isFlagProduct(o.ProductID) {
			continue
		}
		if statuses != nil && !containsString(statuses, o.Status) {
			continue
		}
		if !found || o.CreatedAt.After(best.CreatedAt) || (o.CreatedAt.Equal(best.CreatedAt) && o.ID > best.ID) {
			best = o
			found = true
		}
	}
	return best, found
}

func (m *Memory) isFlagProduct(productID int64) bool {
	p, ok := m.products[productID]
	return ok && strings.Contains(strings.ToLower(p.Title), FlagProductKeyword)
}

func (m *Memory) LatestFlagOrder(ctx context.Context, clientID int64) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.latestFlagOrder(clientID, nil)
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ClientAddress(ctx context.Context, clientID int64) (model.PostalAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return model.PostalAddress{}, ErrNotFound
	}
	return model.PostalAddress{Address1: c.Address1, Address2: c.Address2, City: c.City, State: c.State, Postcode: c.Postcode}, nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) OrderAddons(ctx context.Context, orderID int64) ([]model.Addon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.Addon{}, m.addons[orderID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Install(ctx context.Context) error { return nil }

func (m *Memory) Uninstall(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = map[int64]model.Route{}
	m.assignments = nil
	return nil
}

func sortClientRows(rows []model.ClientRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].LastName != rows[j].LastName {
			return rows[i].LastName < rows[j].LastName
		}
		if rows[i].FirstName != rows[j].FirstName {
			return rows[i].FirstName < rows[j].FirstName
		}
		return rows[i].ClientID < rows[j].ClientID
	})
}

func sortAssignments(as []model.Assignment) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].CreatedAt.Before(as[j].CreatedAt)
		}
		return as[i].ID < as[j].ID
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
