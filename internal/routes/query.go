package routes

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"flagroutes/internal/address"
	"flagroutes/internal/apperr"
	"flagroutes/internal/flags"
	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
	"flagroutes/internal/orderinfo"
	"flagroutes/internal/store"
)

// Query answers the read side: route lists, enriched rosters and the
// composite route page and navigation views.
type Query struct {
	store   store.Store
	addr    *address.Resolver
	orders  *orderinfo.Extractor
	summary flags.Options
}

func NewQuery(s store.Store, opts flags.Options, log logrus.FieldLogger) *Query {
	return &Query{
		store:   s,
		addr:    address.NewResolver(s),
		orders:  orderinfo.NewExtractor(s, log),
		summary: opts,
	}
}

// ListRoutes returns every route with its distinct client count, by name.
func (q *Query) ListRoutes(ctx context.Context) ([]model.RouteWithCount, error) {
	rs, err := q.store.ListRoutes(ctx)
	if err != nil {
		return nil, apperr.Persistence("list routes", err)
	}
	return rs, nil
}

func (q *Query) route(ctx context.Context, id int64) (model.Route, error) {
	if id <= 0 {
		return model.Route{}, apperr.Validation("route_id", "must be positive")
	}
	r, err := q.store.GetRoute(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Route{}, apperr.NotFound("route", id)
	}
	if err != nil {
		return model.Route{}, apperr.Persistence("get route", err)
	}
	return r, nil
}

// Roster returns the route's clients ordered by last then first name, each
// with address, active-order flag and flag order detail.
func (q *Query) Roster(ctx context.Context, routeID int64) ([]model.EnrichedClient, error) {
	if _, err := q.route(ctx, routeID); err != nil {
		return nil, err
	}
	return q.roster(ctx, routeID)
}

func (q *Query) roster(ctx context.Context, routeID int64) ([]model.EnrichedClient, error) {
	rows, err := q.store.RouteClients(ctx, routeID)
	if err != nil {
		return nil, apperr.Persistence("route clients", err)
	}
	out, err := q.enrich(ctx, rows, true)
	if err != nil {
		return nil, err
	}
	metrics.RosterSize.Observe(float64(len(out)))
	return out, nil
}

// Unassigned lists clients without any route, enriched without order detail.
func (q *Query) Unassigned(ctx context.Context) ([]model.EnrichedClient, error) {
	rows, err := q.store.UnassignedClients(ctx)
	if err != nil {
		return nil, apperr.Persistence("unassigned clients", err)
	}
	return q.enrich(ctx, rows, false)
}

func (q *Query) enrich(ctx context.Context, rows []model.ClientRow, detail bool) ([]model.EnrichedClient, error) {
	out := make([]model.EnrichedClient, 0, len(rows))
	for _, r := range rows {
		addr, err := q.addr.Resolve(ctx, r.ClientID)
		if err != nil {
			return nil, apperr.Persistence("resolve address", err)
		}
		c := model.EnrichedClient{
			ClientID:          r.ClientID,
			FirstName:         r.FirstName,
			LastName:          r.LastName,
			Email:             r.Email,
			GroupName:         r.GroupName,
			AssignedAt:        r.AssignedAt,
			FlagOrderTitle:    r.FlagOrderTitle,
			ActiveOrderStatus: r.ActiveOrderStatus,
			HasActiveOrder:    r.ActiveOrderStatus != "",
			Address:           addr,
		}
		if detail {
			d := q.orders.Extract(ctx, r.FlagOrderID)
			c.Order = d.Order
			c.Addons = d.Addons
			c.ServiceInstructions = d.ServiceInstructions
			c.FlagInfo = d.FlagInfo
		}
		out = append(out, c)
	}
	return out, nil
}

// Summary aggregates the flag info of a roster.
func (q *Query) Summary(clients []model.EnrichedClient) model.RouteFlagSummary {
	return q.summary.Summarize(clients)
}

// View bundles the route page: the route, its roster, the unassigned clients,
// all routes and the roster's flag summary.
func (q *Query) View(ctx context.Context, routeID int64) (model.RouteView, error) {
	r, err := q.route(ctx, routeID)
	if err != nil {
		return model.RouteView{}, err
	}
	assigned, err := q.roster(ctx, routeID)
	if err != nil {
		return model.RouteView{}, err
	}
	unassigned, err := q.Unassigned(ctx)
	if err != nil {
		return model.RouteView{}, err
	}
	all, err := q.ListRoutes(ctx)
	if err != nil {
		return model.RouteView{}, err
	}
	return model.RouteView{
		Route:      r,
		Assigned:   assigned,
		Unassigned: unassigned,
		AllRoutes:  all,
		Summary:    q.Summary(assigned),
	}, nil
}

// Navigation lists the route's stops in roster order. No path is computed.
func (q *Query) Navigation(ctx context.Context, routeID int64) (model.Navigation, error) {
	r, err := q.route(ctx, routeID)
	if err != nil {
		return model.Navigation{}, err
	}
	assigned, err := q.roster(ctx, routeID)
	if err != nil {
		return model.Navigation{}, err
	}
	stops := make([]model.Stop, 0, len(assigned))
	for i, c := range assigned {
		stops = append(stops, model.Stop{
			Seq:            i + 1,
			ClientID:       c.ClientID,
			Name:           strings.TrimSpace(c.FirstName + " " + c.LastName),
			Address:        c.Address,
			HasActiveOrder: c.HasActiveOrder,
			Instructions:   c.ServiceInstructions,
			FlagInfo:       c.FlagInfo,
		})
	}
	return model.Navigation{Route: r, Stops: stops, Summary: q.Summary(assigned)}, nil
}
