package store

import (
	"context"
	"errors"
	"time"

	"flagroutes/internal/model"
)

// Store is the persistence gateway used by the route services. Routes and
// assignments are owned here; clients, orders, addons and products are read
// from the billing system's tables.
type Store interface {
	// Routes
	ListRoutes(ctx context.Context) ([]model.RouteWithCount, error)
	GetRoute(ctx context.Context, id int64) (model.Route, error)
	CreateRoute(ctx context.Context, name, description string, now time.Time) (int64, error)
	UpdateRoute(ctx context.Context, id int64, name, description string, now time.Time) error
	// DeleteRoute removes the route's assignments and then the route, atomically.
	DeleteRoute(ctx context.Context, id int64) error

	// Assignments
	// AssignClient records the (client, route) pair. created is false when the
	// pair already existed.
	AssignClient(ctx context.Context, clientID, routeID int64, now time.Time) (created bool, err error)
	RemoveClient(ctx context.Context, clientID, routeID int64) (int64, error)
	RemoveClientFromAll(ctx context.Context, clientID int64) (int64, error)
	ClientAssignments(ctx context.Context, clientID int64) ([]model.Assignment, error)

	// Billing-side reads
	RouteClients(ctx context.Context, routeID int64) ([]model.ClientRow, error)
	UnassignedClients(ctx context.Context) ([]model.ClientRow, error)
	LatestFlagOrder(ctx context.Context, clientID int64) (model.Order, error)
	ClientAddress(ctx context.Context, clientID int64) (model.PostalAddress, error)
	GetOrder(ctx context.Context, orderID int64) (model.Order, error)
	OrderAddons(ctx context.Context, orderID int64) ([]model.Addon, error)

	// Schema
	Install(ctx context.Context) error
	Uninstall(ctx context.Context) error
}

// ErrNotFound is returned by single-row reads that match nothing.
var ErrNotFound = errors.New("not found")

// FlagProductKeyword marks a product as a flag product when contained in its
// title, compared case-insensitively.
const FlagProductKeyword = "flag"

// ActiveOrderStatuses are the order statuses that count as an active flag order.
var ActiveOrderStatuses = []string{"active", "pending_setup"}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQL)(nil)
)
