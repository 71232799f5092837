package model

import "time"

// Route is a named grouping of clients serviced together.
type Route struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RouteWithCount is a route annotated with the number of distinct assigned clients.
type RouteWithCount struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ClientCount int    `json:"clientCount"`
}

// Assignment links a client to a route.
type Assignment struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"clientId"`
	RouteID   int64     `json:"routeId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Billing-side records. These are owned by the billing system and only read here.

type Client struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	GroupID   int64
	Address1  string
	Address2  string
	City      string
	State     string
	Postcode  string
}

type ClientGroup struct {
	ID    int64
	Title string
}

type Product struct {
	ID    int64
	Title string
}

// Order is a client order with its raw JSON configuration blob.
type Order struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"clientId"`
	ProductID int64     `json:"productId"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Config    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Addon is an add-on line attached to an order.
type Addon struct {
	ID       int64  `json:"id"`
	OrderID  int64  `json:"orderId"`
	Title    string `json:"title"`
	Quantity *int64 `json:"quantity,omitempty"`
	Config   string `json:"config,omitempty"`
	// Parsed is the decoded Config object, nil when Config is empty or not an object.
	Parsed map[string]any `json:"parsedConfig,omitempty"`
}

// PostalAddress holds the address fields stored on the client record.
type PostalAddress struct {
	Address1 string
	Address2 string
	City     string
	State    string
	Postcode string
}

// ClientRow is a client as listed for a roster or the unassigned list, before enrichment.
type ClientRow struct {
	ClientID          int64
	FirstName         string
	LastName          string
	Email             string
	GroupName         string
	AssignedAt        *time.Time
	FlagOrderID       int64
	FlagOrderTitle    string
	ActiveOrderStatus string
}

// FlagInfo is the flat label -> value mapping mined from order and addon configuration.
// Values are string, int64, float64, bool or nil.
type FlagInfo map[string]any

// OrderFlagDetail is the extraction result for one order.
type OrderFlagDetail struct {
	Order               *Order   `json:"order"`
	Addons              []Addon  `json:"addons"`
	ServiceInstructions string   `json:"serviceInstructions"`
	FlagInfo            FlagInfo `json:"flagInfo"`
}

// EmptyOrderFlagDetail is the default returned when an order cannot be extracted.
func EmptyOrderFlagDetail() OrderFlagDetail {
	return OrderFlagDetail{Addons: []Addon{}, FlagInfo: FlagInfo{}}
}

// EnrichedClient is a roster entry with its resolved address and optional order detail.
type EnrichedClient struct {
	ClientID          int64      `json:"clientId"`
	FirstName         string     `json:"firstName"`
	LastName          string     `json:"lastName"`
	Email             string     `json:"email"`
	GroupName         string     `json:"groupName,omitempty"`
	AssignedAt        *time.Time `json:"assignedAt,omitempty"`
	FlagOrderTitle    string     `json:"flagOrderTitle,omitempty"`
	ActiveOrderStatus string     `json:"activeOrderStatus,omitempty"`
	HasActiveOrder    bool       `json:"hasActiveOrder"`
	Address           string     `json:"address"`

	Order               *Order   `json:"order,omitempty"`
	Addons              []Addon  `json:"addons,omitempty"`
	ServiceInstructions string   `json:"serviceInstructions,omitempty"`
	FlagInfo            FlagInfo `json:"flagInfo,omitempty"`
}

// RouteFlagSummary rolls a roster's flag info into totals and histograms.
type RouteFlagSummary struct {
	TotalUSFlags int            `json:"totalUsFlags"`
	FlagTypes    map[string]int `json:"flagTypes"`
	FlagSizes    map[string]int `json:"flagSizes"`
}

// RouteView bundles everything the route detail page shows.
type RouteView struct {
	Route      Route            `json:"route"`
	Assigned   []EnrichedClient `json:"assignedClients"`
	Unassigned []EnrichedClient `json:"unassignedClients"`
	AllRoutes  []RouteWithCount `json:"allRoutes"`
	Summary    RouteFlagSummary `json:"flagSummary"`
}

// Stop is one entry of the navigation list.
type Stop struct {
	Seq            int      `json:"seq"`
	ClientID       int64    `json:"clientId"`
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	HasActiveOrder bool     `json:"hasActiveOrder"`
	Instructions   string   `json:"instructions,omitempty"`
	FlagInfo       FlagInfo `json:"flagInfo,omitempty"`
}

// Navigation is the stop list of a route with its flag summary.
type Navigation struct {
	Route   Route            `json:"route"`
	Stops   []Stop           `json:"stops"`
	Summary RouteFlagSummary `json:"flagSummary"`
}

// RouteEvent is published whenever a route or its assignments change.
type RouteEvent struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	RouteID  int64          `json:"routeId,omitempty"`
	ClientID int64          `json:"clientId,omitempty"`
	TS       time.Time      `json:"ts"`
	Data     map[string]any `json:"data,omitempty"`
}

const (
	EventRouteCreated   = "route.created"
	EventRouteUpdated   = "route.updated"
	EventRouteDeleted   = "route.deleted"
	EventClientAssigned = "client.assigned"
	EventClientRemoved  = "client.removed"
)
