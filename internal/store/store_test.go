package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagroutes/internal/model"
)

// billing seeds the read-only billing tables behind a Store.
type billing interface {
	client(t *testing.T, c model.Client)
	group(t *testing.T, g model.ClientGroup)
	product(t *testing.T, p model.Product)
	order(t *testing.T, o model.Order)
	addon(t *testing.T, a model.Addon)
}

type memBilling struct{ m *Memory }

func (b memBilling) client(_ *testing.T, c model.Client)     { b.m.PutClient(c) }
func (b memBilling) group(_ *testing.T, g model.ClientGroup) { b.m.PutGroup(g) }
func (b memBilling) product(_ *testing.T, p model.Product)   { b.m.PutProduct(p) }
func (b memBilling) order(_ *testing.T, o model.Order)       { b.m.PutOrder(o) }
func (b memBilling) addon(_ *testing.T, a model.Addon)       { b.m.PutAddon(a) }

type storeCase struct {
	name string
	open func(t *testing.T) (Store, billing)
}

func storeCases() []storeCase {
	return []storeCase{
		{"memory", func(t *testing.T) (Store, billing) {
			m := NewMemory()
			return m, memBilling{m}
		}},
		{"sqlite", func(t *testing.T) (Store, billing) {
			s := newSQLite(t)
			return s, sqlBilling{s}
		}},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store, b billing)) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			s, b := tc.open(t)
			fn(t, s, b)
		})
	}
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRouteLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, _ billing) {
		ctx := context.Background()
		north, err := s.CreateRoute(ctx, "North", "hills", t0)
		require.NoError(t, err)
		east, err := s.CreateRoute(ctx, "East", "", t0)
		require.NoError(t, err)
		assert.NotEqual(t, north, east)

		list, err := s.ListRoutes(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "East", list[0].Name)
		assert.Equal(t, "North", list[1].Name)
		assert.Equal(t, "hills", list[1].Description)
		assert.Zero(t, list[1].ClientCount)

		later := t0.Add(time.Hour)
		require.NoError(t, s.UpdateRoute(ctx, north, "North Loop", "ridge", later))
		r, err := s.GetRoute(ctx, north)
		require.NoError(t, err)
		assert.Equal(t, "North Loop", r.Name)
		assert.Equal(t, "ridge", r.Description)
		assert.True(t, r.CreatedAt.Equal(t0), "created_at kept: %v", r.CreatedAt)
		assert.True(t, r.UpdatedAt.Equal(later), "updated_at refreshed: %v", r.UpdatedAt)

		assert.ErrorIs(t, s.UpdateRoute(ctx, 9999, "x", "", later), ErrNotFound)

		require.NoError(t, s.DeleteRoute(ctx, north))
		_, err = s.GetRoute(ctx, north)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.DeleteRoute(ctx, north), "deleting an absent route succeeds")
	})
}

func TestAssignClientIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, b billing) {
		ctx := context.Background()
		b.client(t, model.Client{ID: 7, FirstName: "Ada", LastName: "Lovelace"})
		rid, err := s.CreateRoute(ctx, "R1", "", t0)
		require.NoError(t, err)

		created, err := s.AssignClient(ctx, 7, rid, t0)
		require.NoError(t, err)
		assert.True(t, created)
		created, err = s.AssignClient(ctx, 7, rid, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, created)

		list, err := s.ListRoutes(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 1, list[0].ClientCount)

		as, err := s.ClientAssignments(ctx, 7)
		require.NoError(t, err)
		require.Len(t, as, 1)
		assert.True(t, as[0].CreatedAt.Equal(t0))

		_, err = s.AssignClient(ctx, 7, rid+100, t0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteRouteRemovesAssignments(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, b billing) {
		ctx := context.Background()
		b.client(t, model.Client{ID: 1, FirstName: "A", LastName: "One"})
		b.client(t, model.Client{ID: 2, FirstName: "B", LastName: "Two"})
		r1, _ := s.CreateRoute(ctx, "R1", "", t0)
		r2, _ := s.CreateRoute(ctx, "R2", "", t0)
		_, err := s.AssignClient(ctx, 1, r1, t0)
		require.NoError(t, err)
		_, err = s.AssignClient(ctx, 2, r2, t0)
		require.NoError(t, err)

		require.NoError(t, s.DeleteRoute(ctx, r1))

		as, err := s.ClientAssignments(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, as)
		un, err := s.UnassignedClients(ctx)
		require.NoError(t, err)
		require.Len(t, un, 1)
		assert.Equal(t, int64(1), un[0].ClientID)
		assert.Nil(t, un[0].AssignedAt)
	})
}

func TestRemoveClient(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, b billing) {
		ctx := context.Background()
		b.client(t, model.Client{ID: 5})
		r1, _ := s.CreateRoute(ctx, "R1", "", t0)
		r2, _ := s.CreateRoute(ctx, "R2", "", t0)
		r3, _ := s.CreateRoute(ctx, "R3", "", t0)
		for i, r := range []int64{r2, r1, r3} {
			_, err := s.AssignClient(ctx, 5, r, t0.Add(time.Duration(i)*time.Minute))
			require.NoError(t, err)
		}

		as, err := s.ClientAssignments(ctx, 5)
		require.NoError(t, err)
		require.Len(t, as, 3)
		assert.Equal(t, r2, as[0].RouteID, "earliest assignment first")

		n, err := s.RemoveClient(ctx, 5, r2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = s.RemoveClient(ctx, 5, r2)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = s.RemoveClientFromAll(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		as, err = s.ClientAssignments(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, as)
	})
}

func seedRoster(t *testing.T, b billing) {
	b.group(t, model.ClientGroup{ID: 1, Title: "Residential"})
	b.product(t, model.Product{ID: 10, Title: "US Flag Service"})
	b.product(t, model.Product{ID: 11, Title: "Lawn Care"})
	b.client(t, model.Client{ID: 1, FirstName: "Zed", LastName: "Adams", GroupID: 1, Address1: "1 Main", City: "Springfield"})
	b.client(t, model.Client{ID: 2, FirstName: "Amy", LastName: "Adams"})
	b.client(t, model.Client{ID: 3, FirstName: "Bob", LastName: "Baker"})
	// client 1: older active flag order, newer cancelled flag order, newest non-flag order
	b.order(t, model.Order{ID: 100, ClientID: 1, ProductID: 10, Title: "Flags 2024", Status: "active", Config: `{"flag_type":"Cotton"}`, CreatedAt: t0})
	b.order(t, model.Order{ID: 101, ClientID: 1, ProductID: 10, Title: "Flags 2025", Status: "cancelled", CreatedAt: t0.Add(24 * time.Hour)})
	b.order(t, model.Order{ID: 102, ClientID: 1, ProductID: 11, Title: "Lawn", Status: "active", CreatedAt: t0.Add(48 * time.Hour)})
	// client 2 only has a non-flag order
	b.order(t, model.Order{ID: 103, ClientID: 2, ProductID: 11, Title: "Lawn", Status: "active", CreatedAt: t0})
	qty := int64(3)
	b.addon(t, model.Addon{ID: 501, OrderID: 100, Title: "Flag Pole", Config: `{"flag_type":"Steel"}`})
	b.addon(t, model.Addon{ID: 500, OrderID: 100, Title: "Extra Flag", Quantity: &qty})
}

func TestRouteClientsRows(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, b billing) {
		ctx := context.Background()
		seedRoster(t, b)
		rid, _ := s.CreateRoute(ctx, "R", "", t0)
		for _, id := range []int64{3, 1, 2} {
			_, err := s.AssignClient(ctx, id, rid, t0)
			require.NoError(t, err)
		}

		rows, err := s.RouteClients(ctx, rid)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []int64{2, 1, 3}, []int64{rows[0].ClientID, rows[1].ClientID, rows[2].ClientID}, "last name then first name")

		zed := rows[1]
		assert.Equal(t, "Residential", zed.GroupName)
		assert.Equal(t, int64(101), zed.FlagOrderID, "latest flag order regardless of status")
		assert.Equal(t, "Flags 2025", zed.FlagOrderTitle)
		assert.Equal(t, "active", zed.ActiveOrderStatus, "latest flag order in an active status")
		require.NotNil(t, zed.AssignedAt)
		assert.True(t, zed.AssignedAt.Equal(t0))

		amy := rows[0]
		assert.Zero(t, amy.FlagOrderID)
		assert.Empty(t, amy.ActiveOrderStatus)
		assert.Empty(t, amy.GroupName)

		other, err := s.RouteClients(ctx, rid+1)
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestOrderReads(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store, b billing) {
		ctx := context.Background()
		seedRoster(t, b)

		o, err := s.LatestFlagOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(101), o.ID)
		_, err = s.LatestFlagOrder(ctx, 2)
		assert.ErrorIs(t, err, ErrNotFound)

		o, err = s.GetOrder(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, `{"flag_type":"Cotton"}`, o.Config)
		assert.True(t, o.CreatedAt.Equal(t0))
		_, err = s.GetOrder(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)

		addons, err := s.OrderAddons(ctx, 100)
		require.NoError(t, err)
		require.Len(t, addons, 2)
		assert.Equal(t, int64(500), addons[0].ID)
		require.NotNil(t, addons[0].Quantity)
		assert.Equal(t, int64(3), *addons[0].Quantity)
		assert.Nil(t, addons[1].Quantity)

		addr, err := s.ClientAddress(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, model.PostalAddress{Address1: "1 Main", City: "Springfield"}, addr)
		_, err = s.ClientAddress(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
