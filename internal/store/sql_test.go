package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagroutes/internal/model"
)

// billingDDL is a minimal copy of the billing tables this service reads.
var billingDDL = []string{
	`CREATE TABLE IF NOT EXISTS client_group (id BIGINT PRIMARY KEY, title TEXT)`,
	`CREATE TABLE IF NOT EXISTS client (
		id BIGINT PRIMARY KEY, first_name TEXT, last_name TEXT, email TEXT, client_group_id BIGINT,
		address_1 TEXT, address_2 TEXT, city TEXT, state TEXT, postcode TEXT)`,
	`CREATE TABLE IF NOT EXISTS product (id BIGINT PRIMARY KEY, title TEXT)`,
	`CREATE TABLE IF NOT EXISTS client_order (
		id BIGINT PRIMARY KEY, client_id BIGINT NOT NULL, product_id BIGINT, title TEXT, status TEXT,
		config TEXT, created_at TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS client_order_addon (
		id BIGINT PRIMARY KEY, client_order_id BIGINT NOT NULL, title TEXT, quantity BIGINT, config TEXT)`,
}

func newSQLite(t *testing.T) *SQL {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	s, err := OpenSQL(context.Background(), DialectSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Install(context.Background()))
	createBilling(t, s)
	return s
}

func createBilling(t *testing.T, s *SQL) {
	t.Helper()
	for _, stmt := range billingDDL {
		_, err := s.db.ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
}

type sqlBilling struct{ s *SQL }

func (b sqlBilling) insert(t *testing.T, q string, args ...any) {
	t.Helper()
	_, err := b.s.exec(context.Background(), b.s.db, q, args...)
	require.NoError(t, err)
}

func (b sqlBilling) client(t *testing.T, c model.Client) {
	b.insert(t, `INSERT INTO client (id, first_name, last_name, email, client_group_id, address_1, address_2, city, state, postcode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FirstName, c.LastName, c.Email, c.GroupID, c.Address1, c.Address2, c.City, c.State, c.Postcode)
}

func (b sqlBilling) group(t *testing.T, g model.ClientGroup) {
	b.insert(t, `INSERT INTO client_group (id, title) VALUES (?, ?)`, g.ID, g.Title)
}

func (b sqlBilling) product(t *testing.T, p model.Product) {
	b.insert(t, `INSERT INTO product (id, title) VALUES (?, ?)`, p.ID, p.Title)
}

func (b sqlBilling) order(t *testing.T, o model.Order) {
	b.insert(t, `INSERT INTO client_order (id, client_id, product_id, title, status, config, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ClientID, o.ProductID, o.Title, o.Status, o.Config, o.CreatedAt)
}

func (b sqlBilling) addon(t *testing.T, a model.Addon) {
	var qty any
	if a.Quantity != nil {
		qty = *a.Quantity
	}
	b.insert(t, `INSERT INTO client_order_addon (id, client_order_id, title, quantity, config) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.OrderID, a.Title, qty, a.Config)
}

func TestSQLiteInstallIsIdempotent(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.Install(ctx))

	rid, err := s.CreateRoute(ctx, "R", "", t0)
	require.NoError(t, err)
	_, err = s.AssignClient(ctx, 1, rid, t0)
	require.NoError(t, err)

	require.NoError(t, s.Uninstall(ctx))
	_, err = s.ListRoutes(ctx)
	assert.Error(t, err, "routes table dropped")
	require.NoError(t, s.Uninstall(ctx))

	require.NoError(t, s.Install(ctx))
	list, err := s.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteUniqueViolationDetected(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `INSERT INTO client_routes (client_id, route_id, created_at) VALUES (1, 1, ?)`, t0)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO client_routes (client_id, route_id, created_at) VALUES (1, 1, ?)`, t0)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err), "got %v", err)
}

func TestSQLiteTransactionRollsBack(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	rid, err := s.CreateRoute(ctx, "R", "", t0)
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM routes WHERE id = ?`, rid); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.GetRoute(ctx, rid)
	assert.NoError(t, err, "delete rolled back")

	assert.Panics(t, func() {
		_ = s.inTx(ctx, func(tx *sql.Tx) error {
			_, _ = s.exec(ctx, tx, `DELETE FROM routes WHERE id = ?`, rid)
			panic("mid-transaction")
		})
	})
	_, err = s.GetRoute(ctx, rid)
	assert.NoError(t, err, "panic rolled back")
}
