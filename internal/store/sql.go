package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"flagroutes/internal/model"
)

// SQL implements Store over database/sql for postgres, mysql and sqlite.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens and pings the database.
func OpenSQL(ctx context.Context, d Dialect, dsn string) (*SQL, error) {
	if d == DialectMySQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn")
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	}
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", d)
	}
	if d == DialectSQLite {
		// One writer; also keeps named in-memory databases on a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", d)
	}
	return &SQL{db: db, dialect: d}, nil
}

func (s *SQL) Dialect() Dialect { return s.dialect }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQL) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQL) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQL) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// inTx runs fn in a transaction. Anything short of a successful commit,
// including a panic in fn, rolls back.
func (s *SQL) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func (s *SQL) ListRoutes(ctx context.Context) ([]model.RouteWithCount, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT r.id, r.name, COALESCE(r.description, ''), COUNT(DISTINCT cr.client_id)
		FROM routes r
		LEFT JOIN client_routes cr ON cr.route_id = r.id
		GROUP BY r.id, r.name, r.description
		ORDER BY r.name, r.id`)
	if err != nil {
		return nil, errors.Wrap(err, "list routes")
	}
	defer rows.Close()
	out := []model.RouteWithCount{}
	for rows.Next() {
		var r model.RouteWithCount
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.ClientCount); err != nil {
			return nil, errors.Wrap(err, "scan route")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "list routes")
}

func (s *SQL) GetRoute(ctx context.Context, id int64) (model.Route, error) {
	var r model.Route
	var created, updated nullTime
	err := s.queryRow(ctx, s.db, `SELECT id, name, COALESCE(description, ''), created_at, updated_at FROM routes WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Description, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, ErrNotFound
	}
	if err != nil {
		return model.Route{}, errors.Wrapf(err, "get route %d", id)
	}
	r.CreatedAt, r.UpdatedAt = created.Time, updated.Time
	return r, nil
}

func (s *SQL) CreateRoute(ctx context.Context, name, description string, now time.Time) (int64, error) {
	const ins = `INSERT INTO routes (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`
	var id int64
	if s.dialect.returningID() {
		if err := s.queryRow(ctx, s.db, ins+` RETURNING id`, name, description, now, now).Scan(&id); err != nil {
			return 0, errors.Wrap(err, "insert route")
		}
	} else {
		res, err := s.exec(ctx, s.db, ins, name, description, now, now)
		if err != nil {
			return 0, errors.Wrap(err, "insert route")
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, errors.Wrap(err, "insert route id")
		}
	}
	if id <= 0 {
		return 0, errors.New("insert route: no identifier returned")
	}
	return id, nil
}

func (s *SQL) UpdateRoute(ctx context.Context, id int64, name, description string, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.routeExists(ctx, tx, id); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `UPDATE routes SET name = ?, description = ?, updated_at = ? WHERE id = ?`, name, description, now, id)
		return errors.Wrapf(err, "update route %d", id)
	})
}

func (s *SQL) routeExists(ctx context.Context, q queryer, id int64) error {
	var one int
	err := s.queryRow(ctx, q, `SELECT 1 FROM routes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrapf(err, "lookup route %d", id)
}

func (s *SQL) DeleteRoute(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM client_routes WHERE route_id = ?`, id); err != nil {
			return errors.Wrapf(err, "delete assignments of route %d", id)
		}
		_, err := s.exec(ctx, tx, `DELETE FROM routes WHERE id = ?`, id)
		return errors.Wrapf(err, "delete route %d", id)
	})
}

// AssignClient relies on the (client_id, route_id) unique constraint; a
// violation means the pair already exists.
func (s *SQL) AssignClient(ctx context.Context, clientID, routeID int64, now time.Time) (bool, error) {
	created := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.routeExists(ctx, tx, routeID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `INSERT INTO client_routes (client_id, route_id, created_at) VALUES (?, ?, ?)`, clientID, routeID, now)
		if err != nil {
			if isUniqueViolation(err) {
				return errDuplicate
			}
			return errors.Wrapf(err, "assign client %d to route %d", clientID, routeID)
		}
		created = true
		return nil
	})
	if err == errDuplicate {
		return false, nil
	}
	return created, err
}

// errDuplicate aborts the assignment transaction without surfacing an error.
var errDuplicate = errors.New("duplicate assignment")

func (s *SQL) RemoveClient(ctx context.Context, clientID, routeID int64) (int64, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM client_routes WHERE client_id = ? AND route_id = ?`, clientID, routeID)
	if err != nil {
		return 0, errors.Wrapf(err, "remove client %d from route %d", clientID, routeID)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQL) RemoveClientFromAll(ctx context.Context, clientID int64) (int64, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM client_routes WHERE client_id = ?`, clientID)
	if err != nil {
		return 0, errors.Wrapf(err, "remove client %d from all routes", clientID)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQL) ClientAssignments(ctx context.Context, clientID int64) ([]model.Assignment, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, client_id, route_id, created_at FROM client_routes WHERE client_id = ? ORDER BY created_at, id`, clientID)
	if err != nil {
		return nil, errors.Wrapf(err, "assignments of client %d", clientID)
	}
	defer rows.Close()
	out := []model.Assignment{}
	for rows.Next() {
		var a model.Assignment
		var at nullTime
		if err := rows.Scan(&a.ID, &a.ClientID, &a.RouteID, &at); err != nil {
			return nil, errors.Wrap(err, "scan assignment")
		}
		a.CreatedAt = at.Time
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "assignments")
}

// flagOrderJoin matches orders whose product title contains the flag keyword.
var flagOrderJoin = fmt.Sprintf(`client_order co JOIN product p ON p.id = co.product_id
	WHERE co.client_id = c.id AND LOWER(p.title) LIKE '%%%s%%'`, FlagProductKeyword)

func quotedStatuses() string {
	q := make([]string, len(ActiveOrderStatuses))
	for i, st := range ActiveOrderStatuses {
		q[i] = "'" + st + "'"
	}
	return strings.Join(q, ", ")
}

// clientRowColumns is the select list shared by roster and unassigned queries.
// assignedAt is the expression for the assignment timestamp column.
func clientRowColumns(assignedAt string) string {
	return `c.id, COALESCE(c.first_name, ''), COALESCE(c.last_name, ''), COALESCE(c.email, ''),
		COALESCE(cg.title, ''), ` + assignedAt + `,
		(SELECT co.id FROM ` + flagOrderJoin + ` ORDER BY co.created_at DESC, co.id DESC LIMIT 1),
		(SELECT COALESCE(co.title, '') FROM ` + flagOrderJoin + ` ORDER BY co.created_at DESC, co.id DESC LIMIT 1),
		(SELECT co.status FROM ` + flagOrderJoin + ` AND co.status IN (` + quotedStatuses() + `) ORDER BY co.created_at DESC, co.id DESC LIMIT 1)`
}

func (s *SQL) RouteClients(ctx context.Context, routeID int64) ([]model.ClientRow, error) {
	q := `SELECT ` + clientRowColumns("cr.created_at") + `
		FROM client_routes cr
		JOIN client c ON c.id = cr.client_id
		LEFT JOIN client_group cg ON cg.id = c.client_group_id
		WHERE cr.route_id = ?
		ORDER BY c.last_name, c.first_name, c.id`
	return s.clientRows(ctx, q, routeID)
}

func (s *SQL) UnassignedClients(ctx context.Context) ([]model.ClientRow, error) {
	q := `SELECT ` + clientRowColumns("NULL") + `
		FROM client c
		LEFT JOIN client_group cg ON cg.id = c.client_group_id
		WHERE c.id NOT IN (SELECT client_id FROM client_routes)
		ORDER BY c.last_name, c.first_name, c.id`
	return s.clientRows(ctx, q)
}

func (s *SQL) clientRows(ctx context.Context, q string, args ...any) ([]model.ClientRow, error) {
	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "client rows")
	}
	defer rows.Close()
	out := []model.ClientRow{}
	for rows.Next() {
		var r model.ClientRow
		var at nullTime
		var orderID sql.NullInt64
		var orderTitle, status sql.NullString
		if err := rows.Scan(&r.ClientID, &r.FirstName, &r.LastName, &r.Email, &r.GroupName, &at, &orderID, &orderTitle, &status); err != nil {
			return nil, errors.Wrap(err, "scan client row")
		}
		r.AssignedAt = at.ptr()
		r.FlagOrderID = orderID.Int64
		r.FlagOrderTitle = orderTitle.String
		r.ActiveOrderStatus = status.String
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "client rows")
}

const orderColumns = `co.id, co.client_id, COALESCE(co.product_id, 0), COALESCE(co.title, ''), COALESCE(co.status, ''), COALESCE(co.config, ''), co.created_at`

func scanOrder(row *sql.Row) (model.Order, error) {
	var o model.Order
	var at nullTime
	if err := row.Scan(&o.ID, &o.ClientID, &o.ProductID, &o.Title, &o.Status, &o.Config, &at); err != nil {
		return model.Order{}, err
	}
	o.CreatedAt = at.Time
	return o, nil
}

func (s *SQL) LatestFlagOrder(ctx context.Context, clientID int64) (model.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, s.db, `SELECT `+orderColumns+`
		FROM client_order co JOIN product p ON p.id = co.product_id
		WHERE co.client_id = ? AND LOWER(p.title) LIKE ?
		ORDER BY co.created_at DESC, co.id DESC LIMIT 1`, clientID, "%"+FlagProductKeyword+"%"))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, errors.Wrapf(err, "latest flag order of client %d", clientID)
}

func (s *SQL) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, s.db, `SELECT `+orderColumns+` FROM client_order co WHERE co.id = ?`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, errors.Wrapf(err, "get order %d", orderID)
}

func (s *SQL) ClientAddress(ctx context.Context, clientID int64) (model.PostalAddress, error) {
	var a model.PostalAddress
	err := s.queryRow(ctx, s.db, `SELECT COALESCE(address_1, ''), COALESCE(address_2, ''), COALESCE(city, ''), COALESCE(state, ''), COALESCE(postcode, '')
		FROM client WHERE id = ?`, clientID).Scan(&a.Address1, &a.Address2, &a.City, &a.State, &a.Postcode)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PostalAddress{}, ErrNotFound
	}
	return a, errors.Wrapf(err, "address of client %d", clientID)
}

func (s *SQL) OrderAddons(ctx context.Context, orderID int64) ([]model.Addon, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, client_order_id, COALESCE(title, ''), quantity, COALESCE(config, '')
		FROM client_order_addon WHERE client_order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "addons of order %d", orderID)
	}
	defer rows.Close()
	out := []model.Addon{}
	for rows.Next() {
		var a model.Addon
		var qty sql.NullInt64
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Title, &qty, &a.Config); err != nil {
			return nil, errors.Wrap(err, "scan addon")
		}
		if qty.Valid {
			q := qty.Int64
			a.Quantity = &q
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "addons")
}

func (s *SQL) Install(ctx context.Context) error {
	stmts, ok := installDDL[s.dialect]
	if !ok {
		return errors.Errorf("install: unsupported dialect %q", s.dialect)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "install")
		}
	}
	return nil
}

func (s *SQL) Uninstall(ctx context.Context) error {
	for _, stmt := range uninstallDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "uninstall")
		}
	}
	return nil
}
