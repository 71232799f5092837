package store

// DDL for the tables this service owns. Billing tables (client, client_group,
// product, client_order, client_order_addon) belong to the billing system.

var installDDL = map[Dialect][]string{
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS routes (
			id          BIGSERIAL PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			description TEXT,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS client_routes (
			id         BIGSERIAL PRIMARY KEY,
			client_id  BIGINT NOT NULL,
			route_id   BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT client_routes_client_route_uq UNIQUE (client_id, route_id)
		)`,
		`CREATE INDEX IF NOT EXISTS client_routes_route_idx ON client_routes (route_id)`,
	},
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS routes (
			id          BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			name        VARCHAR(255) NOT NULL,
			description TEXT NULL,
			created_at  DATETIME(6) NOT NULL,
			updated_at  DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS client_routes (
			id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			client_id  BIGINT NOT NULL,
			route_id   BIGINT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY client_routes_client_route_uq (client_id, route_id),
			KEY client_routes_route_idx (route_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS routes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL,
			description TEXT,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS client_routes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id  INTEGER NOT NULL,
			route_id   INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (client_id, route_id)
		)`,
		`CREATE INDEX IF NOT EXISTS client_routes_route_idx ON client_routes (route_id)`,
	},
}

// Assignments are dropped before routes.
var uninstallDDL = []string{
	`DROP TABLE IF EXISTS client_routes`,
	`DROP TABLE IF EXISTS routes`,
}
