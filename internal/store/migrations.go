package store

import (
	"context"
	"database/sql"
	"strings"
)

func (s *Store) migrate(ctx context.Context) error {
	return s.WithTx(ctx, false, func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS printers (
                id INTEGER PRIMARY KEY,
                name TEXT NOT NULL UNIQUE,
                driver_name TEXT NOT NULL DEFAULT '',
                device_uri TEXT NOT NULL DEFAULT '',
                location TEXT NOT NULL DEFAULT '',
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL
            )`,
			`CREATE TABLE IF NOT EXISTS system_state (
                id INTEGER PRIMARY KEY CHECK (id = 1),
                uuid TEXT NOT NULL DEFAULT '',
                next_printer_id INTEGER NOT NULL DEFAULT 1,
                default_printer_id INTEGER NOT NULL DEFAULT 0,
                updated_at DATETIME NOT NULL
            )`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if err := ensureColumn(ctx, tx, "printers", "geo_location", "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
		if err := ensureColumn(ctx, tx, "printers", "organization", "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
		if err := ensureColumn(ctx, tx, "printers", "organizational_unit", "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
		return nil
	})
}

func ensureColumn(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+column+" "+definition)
	return err
}
