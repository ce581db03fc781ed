// Package store persists printers and registry counters in SQLite so a
// restarted service comes back with the same printer ids.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// PrinterRecord is the persisted part of a printer.
type PrinterRecord struct {
	ID           int
	Name         string
	DriverName   string
	DeviceURI    string
	Location     string
	GeoLocation  string
	Organization string
	OrgUnit      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SystemState is the registry state that outlives a process.
type SystemState struct {
	UUID             string
	NextPrinterID    int
	DefaultPrinterID int
	UpdatedAt        time.Time
}

var ErrNotFound = errors.New("not found")

func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, readOnly bool, fn func(tx *sql.Tx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	opts := &sql.TxOptions{ReadOnly: readOnly}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListPrinters returns every saved printer ordered by id.
func (s *Store) ListPrinters(ctx context.Context, tx *sql.Tx) ([]PrinterRecord, error) {
	rows, err := tx.QueryContext(ctx, `
        SELECT id, name, driver_name, device_uri, location, geo_location, organization, organizational_unit, created_at, updated_at
        FROM printers
        ORDER BY id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	printers := []PrinterRecord{}
	for rows.Next() {
		var p PrinterRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.DriverName, &p.DeviceURI, &p.Location, &p.GeoLocation, &p.Organization, &p.OrgUnit, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (s *Store) GetPrinter(ctx context.Context, tx *sql.Tx, id int) (PrinterRecord, error) {
	var p PrinterRecord
	err := tx.QueryRowContext(ctx, `
        SELECT id, name, driver_name, device_uri, location, geo_location, organization, organizational_unit, created_at, updated_at
        FROM printers
        WHERE id = ?
    `, id).Scan(&p.ID, &p.Name, &p.DriverName, &p.DeviceURI, &p.Location, &p.GeoLocation, &p.Organization, &p.OrgUnit, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PrinterRecord{}, fmt.Errorf("printer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return PrinterRecord{}, err
	}
	return p, nil
}

// SavePrinter inserts the printer or updates the row with the same id.
func (s *Store) SavePrinter(ctx context.Context, tx *sql.Tx, p PrinterRecord) error {
	if p.ID <= 0 {
		return fmt.Errorf("save printer %q: id must be positive", p.Name)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err := tx.ExecContext(ctx, `
        INSERT INTO printers (id, name, driver_name, device_uri, location, geo_location, organization, organizational_unit, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            driver_name = excluded.driver_name,
            device_uri = excluded.device_uri,
            location = excluded.location,
            geo_location = excluded.geo_location,
            organization = excluded.organization,
            organizational_unit = excluded.organizational_unit,
            updated_at = excluded.updated_at
    `, p.ID, p.Name, p.DriverName, p.DeviceURI, p.Location, p.GeoLocation, p.Organization, p.OrgUnit, p.CreatedAt, now)
	return err
}

func (s *Store) DeletePrinter(ctx context.Context, tx *sql.Tx, id int) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM printers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("printer %d: %w", id, ErrNotFound)
	}
	return nil
}

// LoadSystemState returns the saved registry state. A fresh database yields
// the zero state with NextPrinterID 1.
func (s *Store) LoadSystemState(ctx context.Context, tx *sql.Tx) (SystemState, error) {
	var st SystemState
	err := tx.QueryRowContext(ctx, `
        SELECT uuid, next_printer_id, default_printer_id, updated_at
        FROM system_state
        WHERE id = 1
    `).Scan(&st.UUID, &st.NextPrinterID, &st.DefaultPrinterID, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SystemState{NextPrinterID: 1}, nil
	}
	if err != nil {
		return SystemState{}, err
	}
	return st, nil
}

func (s *Store) SaveSystemState(ctx context.Context, tx *sql.Tx, st SystemState) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, `
        INSERT INTO system_state (id, uuid, next_printer_id, default_printer_id, updated_at)
        VALUES (1, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            uuid = excluded.uuid,
            next_printer_id = excluded.next_printer_id,
            default_printer_id = excluded.default_printer_id,
            updated_at = excluded.updated_at
    `, st.UUID, st.NextPrinterID, st.DefaultPrinterID, now)
	return err
}
