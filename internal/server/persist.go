package server

import (
	"context"
	"database/sql"
	"errors"

	goipp "github.com/OpenPrinting/goipp"
	"go.uber.org/zap"

	"lprintgolang/internal/store"
	"lprintgolang/internal/system"
)

// DeclaredPrinter is a printer named in configuration. It is created at
// startup unless a printer with the same name was restored.
type DeclaredPrinter struct {
	Name       string
	DriverName string
	DeviceURI  string
	Location   string
}

// Restore recreates the persisted printers under their saved ids, then adds
// the declared printers that do not exist yet. A printer that can no longer
// be created is logged and skipped.
func (s *Server) Restore(ctx context.Context, declared []DeclaredPrinter, defaultName string) error {
	if s.Store != nil {
		var records []store.PrinterRecord
		err := s.Store.WithTx(ctx, true, func(tx *sql.Tx) error {
			var err error
			records, err = s.Store.ListPrinters(ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
		for _, rec := range records {
			p, err := system.CreatePrinter(s.System, rec.ID, rec.Name, rec.DriverName, rec.DeviceURI)
			if err != nil {
				s.logger().Warn("restore printer failed", zap.Int("printer_id", rec.ID), zap.String("name", rec.Name), zap.Error(err))
				continue
			}
			applyText(p, "printer-location", rec.Location)
			applyText(p, "printer-organization", rec.Organization)
			applyText(p, "printer-organizational-unit", rec.OrgUnit)
			if rec.GeoLocation != "" {
				_ = p.SetAttribute(goipp.MakeAttribute("printer-geo-location", goipp.TagURI, goipp.String(rec.GeoLocation)))
			}
		}
	}

	for _, d := range declared {
		if s.findByName(d.Name) != nil {
			continue
		}
		p, err := system.CreatePrinter(s.System, 0, d.Name, d.DriverName, d.DeviceURI)
		if err != nil {
			return err
		}
		applyText(p, "printer-location", d.Location)
		if err := s.savePrinter(ctx, p); err != nil {
			return err
		}
	}

	if defaultName != "" {
		if p := s.findByName(defaultName); p != nil {
			s.System.SetDefaultPrinterID(p.ID())
		}
	}
	return s.saveSystemState(ctx)
}

func (s *Server) findByName(name string) *system.Printer {
	for _, p := range s.System.Printers() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func applyText(p *system.Printer, name, value string) {
	if value == "" {
		return
	}
	_ = p.SetAttribute(goipp.MakeAttribute(name, goipp.TagText, goipp.String(value)))
}

func (s *Server) savePrinter(ctx context.Context, p *system.Printer) error {
	if s.Store == nil {
		return nil
	}
	org, unit := p.Organization()
	rec := store.PrinterRecord{
		ID:           p.ID(),
		Name:         p.Name(),
		DriverName:   p.DriverName(),
		DeviceURI:    p.DeviceURI(),
		Location:     p.Location(),
		GeoLocation:  p.GeoLocation(),
		Organization: org,
		OrgUnit:      unit,
	}
	return s.Store.WithTx(ctx, false, func(tx *sql.Tx) error {
		return s.Store.SavePrinter(ctx, tx, rec)
	})
}

func (s *Server) forgetPrinter(ctx context.Context, id int) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.WithTx(ctx, false, func(tx *sql.Tx) error {
		if err := s.Store.DeletePrinter(ctx, tx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
}

func (s *Server) saveSystemState(ctx context.Context) error {
	if s.Store == nil {
		return nil
	}
	st := store.SystemState{
		UUID:             s.System.UUID(),
		NextPrinterID:    s.System.NextPrinterID(),
		DefaultPrinterID: s.System.DefaultPrinterID(),
	}
	return s.Store.WithTx(ctx, false, func(tx *sql.Tx) error {
		return s.Store.SaveSystemState(ctx, tx, st)
	})
}
