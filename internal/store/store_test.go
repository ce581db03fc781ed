package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "lprint.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestSaveAndListPrinters(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	err := st.WithTx(ctx, false, func(tx *sql.Tx) error {
		if err := st.SavePrinter(ctx, tx, PrinterRecord{ID: 4, Name: "label", DriverName: "pwg_4inch-203dpi-black_1"}); err != nil {
			return err
		}
		return st.SavePrinter(ctx, tx, PrinterRecord{ID: 2, Name: "office", DeviceURI: "socket://10.0.0.5"})
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	var printers []PrinterRecord
	err = st.WithTx(ctx, true, func(tx *sql.Tx) error {
		var err error
		printers, err = st.ListPrinters(ctx, tx)
		return err
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(printers) != 2 || printers[0].ID != 2 || printers[1].Name != "label" {
		t.Fatalf("unexpected printers %+v", printers)
	}
	if printers[1].DriverName != "pwg_4inch-203dpi-black_1" {
		t.Fatalf("driver name lost: %+v", printers[1])
	}
}

func TestSavePrinterUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	err := st.WithTx(ctx, false, func(tx *sql.Tx) error {
		if err := st.SavePrinter(ctx, tx, PrinterRecord{ID: 1, Name: "p"}); err != nil {
			return err
		}
		return st.SavePrinter(ctx, tx, PrinterRecord{ID: 1, Name: "p", Location: "Lab 3"})
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	err = st.WithTx(ctx, true, func(tx *sql.Tx) error {
		p, err := st.GetPrinter(ctx, tx, 1)
		if err != nil {
			return err
		}
		if p.Location != "Lab 3" {
			t.Fatalf("Location=%q", p.Location)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestSavePrinterRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	err := st.WithTx(ctx, false, func(tx *sql.Tx) error {
		if err := st.SavePrinter(ctx, tx, PrinterRecord{ID: 1, Name: "same"}); err != nil {
			return err
		}
		return st.SavePrinter(ctx, tx, PrinterRecord{ID: 2, Name: "same"})
	})
	if err == nil {
		t.Fatalf("expected unique constraint failure")
	}
}

func TestDeletePrinter(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	err := st.WithTx(ctx, false, func(tx *sql.Tx) error {
		if err := st.SavePrinter(ctx, tx, PrinterRecord{ID: 3, Name: "gone"}); err != nil {
			return err
		}
		return st.DeletePrinter(ctx, tx, 3)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = st.WithTx(ctx, false, func(tx *sql.Tx) error {
		return st.DeletePrinter(ctx, tx, 3)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err=%v, want ErrNotFound", err)
	}
}

func TestSystemStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	err := st.WithTx(ctx, true, func(tx *sql.Tx) error {
		state, err := st.LoadSystemState(ctx, tx)
		if err != nil {
			return err
		}
		if state.NextPrinterID != 1 || state.DefaultPrinterID != 0 {
			t.Fatalf("fresh state %+v", state)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	err = st.WithTx(ctx, false, func(tx *sql.Tx) error {
		return st.SaveSystemState(ctx, tx, SystemState{UUID: "6f1e0b0c-5c7e-4b6b-9d0e-1a2b3c4d5e6f", NextPrinterID: 9, DefaultPrinterID: 2})
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	err = st.WithTx(ctx, true, func(tx *sql.Tx) error {
		state, err := st.LoadSystemState(ctx, tx)
		if err != nil {
			return err
		}
		if state.NextPrinterID != 9 || state.DefaultPrinterID != 2 || state.UUID == "" {
			t.Fatalf("reloaded state %+v", state)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
}
