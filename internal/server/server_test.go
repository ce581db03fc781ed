package server

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goipp "github.com/OpenPrinting/goipp"

	"lprintgolang/internal/driver"
	"lprintgolang/internal/spool"
	"lprintgolang/internal/store"
	"lprintgolang/internal/system"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "lprint.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	sys := system.New(
		system.WithHostname("printhost", 8631),
		system.WithDirectory(dir),
		system.WithDriverCallback(driver.PWG),
	)
	return &Server{
		System:     sys,
		Spool:      spool.Spool{Dir: filepath.Join(dir, "spool")},
		Store:      st,
		JobHistory: 2,
	}
}

func addPrinter(t *testing.T, s *Server, name string) *system.Printer {
	t.Helper()
	p, err := system.CreatePrinter(s.System, 0, name, "pwg_2inch-203dpi-black_1", "file:///dev/null")
	if err != nil {
		t.Fatalf("create printer %s: %v", name, err)
	}
	return p
}

func newRequest(op goipp.Op, printerURI string) *goipp.Message {
	req := goipp.NewRequest(goipp.DefaultVersion, op, 1)
	req.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	req.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
	if printerURI != "" {
		req.Operation.Add(goipp.MakeAttribute("printer-uri", goipp.TagURI, goipp.String(printerURI)))
	}
	req.Operation.Add(goipp.MakeAttribute("requesting-user-name", goipp.TagName, goipp.String("alice")))
	return req
}

func roundTrip(t *testing.T, h http.Handler, target string, req *goipp.Message, doc []byte) *goipp.Message {
	t.Helper()
	var body bytes.Buffer
	if err := req.Encode(&body); err != nil {
		t.Fatalf("encode request: %v", err)
	}
	body.Write(doc)

	httpReq := httptest.NewRequest(http.MethodPost, "http://printhost:8631"+target, &body)
	httpReq.Header.Set("Content-Type", goipp.ContentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httpReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("http status = %d, body %q", rec.Code, rec.Body.String())
	}

	var resp goipp.Message
	if err := resp.Decode(rec.Body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &resp
}

func status(resp *goipp.Message) goipp.Status {
	return goipp.Status(resp.Code)
}

func TestGetPrinterAttributesFiltersRequested(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")

	req := newRequest(goipp.OpGetPrinterAttributes, p.URI())
	req.Operation.Add(goipp.MakeAttr("requested-attributes", goipp.TagKeyword,
		goipp.String("printer-name"), goipp.String("printer-state"), goipp.String("job-k-octets-supported")))
	resp := roundTrip(t, s.Handler(), system.ServicePath+"/Label", req, nil)

	if status(resp) != goipp.StatusOk {
		t.Fatalf("status = %v", status(resp))
	}
	if len(resp.Printer) != 3 {
		t.Fatalf("printer attributes = %d, want 3: %v", len(resp.Printer), resp.Printer)
	}
	if got := attrString(resp.Printer, "printer-name"); got != "Label" {
		t.Fatalf("printer-name = %q", got)
	}
	if got := attrInt(resp.Printer, "printer-state"); got != int64(system.StateIdle) {
		t.Fatalf("printer-state = %d", got)
	}
}

func TestGetPrinterAttributesUnknownPrinter(t *testing.T) {
	s := newTestServer(t)
	addPrinter(t, s, "Label")

	req := newRequest(goipp.OpGetPrinterAttributes, "ipp://printhost:8631/ipp/print/Missing")
	resp := roundTrip(t, s.Handler(), "/ipp/print/Missing", req, nil)
	if status(resp) != goipp.StatusErrorNotFound {
		t.Fatalf("status = %v, want not found", status(resp))
	}
}

func TestDefaultPrinterPath(t *testing.T) {
	s := newTestServer(t)
	first := addPrinter(t, s, "First")
	addPrinter(t, s, "Second")

	req := newRequest(goipp.OpGetPrinterAttributes, "")
	resp := roundTrip(t, s.Handler(), system.ServicePath, req, nil)
	if got := attrInt(resp.Printer, "printer-id"); got != int64(first.ID()) {
		t.Fatalf("default printer id = %d, want %d", got, first.ID())
	}
}

func TestPrintJobSpoolsAndCompletes(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")
	h := s.Handler()

	req := newRequest(goipp.OpPrintJob, p.URI())
	req.Operation.Add(goipp.MakeAttribute("job-name", goipp.TagName, goipp.String("shipping")))
	req.Operation.Add(goipp.MakeAttribute("document-format", goipp.TagMimeType, goipp.String("image/pwg-raster")))
	resp := roundTrip(t, h, system.ServicePath+"/Label", req, []byte("RaS2 payload"))
	if status(resp) != goipp.StatusOk {
		t.Fatalf("status = %v", status(resp))
	}
	jobID := int(attrInt(resp.Job, "job-id"))
	if jobID != 1 {
		t.Fatalf("job-id = %d, want 1", jobID)
	}
	if got := attrInt(resp.Job, "job-state"); got != int64(system.JobCompleted) {
		t.Fatalf("job-state = %d", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Spool.PrinterDir("Label"), "job-1-*"))
	if len(matches) != 1 {
		t.Fatalf("spooled files = %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read spool: %v", err)
	}
	if string(data) != "RaS2 payload" {
		t.Fatalf("spooled document = %q", data)
	}

	state, _, _ := p.State()
	if state != system.StateIdle {
		t.Fatalf("printer state = %v, want idle", state)
	}
}

func TestPrintJobRejectsUnsupportedFormat(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")

	req := newRequest(goipp.OpPrintJob, p.URI())
	req.Operation.Add(goipp.MakeAttribute("document-format", goipp.TagMimeType, goipp.String("application/pdf")))
	resp := roundTrip(t, s.Handler(), system.ServicePath+"/Label", req, []byte("%PDF"))
	if status(resp) != goipp.StatusErrorDocumentFormatNotSupported {
		t.Fatalf("status = %v", status(resp))
	}
	if all, _, _ := p.JobCounts(); all != 0 {
		t.Fatalf("jobs = %d, want none", all)
	}
}

func TestCreateJobSendDocumentAndGetJobs(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")
	h := s.Handler()
	target := system.ServicePath + "/Label"

	resp := roundTrip(t, h, target, newRequest(goipp.OpCreateJob, p.URI()), nil)
	if status(resp) != goipp.StatusOk {
		t.Fatalf("create-job status = %v", status(resp))
	}
	jobURI := attrString(resp.Job, "job-uri")
	if !strings.HasSuffix(jobURI, "/ipp/print/Label/1") {
		t.Fatalf("job-uri = %q", jobURI)
	}

	req := newRequest(goipp.OpGetJobs, p.URI())
	resp = roundTrip(t, h, target, req, nil)
	if len(resp.Job) == 0 || attrInt(resp.Job, "job-id") != 1 {
		t.Fatalf("active jobs = %v", resp.Job)
	}

	send := newRequest(goipp.OpSendDocument, "")
	send.Operation.Add(goipp.MakeAttribute("job-uri", goipp.TagURI, goipp.String(jobURI)))
	send.Operation.Add(goipp.MakeAttribute("last-document", goipp.TagBoolean, goipp.Boolean(true)))
	resp = roundTrip(t, h, target, send, []byte("data"))
	if status(resp) != goipp.StatusOk {
		t.Fatalf("send-document status = %v", status(resp))
	}

	req = newRequest(goipp.OpGetJobs, p.URI())
	resp = roundTrip(t, h, target, req, nil)
	if len(resp.Job) != 0 {
		t.Fatalf("active jobs after completion = %v", resp.Job)
	}

	req = newRequest(goipp.OpGetJobs, p.URI())
	req.Operation.Add(goipp.MakeAttribute("which-jobs", goipp.TagKeyword, goipp.String("completed")))
	req.Operation.Add(goipp.MakeAttribute("requested-attributes", goipp.TagKeyword, goipp.String("job-state")))
	resp = roundTrip(t, h, target, req, nil)
	if got := attrInt(resp.Job, "job-state"); got != int64(system.JobCompleted) {
		t.Fatalf("completed job-state = %d", got)
	}
	if attrInt(resp.Job, "job-id") != 0 {
		t.Fatalf("job-id returned although not requested")
	}
}

func TestCancelJob(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")
	ctx := context.Background()
	httpReq := httptest.NewRequest(http.MethodPost, "http://printhost:8631/ipp/print/Label", nil)

	info, err := p.CreateJob("doc", "alice", "")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	req := newRequest(goipp.OpCancelJob, p.URI())
	req.Operation.Add(goipp.MakeAttribute("job-id", goipp.TagInteger, goipp.Integer(info.ID)))

	resp, err := s.handleCancelJob(ctx, httpReq, req)
	if err != nil {
		t.Fatalf("handleCancelJob: %v", err)
	}
	if status(resp) != goipp.StatusOk {
		t.Fatalf("status = %v", status(resp))
	}
	got, _ := p.Job(info.ID)
	if got.State != system.JobCanceled {
		t.Fatalf("job state = %v", got.State)
	}

	resp, err = s.handleCancelJob(ctx, httpReq, req)
	if err != nil {
		t.Fatalf("handleCancelJob again: %v", err)
	}
	if status(resp) != goipp.StatusErrorNotPossible {
		t.Fatalf("second cancel status = %v, want not possible", status(resp))
	}

	missing := newRequest(goipp.OpCancelJob, p.URI())
	resp, err = s.handleCancelJob(ctx, httpReq, missing)
	if err != nil {
		t.Fatalf("handleCancelJob without id: %v", err)
	}
	if status(resp) != goipp.StatusErrorBadRequest {
		t.Fatalf("status without job id = %v", status(resp))
	}
}

func TestCancelMyJobsOnlyTouchesRequester(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")
	mine, _ := p.CreateJob("a", "alice", "")
	theirs, _ := p.CreateJob("b", "bob", "")

	req := newRequest(goipp.OpCancelMyJobs, p.URI())
	resp := roundTrip(t, s.Handler(), system.ServicePath+"/Label", req, nil)
	if status(resp) != goipp.StatusOk {
		t.Fatalf("status = %v", status(resp))
	}
	if got, _ := p.Job(mine.ID); got.State != system.JobCanceled {
		t.Fatalf("alice job state = %v", got.State)
	}
	if got, _ := p.Job(theirs.ID); got.State != system.JobPending {
		t.Fatalf("bob job state = %v", got.State)
	}
}

func TestCompletedHistoryIsPurged(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")
	h := s.Handler()

	for i := 0; i < 4; i++ {
		resp := roundTrip(t, h, system.ServicePath+"/Label", newRequest(goipp.OpPrintJob, p.URI()), []byte("x"))
		if status(resp) != goipp.StatusOk {
			t.Fatalf("print %d status = %v", i, status(resp))
		}
	}
	if _, _, completed := p.JobCounts(); completed != 2 {
		t.Fatalf("completed jobs = %d, want 2", completed)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Spool.PrinterDir("Label"), "job-*"))
	if len(matches) != 2 {
		t.Fatalf("spooled files = %v, want 2", matches)
	}
}

func TestSetPrinterAttributesPersists(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")

	req := newRequest(goipp.OpSetPrinterAttributes, p.URI())
	req.Printer.Add(goipp.MakeAttribute("printer-location", goipp.TagText, goipp.String("Dock 4")))
	req.Printer.Add(goipp.MakeAttribute("printer-name", goipp.TagName, goipp.String("Renamed")))
	resp := roundTrip(t, s.Handler(), system.ServicePath+"/Label", req, nil)

	if status(resp) != goipp.StatusErrorAttributesOrValues {
		t.Fatalf("status = %v, want attributes-or-values", status(resp))
	}
	if attrString(resp.Unsupported, "printer-name") != "Renamed" {
		t.Fatalf("unsupported group = %v", resp.Unsupported)
	}
	if p.Location() != "Dock 4" {
		t.Fatalf("location = %q", p.Location())
	}

	ctx := context.Background()
	err := s.Store.WithTx(ctx, true, func(tx *sql.Tx) error {
		rec, err := s.Store.GetPrinter(ctx, tx, p.ID())
		if err != nil {
			return err
		}
		if rec.Location != "Dock 4" {
			t.Fatalf("stored location = %q", rec.Location)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
}

func TestAddAndDeletePrinter(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	ctx := context.Background()

	req := newRequest(goipp.OpCupsAddModifyPrinter, "ipp://printhost:8631/ipp/print/Shelf")
	req.Printer.Add(goipp.MakeAttribute("ppd-name", goipp.TagName, goipp.String("pwg_4inch-300dpi-black_1")))
	req.Printer.Add(goipp.MakeAttribute("device-uri", goipp.TagURI, goipp.String("socket://10.0.0.9")))
	req.Printer.Add(goipp.MakeAttribute("printer-location", goipp.TagText, goipp.String("Aisle 7")))
	resp := roundTrip(t, h, system.ServicePath, req, nil)
	if status(resp) != goipp.StatusOk {
		t.Fatalf("add status = %v", status(resp))
	}
	id := int(attrInt(resp.Printer, "printer-id"))
	p := s.System.FindPrinter("", id)
	if p == nil || p.Name() != "Shelf" || p.Location() != "Aisle 7" {
		t.Fatalf("added printer = %+v", p)
	}

	resp = roundTrip(t, h, system.ServicePath, newRequest(goipp.OpCupsGetPrinters, ""), nil)
	if got := attrStrings(resp.Printer, "printer-name"); len(got) != 1 || got[0] != "Shelf" {
		t.Fatalf("printers = %v", got)
	}

	resp = roundTrip(t, h, system.ServicePath, newRequest(goipp.OpCupsDeletePrinter, p.URI()), nil)
	if status(resp) != goipp.StatusOk {
		t.Fatalf("delete status = %v", status(resp))
	}
	if s.System.FindPrinter("", id) != nil {
		t.Fatalf("printer still registered")
	}
	err := s.Store.WithTx(ctx, true, func(tx *sql.Tx) error {
		_, err := s.Store.GetPrinter(ctx, tx, id)
		if err == nil {
			t.Fatalf("printer row still stored")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
}

func TestDeleteBusyPrinterIsRefused(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")
	if _, err := p.CreateJob("queued", "alice", ""); err != nil {
		t.Fatalf("create job: %v", err)
	}
	resp := roundTrip(t, s.Handler(), system.ServicePath, newRequest(goipp.OpCupsDeletePrinter, p.URI()), nil)
	if status(resp) != goipp.StatusErrorNotPossible {
		t.Fatalf("status = %v, want not possible", status(resp))
	}
	if p.Deleted() {
		t.Fatalf("printer marked deleted")
	}
}

func TestAddModifyRejectsNumericResource(t *testing.T) {
	s := newTestServer(t)
	p := addPrinter(t, s, "Label")
	s.System.SetDefaultPrinterID(p.ID())

	req := newRequest(goipp.OpCupsAddModifyPrinter, "ipp://printhost:8631/ipp/print/7")
	req.Printer.Add(goipp.MakeAttribute("printer-location", goipp.TagText, goipp.String("Hijack")))
	resp := roundTrip(t, s.Handler(), system.ServicePath, req, nil)

	if status(resp) != goipp.StatusErrorAttributesOrValues {
		t.Fatalf("status = %v, want attributes-or-values", status(resp))
	}
	if p.Location() != "" {
		t.Fatalf("default printer modified: location = %q", p.Location())
	}
	if s.System.Len() != 1 || s.System.DefaultPrinterID() != p.ID() {
		t.Fatalf("registry changed: len %d default %d", s.System.Len(), s.System.DefaultPrinterID())
	}
}

func TestAddPrinterRolledBackWhenNotPersisted(t *testing.T) {
	s := newTestServer(t)
	if err := s.Store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	req := newRequest(goipp.OpCupsAddModifyPrinter, "ipp://printhost:8631/ipp/print/Shelf")
	req.Printer.Add(goipp.MakeAttribute("ppd-name", goipp.TagName, goipp.String("pwg_4inch-300dpi-black_1")))
	resp := roundTrip(t, s.Handler(), system.ServicePath, req, nil)

	if status(resp) != goipp.StatusErrorInternal {
		t.Fatalf("status = %v, want internal error", status(resp))
	}
	if s.System.Len() != 0 || s.System.FindPrinter(system.ServicePath+"/Shelf", 0) != nil {
		t.Fatalf("unsaved printer still registered")
	}
}

func TestRestoreKeepsPrinterIDs(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	err := s.Store.WithTx(ctx, false, func(tx *sql.Tx) error {
		return s.Store.SavePrinter(ctx, tx, store.PrinterRecord{
			ID: 7, Name: "Saved", DriverName: "pwg_2inch-203dpi-black_1", Location: "Front desk",
		})
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	declared := []DeclaredPrinter{
		{Name: "Saved", DriverName: "pwg_2inch-203dpi-black_1"},
		{Name: "Fresh", DriverName: "pwg_4inch-203dpi-black_1", Location: "Back room"},
	}
	if err := s.Restore(ctx, declared, "Fresh"); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	saved := s.System.FindPrinter("", 7)
	if saved == nil || saved.Name() != "Saved" || saved.Location() != "Front desk" {
		t.Fatalf("restored printer = %+v", saved)
	}
	fresh := s.findByName("Fresh")
	if fresh == nil || fresh.ID() == 7 {
		t.Fatalf("declared printer = %+v", fresh)
	}
	if s.System.DefaultPrinterID() != fresh.ID() {
		t.Fatalf("default printer id = %d, want %d", s.System.DefaultPrinterID(), fresh.ID())
	}

	err = s.Store.WithTx(ctx, true, func(tx *sql.Tx) error {
		st, err := s.Store.LoadSystemState(ctx, tx)
		if err != nil {
			return err
		}
		if st.UUID != s.System.UUID() || st.NextPrinterID != s.System.NextPrinterID() {
			t.Fatalf("system state = %+v", st)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
}

func TestNonIPPRequestsAreRejected(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://printhost/ipp/print", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "http://printhost/ipp/print", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("text/plain status = %d", rec.Code)
	}
}

func TestIndexListsPrinters(t *testing.T) {
	s := newTestServer(t)
	addPrinter(t, s, "Label")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://printhost/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "Label idle ipp://printhost:8631/ipp/print/Label\n" {
		t.Fatalf("index = %q", got)
	}
}

func TestMalformedIPPIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "http://printhost/ipp/print", strings.NewReader("\x02"))
	req.Header.Set("Content-Type", goipp.ContentType)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestJobIDFromURI(t *testing.T) {
	cases := map[string]int64{
		"ipp://host:631/ipp/print/Label/12": 12,
		"ipp://host:631/ipp/print/Label":    0,
		"":                                  0,
	}
	for uri, want := range cases {
		if got := jobIDFromURI(uri); got != want {
			t.Fatalf("jobIDFromURI(%q) = %d, want %d", uri, got, want)
		}
	}
}
