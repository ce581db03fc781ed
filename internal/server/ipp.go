package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	goipp "github.com/OpenPrinting/goipp"
	"go.uber.org/zap"

	"lprintgolang/internal/logging"
	"lprintgolang/internal/system"
)

const identifyHold = 5 * time.Second

func (s *Server) handleIPPRequest(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	buf := bytes.NewBuffer(body)

	var req goipp.Message
	if err := req.Decode(buf); err != nil {
		http.Error(w, "malformed IPP request", http.StatusBadRequest)
		return err
	}

	op := goipp.Op(req.Code)
	ctx := r.Context()

	var resp *goipp.Message
	switch op {
	case goipp.OpGetPrinterAttributes:
		resp, err = s.handleGetPrinterAttributes(ctx, r, &req)
	case goipp.OpSetPrinterAttributes:
		resp, err = s.handleSetPrinterAttributes(ctx, r, &req)
	case goipp.OpIdentifyPrinter:
		resp, err = s.handleIdentifyPrinter(ctx, r, &req)
	case goipp.OpValidateJob:
		resp, err = s.handleValidateJob(ctx, r, &req)
	case goipp.OpPrintJob:
		resp, err = s.handlePrintJob(ctx, r, &req, buf)
	case goipp.OpCreateJob:
		resp, err = s.handleCreateJob(ctx, r, &req)
	case goipp.OpSendDocument:
		resp, err = s.handleSendDocument(ctx, r, &req, buf)
	case goipp.OpCloseJob:
		resp, err = s.handleCloseJob(ctx, r, &req)
	case goipp.OpCancelJob:
		resp, err = s.handleCancelJob(ctx, r, &req)
	case goipp.OpCancelMyJobs:
		resp, err = s.handleCancelMyJobs(ctx, r, &req)
	case goipp.OpGetJobAttributes:
		resp, err = s.handleGetJobAttributes(ctx, r, &req)
	case goipp.OpGetJobs:
		resp, err = s.handleGetJobs(ctx, r, &req)
	case goipp.OpCupsGetPrinters:
		resp, err = s.handleCupsGetPrinters(ctx, r, &req)
	case goipp.OpCupsGetDefault:
		resp, err = s.handleCupsGetDefault(ctx, r, &req)
	case goipp.OpCupsSetDefault:
		resp, err = s.handleCupsSetDefault(ctx, r, &req)
	case goipp.OpCupsAddModifyPrinter:
		resp, err = s.handleCupsAddModifyPrinter(ctx, r, &req)
	case goipp.OpCupsDeletePrinter:
		resp, err = s.handleCupsDeletePrinter(ctx, r, &req)
	default:
		resp = goipp.NewResponse(req.Version, goipp.StatusErrorOperationNotSupported, req.RequestID)
		addOperationDefaults(resp)
	}

	if err != nil {
		s.logger().Error("IPP operation failed", zap.Stringer("op", op), zap.Error(err))
		resp = goipp.NewResponse(req.Version, goipp.StatusErrorInternal, req.RequestID)
		addOperationDefaults(resp)
	}

	w.Header().Set("Content-Type", goipp.ContentType)
	w.WriteHeader(http.StatusOK)
	return resp.Encode(w)
}

func response(req *goipp.Message, status goipp.Status) *goipp.Message {
	resp := goipp.NewResponse(req.Version, status, req.RequestID)
	addOperationDefaults(resp)
	return resp
}

// statusFor maps registry errors to IPP status codes. Unknown errors are
// returned as internal errors by the caller.
func statusFor(err error) (goipp.Status, bool) {
	switch {
	case errors.Is(err, system.ErrJobNotFound):
		return goipp.StatusErrorNotFound, true
	case errors.Is(err, system.ErrJobCompleted),
		errors.Is(err, system.ErrPrinterBusy):
		return goipp.StatusErrorNotPossible, true
	case errors.Is(err, system.ErrPrinterDeleted):
		return goipp.StatusErrorNotAcceptingJobs, true
	case errors.Is(err, system.ErrNotSettable),
		errors.Is(err, system.ErrInvalidName),
		errors.Is(err, system.ErrDuplicateName):
		return goipp.StatusErrorAttributesOrValues, true
	}
	return 0, false
}

// resolvePrinter finds the printer a request targets: the printer-uri
// operation attribute, then the job-uri, then the request path, along with
// an optional printer-id.
func (s *Server) resolvePrinter(r *http.Request, req *goipp.Message) *system.Printer {
	resource := uriPath(attrString(req.Operation, "printer-uri"))
	if resource == "" {
		resource = uriPath(attrString(req.Operation, "job-uri"))
	}
	if resource == "" {
		resource = r.URL.Path
	}
	id := int(attrInt(req.Operation, "printer-id"))
	return s.System.FindPrinter(resource, id)
}

func uriPath(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Path
}

func requestingUser(req *goipp.Message) string {
	if user := strings.TrimSpace(attrString(req.Operation, "requesting-user-name")); user != "" {
		return user
	}
	return "anonymous"
}

func (s *Server) handleGetPrinterAttributes(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	resp := response(req, goipp.StatusOk)
	for _, attr := range filterAttributesForRequest(printerAttributes(p), req) {
		resp.Printer.Add(attr)
	}
	return resp, nil
}

func printerAttributes(p *system.Printer) goipp.Attributes {
	attrs := p.Attributes()
	for _, attr := range p.StatusAttributes(time.Now()) {
		attrs.Add(attr)
	}
	return attrs
}

func (s *Server) handleSetPrinterAttributes(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	unsupported := goipp.Attributes{}
	for _, attr := range req.Printer {
		if err := p.SetAttribute(attr); err != nil {
			if errors.Is(err, system.ErrNotSettable) {
				unsupported.Add(attr)
				continue
			}
			if status, ok := statusFor(err); ok {
				return response(req, status), nil
			}
			return nil, err
		}
	}
	if err := s.savePrinter(ctx, p); err != nil {
		return nil, err
	}
	if len(unsupported) > 0 {
		resp := response(req, goipp.StatusErrorAttributesOrValues)
		for _, attr := range unsupported {
			resp.Unsupported.Add(attr)
		}
		return resp, nil
	}
	return response(req, goipp.StatusOk), nil
}

func (s *Server) handleIdentifyPrinter(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	actions := attrStrings(req.Operation, "identify-actions")
	if len(actions) == 0 {
		if def, ok := p.Attribute("identify-actions-default"); ok && len(def.Values) > 0 {
			actions = []string{def.Values[0].V.String()}
		}
	}
	p.Identify(actions, attrString(req.Operation, "message"))
	time.AfterFunc(identifyHold, func() {
		p.ClearReasons(system.ReasonIdentifyPrinterRequested)
	})
	return response(req, goipp.StatusOk), nil
}

// checkJobRequest resolves the printer and validates the requested document
// format. A nil printer comes with the response to send.
func (s *Server) checkJobRequest(r *http.Request, req *goipp.Message) (*system.Printer, *goipp.Message) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return nil, response(req, goipp.StatusErrorNotFound)
	}
	if p.Deleted() {
		return nil, response(req, goipp.StatusErrorNotAcceptingJobs)
	}
	format := attrString(req.Operation, "document-format")
	if format != "" && !formatSupported(p, format) {
		resp := response(req, goipp.StatusErrorDocumentFormatNotSupported)
		resp.Unsupported.Add(goipp.MakeAttribute("document-format", goipp.TagMimeType, goipp.String(format)))
		return nil, resp
	}
	return p, nil
}

func formatSupported(p *system.Printer, format string) bool {
	supported, ok := p.Attribute("document-format-supported")
	if !ok {
		return false
	}
	for _, v := range supported.Values {
		if strings.EqualFold(v.V.String(), format) {
			return true
		}
	}
	return false
}

func (s *Server) handleValidateJob(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	if _, resp := s.checkJobRequest(r, req); resp != nil {
		return resp, nil
	}
	return response(req, goipp.StatusOk), nil
}

func (s *Server) createJob(req *goipp.Message, p *system.Printer) (system.JobInfo, error) {
	name := attrString(req.Operation, "job-name")
	if name == "" {
		name = attrString(req.Operation, "document-name")
	}
	return p.CreateJob(name, requestingUser(req), attrString(req.Operation, "document-format"))
}

func (s *Server) handlePrintJob(ctx context.Context, r *http.Request, req *goipp.Message, doc io.Reader) (*goipp.Message, error) {
	p, resp := s.checkJobRequest(r, req)
	if resp != nil {
		return resp, nil
	}
	info, err := s.createJob(req, p)
	if err != nil {
		if status, ok := statusFor(err); ok {
			return response(req, status), nil
		}
		return nil, err
	}
	info, err = s.processDocument(p, info, req, doc)
	if err != nil {
		return nil, err
	}
	return jobResponse(req, p, info), nil
}

func (s *Server) handleCreateJob(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p, resp := s.checkJobRequest(r, req)
	if resp != nil {
		return resp, nil
	}
	info, err := s.createJob(req, p)
	if err != nil {
		if status, ok := statusFor(err); ok {
			return response(req, status), nil
		}
		return nil, err
	}
	return jobResponse(req, p, info), nil
}

func (s *Server) handleSendDocument(ctx context.Context, r *http.Request, req *goipp.Message, doc io.Reader) (*goipp.Message, error) {
	p, info, resp := s.resolveJob(r, req)
	if resp != nil {
		return resp, nil
	}
	if info.State.Terminal() {
		return response(req, goipp.StatusErrorNotPossible), nil
	}
	if format := attrString(req.Operation, "document-format"); format != "" && !formatSupported(p, format) {
		return response(req, goipp.StatusErrorDocumentFormatNotSupported), nil
	}
	info, err := s.processDocument(p, info, req, doc)
	if err != nil {
		return nil, err
	}
	return jobResponse(req, p, info), nil
}

// processDocument spools the job's document and runs the job to a terminal
// state. Jobs accept a single document.
func (s *Server) processDocument(p *system.Printer, info system.JobInfo, req *goipp.Message, doc io.Reader) (system.JobInfo, error) {
	if err := p.StartJob(info.ID); err != nil {
		return info, err
	}
	state, result := system.JobCompleted, "ok"
	_, n, err := s.Spool.Save(p.Name(), info.ID, attrString(req.Operation, "document-name"), doc)
	if err != nil {
		s.logger().Warn("spool document failed",
			zap.String("printer", p.Name()),
			zap.Int("job_id", info.ID),
			zap.Error(err))
		state, result = system.JobAborted, "aborted"
	}
	if err := p.FinishJob(info.ID, state); err != nil {
		return info, err
	}
	logging.Page(logging.PageLogLine(p.Name(), info.User, info.ID, info.Name, int(attrInt(req.Job, "copies")), result))
	s.logger().Info("job processed",
		zap.String("printer", p.Name()),
		zap.Int("job_id", info.ID),
		zap.Int64("bytes", n),
		zap.String("result", result))

	if updated, ok := p.Job(info.ID); ok {
		info = updated
	}
	s.purgeCompleted(p)
	return info, nil
}

// purgeCompleted trims the completed view to JobHistory and removes the
// spooled documents of the purged jobs. Zero keeps every job.
func (s *Server) purgeCompleted(p *system.Printer) {
	if s.JobHistory <= 0 {
		return
	}
	for _, id := range p.PurgeCompleted(s.JobHistory) {
		if err := s.Spool.RemoveJob(p.Name(), id); err != nil {
			s.logger().Warn("remove spooled job failed", zap.Int("job_id", id), zap.Error(err))
		}
	}
}

func jobResponse(req *goipp.Message, p *system.Printer, info system.JobInfo) *goipp.Message {
	resp := response(req, goipp.StatusOk)
	for _, attr := range p.JobAttributes(info) {
		switch attr.Name {
		case "job-id", "job-uri", "job-state", "job-state-reasons":
			resp.Job.Add(attr)
		}
	}
	return resp
}

// resolveJob finds the job addressed by job-id or job-uri on the target
// printer.
func (s *Server) resolveJob(r *http.Request, req *goipp.Message) (*system.Printer, system.JobInfo, *goipp.Message) {
	jobID := attrInt(req.Operation, "job-id")
	if jobID == 0 {
		jobID = jobIDFromURI(attrString(req.Operation, "job-uri"))
	}
	if jobID == 0 {
		return nil, system.JobInfo{}, response(req, goipp.StatusErrorBadRequest)
	}
	p := s.resolvePrinter(r, req)
	if p == nil {
		return nil, system.JobInfo{}, response(req, goipp.StatusErrorNotFound)
	}
	info, ok := p.Job(int(jobID))
	if !ok {
		return nil, system.JobInfo{}, response(req, goipp.StatusErrorNotFound)
	}
	return p, info, nil
}

func (s *Server) handleCloseJob(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p, info, resp := s.resolveJob(r, req)
	if resp != nil {
		return resp, nil
	}
	if err := p.FinishJob(info.ID, system.JobCompleted); err != nil {
		if status, ok := statusFor(err); ok {
			return response(req, status), nil
		}
		return nil, err
	}
	s.purgeCompleted(p)
	return response(req, goipp.StatusOk), nil
}

func (s *Server) handleCancelJob(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p, info, resp := s.resolveJob(r, req)
	if resp != nil {
		return resp, nil
	}
	if err := p.CancelJob(info.ID); err != nil {
		if status, ok := statusFor(err); ok {
			return response(req, status), nil
		}
		return nil, err
	}
	s.purgeCompleted(p)
	return response(req, goipp.StatusOk), nil
}

func (s *Server) handleCancelMyJobs(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	user := requestingUser(req)
	for _, info := range p.Jobs("not-completed", 0) {
		if info.User != user {
			continue
		}
		if err := p.CancelJob(info.ID); err != nil && !errors.Is(err, system.ErrJobCompleted) {
			return nil, err
		}
	}
	s.purgeCompleted(p)
	return response(req, goipp.StatusOk), nil
}

func (s *Server) handleGetJobAttributes(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p, info, resp := s.resolveJob(r, req)
	if resp != nil {
		return resp, nil
	}
	resp = response(req, goipp.StatusOk)
	for _, attr := range filterAttributesForRequest(p.JobAttributes(info), req) {
		resp.Job.Add(attr)
	}
	return resp, nil
}

func (s *Server) handleGetJobs(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	which := attrString(req.Operation, "which-jobs")
	limit := int(attrInt(req.Operation, "limit"))
	myJobs := attrBool(req.Operation, "my-jobs")
	user := requestingUser(req)

	// Without requested-attributes Get-Jobs returns only job-id and job-uri.
	filter := func(attrs goipp.Attributes) goipp.Attributes {
		if len(attrStrings(req.Operation, "requested-attributes")) == 0 {
			out := goipp.Attributes{}
			for _, attr := range attrs {
				if attr.Name == "job-id" || attr.Name == "job-uri" {
					out.Add(attr)
				}
			}
			return out
		}
		return filterAttributesForRequest(attrs, req)
	}

	jobs := p.Jobs(which, 0)
	groups := make(goipp.Groups, 0, len(jobs)+1)
	groups = append(groups, goipp.Group{Tag: goipp.TagOperationGroup, Attrs: buildOperationDefaults()})
	for _, info := range jobs {
		if myJobs && info.User != user {
			continue
		}
		if limit > 0 && len(groups) > limit {
			break
		}
		groups = append(groups, goipp.Group{Tag: goipp.TagJobGroup, Attrs: filter(p.JobAttributes(info))})
	}
	return goipp.NewMessageWithGroups(req.Version, goipp.Code(goipp.StatusOk), req.RequestID, groups), nil
}

func (s *Server) handleCupsGetPrinters(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	limit := int(attrInt(req.Operation, "limit"))
	printers := s.System.Printers()
	groups := make(goipp.Groups, 0, len(printers)+1)
	groups = append(groups, goipp.Group{Tag: goipp.TagOperationGroup, Attrs: buildOperationDefaults()})
	for _, p := range printers {
		if limit > 0 && len(groups) > limit {
			break
		}
		if p.Deleted() {
			continue
		}
		groups = append(groups, goipp.Group{Tag: goipp.TagPrinterGroup, Attrs: filterAttributesForRequest(printerAttributes(p), req)})
	}
	return goipp.NewMessageWithGroups(req.Version, goipp.Code(goipp.StatusOk), req.RequestID, groups), nil
}

func (s *Server) handleCupsGetDefault(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.System.FindPrinter(system.ServicePath, 0)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	resp := response(req, goipp.StatusOk)
	for _, attr := range filterAttributesForRequest(printerAttributes(p), req) {
		resp.Printer.Add(attr)
	}
	return resp, nil
}

func (s *Server) handleCupsSetDefault(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	s.System.SetDefaultPrinterID(p.ID())
	if err := s.saveSystemState(ctx); err != nil {
		return nil, err
	}
	return response(req, goipp.StatusOk), nil
}

// handleCupsAddModifyPrinter creates the printer named by printer-uri, or
// updates the settable attributes of an existing one.
func (s *Server) handleCupsAddModifyPrinter(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	resource := uriPath(attrString(req.Operation, "printer-uri"))
	if tail, ok := strings.CutPrefix(resource, system.ServicePath+"/"); ok && isDigits(tail) {
		return response(req, goipp.StatusErrorAttributesOrValues), nil
	}
	if p := s.System.FindPrinter(resource, 0); p != nil && p.Resource() == resource {
		return s.handleSetPrinterAttributes(ctx, r, req)
	}
	name := attrString(req.Printer, "printer-name")
	if name == "" {
		name = strings.TrimPrefix(resource, system.ServicePath+"/")
	}
	driverName := attrString(req.Printer, "ppd-name")
	deviceURI := attrString(req.Printer, "device-uri")

	p, err := system.CreatePrinter(s.System, 0, name, driverName, deviceURI)
	if err != nil {
		if status, ok := statusFor(err); ok {
			return response(req, status), nil
		}
		s.logger().Warn("add printer failed", zap.String("name", name), zap.Error(err))
		return response(req, goipp.StatusErrorNotPossible), nil
	}
	for _, attr := range req.Printer {
		switch attr.Name {
		case "printer-name", "ppd-name", "device-uri":
			continue
		}
		if err := p.SetAttribute(attr); err != nil && !errors.Is(err, system.ErrNotSettable) {
			return nil, err
		}
	}
	if err := s.persistNewPrinter(ctx, p); err != nil {
		return nil, err
	}
	resp := response(req, goipp.StatusOk)
	resp.Printer.Add(goipp.MakeAttribute("printer-id", goipp.TagInteger, goipp.Integer(p.ID())))
	resp.Printer.Add(goipp.MakeAttribute("printer-uri-supported", goipp.TagURI, goipp.String(p.URI())))
	return resp, nil
}

// persistNewPrinter saves a freshly added printer. On failure the printer is
// deleted again so memory and store agree.
func (s *Server) persistNewPrinter(ctx context.Context, p *system.Printer) error {
	err := s.savePrinter(ctx, p)
	if err == nil {
		err = s.saveSystemState(ctx)
	}
	if err == nil {
		return nil
	}
	s.logger().Warn("persist printer failed", zap.String("name", p.Name()), zap.Error(err))
	if derr := s.System.DeletePrinter(p); derr != nil {
		s.logger().Warn("roll back printer failed", zap.String("name", p.Name()), zap.Error(derr))
	}
	if ferr := s.forgetPrinter(ctx, p.ID()); ferr != nil {
		s.logger().Debug("forget printer failed", zap.Int("printer_id", p.ID()), zap.Error(ferr))
	}
	return err
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Server) handleCupsDeletePrinter(ctx context.Context, r *http.Request, req *goipp.Message) (*goipp.Message, error) {
	p := s.resolvePrinter(r, req)
	if p == nil {
		return response(req, goipp.StatusErrorNotFound), nil
	}
	if err := s.System.DeletePrinter(p); err != nil {
		if status, ok := statusFor(err); ok {
			return response(req, status), nil
		}
		return nil, err
	}
	if err := s.Spool.RemovePrinter(p.Name()); err != nil {
		s.logger().Warn("remove printer spool failed", zap.String("printer", p.Name()), zap.Error(err))
	}
	if err := s.forgetPrinter(ctx, p.ID()); err != nil {
		return nil, err
	}
	return response(req, goipp.StatusOk), nil
}

func addOperationDefaults(resp *goipp.Message) {
	resp.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	resp.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
}

func buildOperationDefaults() goipp.Attributes {
	attrs := goipp.Attributes{}
	attrs.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	attrs.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
	return attrs
}

func attrString(attrs goipp.Attributes, name string) string {
	for _, attr := range attrs {
		if attr.Name != name {
			continue
		}
		if len(attr.Values) == 0 {
			return ""
		}
		return attr.Values[0].V.String()
	}
	return ""
}

func attrStrings(attrs goipp.Attributes, name string) []string {
	out := []string{}
	for _, attr := range attrs {
		if attr.Name != name {
			continue
		}
		for _, v := range attr.Values {
			out = append(out, v.V.String())
		}
	}
	return out
}

func attrInt(attrs goipp.Attributes, name string) int64 {
	for _, attr := range attrs {
		if attr.Name != name {
			continue
		}
		if len(attr.Values) == 0 {
			return 0
		}
		if v, ok := attr.Values[0].V.(goipp.Integer); ok {
			return int64(v)
		}
		if v, ok := attr.Values[0].V.(goipp.String); ok {
			n, _ := strconv.ParseInt(string(v), 10, 64)
			return n
		}
	}
	return 0
}

func attrBool(attrs goipp.Attributes, name string) bool {
	for _, attr := range attrs {
		if attr.Name != name {
			continue
		}
		if len(attr.Values) == 0 {
			return false
		}
		switch v := attr.Values[0].V.(type) {
		case goipp.Boolean:
			return bool(v)
		case goipp.Integer:
			return v != 0
		default:
			return strings.EqualFold(v.String(), "true")
		}
	}
	return false
}

func jobIDFromURI(uri string) int64 {
	p := uriPath(uri)
	if p == "" {
		return 0
	}
	n, _ := strconv.ParseInt(path.Base(p), 10, 64)
	return n
}

// filterAttributesForRequest keeps the attributes named by
// requested-attributes. "all" and the group keywords select everything.
func filterAttributesForRequest(attrs goipp.Attributes, req *goipp.Message) goipp.Attributes {
	requested, all := requestedAttributes(req)
	if all {
		return attrs
	}
	out := goipp.Attributes{}
	for _, attr := range attrs {
		if requested[strings.ToLower(attr.Name)] {
			out.Add(attr)
		}
	}
	return out
}

func requestedAttributes(req *goipp.Message) (map[string]bool, bool) {
	if req == nil {
		return nil, true
	}
	values := attrStrings(req.Operation, "requested-attributes")
	if len(values) == 0 {
		return nil, true
	}
	set := map[string]bool{}
	for _, v := range values {
		name := strings.ToLower(strings.TrimSpace(v))
		switch name {
		case "":
			continue
		case "all", "printer-description", "printer-defaults", "printer-configuration", "printer-status",
			"job-description", "job-template", "job-status":
			return nil, true
		}
		set[name] = true
	}
	return set, false
}
