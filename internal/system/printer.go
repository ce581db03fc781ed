package system

import (
	"fmt"
	"strings"
	"sync"
	"time"

	goipp "github.com/OpenPrinting/goipp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lprintgolang/internal/driver"
	"lprintgolang/internal/jobqueue"
)

// Printer is one virtual printer. Identity fields are fixed once the printer
// is registered and may be read without locking; everything else is guarded
// by mu.
type Printer struct {
	system *System

	id          int
	name        string
	resource    string
	resourceLen int
	uuid        string
	deviceURI   string
	driverName  string

	// advMu orders discovery calls for this printer against deletion.
	advMu sync.Mutex

	mu           sync.RWMutex
	driverData   driver.Data
	driverAttrs  goipp.Attributes
	attrs        goipp.Attributes
	location     string
	geoLocation  string
	organization string
	orgUnit      string
	state        PrinterState
	reasons      Reason
	stateTime    time.Time
	startTime    time.Time
	configTime   time.Time
	jobs         *jobqueue.Queues[*Job]
	nextJobID    int
	deleted      bool
	released     bool
}

// CreatePrinter builds a printer, registers it with s and advertises it when
// discovery is configured. A positive explicitID restores a known id;
// otherwise the next free id is assigned. On error nothing is registered.
func CreatePrinter(s *System, explicitID int, name, driverName, deviceURI string) (*Printer, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Printer{
		system:     s,
		name:       name,
		resource:   ServicePath + "/" + name,
		uuid:       printerUUID(s.uuid, name, 0),
		deviceURI:  deviceURI,
		driverName: driverName,
		state:      StateIdle,
		reasons:    ReasonNone,
		stateTime:  now,
		startTime:  now,
		configTime: now,
		jobs:       jobqueue.New[*Job](),
		nextJobID:  1,
	}
	p.resourceLen = len(p.resource)

	if s.driverCB != nil && driverName != "" {
		data, extra, err := s.driverCB(driverName, deviceURI)
		if err != nil {
			return nil, fmt.Errorf("bind driver %s: %w", driverName, err)
		}
		p.driverData = data
		p.driverAttrs = extra
	}

	p.attrs = assembleCapabilities(capabilityInput{
		name:    name,
		uuid:    p.uuid,
		formats: documentFormats(p.driverData.Format, s.imageFmts),
		kOctets: kOctetsSupported(s.capacity, s.directory),
	})

	id, err := s.register(p, explicitID)
	if err != nil {
		return nil, err
	}
	s.log.Info("printer created",
		zap.Int("printer_id", id),
		zap.String("name", name),
		zap.String("driver", driverName),
		zap.String("device_uri", deviceURI))

	p.advertise()
	return p, nil
}

// advertise publishes p, replacing any earlier advertisement. It does
// nothing once deletion has started.
func (p *Printer) advertise() {
	s := p.system
	if !s.discoveryEnabled() {
		return
	}
	p.advMu.Lock()
	defer p.advMu.Unlock()
	if p.Deleted() {
		return
	}
	if err := s.advertiser.Register(p); err != nil {
		s.log.Warn("printer advertisement failed", zap.String("name", p.name), zap.Error(err))
	}
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.ContainsAny(name, "/?#"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case isNumeric(name):
		return fmt.Errorf("%w: %q is numeric", ErrInvalidName, name)
	}
	return nil
}

// printerUUID derives a stable printer identity from the system identity,
// the printer name and a salt index.
func printerUUID(systemUUID, name string, index int) string {
	ns, err := uuid.Parse(systemUUID)
	if err != nil {
		ns = uuid.NameSpaceURL
	}
	id := uuid.NewSHA1(ns, []byte(fmt.Sprintf("%s:%d", name, index)))
	return "urn:uuid:" + id.String()
}

// DeletePrinter removes p from the registry and releases it. A printer with
// active jobs is refused with ErrPrinterBusy; from the moment deletion starts
// the printer accepts no new jobs.
func (s *System) DeletePrinter(p *Printer) error {
	if p == nil || p.system != s {
		return ErrPrinterDeleted
	}

	p.mu.Lock()
	if p.deleted {
		p.mu.Unlock()
		return ErrPrinterDeleted
	}
	if n := p.jobs.LenActive(); n > 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s has %d", ErrPrinterBusy, p.name, n)
	}
	p.deleted = true
	p.reasons |= ReasonDeleting
	p.stateTime = time.Now()
	p.mu.Unlock()

	if !s.unregister(p) {
		return ErrPrinterDeleted
	}
	s.log.Info("printer deleted", zap.Int("printer_id", p.id), zap.String("name", p.name))
	p.teardown()
	return nil
}

// teardown withdraws the advertisement, then drops the attribute stores and
// every job. It waits for current lock holders before releasing anything.
func (p *Printer) teardown() {
	if p.system.discoveryEnabled() {
		p.advMu.Lock()
		p.system.advertiser.Unregister(p)
		p.advMu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.attrs = nil
	p.driverAttrs = nil
	p.driverData = driver.Data{}
	p.jobs.Clear()
	p.released = true
}

func (p *Printer) ID() int            { return p.id }
func (p *Printer) Name() string       { return p.name }
func (p *Printer) Resource() string   { return p.resource }
func (p *Printer) UUID() string       { return p.uuid }
func (p *Printer) DeviceURI() string  { return p.deviceURI }
func (p *Printer) DriverName() string { return p.driverName }
func (p *Printer) System() *System    { return p.system }
func (p *Printer) ResourceLen() int   { return p.resourceLen }

// URI is the ipp:// address clients use for this printer.
func (p *Printer) URI() string {
	return fmt.Sprintf("ipp://%s:%d%s", p.system.hostname, p.system.port, p.resource)
}

// Deleted reports whether deletion has started.
func (p *Printer) Deleted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deleted
}

// DriverData returns the driver-negotiated capabilities.
func (p *Printer) DriverData() driver.Data {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.driverData
}

// Attributes returns a copy of the capability and driver attributes.
func (p *Printer) Attributes() goipp.Attributes {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(goipp.Attributes, 0, len(p.attrs)+len(p.driverAttrs))
	for _, attr := range p.attrs {
		out = append(out, attr.DeepCopy())
	}
	for _, attr := range p.driverAttrs {
		out = append(out, attr.DeepCopy())
	}
	return out
}

// Attribute looks up a single attribute by name, capability store first.
func (p *Printer) Attribute(name string) (goipp.Attribute, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, set := range []goipp.Attributes{p.attrs, p.driverAttrs} {
		for _, attr := range set {
			if attr.Name == name {
				return attr.DeepCopy(), true
			}
		}
	}
	return goipp.Attribute{}, false
}

// SetAttribute replaces the value of a settable attribute. Location and
// organization attributes are kept as fields; the rest overwrite the
// matching capability or driver attribute, or are appended when absent.
// A new printer-location is re-advertised.
func (p *Printer) SetAttribute(attr goipp.Attribute) error {
	if !isSettable(attr.Name) {
		return fmt.Errorf("%w: %s", ErrNotSettable, attr.Name)
	}
	if err := p.setAttribute(attr); err != nil {
		return err
	}
	if attr.Name == "printer-location" {
		p.advertise()
	}
	return nil
}

func (p *Printer) setAttribute(attr goipp.Attribute) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return ErrPrinterDeleted
	}

	value := ""
	if len(attr.Values) > 0 {
		value = attr.Values[0].V.String()
	}
	switch attr.Name {
	case "printer-location":
		p.location = value
	case "printer-geo-location":
		p.geoLocation = value
	case "printer-organization":
		p.organization = value
	case "printer-organizational-unit":
		p.orgUnit = value
	default:
		if !replaceAttribute(p.attrs, attr) && !replaceAttribute(p.driverAttrs, attr) {
			p.attrs.Add(attr.DeepCopy())
		}
	}
	p.configTime = time.Now()
	return nil
}

// replaceAttribute overwrites the attribute named like attr in set.
func replaceAttribute(set goipp.Attributes, attr goipp.Attribute) bool {
	for i := range set {
		if set[i].Name == attr.Name {
			set[i] = attr.DeepCopy()
			return true
		}
	}
	return false
}

func isSettable(name string) bool {
	for _, s := range printerSettableAttributes {
		if s == name {
			return true
		}
	}
	return false
}

// Location returns printer-location.
func (p *Printer) Location() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.location
}

func (p *Printer) GeoLocation() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.geoLocation
}

// Organization returns printer-organization and printer-organizational-unit.
func (p *Printer) Organization() (org, unit string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.organization, p.orgUnit
}

// State returns the printer state, its reasons and when it last changed.
func (p *Printer) State() (PrinterState, Reason, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state, p.reasons, p.stateTime
}

// SetState updates the printer state and replaces its reasons.
func (p *Printer) SetState(state PrinterState, reasons Reason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		reasons |= ReasonDeleting
	}
	if p.state != state || p.reasons != reasons {
		p.state = state
		p.reasons = reasons
		p.stateTime = time.Now()
	}
}

// Identify records an identify request. The actions are logged; the
// identify-printer-requested reason stays set until ClearReasons removes it.
func (p *Printer) Identify(actions []string, message string) {
	p.mu.Lock()
	p.reasons |= ReasonIdentifyPrinterRequested
	p.stateTime = time.Now()
	p.mu.Unlock()
	p.system.log.Info("identify printer",
		zap.String("name", p.name),
		zap.Strings("actions", actions),
		zap.String("message", message))
}

// ClearReasons removes the given reasons.
func (p *Printer) ClearReasons(reasons Reason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reasons&reasons != 0 {
		p.reasons &^= reasons
		p.stateTime = time.Now()
	}
}

// StatusAttributes reports the dynamic printer attributes as of now.
func (p *Printer) StatusAttributes(now time.Time) goipp.Attributes {
	p.mu.RLock()
	defer p.mu.RUnlock()

	attrs := goipp.Attributes{}
	attrs.Add(goipp.MakeAttribute("printer-id", goipp.TagInteger, goipp.Integer(p.id)))
	attrs.Add(goipp.MakeAttribute("printer-uri-supported", goipp.TagURI, goipp.String(p.URI())))
	attrs.Add(goipp.MakeAttribute("printer-state", goipp.TagEnum, goipp.Integer(p.state)))
	attrs.Add(makeStringsAttr("printer-state-reasons", goipp.TagKeyword, p.reasons.Keywords()))
	attrs.Add(goipp.MakeAttribute("printer-state-change-time", goipp.TagInteger, goipp.Integer(p.stateTime.Unix())))
	attrs.Add(goipp.MakeAttribute("printer-config-change-time", goipp.TagInteger, goipp.Integer(p.configTime.Unix())))
	attrs.Add(goipp.MakeAttribute("printer-up-time", goipp.TagInteger, goipp.Integer(int(now.Sub(p.startTime).Seconds())+1)))
	attrs.Add(goipp.MakeAttribute("printer-is-accepting-jobs", goipp.TagBoolean, goipp.Boolean(!p.deleted)))
	attrs.Add(goipp.MakeAttribute("queued-job-count", goipp.TagInteger, goipp.Integer(p.jobs.LenActive())))
	attrs.Add(goipp.MakeAttribute("printer-location", goipp.TagText, goipp.String(p.location)))
	attrs.Add(goipp.MakeAttribute("printer-organization", goipp.TagText, goipp.String(p.organization)))
	attrs.Add(goipp.MakeAttribute("printer-organizational-unit", goipp.TagText, goipp.String(p.orgUnit)))
	if p.geoLocation != "" {
		attrs.Add(goipp.MakeAttribute("printer-geo-location", goipp.TagURI, goipp.String(p.geoLocation)))
	} else {
		attrs.Add(goipp.MakeAttribute("printer-geo-location", goipp.TagUnknown, goipp.Void{}))
	}
	return attrs
}
