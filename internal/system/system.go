// Package system holds the printer registry of a printer application: the
// printers a process exposes, their advertised capabilities and their job
// queues.
//
// Two lock scopes exist. The System lock guards the printer collection and
// the id counters; each Printer's lock guards that printer's attributes,
// state and jobs. Code never takes the System lock while holding a Printer
// lock, and discovery calls run outside both.
package system

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lprintgolang/internal/driver"
	"lprintgolang/internal/random"
)

// ServicePath is the resource that addresses the default printer.
const ServicePath = "/ipp/print"

// Advertiser publishes printers over service discovery. Register replaces
// any advertisement already published for the printer. Both calls may block
// and are never made while the registry or a printer's state lock is held.
type Advertiser interface {
	Register(p *Printer) error
	Unregister(p *Printer)
}

// SpoolCapacityFunc reports the total size in bytes of the filesystem
// holding dir.
type SpoolCapacityFunc func(dir string) (uint64, error)

// System is the process-wide printer registry.
type System struct {
	mu               sync.RWMutex
	printers         *btree.BTreeG[*Printer]
	nextPrinterID    int
	defaultPrinterID int

	uuid       string
	hostname   string
	port       int
	directory  string
	subtypes   []string
	advertiser Advertiser
	driverCB   driver.Callback
	capacity   SpoolCapacityFunc
	imageFmts  []string
	rng        *random.Generator
	log        *zap.Logger
}

// Option configures a System at construction.
type Option func(*System)

// WithUUID fixes the system identity instead of minting a random one.
func WithUUID(id string) Option {
	return func(s *System) { s.uuid = id }
}

func WithHostname(host string, port int) Option {
	return func(s *System) {
		s.hostname = host
		s.port = port
	}
}

// WithDirectory sets the spool directory used for capacity queries.
func WithDirectory(dir string) Option {
	return func(s *System) { s.directory = dir }
}

// WithAdvertiser enables discovery registration for the given service
// subtypes. A nil advertiser or empty subtype list leaves discovery off.
func WithAdvertiser(a Advertiser, subtypes ...string) Option {
	return func(s *System) {
		s.advertiser = a
		s.subtypes = append([]string(nil), subtypes...)
	}
}

func WithDriverCallback(cb driver.Callback) Option {
	return func(s *System) { s.driverCB = cb }
}

func WithSpoolCapacity(fn SpoolCapacityFunc) Option {
	return func(s *System) { s.capacity = fn }
}

// WithImageFormats overrides the image formats compiled into this build.
func WithImageFormats(formats ...string) Option {
	return func(s *System) { s.imageFmts = append([]string(nil), formats...) }
}

func WithRandom(g *random.Generator) Option {
	return func(s *System) { s.rng = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *System) { s.log = l }
}

// WithNextPrinterID restores the id counter, e.g. from persisted state.
func WithNextPrinterID(id int) Option {
	return func(s *System) {
		if id > s.nextPrinterID {
			s.nextPrinterID = id
		}
	}
}

func byName(a, b *Printer) bool {
	return a.name < b.name
}

// New returns an empty System.
func New(opts ...Option) *System {
	s := &System{
		printers:      btree.NewG[*Printer](8, byName),
		nextPrinterID: 1,
		port:          631,
		imageFmts:     imageFormats(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.rng == nil {
		s.rng = random.Default()
	}
	if s.hostname == "" {
		s.hostname, _ = os.Hostname()
		if s.hostname == "" {
			s.hostname = "localhost"
		}
	}
	if s.directory == "" {
		s.directory = os.TempDir()
	}
	if _, err := uuid.Parse(strings.TrimPrefix(s.uuid, "urn:uuid:")); err != nil {
		s.uuid = s.mintUUID()
	}
	s.uuid = strings.TrimPrefix(s.uuid, "urn:uuid:")
	return s
}

// mintUUID builds a version 4 UUID from the system random generator.
func (s *System) mintUUID() string {
	var b uuid.UUID
	for i := 0; i < len(b); i += 4 {
		v := s.rng.Uint32()
		b[i], b[i+1], b[i+2], b[i+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return b.String()
}

// UUID is the system identity without the urn:uuid: prefix.
func (s *System) UUID() string { return s.uuid }

func (s *System) Hostname() string  { return s.hostname }
func (s *System) Port() int         { return s.port }
func (s *System) Directory() string { return s.directory }

// Subtypes lists the discovery subtypes; empty means discovery is off.
func (s *System) Subtypes() []string {
	return append([]string(nil), s.subtypes...)
}

// Logger returns the system logger.
func (s *System) Logger() *zap.Logger { return s.log }

func (s *System) discoveryEnabled() bool {
	return s.advertiser != nil && len(s.subtypes) > 0
}

// register assigns the printer id and inserts it. An explicit id that is
// already taken, or a name already in use, is rejected; the counter only
// ever moves forward so ids are never handed out twice.
func (s *System) register(p *Printer, explicitID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.printers.Has(p) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, p.name)
	}
	id := explicitID
	if id > 0 {
		if s.idInUseLocked(id) {
			return 0, fmt.Errorf("%w: %d", ErrDuplicatePrinterID, id)
		}
		if id >= s.nextPrinterID {
			s.nextPrinterID = id + 1
		}
	} else {
		id = s.nextPrinterID
		s.nextPrinterID++
	}
	p.id = id
	s.printers.ReplaceOrInsert(p)
	if s.defaultPrinterID == 0 {
		s.defaultPrinterID = id
	}
	return id, nil
}

func (s *System) idInUseLocked(id int) bool {
	found := false
	s.printers.Ascend(func(p *Printer) bool {
		if p.id == id {
			found = true
			return false
		}
		return true
	})
	return found
}

// unregister removes the printer from lookup. The default printer id is
// left alone.
func (s *System) unregister(p *Printer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.printers.Get(p)
	if !ok || cur != p {
		return false
	}
	s.printers.Delete(p)
	return true
}

// FindPrinter resolves a request path or printer id. The service path, or
// the service path followed by a numeric segment, selects the default
// printer. Otherwise a printer matches when its resource is a prefix of the
// path ending at the end of the path or at a "/", or when its id equals
// printerID. The first match in name order wins; nil means not found.
func (s *System) FindPrinter(resource string, printerID int) *Printer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if isDefaultResource(resource) {
		printerID = s.defaultPrinterID
		resource = ""
	}

	var match *Printer
	s.printers.Ascend(func(p *Printer) bool {
		if resource != "" && resourceMatches(p.resource, resource) {
			match = p
			return false
		}
		if printerID != 0 && p.id == printerID {
			match = p
			return false
		}
		return true
	})
	return match
}

func isDefaultResource(resource string) bool {
	if resource == ServicePath {
		return true
	}
	rest, ok := strings.CutPrefix(resource, ServicePath+"/")
	if !ok {
		return false
	}
	segment, _, _ := strings.Cut(rest, "/")
	return isNumeric(segment)
}

func resourceMatches(printerResource, path string) bool {
	if !strings.HasPrefix(path, printerResource) {
		return false
	}
	return len(path) == len(printerResource) || path[len(printerResource)] == '/'
}

func isNumeric(s string) bool {
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

// Printers returns a snapshot of the registered printers in name order.
func (s *System) Printers() []*Printer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Printer, 0, s.printers.Len())
	s.printers.Ascend(func(p *Printer) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Len is the number of registered printers.
func (s *System) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.printers.Len()
}

// DefaultPrinterID may name a printer that has since been deleted; it is
// only changed by SetDefaultPrinterID or by the first registration.
func (s *System) DefaultPrinterID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultPrinterID
}

func (s *System) SetDefaultPrinterID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultPrinterID = id
}

// NextPrinterID is the id the next printer without an explicit id gets.
func (s *System) NextPrinterID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextPrinterID
}
