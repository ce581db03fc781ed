// Package dnssd publishes printers over multicast DNS service discovery.
//
// Each registered printer gets a _printer._tcp record with port 0 and an
// _ipp._tcp record carrying the TXT keys IPP Everywhere clients look for.
// Configured subtypes answer as <subtype>._sub._ipp._tcp PTR queries.
package dnssd

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/mdns"
	"github.com/miekg/dns"
	"go.uber.org/zap"

	"lprintgolang/internal/system"
)

const (
	ippService     = "_ipp._tcp"
	printerService = "_printer._tcp"
	domain         = "local."
	recordTTL      = 120
)

// Config describes how printers are advertised.
type Config struct {
	// HostName is the advertised host; ".local." is appended to bare names.
	HostName string
	Port     int
	// ComputerName, when set, is appended to instance names as " @ name".
	ComputerName string
	// IPs are the advertised addresses; empty means resolve HostName.
	IPs    []net.IP
	Logger *zap.Logger
}

// Advertiser implements system.Advertiser on top of a hashicorp/mdns zone.
type Advertiser struct {
	cfg    Config
	zone   *zone
	server *mdns.Server
	log    *zap.Logger

	mu sync.Mutex
}

type entry struct {
	services     []*mdns.MDNSService
	instanceAddr string
}

// zone answers mDNS questions for every registered printer.
type zone struct {
	mu       sync.RWMutex
	entries  map[int]entry
	subtypes []string
}

func (z *zone) set(id int, e entry) {
	z.mu.Lock()
	z.entries[id] = e
	z.mu.Unlock()
}

func (z *zone) remove(id int) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	_, ok := z.entries[id]
	delete(z.entries, id)
	return ok
}

func (z *zone) Records(q dns.Question) []dns.RR {
	z.mu.RLock()
	ids := make([]int, 0, len(z.entries))
	for id := range z.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, z.entries[id])
	}
	subtypes := z.subtypes
	z.mu.RUnlock()

	var out []dns.RR
	for _, e := range entries {
		for _, svc := range e.services {
			out = append(out, svc.Records(q)...)
		}
		if q.Qtype != dns.TypePTR && q.Qtype != dns.TypeANY {
			continue
		}
		for _, sub := range subtypes {
			if !strings.EqualFold(q.Name, subtypeAddr(sub)) {
				continue
			}
			out = append(out, &dns.PTR{
				Hdr: dns.RR_Header{
					Name:   q.Name,
					Rrtype: dns.TypePTR,
					Class:  dns.ClassINET,
					Ttl:    recordTTL,
				},
				Ptr: e.instanceAddr,
			})
		}
	}
	return out
}

func subtypeAddr(sub string) string {
	return fmt.Sprintf("%s._sub.%s.%s", strings.Trim(sub, "."), ippService, domain)
}

// New returns an advertiser for the given subtypes. It answers through
// Records immediately; Start opens the multicast sockets.
func New(cfg Config, subtypes ...string) *Advertiser {
	if cfg.Port <= 0 {
		cfg.Port = 631
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.HostName = hostName(cfg.HostName)
	if len(cfg.IPs) == 0 {
		cfg.IPs = localIPs()
	}
	return &Advertiser{
		cfg: cfg,
		zone: &zone{
			entries:  map[int]entry{},
			subtypes: append([]string(nil), subtypes...),
		},
		log: cfg.Logger,
	}
}

// Start begins answering multicast queries.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: a.zone})
	if err != nil {
		return fmt.Errorf("start mdns: %w", err)
	}
	a.server = srv
	a.log.Info("dns-sd responder started", zap.String("host", a.cfg.HostName), zap.Int("port", a.cfg.Port))
	return nil
}

// Close stops the responder. Registered printers stay in the zone.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}

// Records answers a question against the current zone.
func (a *Advertiser) Records(q dns.Question) []dns.RR {
	return a.zone.Records(q)
}

// Register publishes p, replacing an earlier advertisement of the same
// printer.
func (a *Advertiser) Register(p *system.Printer) error {
	instance := a.instanceName(p)
	txt := TXTRecord(p)

	ippSvc, err := a.service(instance, ippService, a.cfg.Port, txt)
	if err != nil {
		return fmt.Errorf("register %s: %w", p.Name(), err)
	}
	services := []*mdns.MDNSService{ippSvc}
	if printerSvc, err := a.service(instance, printerService, 0, nil); err == nil {
		services = append(services, printerSvc)
	} else {
		a.log.Debug("printer service skipped", zap.String("instance", instance), zap.Error(err))
	}
	a.zone.set(p.ID(), entry{
		services:     services,
		instanceAddr: fmt.Sprintf("%s.%s.%s", instance, ippService, domain),
	})
	a.log.Debug("printer advertised", zap.String("instance", instance), zap.Strings("txt", txt))
	return nil
}

// service builds one mdns service. Port 0 announces that the service
// exists but is not offered, which mdns.NewMDNSService refuses, so the
// record is built on a placeholder port and then cleared.
func (a *Advertiser) service(instance, service string, port int, txt []string) (*mdns.MDNSService, error) {
	build := port
	if build == 0 {
		build = 1
	}
	svc, err := mdns.NewMDNSService(instance, service, domain, a.cfg.HostName, build, a.cfg.IPs, txt)
	if err != nil {
		return nil, err
	}
	svc.Port = port
	return svc, nil
}

// Unregister withdraws p.
func (a *Advertiser) Unregister(p *system.Printer) {
	if a.zone.remove(p.ID()) {
		a.log.Debug("printer withdrawn", zap.String("name", p.Name()))
	}
}

func (a *Advertiser) instanceName(p *system.Printer) string {
	base := strings.TrimSpace(p.Name())
	if base == "" {
		base = "Printer"
	}
	if name := strings.TrimSpace(a.cfg.ComputerName); name != "" {
		return base + " @ " + name
	}
	return base
}

func hostName(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "localhost"
	}
	if strings.Contains(host, ".") {
		if !strings.HasSuffix(host, ".") {
			host += "."
		}
		return host
	}
	return host + "." + domain
}

// localIPs lists the unicast addresses of the interfaces that are up,
// falling back to loopback.
func localIPs() []net.IP {
	var ips []net.IP
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.IsGlobalUnicast() {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}
	if len(ips) == 0 {
		ips = []net.IP{net.IPv4(127, 0, 0, 1)}
	}
	return ips
}

// TXTRecord builds the _ipp._tcp TXT keys for p in key order.
func TXTRecord(p *system.Printer) []string {
	txt := map[string]string{
		"txtvers":  "1",
		"qtotal":   "1",
		"priority": "0",
		"rp":       strings.TrimPrefix(p.Resource(), "/"),
		"UUID":     strings.TrimPrefix(p.UUID(), "urn:uuid:"),
		"ty":       "Unknown",
		"note":     p.Location(),
	}
	if attr, ok := p.Attribute("printer-make-and-model"); ok && len(attr.Values) > 0 {
		txt["ty"] = attr.Values[0].V.String()
	}
	var formats []string
	if attr, ok := p.Attribute("document-format-supported"); ok {
		for _, v := range attr.Values {
			formats = append(formats, v.V.String())
		}
	}
	txt["pdl"] = strings.Join(PDLFromFormats(formats), ",")
	if stringInList("image/urf", formats) {
		txt["URF"] = "none"
	}

	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := txt[k]
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

// PDLFromFormats picks the document formats worth listing in the pdl key.
func PDLFromFormats(formats []string) []string {
	pdl := make([]string, 0, len(formats))
	for _, mt := range []string{"application/pdf", "application/postscript", "image/jpeg", "image/png", "image/pwg-raster", "image/urf"} {
		if stringInList(mt, formats) {
			pdl = append(pdl, mt)
		}
	}
	if len(pdl) == 0 {
		for _, mt := range formats {
			if strings.EqualFold(mt, "application/octet-stream") {
				continue
			}
			pdl = append(pdl, mt)
			if len(pdl) >= 4 {
				break
			}
		}
	}
	if len(pdl) == 0 {
		pdl = []string{"application/octet-stream"}
	}
	return pdl
}

func stringInList(value string, values []string) bool {
	value = strings.TrimSpace(value)
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), value) {
			return true
		}
	}
	return false
}
