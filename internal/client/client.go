// Package client talks IPP to a running lprintd.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goipp "github.com/OpenPrinting/goipp"
)

const servicePath = "/ipp/print"

type Client struct {
	Host               string
	Port               int
	UseTLS             bool
	User               string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

type Option func(*Client)

// WithServer accepts host, host:port or a URL such as ipps://host:8631.
func WithServer(server string) Option {
	return func(c *Client) {
		if strings.TrimSpace(server) == "" {
			return
		}
		host, port, useTLS := parseServer(server)
		if host != "" {
			c.Host = host
		}
		if port > 0 {
			c.Port = port
		}
		if useTLS {
			c.UseTLS = true
		}
	}
}

func WithUser(user string) Option {
	return func(c *Client) {
		if strings.TrimSpace(user) != "" {
			c.User = user
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{Host: "localhost", Port: 8000, User: "anonymous", Timeout: 60 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// PrinterURI is the ipp:// address of the named printer, or of the default
// printer when name is empty.
func (c *Client) PrinterURI(name string) string {
	scheme := "ipp"
	if c.UseTLS {
		scheme = "ipps"
	}
	p := servicePath
	if name = strings.TrimSpace(name); name != "" {
		p += "/" + url.PathEscape(name)
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + p
}

func (c *Client) httpURL(path string) string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	if path == "" {
		path = servicePath
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + path
}

// NewRequest starts an IPP request with the standard operation attributes.
func (c *Client) NewRequest(op goipp.Op, printerURI string) *goipp.Message {
	req := goipp.NewRequest(goipp.DefaultVersion, op, 1)
	req.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	req.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en")))
	if printerURI != "" {
		req.Operation.Add(goipp.MakeAttribute("printer-uri", goipp.TagURI, goipp.String(printerURI)))
	}
	req.Operation.Add(goipp.MakeAttribute("requesting-user-name", goipp.TagName, goipp.String(c.User)))
	return req
}

// Send posts msg, followed by data when given, to the resource named by its
// printer-uri or job-uri.
func (c *Client) Send(ctx context.Context, msg *goipp.Message, data io.Reader) (*goipp.Message, error) {
	if msg == nil {
		return nil, errors.New("missing ipp message")
	}
	payload, err := msg.EncodeBytes()
	if err != nil {
		return nil, err
	}
	body := io.Reader(bytes.NewBuffer(payload))
	if data != nil {
		body = io.MultiReader(bytes.NewBuffer(payload), data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL(resourcePath(msg)), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", goipp.ContentType)
	req.Header.Set("Accept", goipp.ContentType)

	client := &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.InsecureSkipVerify},
		},
	}
	resp, err := client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.New(resp.Status)
	}
	out := &goipp.Message{}
	if err := out.Decode(resp.Body); err != nil {
		return nil, err
	}
	return out, nil
}

// PrinterStatus is one row of the printer listing.
type PrinterStatus struct {
	ID         int
	Name       string
	URI        string
	State      int
	Reasons    []string
	QueuedJobs int
}

// Printers lists every printer the server exposes.
func (c *Client) Printers(ctx context.Context) ([]PrinterStatus, error) {
	req := c.NewRequest(goipp.OpCupsGetPrinters, "")
	req.Operation.Add(goipp.MakeAttr("requested-attributes", goipp.TagKeyword,
		goipp.String("printer-id"),
		goipp.String("printer-name"),
		goipp.String("printer-uri-supported"),
		goipp.String("printer-state"),
		goipp.String("printer-state-reasons"),
		goipp.String("queued-job-count")))
	resp, err := c.Send(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	if status := goipp.Status(resp.Code); status != goipp.StatusOk {
		return nil, fmt.Errorf("get printers: %s", status)
	}
	var out []PrinterStatus
	for _, g := range resp.Groups {
		if g.Tag != goipp.TagPrinterGroup {
			continue
		}
		out = append(out, PrinterStatus{
			ID:         int(attrInt(g.Attrs, "printer-id")),
			Name:       attrString(g.Attrs, "printer-name"),
			URI:        attrString(g.Attrs, "printer-uri-supported"),
			State:      int(attrInt(g.Attrs, "printer-state")),
			Reasons:    attrStrings(g.Attrs, "printer-state-reasons"),
			QueuedJobs: int(attrInt(g.Attrs, "queued-job-count")),
		})
	}
	return out, nil
}

func resourcePath(msg *goipp.Message) string {
	switch goipp.Op(msg.Code) {
	case goipp.OpCupsGetPrinters, goipp.OpCupsGetDefault:
		return servicePath
	}
	if p, ok := resourcePathFromURI(attrString(msg.Operation, "printer-uri")); ok {
		return p
	}
	if p, ok := resourcePathFromURI(attrString(msg.Operation, "job-uri")); ok {
		return p
	}
	return servicePath
}

func resourcePathFromURI(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	path := strings.TrimSpace(u.Path)
	if path == "" {
		return "", false
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, true
}

func parseServer(value string) (string, int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", 0, false
	}
	useTLS := false
	if strings.Contains(value, "://") {
		if u, err := url.Parse(value); err == nil && u.Hostname() != "" {
			port := 0
			if p := u.Port(); p != "" {
				if n, err := strconv.Atoi(p); err == nil {
					port = n
				}
			}
			switch strings.ToLower(u.Scheme) {
			case "https", "ipps":
				useTLS = true
			}
			return u.Hostname(), port, useTLS
		}
	}
	if host, port, ok := splitHostPort(value); ok {
		return host, port, useTLS
	}
	return value, 0, useTLS
}

func splitHostPort(value string) (string, int, bool) {
	if strings.HasPrefix(value, "[") && strings.Contains(value, "]") {
		if host, portStr, err := net.SplitHostPort(value); err == nil {
			if n, err := strconv.Atoi(portStr); err == nil {
				return host, n, true
			}
		}
	}
	if idx := strings.LastIndex(value, ":"); idx > 0 && idx < len(value)-1 {
		if n, err := strconv.Atoi(value[idx+1:]); err == nil {
			return value[:idx], n, true
		}
	}
	return "", 0, false
}

func attrString(attrs goipp.Attributes, name string) string {
	for _, attr := range attrs {
		if attr.Name != name {
			continue
		}
		if len(attr.Values) == 0 {
			return ""
		}
		return strings.TrimSpace(attr.Values[0].V.String())
	}
	return ""
}

func attrStrings(attrs goipp.Attributes, name string) []string {
	var out []string
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
		if attr.Name != name || len(attr.Values) == 0 {
			continue
		}
		if v, ok := attr.Values[0].V.(goipp.Integer); ok {
			return int64(v)
		}
	}
	return 0
}
