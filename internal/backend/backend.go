// Package backend owns the long-lived clients for the Prometheus push gateway,
// InfluxDB, Loki and Zipkin. Clients are safe for concurrent use; per-request
// failure isolation lives in Session.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/jastats/statsgateway/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Name identifies a backend.
type Name string

const (
	Prometheus Name = "prometheus"
	Influx     Name = "influxdb"
	Loki       Name = "loki"
	Zipkin     Name = "zipkin"
)

// LokiPushPath is appended to the Loki gateway URL.
const LokiPushPath = "/api/prom/push"

const maxErrorBody = 512

// ErrNotConfigured is returned when a document needs a backend whose URL is unset.
var ErrNotConfigured = errors.New("backend not configured")

// Error describes a failed backend call.
type Error struct {
	Backend Name
	Status  int    // HTTP status, 0 when the request never completed
	Body    string // truncated response body
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Backend, e.Status, strings.TrimSpace(e.Body))
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds the backend endpoints and credentials.
type Config struct {
	PushGatewayURL string
	LokiGatewayURL string
	ZipkinURL      string
	InfluxURL      string
	InfluxToken    string
	InfluxOrg      string
	InfluxBucket   string
	Timeout        time.Duration
	// MaxIdleConnsPerHost sizes the keep-alive pool; usually the worker count.
	MaxIdleConnsPerHost int
}

// Clients is shared by all requests.
type Clients struct {
	cfg    Config
	http   *http.Client
	influx influxdb2.Client
	log    zerolog.Logger

	// OnResult, when set, is called after every backend call.
	OnResult func(backend Name, err error)
}

// New builds the shared clients.
func New(cfg Config, logger zerolog.Logger) *Clients {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}
	cfg.PushGatewayURL = strings.TrimRight(cfg.PushGatewayURL, "/")
	cfg.LokiGatewayURL = strings.TrimRight(cfg.LokiGatewayURL, "/")

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Clients{
		cfg:  cfg,
		http: &http.Client{Transport: transport},
		log:  logger.With().Str("component", "backend").Logger(),
	}
	if cfg.InfluxURL != "" {
		secs := uint(cfg.Timeout / time.Second)
		if secs == 0 {
			secs = 1
		}
		opts := influxdb2.DefaultOptions().
			SetPrecision(time.Nanosecond).
			SetHTTPRequestTimeout(secs)
		c.influx = influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	}
	return c
}

// Close releases idle connections and the InfluxDB client.
func (c *Clients) Close() {
	if c.influx != nil {
		c.influx.Close()
	}
	c.http.CloseIdleConnections()
}

func (c *Clients) report(name Name, err error) error {
	if c.OnResult != nil {
		c.OnResult(name, err)
	}
	return err
}

// PushPrometheus posts exposition lines to <PushGatewayURL><path>.
func (c *Clients) PushPrometheus(ctx context.Context, path, body string) error {
	hdr := http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
		"Accept":       {"*/*"},
		"Connection":   {"keep-alive"},
	}
	return c.report(Prometheus, c.post(ctx, Prometheus, c.cfg.PushGatewayURL+path, hdr, []byte(body)))
}

// PushLoki posts a legacy-schema push body to <LokiGatewayURL>/api/prom/push.
func (c *Clients) PushLoki(ctx context.Context, push model.LokiPush) error {
	body, err := json.Marshal(push)
	if err != nil {
		return c.report(Loki, &Error{Backend: Loki, Err: err})
	}
	return c.report(Loki, c.post(ctx, Loki, c.cfg.LokiGatewayURL+LokiPushPath, jsonHeader(), body))
}

// PostSpans posts a span array to the Zipkin endpoint.
func (c *Clients) PostSpans(ctx context.Context, spans []model.Span) error {
	if c.cfg.ZipkinURL == "" {
		return c.report(Zipkin, &Error{Backend: Zipkin, Err: ErrNotConfigured})
	}
	body, err := json.Marshal(spans)
	if err != nil {
		return c.report(Zipkin, &Error{Backend: Zipkin, Err: err})
	}
	return c.report(Zipkin, c.post(ctx, Zipkin, c.cfg.ZipkinURL, jsonHeader(), body))
}

// WriteInflux writes line-protocol rows synchronously. Empty org or bucket fall
// back to the configured defaults.
func (c *Clients) WriteInflux(ctx context.Context, org, bucket string, lines []string) error {
	if c.influx == nil {
		return c.report(Influx, &Error{Backend: Influx, Err: ErrNotConfigured})
	}
	if org == "" {
		org = c.cfg.InfluxOrg
	}
	if bucket == "" {
		bucket = c.cfg.InfluxBucket
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.influx.WriteAPIBlocking(org, bucket).WriteRecord(ctx, lines...); err != nil {
		return c.report(Influx, &Error{Backend: Influx, Err: err})
	}
	return c.report(Influx, nil)
}

func jsonHeader() http.Header {
	return http.Header{
		"Content-Type": {"application/json"},
		"Connection":   {"keep-alive"},
	}
}

func (c *Clients) post(ctx context.Context, name Name, url string, hdr http.Header, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Backend: name, Err: err}
	}
	req.Header = hdr

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Backend: name, Err: err}
	}
	defer resp.Body.Close()

	c.log.Trace().
		Str("backend", string(name)).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("forwarded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		return &Error{Backend: name, Status: resp.StatusCode, Body: string(msg)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
