// Package pipeline runs one decoded document through reshaping, persistence and
// backend forwarding, and accumulates a textual report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jastats/statsgateway/internal/backend"
	"github.com/jastats/statsgateway/internal/ingest"
	"github.com/jastats/statsgateway/internal/logsplit"
	"github.com/jastats/statsgateway/internal/model"
	"github.com/jastats/statsgateway/internal/reshape"
	"github.com/jastats/statsgateway/internal/storage"
	"github.com/jastats/statsgateway/internal/tagset"
	"github.com/jastats/statsgateway/internal/trace"
)

// Backends is the set of calls the pipeline makes; *backend.Clients implements it.
type Backends interface {
	PushPrometheus(ctx context.Context, path, body string) error
	WriteInflux(ctx context.Context, org, bucket string, lines []string) error
	PushLoki(ctx context.Context, push model.LokiPush) error
	PostSpans(ctx context.Context, spans []model.Span) error
}

// Options are gateway-wide switches.
type Options struct {
	// SaveStats enables persistence of metrics documents.
	SaveStats bool
	// DisableWarnings keeps duplicate-name warnings out of the log. They are still
	// reported in the response.
	DisableWarnings bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline is shared by all requests.
type Pipeline struct {
	backends Backends
	appender *storage.Appender
	opts     Options
}

// New returns a Pipeline. appender may be nil to disable persistence.
func New(backends Backends, appender *storage.Appender, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{backends: backends, appender: appender, opts: opts}
}

// Result is the outcome of one run.
type Result struct {
	Kind      model.Kind
	Forwarded int
	Persisted int
	Messages  []string
	// Failed is set when a backend or the persistence file errored.
	Failed bool
}

func (r *Result) errorf(format string, args ...any) {
	r.Failed = true
	r.Messages = append(r.Messages, "ERROR: "+fmt.Sprintf(format, args...))
}

// String renders the response body.
func (r Result) String() string {
	var b strings.Builder
	if r.Failed {
		b.WriteString("ERROR - ")
	} else {
		b.WriteString("PASS - ")
	}
	fmt.Fprintf(&b, "%s document processed, %d forwarded", r.Kind, r.Forwarded)
	if r.Persisted > 0 {
		fmt.Fprintf(&b, ", %d saved", r.Persisted)
	}
	for _, m := range r.Messages {
		b.WriteString("\n")
		b.WriteString(m)
	}
	b.WriteString("\n")
	return b.String()
}

// Run processes doc. The only error it returns is a tagset.ErrInvalidSlot for a
// document that cannot be forwarded at all; backend and persistence failures are
// reported in the Result.
func (p *Pipeline) Run(ctx context.Context, doc *model.Document, log zerolog.Logger) (Result, error) {
	res := Result{Kind: doc.Kind}
	tags, err := tagset.Build(doc.Header)
	if err != nil {
		return res, err
	}

	if p.appender != nil && ingest.WantsPersistence(doc, p.opts.SaveStats) {
		p.persist(doc, tags, &res, log)
	}

	sess := backend.NewSession()
	switch doc.Kind {
	case model.KindLoki:
		p.runLoki(ctx, doc, tags, sess, &res, log)
	case model.KindZipkin:
		p.runZipkin(ctx, doc, sess, &res, log)
	default:
		p.runMetrics(ctx, doc, tags, sess, &res, log)
	}
	if failed := sess.Failed(); len(failed) > 0 {
		log.Warn().Interface("backends", failed).Msg("backends errored")
	}
	return res, nil
}

func (p *Pipeline) persist(doc *model.Document, tags tagset.Set, res *Result, log zerolog.Logger) {
	f, err := p.appender.Open(doc.FileName)
	if err != nil {
		res.errorf("persistence disabled for this request: %v", err)
		log.Error().Err(err).Str("file", doc.FileName).Msg("open persistence file")
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Str("file", doc.FileName).Msg("close persistence file")
		}
	}()
	for _, fld := range doc.Payload {
		if err := f.Append(tags.FilePrefix, fld.Key, fld.Value); err != nil {
			res.errorf("persistence disabled for this request: %v", err)
			log.Error().Err(err).Str("file", doc.FileName).Msg("append persistence file")
			return
		}
		res.Persisted++
	}
}

// record reports err unless it is the marker for an already-failed backend.
func record(err error, res *Result, log zerolog.Logger, what string) {
	if errors.Is(err, backend.ErrSuppressed) {
		return
	}
	res.errorf("%s: %v", what, err)
	log.Warn().Err(err).Msg(what)
}

func (p *Pipeline) runMetrics(ctx context.Context, doc *model.Document, tags tagset.Set, sess *backend.Session, res *Result, log zerolog.Logger) {
	parsed := reshape.Parse(doc.Payload)
	res.Messages = append(res.Messages, parsed.Warnings...)
	if len(parsed.Duplicates) > 0 && !p.opts.DisableWarnings {
		log.Warn().Strs("names", parsed.Duplicates).Msg("duplicate metric names skipped")
	}

	if doc.Dialect == model.DialectInflux {
		for _, s := range parsed.Series {
			rows, err := reshape.InfluxRows(doc.JobName, tags.InfluxTags, s)
			if err != nil {
				res.errorf("%s skipped: %v", s.Key, err)
				continue
			}
			err = sess.Try(backend.Influx, func() error {
				return p.backends.WriteInflux(ctx, doc.InfluxOrg, doc.InfluxBucket, rows)
			})
			if err != nil {
				record(err, res, log, "influxdb write for "+s.Key)
				continue
			}
			log.Debug().Str("key", s.Key).Int("rows", len(rows)).Msg("written to influxdb")
			res.Forwarded += len(rows)
		}
		return
	}

	base := "/metrics/job/" + doc.JobName + "/instance/" + doc.HostName + tags.URLSuffix
	for _, g := range reshape.Prometheus(parsed.Series) {
		path := base
		if g.Label != "" {
			path += "/client/" + g.Label
		}
		err := sess.Try(backend.Prometheus, func() error {
			return p.backends.PushPrometheus(ctx, path, g.Body)
		})
		if err != nil {
			record(err, res, log, "prometheus push to "+path)
			continue
		}
		log.Debug().Str("path", path).Int("lines", g.Lines).Msg("pushed to prometheus")
		res.Forwarded += g.Lines
	}
}

func (p *Pipeline) runLoki(ctx context.Context, doc *model.Document, tags tagset.Set, sess *backend.Session, res *Result, log zerolog.Logger) {
	now := p.opts.Now()
	for _, fld := range doc.Payload {
		for _, entry := range logsplit.Split(fld.Value, now) {
			err := sess.Try(backend.Loki, func() error {
				return p.backends.PushLoki(ctx, logsplit.Push(tags.PromLabels, entry))
			})
			if err != nil {
				record(err, res, log, "loki push for "+fld.Key)
				return
			}
			res.Forwarded++
		}
	}
	log.Debug().Int("lines", res.Forwarded).Msg("pushed to loki")
}

func (p *Pipeline) runZipkin(ctx context.Context, doc *model.Document, sess *backend.Session, res *Result, log zerolog.Logger) {
	now := p.opts.Now()
	for _, fld := range doc.Payload {
		for _, line := range trace.Lines(fld.Value) {
			span, err := trace.Assemble(line, doc.HostName, now)
			if err != nil {
				res.errorf("span in %s skipped: %v", fld.Key, err)
				continue
			}
			err = sess.Each(backend.Zipkin, func() error {
				return p.backends.PostSpans(ctx, []model.Span{span})
			})
			if err != nil {
				record(err, res, log, "zipkin span "+span.ID)
				continue
			}
			res.Forwarded++
		}
	}
	log.Debug().Int("spans", res.Forwarded).Msg("posted to zipkin")
}
