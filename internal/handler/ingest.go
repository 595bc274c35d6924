package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jastats/statsgateway/internal/ingest"
	"github.com/jastats/statsgateway/internal/model"
	"github.com/jastats/statsgateway/internal/pipeline"
	"github.com/jastats/statsgateway/internal/response"
	"github.com/jastats/statsgateway/internal/telemetry"
)

// DefaultMaxBodyBytes bounds the Content-Length accepted by IngestHandler.
const DefaultMaxBodyBytes = 64 << 20

// IngestHandler accepts posted documents on any path and runs them through the
// pipeline. It does not depend on Echo beyond echo.Context.
type IngestHandler struct {
	Pipeline     *pipeline.Pipeline
	Options      ingest.Options
	Metrics      *telemetry.Metrics // optional
	Logger       zerolog.Logger
	MaxBodyBytes int64
}

// outcome is what gets logged once per request.
type outcome struct {
	status int
	reason string
	doc    *model.Document
}

// Ingest handles POST /* .
func (h *IngestHandler) Ingest(c echo.Context) error {
	start := time.Now()
	reqLog := h.Logger.With().
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Str("remote", c.RealIP()).
		Logger()

	out, err := h.serve(c, reqLog)

	dur := time.Since(start)
	ev := reqLog.Info()
	if out.status >= 400 {
		ev = reqLog.Warn()
	}
	kind := ""
	if out.doc != nil {
		kind = string(out.doc.Kind)
		ev = ev.Str("job", out.doc.JobName).Str("host", out.doc.HostName).Str("kind", kind)
	}
	ev.Int("status", out.status).Str("reason", out.reason).Dur("duration", dur).Msg("request")
	if h.Metrics != nil {
		h.Metrics.ObserveRequest(kind, out.status, dur)
	}
	return err
}

func (h *IngestHandler) serve(c echo.Context, reqLog zerolog.Logger) (outcome, error) {
	req := c.Request()
	maxBody := h.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	if req.ContentLength <= 0 {
		reason := "missing or zero Content-Length"
		return outcome{status: http.StatusLengthRequired, reason: reason}, response.LengthRequired(c, reason)
	}
	if req.ContentLength > maxBody {
		reason := fmt.Sprintf("Content-Length %d exceeds %d bytes", req.ContentLength, maxBody)
		return outcome{status: http.StatusRequestEntityTooLarge, reason: reason},
			response.Error(c, http.StatusRequestEntityTooLarge, "request too large", reason)
	}

	body := make([]byte, req.ContentLength)
	if _, err := io.ReadFull(req.Body, body); err != nil {
		reason := "read body: " + err.Error()
		return outcome{status: http.StatusBadRequest, reason: reason}, response.BadRequest(c, "unreadable body", err.Error())
	}

	doc, err := ingest.Decode(body, h.Options)
	if err != nil {
		return outcome{status: http.StatusBadRequest, reason: err.Error()}, response.BadRequest(c, "malformed request", err.Error())
	}

	docLog := reqLog.With().Str("job", doc.JobName).Str("host", doc.HostName).Logger()
	if lvl, ok := debugLevel(doc.DebugLevel); ok {
		docLog = docLog.Level(lvl)
	}
	docLog.Trace().Int("payload_keys", len(doc.Payload)).Msg("decoded")

	res, err := h.Pipeline.Run(req.Context(), doc, docLog)
	if err != nil {
		return outcome{status: http.StatusBadRequest, reason: err.Error(), doc: doc}, response.BadRequest(c, "malformed request", err.Error())
	}

	report := res.String()
	reason, _, _ := strings.Cut(report, "\n")
	return outcome{status: http.StatusOK, reason: reason, doc: doc}, response.Processed(c, report)
}

// debugLevel maps a document's debugLevel to a logger level. Level 0 keeps the
// gateway's configured level.
func debugLevel(n int) (zerolog.Level, bool) {
	switch {
	case n <= 0:
		return zerolog.NoLevel, false
	case n == 1:
		return zerolog.InfoLevel, true
	case n == 2:
		return zerolog.DebugLevel, true
	default:
		return zerolog.TraceLevel, true
	}
}
