package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jastats/statsgateway/internal/model"
	"github.com/jastats/statsgateway/internal/pipeline"
)

type nopBackends struct{ pushes int }

func (n *nopBackends) PushPrometheus(context.Context, string, string) error { n.pushes++; return nil }
func (n *nopBackends) WriteInflux(context.Context, string, string, []string) error {
	return nil
}
func (n *nopBackends) PushLoki(context.Context, model.LokiPush) error { return nil }
func (n *nopBackends) PostSpans(context.Context, []model.Span) error  { return nil }

func serve(h *IngestHandler, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	_ = h.Ingest(e.NewContext(req, rec))
	return rec
}

func TestIngest(t *testing.T) {
	nb := &nopBackends{}
	h := &IngestHandler{Pipeline: pipeline.New(nb, nil, pipeline.Options{}), Logger: zerolog.Nop()}

	rec := serve(h, `{"jobName":"j","hostName":"h","debugLevel":4,"m":"timestamp=2024-01-01T00:00:00.000000,a=1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PASS - metrics document processed, 1 forwarded\n", rec.Body.String())
	assert.Equal(t, 1, nb.pushes)
}

func TestIngest_Rejections(t *testing.T) {
	nb := &nopBackends{}
	h := &IngestHandler{Pipeline: pipeline.New(nb, nil, pipeline.Options{}), Logger: zerolog.Nop(), MaxBodyBytes: 64}

	rec := serve(h, `{"hostName":"h"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing jobName")

	rec = serve(h, `{"jobName":"j","hostName":"h","m":"`+strings.Repeat("x", 100)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(h, "")
	assert.Equal(t, http.StatusLengthRequired, rec.Code)
	assert.Equal(t, 0, nb.pushes)
}

func TestDebugLevel(t *testing.T) {
	_, ok := debugLevel(0)
	assert.False(t, ok)
	for n, want := range map[int]zerolog.Level{1: zerolog.InfoLevel, 2: zerolog.DebugLevel, 3: zerolog.TraceLevel, 4: zerolog.TraceLevel} {
		got, ok := debugLevel(n)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}
