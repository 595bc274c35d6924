package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jastats/statsgateway/internal/model"
)

type captured struct {
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type fakeBackend struct {
	mu     sync.Mutex
	reqs   []captured
	status int
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.reqs = append(f.reqs, captured{Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Body: string(body)})
	status := f.status
	f.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	if status >= 300 {
		_, _ = w.Write([]byte("nope"))
	}
}

func (f *fakeBackend) requests() []captured {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]captured(nil), f.reqs...)
}

func newClients(t *testing.T, srv *httptest.Server) *Clients {
	t.Helper()
	c := New(Config{
		PushGatewayURL: srv.URL + "/",
		LokiGatewayURL: srv.URL,
		ZipkinURL:      srv.URL + "/api/v2/spans",
		InfluxURL:      srv.URL,
		InfluxToken:    "token",
		InfluxOrg:      "org",
		InfluxBucket:   "bucket",
		Timeout:        2 * time.Second,
	}, zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func TestPushPrometheus(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	c := newClients(t, srv)

	var results []error
	c.OnResult = func(_ Name, err error) { results = append(results, err) }

	err := c.PushPrometheus(context.Background(), "/metrics/job/j/instance/h1", "a 1\n")
	require.NoError(t, err)

	reqs := fb.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/metrics/job/j/instance/h1", reqs[0].Path)
	assert.Equal(t, "a 1\n", reqs[0].Body)
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, "*/*", reqs[0].Header.Get("Accept"))
	assert.Equal(t, []error{nil}, results)
}

func TestPushPrometheus_Non2xx(t *testing.T) {
	fb := &fakeBackend{status: http.StatusBadRequest}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	c := newClients(t, srv)

	err := c.PushPrometheus(context.Background(), "/metrics/job/j/instance/h1", "a 1\n")
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, Prometheus, berr.Backend)
	assert.Equal(t, http.StatusBadRequest, berr.Status)
	assert.Contains(t, berr.Error(), "nope")
}

func TestPushLoki(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	c := newClients(t, srv)

	push := model.LokiPush{Streams: []model.LokiStream{{
		Labels:  `{instance="h1"}`,
		Entries: []model.LokiEntry{{Ts: "2024-01-01T00:00:01.000-00:00", Line: " hello"}},
	}}}
	require.NoError(t, c.PushLoki(context.Background(), push))

	reqs := fb.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, LokiPushPath, reqs[0].Path)
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"streams":[{"labels":"{instance=\"h1\"}","entries":[{"ts":"2024-01-01T00:00:01.000-00:00","line":" hello"}]}]}`, reqs[0].Body)
}

func TestPostSpans_NotConfigured(t *testing.T) {
	c := New(Config{PushGatewayURL: "http://x", LokiGatewayURL: "http://y"}, zerolog.Nop())
	defer c.Close()
	err := c.PostSpans(context.Background(), []model.Span{{ID: "1"}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = c.WriteInflux(context.Background(), "", "", []string{"m f=1 1"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWriteInflux(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	c := newClients(t, srv)

	err := c.WriteInflux(context.Background(), "", "override", []string{
		"App,instance=h1 a=1 1704067200000000000",
		"App,instance=h1,client=c b=2 1704067200000000000",
	})
	require.NoError(t, err)

	reqs := fb.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v2/write", reqs[0].Path)
	assert.Contains(t, reqs[0].Query, "org=org")
	assert.Contains(t, reqs[0].Query, "bucket=override")
	assert.Contains(t, reqs[0].Query, "precision=ns")
	assert.Contains(t, reqs[0].Body, "App,instance=h1 a=1 1704067200000000000")
	assert.Contains(t, reqs[0].Body, "App,instance=h1,client=c b=2 1704067200000000000")
}

func TestPost_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{PushGatewayURL: srv.URL, LokiGatewayURL: srv.URL, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	defer c.Close()

	err := c.PushPrometheus(context.Background(), "/metrics/job/j/instance/h", "a 1\n")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
