package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jastats/statsgateway/internal/model"
)

func TestAssemble(t *testing.T) {
	span, err := Assemble("id=1,name=op,serviceName=svc,traceId=abc,timestamp=1700000000000000,duration=500", "h1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.Span{
		ID:            "1",
		TraceID:       "abc",
		ParentID:      "9999",
		Timestamp:     1700000000000000,
		Duration:      500,
		Name:          "op",
		LocalEndpoint: model.Endpoint{ServiceName: "svc"},
		Tags:          map[string]string{"instance": "h1", "status.code": "200"},
	}, span)
}

func TestAssemble_Defaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	span, err := Assemble("traceId=t1,status=500", "h2", now)
	require.NoError(t, err)
	assert.Equal(t, "9999", span.ID)
	assert.Equal(t, "9999", span.ParentID)
	assert.Equal(t, int64(1000), span.Duration)
	assert.Equal(t, now.UnixMicro(), span.Timestamp)
	assert.Equal(t, "NA", span.Name)
	assert.Equal(t, "NA", span.LocalEndpoint.ServiceName)
	assert.Equal(t, "500", span.Tags["status.code"])
}

func TestAssemble_BadNumber(t *testing.T) {
	_, err := Assemble("id=1,duration=fast", "h1", time.Now())
	assert.ErrorIs(t, err, ErrBadField)
}

func TestLines(t *testing.T) {
	assert.Equal(t, []string{"id=1", "id=2", "id=3"}, Lines("id=1\nid=2\\nid=3\n\n"))
	assert.Empty(t, Lines(""))
}
