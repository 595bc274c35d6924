package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_TrySuppressesAfterFirstError(t *testing.T) {
	s := NewSession()
	calls := 0
	boom := errors.New("boom")

	err := s.Try(Loki, func() error { calls++; return boom })
	assert.ErrorIs(t, err, boom)
	err = s.Try(Loki, func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrSuppressed)
	assert.Equal(t, 1, calls)

	// other backends are unaffected
	assert.NoError(t, s.Try(Prometheus, func() error { calls++; return nil }))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []Name{Loki}, s.Failed())
}

func TestSession_EachNeverSuppresses(t *testing.T) {
	s := NewSession()
	calls := 0
	for i := 0; i < 3; i++ {
		_ = s.Each(Zipkin, func() error { calls++; return errors.New("x") })
	}
	assert.Equal(t, 3, calls)
	assert.True(t, s.Errored(Zipkin))
}
