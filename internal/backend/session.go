package backend

import "errors"

// ErrSuppressed is returned by Session.Try once a backend has already failed
// within the same request.
var ErrSuppressed = errors.New("backend errored earlier in this request")

// Session tracks which backends failed while serving one request.
// It is not safe for concurrent use.
type Session struct {
	errored map[Name]bool
}

// NewSession returns a session with no backend marked as errored.
func NewSession() *Session {
	return &Session{errored: make(map[Name]bool)}
}

// Errored reports whether name failed earlier in this request.
func (s *Session) Errored(name Name) bool { return s.errored[name] }

// Try runs fn unless name already failed. The first error marks name as errored
// so that later calls are skipped with ErrSuppressed.
func (s *Session) Try(name Name, fn func() error) error {
	if s.errored[name] {
		return ErrSuppressed
	}
	if err := fn(); err != nil {
		s.errored[name] = true
		return err
	}
	return nil
}

// Each runs fn regardless of earlier failures. Errors still mark name as
// errored for reporting but never suppress later calls.
func (s *Session) Each(name Name, fn func() error) error {
	if err := fn(); err != nil {
		s.errored[name] = true
		return err
	}
	return nil
}

// Failed lists the backends that errored, in a stable order.
func (s *Session) Failed() []Name {
	var out []Name
	for _, n := range []Name{Prometheus, Influx, Loki, Zipkin} {
		if s.errored[n] {
			out = append(out, n)
		}
	}
	return out
}
