// Package trace assembles Zipkin v2 spans from "k=v,k=v" trace lines.
package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jastats/statsgateway/internal/model"
)

// Defaults applied to keys missing from a trace line.
const (
	DefaultID       = "9999"
	DefaultStatus   = "200"
	DefaultName     = "NA"
	DefaultDuration = int64(1000)
)

// ErrBadField is returned for a numeric span field that does not parse.
var ErrBadField = errors.New("invalid span field")

// Lines splits a payload value into non-empty trace lines. Agents send either real
// newlines or the escaped two-character sequence.
func Lines(value string) []string {
	value = strings.ReplaceAll(value, `\n`, "\n")
	var out []string
	for _, l := range strings.Split(value, "\n") {
		if l = strings.TrimRight(l, "\r"); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Assemble builds one span from a trace line. host becomes the instance tag; now
// is used when the line has no timestamp.
func Assemble(line, host string, now time.Time) (model.Span, error) {
	fields := make(map[string]string)
	for _, pair := range strings.Split(line, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = v
	}

	get := func(k, def string) string {
		if v, ok := fields[k]; ok && v != "" {
			return v
		}
		return def
	}

	ts := now.UnixMicro()
	if v, ok := fields["timestamp"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.Span{}, fmt.Errorf("%w: timestamp=%q", ErrBadField, v)
		}
		ts = n
	}
	dur := DefaultDuration
	if v, ok := fields["duration"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.Span{}, fmt.Errorf("%w: duration=%q", ErrBadField, v)
		}
		dur = n
	}

	return model.Span{
		ID:            get("id", DefaultID),
		TraceID:       get("traceId", ""),
		ParentID:      get("parentId", DefaultID),
		Timestamp:     ts,
		Duration:      dur,
		Name:          get("name", DefaultName),
		LocalEndpoint: model.Endpoint{ServiceName: get("serviceName", DefaultName)},
		Tags: map[string]string{
			"instance":    host,
			"status.code": get("status", DefaultStatus),
		},
	}, nil
}
