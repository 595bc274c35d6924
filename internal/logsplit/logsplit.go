// Package logsplit breaks log payload values into Loki stream entries.
package logsplit

import (
	"regexp"
	"strings"
	"time"

	"github.com/jastats/statsgateway/internal/model"
)

// Sentinel separates log lines inside one payload value.
const Sentinel = "__NEWLINE__"

const (
	zoneSuffix = "-00:00"
	nowLayout  = "2006-01-02T15:04:05.000000"
)

var lineTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[.,]\d+`)

// Split returns one entry per non-empty line of value. Lines without a
// timestamp of their own are stamped with now.
func Split(value string, now time.Time) []model.LokiEntry {
	var entries []model.LokiEntry
	for _, line := range strings.Split(value, Sentinel) {
		if line == "" {
			continue
		}
		entries = append(entries, model.LokiEntry{
			Ts:   Timestamp(line, now),
			Line: " " + line,
		})
	}
	return entries
}

// Timestamp returns the first ISO8601 timestamp found in line, or now in UTC,
// with the -00:00 zone appended.
func Timestamp(line string, now time.Time) string {
	if ts := lineTimestamp.FindString(line); ts != "" {
		return ts + zoneSuffix
	}
	return now.UTC().Format(nowLayout) + zoneSuffix
}

// Push wraps a single entry in a push body whose stream is keyed by labels,
// the comma-joined Prometheus label list of the document.
func Push(labels string, entry model.LokiEntry) model.LokiPush {
	return model.LokiPush{Streams: []model.LokiStream{{
		Labels:  "{" + labels + "}",
		Entries: []model.LokiEntry{entry},
	}}}
}
