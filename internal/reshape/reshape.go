// Package reshape parses metric payload values of the form
// "timestamp=...,name1=val1,name2=val2" and renders them for the Prometheus
// push gateway or as InfluxDB line protocol.
package reshape

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jastats/statsgateway/internal/model"
)

const (
	timestampPrefix = "timestamp="
	timestampLayout = "2006-01-02T15:04:05.000000"

	// ClientLabel is the label name carried by metrics with an embedded label.
	ClientLabel = "client"
)

// ErrBadTimestamp is returned when a payload value does not start with a parseable timestamp.
var ErrBadTimestamp = errors.New("bad payload timestamp")

var embeddedLabel = regexp.MustCompile(`^(.*?)_:(\w+):(.*)$`)

// SplitLabel extracts the embedded label from a metric name:
// "m_:L:rest" becomes ("m_rest", "L", true). Other names are returned unchanged.
func SplitLabel(name string) (base, label string, ok bool) {
	m := embeddedLabel.FindStringSubmatch(name)
	if m == nil {
		return name, "", false
	}
	return m[1] + "_" + m[3], m[2], true
}

// Sample is a single metric value. Label is empty unless the name carried one.
type Sample struct {
	Name  string
	Value string
	Label string
}

// Series holds the samples parsed from one payload key.
type Series struct {
	Key       string
	Timestamp string // raw first field, normally "timestamp=..."
	Samples   []Sample
}

// Result is the outcome of Parse.
type Result struct {
	Series   []Series
	Warnings []string
	// Duplicates lists skipped metric names, in the order they were met.
	Duplicates []string
}

// Parse splits every payload value into samples. The first field of a value is
// always taken as the timestamp. Metric names repeated anywhere in the request are
// skipped after their first occurrence, as are names that reshape to a series
// already seen under the same label. Empty fields are ignored.
func Parse(payload []model.Field) Result {
	var res Result
	seen := make(map[string]struct{})
	series := make(map[[2]string]struct{})
	for _, f := range payload {
		parts := strings.Split(f.Value, ",")
		s := Series{Key: f.Key, Timestamp: parts[0]}
		for _, part := range parts[1:] {
			if part == "" {
				continue
			}
			name, value, ok := strings.Cut(part, "=")
			if !ok || name == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("WARNING: malformed field %q in %s skipped", part, f.Key))
				continue
			}
			sample := Sample{Name: name, Value: value}
			if base, label, ok := SplitLabel(name); ok {
				sample.Name, sample.Label = base, label
			}
			id := [2]string{sample.Name, sample.Label}
			_, dupName := seen[name]
			_, dupSeries := series[id]
			if dupName || dupSeries {
				res.Duplicates = append(res.Duplicates, name)
				res.Warnings = append(res.Warnings, fmt.Sprintf("WARNING: duplicate metric name %s in %s skipped", name, f.Key))
				continue
			}
			seen[name] = struct{}{}
			series[id] = struct{}{}
			s.Samples = append(s.Samples, sample)
		}
		if len(s.Samples) == 0 {
			continue
		}
		res.Series = append(res.Series, s)
	}
	return res
}

// ParseTimestamp parses the raw first field of a payload value. The value is UTC.
func ParseTimestamp(field string) (time.Time, error) {
	raw, ok := strings.CutPrefix(field, timestampPrefix)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, field)
	}
	// the fractional part is optional when parsing
	ts, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	return ts, nil
}

// FormatTimestamp is the inverse of ParseTimestamp for microsecond-precision values.
func FormatTimestamp(ts time.Time) string {
	return timestampPrefix + ts.UTC().Format(timestampLayout)
}
