// Package tagset turns the deployment identifiers of a posted document into
// the label, tag and path strings each backend expects.
package tagset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jastats/statsgateway/internal/model"
)

// ErrInvalidSlot is returned when a slot value contains a separator reserved by
// one of the downstream formats.
var ErrInvalidSlot = errors.New("invalid slot value")

// reservedChars covers path separators, line-protocol tag separators and
// Prometheus label quoting.
const reservedChars = `/,"\= `

// Set is the output of Build. All four strings list slots in the fixed order
// environment, platform, site, component, host.
type Set struct {
	// URLSuffix is appended to a Prometheus push path, e.g. /environment/prod/platform/p.
	URLSuffix string
	// PromLabels is the Prometheus text-format label list; absent slots are kept as "".
	PromLabels string
	// InfluxTags is the line-protocol tag list; absent slots are omitted.
	InfluxTags string
	// FilePrefix prefixes each line appended to a persistence file.
	FilePrefix string
}

type slot struct {
	name  string
	value *string
}

func slots(h model.Header) []slot {
	host := h.HostName
	return []slot{
		{name: "environment", value: h.Environment},
		{name: "platform", value: h.PlatformName},
		{name: "site", value: h.SiteName},
		{name: "component", value: h.ComponentName},
		{name: "instance", value: &host},
	}
}

// CheckValue rejects values that would break one of the backend formats.
func CheckValue(name, v string) error {
	if i := strings.IndexAny(v, reservedChars); i >= 0 {
		return fmt.Errorf("%w: %s=%q contains %q", ErrInvalidSlot, name, v, v[i])
	}
	for _, r := range v {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %s=%q contains a control character", ErrInvalidSlot, name, v)
		}
	}
	return nil
}

// Build computes the Set for a header. The dialect decides whether absent slots
// are kept as empty values in FilePrefix.
func Build(h model.Header) (Set, error) {
	var (
		url    strings.Builder
		prom   []string
		influx []string
		file   []string
	)
	for _, s := range slots(h) {
		present := s.value != nil && *s.value != ""
		v := ""
		if present {
			v = *s.value
			if err := CheckValue(s.name, v); err != nil {
				return Set{}, err
			}
		}

		// the host is part of the fixed push path, not the suffix
		if present && s.name != "instance" {
			url.WriteString("/" + s.name + "/" + v)
		}
		prom = append(prom, s.name+`="`+v+`"`)
		if present {
			influx = append(influx, s.name+"="+v)
		}
		if present || h.Dialect != model.DialectInflux {
			file = append(file, s.name+"="+v)
		}
	}
	return Set{
		URLSuffix:  url.String(),
		PromLabels: strings.Join(prom, ","),
		InfluxTags: strings.Join(influx, ","),
		FilePrefix: strings.Join(file, ","),
	}, nil
}
