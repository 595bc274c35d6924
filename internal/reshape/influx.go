package reshape

import (
	"strconv"
	"strings"
)

// InfluxRows renders one series as line protocol. Samples without a label share
// one row; each embedded label gets its own row tagged client=<label>.
func InfluxRows(measurement, tags string, s Series) ([]string, error) {
	ts, err := ParseTimestamp(s.Timestamp)
	if err != nil {
		return nil, err
	}
	nanos := strconv.FormatInt(ts.UnixNano(), 10)

	var (
		plain  []string
		order  []string
		byLbl  = make(map[string][]string)
		prefix = measurement
	)
	if tags != "" {
		prefix += "," + tags
	}
	for _, sm := range s.Samples {
		field := sm.Name + "=" + sm.Value
		if sm.Label == "" {
			plain = append(plain, field)
			continue
		}
		if _, ok := byLbl[sm.Label]; !ok {
			order = append(order, sm.Label)
		}
		byLbl[sm.Label] = append(byLbl[sm.Label], field)
	}

	rows := make([]string, 0, len(order)+1)
	if len(plain) > 0 {
		rows = append(rows, prefix+" "+strings.Join(plain, ",")+" "+nanos)
	}
	for _, l := range order {
		rows = append(rows, prefix+","+ClientLabel+"="+l+" "+strings.Join(byLbl[l], ",")+" "+nanos)
	}
	return rows, nil
}
