package reshape

import "strings"

// PushGroup is one Prometheus push gateway body. Label is empty for the group of
// metrics without an embedded label; otherwise the body is pushed under /client/<Label>.
type PushGroup struct {
	Label string
	Body  string
	Lines int
}

// Prometheus renders series as exposition lines "<name> <value>\n". The unlabeled
// group comes first, followed by one group per label in the order labels were found.
func Prometheus(series []Series) []PushGroup {
	var (
		plain  strings.Builder
		nplain int
		order  []string
		byLbl  = make(map[string]*strings.Builder)
		counts = make(map[string]int)
	)
	for _, s := range series {
		for _, sm := range s.Samples {
			b := &plain
			if sm.Label != "" {
				lb, ok := byLbl[sm.Label]
				if !ok {
					lb = &strings.Builder{}
					byLbl[sm.Label] = lb
					order = append(order, sm.Label)
				}
				b = lb
				counts[sm.Label]++
			} else {
				nplain++
			}
			b.WriteString(sm.Name)
			b.WriteByte(' ')
			b.WriteString(sm.Value)
			b.WriteByte('\n')
		}
	}

	groups := make([]PushGroup, 0, len(order)+1)
	if nplain > 0 {
		groups = append(groups, PushGroup{Body: plain.String(), Lines: nplain})
	}
	for _, l := range order {
		groups = append(groups, PushGroup{Label: l, Body: byLbl[l].String(), Lines: counts[l]})
	}
	return groups
}
