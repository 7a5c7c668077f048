package update

import (
	"strconv"
	"strings"
	"time"
)

// ExpandDated fills date placeholders of an aggregator URL template:
// {yyyy}, {mm} and {dd} are zero padded, {m} and {d} are not, and
// {yyyymmdd} is the compact date.
func ExpandDated(template string, date time.Time) string {
	y, m, d := date.Date()
	r := strings.NewReplacer(
		"{yyyymmdd}", date.Format("20060102"),
		"{yyyy}", strconv.Itoa(y),
		"{mm}", date.Format("01"),
		"{dd}", date.Format("02"),
		"{m}", strconv.Itoa(int(m)),
		"{d}", strconv.Itoa(d),
	)
	return r.Replace(template)
}

// ExpandAll expands every template for date.
func ExpandAll(templates []string, date time.Time) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, ExpandDated(t, date))
	}
	return out
}
