// Package format holds display formatting shared by the scan engine and the
// run orchestrator.
package format

import (
	"strconv"
	"strings"
	"time"
)

var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Eastern renders a unix timestamp as US-Eastern wall-clock time, the
// timezone Polymarket markets are quoted in.
func Eastern(seconds int64) string {
	return time.Unix(seconds, 0).In(eastern).Format("2006-01-02 15:04") + " ET"
}

// USD renders a dollar amount with thousands separators. Stakes under $1000
// keep up to four decimal places.
func USD(value float64) string {
	decimals := 2
	if value < 1000 {
		decimals = 4
	}
	s := strconv.FormatFloat(value, 'f', decimals, 64)

	if decimals == 4 {
		s = strings.TrimRight(s, "0")
		if i := strings.IndexByte(s, '.'); i >= 0 {
			if missing := 2 - (len(s) - i - 1); missing > 0 {
				s += strings.Repeat("0", missing)
			}
		}
	}

	if i := strings.IndexByte(s, '.'); i > 3 {
		var b strings.Builder
		intPart := s[:i]
		for pos, r := range intPart {
			if pos > 0 && (len(intPart)-pos)%3 == 0 {
				b.WriteByte(',')
			}
			b.WriteRune(r)
		}
		s = b.String() + s[i:]
	}
	return "$" + s
}
