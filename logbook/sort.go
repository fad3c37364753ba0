package logbook

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"vcl/contest"
	"vcl/qso"
)

// SortKey selects a list ordering.
type SortKey string

const (
	ByDateTime SortKey = "date"
	ByBand     SortKey = "band"
	ByMode     SortKey = "mode"
	ByCall     SortKey = "call"
	ByGrid     SortKey = "grid"
)

// ParseSortKey accepts the names above, case-insensitively.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case ByDateTime, ByBand, ByMode, ByCall, ByGrid:
		return k, nil
	case "time":
		return ByDateTime, nil
	}
	return "", fmt.Errorf("logbook: unknown sort key %q", s)
}

// Compare orders two contacts for key. Date/time sorts newest first; the
// other keys sort ascending, with bands in contest table order.
func Compare(key SortKey) func(a, b qso.Contact) int {
	switch key {
	case ByBand:
		return func(a, b qso.Contact) int {
			ai, _ := contest.BandIndex(a.Band)
			bi, _ := contest.BandIndex(b.Band)
			return cmp.Compare(ai, bi)
		}
	case ByMode:
		return func(a, b qso.Contact) int { return cmp.Compare(a.Mode, b.Mode) }
	case ByCall:
		return func(a, b qso.Contact) int { return cmp.Compare(a.Call, b.Call) }
	case ByGrid:
		return func(a, b qso.Contact) int { return cmp.Compare(a.Grid, b.Grid) }
	default:
		return func(a, b qso.Contact) int {
			if c := cmp.Compare(b.Date, a.Date); c != 0 {
				return c
			}
			return cmp.Compare(b.Time, a.Time)
		}
	}
}

// Sort reorders contacts in place. Ties keep their current relative order.
func Sort(contacts []qso.Contact, key SortKey) {
	slices.SortStableFunc(contacts, Compare(key))
}
