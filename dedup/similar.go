package dedup

import (
	"vcl/locator"
	"vcl/qso"

	lev "github.com/agnivade/levenshtein"
)

// Match is a saved contact whose callsign is close to, but not the same as,
// an entry candidate.
type Match struct {
	Index int
	Call  string
	Edits int
}

// SimilarCalls lists saved contacts on the candidate's band and 4-character
// grid whose callsign is within maxEdits edits of the candidate's. Identical
// callsigns are left to FindEntryDupe. A busted call usually shows up here as
// a single-edit neighbour.
func SimilarCalls(candidate qso.Contact, saved []qso.Contact, maxEdits int) []Match {
	if maxEdits <= 0 || candidate.Call == "" {
		return nil
	}
	grid := locator.Prefix(candidate.Grid, 4)
	var out []Match
	for i, c := range saved {
		if c.Band != candidate.Band || c.Call == candidate.Call {
			continue
		}
		if locator.Prefix(c.Grid, 4) != grid {
			continue
		}
		d := lev.ComputeDistance(candidate.Call, c.Call)
		if d <= maxEdits {
			out = append(out, Match{Index: i, Call: c.Call, Edits: d})
		}
	}
	return out
}
