// Package dedup classifies contacts in a working log as unique, first of a
// duplicate group, or duplicate, and checks entry candidates against the
// saved log before they are committed.
//
// Two contacts are duplicates when they share band and callsign and their
// grids agree to the precision the contest scores at: 6 characters for the
// distance-based contests, 4 otherwise.
package dedup

import (
	"vcl/contest"
	"vcl/locator"
	"vcl/qso"
)

// Status is the duplicate classification of one contact.
type Status uint8

const (
	Unique Status = iota
	// FirstOfGroup marks the earliest record of a duplicate pair.
	FirstOfGroup
	// Duplicate marks every later record of a duplicate pair. Duplicates earn
	// no QSO points.
	Duplicate
)

func (s Status) String() string {
	switch s {
	case FirstOfGroup:
		return "first"
	case Duplicate:
		return "dupe"
	default:
		return "unique"
	}
}

// PrefixLength is the grid precision used for duplicate comparison.
func PrefixLength(def contest.Definition) int {
	if def.IsDistanceBased() {
		return 6
	}
	return 4
}

func same(a, b qso.Contact, n int) bool {
	return a.Band == b.Band &&
		a.Call == b.Call &&
		locator.Prefix(a.Grid, n) == locator.Prefix(b.Grid, n)
}

// Purpose: Flag duplicates across the whole working log.
// Key aspects: Pairwise over i<j; a record already marked Duplicate by an
// earlier pair is never promoted back to FirstOfGroup. This is not a
// connected-components grouping.
// Upstream: score.Recompute, cmd dupes report.
// Downstream: same.
// Classify returns one Status per contact, in input order.
func Classify(contacts []qso.Contact, def contest.Definition) []Status {
	n := PrefixLength(def)
	out := make([]Status, len(contacts))
	for i := 0; i < len(contacts); i++ {
		for j := i + 1; j < len(contacts); j++ {
			if !same(contacts[i], contacts[j], n) {
				continue
			}
			out[j] = Duplicate
			if out[i] != Duplicate {
				out[i] = FirstOfGroup
			}
		}
	}
	return out
}

// CountDuplicates counts Duplicate flags.
func CountDuplicates(statuses []Status) int {
	count := 0
	for _, s := range statuses {
		if s == Duplicate {
			count++
		}
	}
	return count
}

// FindEntryDupe returns the index of the first saved contact that duplicates
// candidate, or -1. editing is the index of the saved record being replaced
// (it is skipped); pass -1 when entering a new contact.
func FindEntryDupe(candidate qso.Contact, saved []qso.Contact, def contest.Definition, editing int) int {
	n := PrefixLength(def)
	for i, c := range saved {
		if i == editing {
			continue
		}
		if same(candidate, c, n) {
			return i
		}
	}
	return -1
}
