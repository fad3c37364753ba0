// Package score recomputes the contest score of a working log from scratch.
// Nothing is cached between calls: the same contacts, contest and own
// locator always give the same Summary.
package score

import (
	"errors"
	"fmt"

	"vcl/contest"
	"vcl/dedup"
	"vcl/locator"
	"vcl/qso"
)

// ErrContestUnset is returned when no contest has been selected.
var ErrContestUnset = errors.New("score: no contest selected")

// sameSquareKm is credited for a contact in the operator's own 6-character
// grid, where the computed distance would be 0.
const sameSquareKm = 1

// Summary is the derived score of a log.
type Summary struct {
	Contest            string `json:"contest"`
	QSOs               int    `json:"qsos"`
	Duplicates         int    `json:"dupes"`
	Grids              int    `json:"grids"`
	Bands              int    `json:"bands"`
	Points             int    `json:"points"`
	Multiplier         int    `json:"multiplier"`
	DistanceKm         int    `json:"distance_km"`
	BandFactorDistance int    `json:"band_factor_distance"`
	Score              int    `json:"score"`
}

// Purpose: Produce the full score summary for a log.
// Key aspects: Duplicates earn no points but still count toward the
// multiplier; 4-character grids are scored at their square center. The own
// locator may be empty for points-times-multiplier contests, in which case
// the distance fields stay zero.
// Upstream: session recompute, cmd score, cabrillo CLAIMED-SCORE.
// Downstream: dedup.Classify, locator.Distance, contest tables.
// Recompute returns the summary and the per-contact duplicate flags.
func Recompute(contacts []qso.Contact, def contest.Definition, own string) (Summary, []dedup.Status, error) {
	if !def.IsSet() {
		return Summary{}, nil, ErrContestUnset
	}
	own = locator.Normalize(own)
	if own != "" || def.IsDistanceBased() {
		if err := locator.Validate(own); err != nil {
			return Summary{}, nil, fmt.Errorf("score: own locator: %w", err)
		}
	}

	statuses := dedup.Classify(contacts, def)
	sum := Summary{
		Contest:    def.Name,
		QSOs:       len(contacts),
		Duplicates: dedup.CountDuplicates(statuses),
	}

	gridLen := def.RequiredPrecision()
	grids := make(map[string]struct{})
	mults := make(map[string]map[string]struct{})

	for i, c := range contacts {
		pts, err := def.Points(c.Band)
		if err != nil {
			return Summary{}, nil, fmt.Errorf("score: record %d: %w", i, err)
		}
		factor, err := def.BandFactor(c.Band)
		if err != nil {
			return Summary{}, nil, fmt.Errorf("score: record %d: %w", i, err)
		}
		if statuses[i] != dedup.Duplicate {
			sum.Points += pts
		}

		grids[locator.Prefix(c.Grid, gridLen)] = struct{}{}
		perBand, ok := mults[c.Band]
		if !ok {
			perBand = make(map[string]struct{})
			mults[c.Band] = perBand
		}
		perBand[locator.Prefix(c.Grid, 4)] = struct{}{}

		if own == "" {
			continue
		}
		km, err := recordDistance(own, c.Grid)
		if err != nil {
			return Summary{}, nil, fmt.Errorf("score: record %d: %w", i, err)
		}
		sum.DistanceKm += km
		sum.BandFactorDistance += km * factor
	}

	for _, perBand := range mults {
		sum.Multiplier += len(perBand)
	}
	sum.Grids = len(grids)
	sum.Bands = len(mults)
	sum.Score = final(def, sum)
	return sum, statuses, nil
}

func recordDistance(own, grid string) (int, error) {
	if len(own) == 6 && grid == own {
		return sameSquareKm, nil
	}
	return locator.Distance(own, grid)
}

func final(def contest.Definition, s Summary) int {
	switch def.Scoring {
	case contest.ScoringPointsTimesMultiplier:
		return s.Points * s.Multiplier
	case contest.ScoringDistance:
		return s.DistanceKm
	case contest.ScoringBandFactorDistance:
		return s.BandFactorDistance
	case contest.ScoringBandFactorDistancePlusPoints:
		return s.BandFactorDistance + s.Points
	default:
		return 0
	}
}

// ContactDistance is the distance from own to a single contact grid. A
// 4-character grid is measured to its square center and reported as
// approximate.
func ContactDistance(own, grid string) (km int, approximate bool, err error) {
	own = locator.Normalize(own)
	grid = locator.Normalize(grid)
	km, err = recordDistance(own, grid)
	if err != nil {
		return 0, false, err
	}
	return km, len(grid) < 6, nil
}

// PrecisionMismatches returns the indexes of contacts whose grid is shorter
// than the contest requires.
func PrecisionMismatches(contacts []qso.Contact, def contest.Definition) []int {
	want := def.RequiredPrecision()
	var out []int
	for i, c := range contacts {
		if len(c.Grid) < want {
			out = append(out, i)
		}
	}
	return out
}
