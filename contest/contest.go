// Package contest holds the static scoring tables for the supported VHF and
// microwave contests. Every lookup is read-only; definitions are built once at
// package init and handed out by value.
package contest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vcl/logerr"
)

// ID enumerates the supported contest variants. The zero value means no
// contest has been selected yet.
type ID int

const (
	Unset ID = iota
	JanuaryVHF
	JuneSeptemberVHF
	VHFSprint
	MicrowaveSprint
	Contest222Up
	Contest10GHzUp
)

// Scoring selects the final-score formula.
type Scoring uint8

const (
	ScoringNone Scoring = iota
	// ScoringPointsTimesMultiplier is QSO points × grid multipliers.
	ScoringPointsTimesMultiplier
	// ScoringDistance is the plain distance total.
	ScoringDistance
	// ScoringBandFactorDistance is the band-factor weighted distance total.
	ScoringBandFactorDistance
	// ScoringBandFactorDistancePlusPoints adds QSO points to the weighted distance.
	ScoringBandFactorDistancePlusPoints
)

// bandList is the canonical contest band order; the per-contest vectors below
// are indexed by position in this list.
var bandList = [18]string{
	"50", "70", "144", "222", "432", "902", "1.2G", "2.3G", "3.4G",
	"5.7G", "10G", "24G", "47G", "75G", "122G", "134G", "241G", "LIGHT",
}

var bandIndex = func() map[string]int {
	m := make(map[string]int, len(bandList))
	for i, b := range bandList {
		m[b] = i
	}
	return m
}()

// ErrUnknownBand is wrapped by lookup failures for bands outside bandList.
var ErrUnknownBand = errors.New("not a contest band")

// ErrUnknownContest is returned when an ID or name does not match a variant.
var ErrUnknownContest = errors.New("contest: unknown contest")

// Definition is one contest's immutable rule set.
type Definition struct {
	ID        ID
	Name      string
	Key       string
	Distance  bool
	Precision int
	Scoring   Scoring
	points    [18]int
	factors   [18]int
}

var ones = [18]int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}

var definitions = [...]Definition{
	{
		ID: Unset, Name: "Please Select Contest", Key: "",
		Precision: 4, Scoring: ScoringNone,
	},
	{
		ID: JanuaryVHF, Name: "ARRL January VHF Contest", Key: "jan-vhf",
		Precision: 4, Scoring: ScoringPointsTimesMultiplier,
		points:  [18]int{1, 1, 1, 2, 2, 4, 4, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8},
		factors: ones,
	},
	{
		ID: JuneSeptemberVHF, Name: "ARRL June/September VHF Contest", Key: "jun-sep-vhf",
		Precision: 4, Scoring: ScoringPointsTimesMultiplier,
		points:  [18]int{1, 1, 1, 2, 2, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4},
		factors: ones,
	},
	{
		ID: VHFSprint, Name: "NA VHF/UHF Sprint", Key: "vhf-sprint",
		Precision: 4, Scoring: ScoringPointsTimesMultiplier,
		points:  [18]int{1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		factors: ones,
	},
	{
		ID: MicrowaveSprint, Name: "NA Microwave Sprint (6-char. Grid Sq.)", Key: "microwave-sprint",
		Distance: true, Precision: 6, Scoring: ScoringDistance,
		points:  [18]int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0},
		factors: ones,
	},
	{
		ID: Contest222Up, Name: "ARRL 222 MHz+ Contest (6-char. Grid Sq.)", Key: "222-up",
		Distance: true, Precision: 6, Scoring: ScoringBandFactorDistance,
		points:  [18]int{0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0},
		factors: [18]int{0, 0, 0, 2, 1, 4, 2, 6, 10, 10, 6, 20, 20, 20, 20, 20, 20, 0},
	},
	{
		ID: Contest10GHzUp, Name: "ARRL 10 GHz+ Contest (6-char. Grid Sq.)", Key: "10ghz-up",
		Distance: true, Precision: 6, Scoring: ScoringBandFactorDistancePlusPoints,
		points:  [18]int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 100, 100, 100, 100, 100, 100, 100, 0},
		factors: [18]int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 5, 5, 0},
	},
}

// Lookup returns the definition for id.
func Lookup(id ID) (Definition, error) {
	if id < Unset || int(id) >= len(definitions) {
		return Definition{}, fmt.Errorf("%w: id %d", ErrUnknownContest, id)
	}
	return definitions[id], nil
}

// Parse resolves a contest by its display name, short key or numeric id.
// Matching ignores case and surrounding whitespace.
func Parse(name string) (Definition, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	for _, def := range definitions {
		if norm == strings.ToLower(def.Name) || (def.Key != "" && norm == def.Key) {
			return def, nil
		}
		if norm == strconv.Itoa(int(def.ID)) {
			return def, nil
		}
	}
	if norm == "" || norm == "unset" {
		return definitions[Unset], nil
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownContest, name)
}

// All returns every definition in enumeration order, including Unset.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions[:])
	return out
}

// Bands returns the canonical band tokens in table order.
func Bands() []string {
	out := make([]string, len(bandList))
	copy(out, bandList[:])
	return out
}

// BandIndex returns the table position of band.
func BandIndex(band string) (int, bool) {
	idx, ok := bandIndex[band]
	return idx, ok
}

// ValidBand reports whether band is one of the canonical tokens.
func ValidBand(band string) bool {
	_, ok := bandIndex[band]
	return ok
}

func (d Definition) index(band string) (int, error) {
	idx, ok := bandIndex[band]
	if !ok {
		return 0, logerr.Unknown("band", band, ErrUnknownBand)
	}
	return idx, nil
}

// Points returns the QSO points awarded for a contact on band.
func (d Definition) Points(band string) (int, error) {
	idx, err := d.index(band)
	if err != nil {
		return 0, err
	}
	return d.points[idx], nil
}

// BandFactor returns the distance multiplier for band.
func (d Definition) BandFactor(band string) (int, error) {
	idx, err := d.index(band)
	if err != nil {
		return 0, err
	}
	return d.factors[idx], nil
}

// IsDistanceBased reports whether the contest scores on distance and compares
// grids at 6-character precision.
func (d Definition) IsDistanceBased() bool { return d.Distance }

// RequiredPrecision is the grid length the contest expects (4 or 6).
func (d Definition) RequiredPrecision() int {
	if d.Precision == 0 {
		return 4
	}
	return d.Precision
}

// IsSet reports whether a real contest has been selected.
func (d Definition) IsSet() bool { return d.ID != Unset }

func (d Definition) String() string { return d.Name }
