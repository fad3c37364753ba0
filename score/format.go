package score

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Lines renders the summary as label/value rows for console output.
func (s Summary) Lines() []string {
	row := func(label string, v int) string {
		return fmt.Sprintf("%-22s %10s", label+":", humanize.Comma(int64(v)))
	}
	return []string{
		row("QSOs", s.QSOs),
		row("Dupes", s.Duplicates),
		row("Grids", s.Grids),
		row("Bands", s.Bands),
		row("QSO points", s.Points),
		row("Multiplier", s.Multiplier),
		row("Total distance (km)", s.DistanceKm),
		row("Band factor distance", s.BandFactorDistance),
		row("Score", s.Score),
	}
}

// FormatDistance renders a single contact distance, prefixed with "~" when
// the grid only had 4 characters.
func FormatDistance(km int, approximate bool) string {
	out := strconv.Itoa(km) + " km"
	if approximate {
		return "~" + out
	}
	return out
}
