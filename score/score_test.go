package score

import (
	"errors"
	"strings"
	"testing"

	"vcl/contest"
	"vcl/dedup"
	"vcl/logerr"
	"vcl/qso"
)

func mustContest(t *testing.T, id contest.ID) contest.Definition {
	t.Helper()
	def, err := contest.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup(%d): %v", id, err)
	}
	return def
}

func contact(band, call, grid string) qso.Contact {
	return qso.Contact{Date: "2024-06-08", Time: "1800", Band: band, Mode: qso.PH, Call: call, Grid: grid}
}

func TestRecomputeDuplicatePair(t *testing.T) {
	def := mustContest(t, contest.JanuaryVHF)
	log := []qso.Contact{
		contact("144", "W1ABC", "FN42"),
		contact("144", "W1ABC", "FN42"),
	}
	sum, statuses, err := Recompute(log, def, "FN31PR")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if sum.Points != 1 || sum.Multiplier != 1 || sum.Duplicates != 1 || sum.Score != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.QSOs != 2 || sum.Grids != 1 || sum.Bands != 1 {
		t.Fatalf("unexpected counts %+v", sum)
	}
	if statuses[0] != dedup.FirstOfGroup || statuses[1] != dedup.Duplicate {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestRecomputeMultiplierCountsGridsPerBand(t *testing.T) {
	def := mustContest(t, contest.JuneSeptemberVHF)
	log := []qso.Contact{
		contact("50", "K1AAA", "FN42"),
		contact("50", "K1BBB", "FN42AB"),
		contact("50", "K1CCC", "FN31"),
		contact("432", "K1AAA", "FN42"),
		contact("432", "K1AAA", "FN42"), // dupe: no points, still a multiplier entry
		contact("1.2G", "K1DDD", "EM12"),
	}
	sum, _, err := Recompute(log, def, "FN31PR")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	// points: 50×3 = 3, 432 = 2 (dupe excluded), 1.2G = 3
	if sum.Points != 8 {
		t.Fatalf("Points = %d, want 8", sum.Points)
	}
	// 50: FN42, FN31; 432: FN42; 1.2G: EM12
	if sum.Multiplier != 4 {
		t.Fatalf("Multiplier = %d, want 4", sum.Multiplier)
	}
	if sum.Score != 32 {
		t.Fatalf("Score = %d, want 32", sum.Score)
	}
	if sum.Grids != 3 || sum.Bands != 3 || sum.Duplicates != 1 {
		t.Fatalf("unexpected counts %+v", sum)
	}
}

func TestRecomputeDistanceContests(t *testing.T) {
	tests := []struct {
		name      string
		id        contest.ID
		bands     [3]string
		distance  int
		weighted  int
		points    int
		wantScore int
	}{
		{name: "microwave_sprint", id: contest.MicrowaveSprint, bands: [3]string{"10G", "10G", "24G"}, distance: 320, weighted: 320, points: 3, wantScore: 320},
		{name: "222_up", id: contest.Contest222Up, bands: [3]string{"222", "432", "3.4G"}, distance: 320, weighted: 487, points: 3, wantScore: 487},
		{name: "10ghz_up", id: contest.Contest10GHzUp, bands: [3]string{"10G", "24G", "47G"}, distance: 320, weighted: 483, points: 300, wantScore: 783},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := mustContest(t, tt.id)
			log := []qso.Contact{
				contact(tt.bands[0], "K1AAA", "FN20XR"), // 158 km
				contact(tt.bands[1], "K1BBB", "FN42"),   // 161 km to the square center
				contact(tt.bands[2], "K1CCC", "FN31PR"), // own square, floored to 1 km
			}
			sum, _, err := Recompute(log, def, "FN31PR")
			if err != nil {
				t.Fatalf("Recompute: %v", err)
			}
			if sum.DistanceKm != tt.distance {
				t.Fatalf("DistanceKm = %d, want %d", sum.DistanceKm, tt.distance)
			}
			if sum.BandFactorDistance != tt.weighted {
				t.Fatalf("BandFactorDistance = %d, want %d", sum.BandFactorDistance, tt.weighted)
			}
			if sum.Points != tt.points {
				t.Fatalf("Points = %d, want %d", sum.Points, tt.points)
			}
			if sum.Score != tt.wantScore {
				t.Fatalf("Score = %d, want %d", sum.Score, tt.wantScore)
			}
		})
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	def := mustContest(t, contest.Contest222Up)
	log := []qso.Contact{
		contact("222", "K1AAA", "FN20XR"),
		contact("222", "K1AAA", "FN20XR"),
		contact("432", "K1BBB", "FN42"),
	}
	first, _, err := Recompute(log, def, "FN31PR")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	second, _, err := Recompute(log, def, "FN31PR")
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if first != second {
		t.Fatalf("summaries differ: %+v vs %+v", first, second)
	}
}

func TestRecomputeErrors(t *testing.T) {
	unset := mustContest(t, contest.Unset)
	if _, _, err := Recompute(nil, unset, "FN31PR"); !errors.Is(err, ErrContestUnset) {
		t.Fatalf("expected ErrContestUnset, got %v", err)
	}

	def := mustContest(t, contest.JanuaryVHF)
	_, _, err := Recompute([]qso.Contact{contact("2m", "K1AAA", "FN42")}, def, "FN31PR")
	if !logerr.Is(err, logerr.Lookup) {
		t.Fatalf("expected lookup failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "record 0") {
		t.Fatalf("expected record index in %q", err)
	}

	if _, _, err := Recompute(nil, def, "ZZ99"); !logerr.Is(err, logerr.Validation) {
		t.Fatalf("expected validation error for own locator, got %v", err)
	}
}

func TestRecomputeWithoutOwnLocator(t *testing.T) {
	log := []qso.Contact{
		contact("144", "W1ABC", "FN42"),
		contact("432", "K1ABC", "FN31"),
		contact("144", "W1ABC", "FN42"),
	}
	def := mustContest(t, contest.JanuaryVHF)
	got, statuses, err := Recompute(log, def, "")
	if err != nil {
		t.Fatalf("Recompute without own locator: %v", err)
	}
	want, _, err := Recompute(log, def, "FN31PR")
	if err != nil {
		t.Fatalf("Recompute with own locator: %v", err)
	}
	if got.Points != want.Points || got.Multiplier != want.Multiplier || got.Score != want.Score || got.Duplicates != 1 {
		t.Fatalf("summary without own locator = %+v, want points/mult/score of %+v", got, want)
	}
	if got.Score == 0 || got.DistanceKm != 0 || len(statuses) != len(log) {
		t.Fatalf("summary = %+v, statuses = %v", got, statuses)
	}

	micro := mustContest(t, contest.MicrowaveSprint)
	if _, _, err := Recompute(nil, micro, ""); !logerr.Is(err, logerr.Validation) {
		t.Fatalf("distance contest without own locator: expected validation error, got %v", err)
	}
}

func TestContactDistance(t *testing.T) {
	km, approx, err := ContactDistance("FN31PR", "fn42")
	if err != nil {
		t.Fatalf("ContactDistance: %v", err)
	}
	if km != 161 || !approx {
		t.Fatalf("ContactDistance = %d/%v, want 161/true", km, approx)
	}
	if got := FormatDistance(km, approx); got != "~161 km" {
		t.Fatalf("FormatDistance = %q", got)
	}
	km, approx, err = ContactDistance("FN31PR", "FN31PR")
	if err != nil || km != 1 || approx {
		t.Fatalf("own square = %d/%v/%v, want 1/false", km, approx, err)
	}
}

func TestPrecisionMismatches(t *testing.T) {
	log := []qso.Contact{
		contact("10G", "K1AAA", "FN20XR"),
		contact("10G", "K1BBB", "FN42"),
	}
	got := PrecisionMismatches(log, mustContest(t, contest.MicrowaveSprint))
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("PrecisionMismatches = %v", got)
	}
	if got := PrecisionMismatches(log, mustContest(t, contest.JanuaryVHF)); got != nil {
		t.Fatalf("4-char contest should accept both, got %v", got)
	}
}

func TestSummaryLines(t *testing.T) {
	lines := Summary{QSOs: 1234, Score: 1234567}.Lines()
	if len(lines) != 9 {
		t.Fatalf("expected 9 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], "1,234") || !strings.HasPrefix(lines[0], "QSOs:") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.HasSuffix(lines[8], "1,234,567") {
		t.Fatalf("unexpected score line %q", lines[8])
	}
}
