// Package wsjtx turns WSJT-X "QSO logged" messages into contacts. It decodes
// the UDP datagram framing, extracts the ADIF fields of the logged record,
// maps the dial frequency to a contest band and applies the active contest's
// grid precision rule.
package wsjtx

import (
	"errors"
	"strconv"
	"strings"

	"vcl/adif"
	"vcl/contest"
	"vcl/locator"
	"vcl/logerr"
	"vcl/qso"
)

// UnknownBand is returned by BandForFrequency outside every contest band.
const UnknownBand = "unknown"

// Mode is the mode token recorded for every WSJT-X contact.
const Mode = qso.DG

var (
	ErrMissingField    = errors.New("field missing from payload")
	ErrBadFrequency    = errors.New("frequency is not a number")
	ErrInsufficientLoc = errors.New("WSJT-X is sending 4-character grids; enable 6-character grids in Special Operating Activity")
)

type bandRange struct {
	lo, hi int // whole MHz, inclusive
	band   string
}

var bandRanges = []bandRange{
	{50, 52, "50"},
	{69, 70, "70"},
	{144, 148, "144"},
	{220, 225, "222"},
	{420, 450, "432"},
	{900, 928, "902"},
	{1240, 1300, "1.2G"},
	{2300, 2450, "2.3G"},
	{3300, 3450, "3.4G"},
	{5650, 5925, "5.7G"},
	{10000, 10500, "10G"},
	{24000, 24250, "24G"},
	{47000, 47200, "47G"},
	{76000, 81000, "75G"},
	{122250, 123000, "122G"},
	{134000, 141000, "134G"},
	{241000, 250000, "241G"},
}

// BandForFrequency maps a frequency in MHz to a contest band token using its
// whole-MHz part. Anything outside the contest bands, including text that is
// not a frequency, yields UnknownBand.
func BandForFrequency(freq string) string {
	mhz, err := wholeMHz(freq)
	if err != nil {
		return UnknownBand
	}
	for _, r := range bandRanges {
		if mhz >= r.lo && mhz <= r.hi {
			return r.band
		}
	}
	return UnknownBand
}

func wholeMHz(freq string) (int, error) {
	whole, _, _ := strings.Cut(strings.TrimSpace(freq), ".")
	mhz, err := strconv.Atoi(whole)
	if err != nil || mhz < 0 {
		return 0, logerr.Formatf(adif.FieldFreq, freq, "%w", ErrBadFrequency)
	}
	return mhz, nil
}

// Status holds the fields extracted from one logged-QSO payload, before any
// contest rule is applied.
type Status struct {
	Call string
	Grid string
	Date string // YYYYMMDD as sent
	Time string // HHMM or HHMMSS as sent
	Freq string // MHz as sent
	Band string // BandForFrequency(Freq)
}

// Extract pulls call, gridsquare, qso_date, time_on and freq out of payload.
// A missing or malformed field fails the whole payload with a Format error.
func Extract(payload []byte) (Status, error) {
	text := string(payload)
	get := func(name string) (string, error) {
		v, ok, err := adif.Find(text, name)
		if err != nil {
			return "", err
		}
		if !ok || strings.TrimSpace(v) == "" {
			return "", logerr.Formatf(name, "", "%w", ErrMissingField)
		}
		return strings.TrimSpace(v), nil
	}
	var (
		st  Status
		err error
	)
	if st.Call, err = get(adif.FieldCall); err != nil {
		return Status{}, err
	}
	if st.Grid, err = get(adif.FieldGridsquare); err != nil {
		return Status{}, err
	}
	if st.Date, err = get(adif.FieldQSODate); err != nil {
		return Status{}, err
	}
	if len(st.Date) != 8 {
		return Status{}, logerr.Formatf(adif.FieldQSODate, st.Date, "want 8 digits")
	}
	if st.Time, err = get(adif.FieldTimeOn); err != nil {
		return Status{}, err
	}
	if len(st.Time) < 4 {
		return Status{}, logerr.Formatf(adif.FieldTimeOn, st.Time, "want at least 4 digits")
	}
	if st.Freq, err = get(adif.FieldFreq); err != nil {
		return Status{}, err
	}
	if _, err := wholeMHz(st.Freq); err != nil {
		return Status{}, err
	}
	st.Band = BandForFrequency(st.Freq)
	st.Call = qso.NormalizeCall(st.Call)
	st.Grid = locator.Normalize(st.Grid)
	return st, nil
}

// Contact applies the contest's grid precision and builds the contact.
//
// A 4-character grid for a contest scored at 6 characters is a blocking
// mismatch and no contact is produced. A 6-character grid for a 4-character
// contest is usable: the grid is truncated and a non-blocking warning is
// returned alongside the contact. An unknown band fails contact validation.
func (s Status) Contact(def contest.Definition) (c qso.Contact, warning error, err error) {
	grid := s.Grid
	switch want := def.RequiredPrecision(); {
	case want == 6 && len(grid) == 4:
		return qso.Contact{}, nil, logerr.Blocking("gridsquare", grid, "%w", ErrInsufficientLoc)
	case want == 4 && len(grid) == 6:
		warning = logerr.Warning("gridsquare", grid, "WSJT-X is sending 6-character grids; last two characters dropped")
		grid = grid[:4]
	}
	if len(s.Time) < 4 {
		return qso.Contact{}, nil, logerr.Formatf(adif.FieldTimeOn, s.Time, "want at least 4 digits")
	}
	date, err := qso.ExpandDate(s.Date)
	if err != nil {
		return qso.Contact{}, nil, err
	}
	c, err = qso.New(date, s.Time[:4], s.Band, string(Mode), s.Call, grid)
	if err != nil {
		return qso.Contact{}, nil, err
	}
	return c, warning, nil
}

// ContactFromPayload runs Extract and Contact in one step.
func ContactFromPayload(payload []byte, def contest.Definition) (c qso.Contact, warning error, err error) {
	st, err := Extract(payload)
	if err != nil {
		return qso.Contact{}, nil, err
	}
	return st.Contact(def)
}
