// Package cabrillo reads and writes Cabrillo 3.0 contest submissions and
// converts their QSO lines to and from ADIF records.
package cabrillo

import (
	"errors"
	"strings"
	"time"

	"vcl/adif"
	"vcl/locator"
	"vcl/logerr"
	"vcl/qso"
	"vcl/strutil"
)

const (
	tagQSO        = "QSO:"
	tagStartOfLog = "START-OF-LOG:"
	tagEndOfLog   = "END-OF-LOG:"

	qsoFieldCount = 8
)

var (
	ErrNotQSOLine = errors.New("not a QSO: line")
	ErrFieldCount = errors.New("QSO line needs 8 fields")
	ErrNoOwnCall  = errors.New("own callsign not configured")
	ErrNoOwnGrid  = errors.New("own grid locator not configured")
)

// QSO is one submission line:
//
//	QSO: band mode date time own-call own-grid call grid
type QSO struct {
	Band    string
	Mode    string
	Date    string // YYYY-MM-DD
	Time    string // HHMM
	OwnCall string
	OwnGrid string
	Call    string
	Grid    string
}

// ParseQSOLine decodes one QSO: line. Repeated blanks are collapsed first.
func ParseQSOLine(line string) (QSO, error) {
	line = strutil.CollapseSpaces(line)
	if !strings.HasPrefix(line, tagQSO) {
		return QSO{}, logerr.Formatf("line", line, "%w", ErrNotQSOLine)
	}
	fields := strings.Fields(strings.TrimPrefix(line, tagQSO))
	if len(fields) != qsoFieldCount {
		return QSO{}, logerr.Formatf("line", line, "%w, got %d", ErrFieldCount, len(fields))
	}
	q := QSO{
		Band:    fields[0],
		Mode:    strings.ToUpper(fields[1]),
		Date:    fields[2],
		Time:    fields[3],
		OwnCall: strings.ToUpper(fields[4]),
		OwnGrid: strings.ToUpper(fields[5]),
		Call:    strings.ToUpper(fields[6]),
		Grid:    strings.ToUpper(fields[7]),
	}
	if _, err := time.Parse(qso.DateLayout, q.Date); err != nil {
		return QSO{}, logerr.Formatf("date", q.Date, "want YYYY-MM-DD")
	}
	if len(q.Time) != 4 {
		return QSO{}, logerr.Formatf("time", q.Time, "want HHMM")
	}
	if _, err := time.Parse(qso.TimeLayout, q.Time); err != nil {
		return QSO{}, logerr.Formatf("time", q.Time, "want HHMM")
	}
	return q, nil
}

// String renders the submission line.
func (q QSO) String() string {
	return strings.Join([]string{tagQSO, q.Band, q.Mode, q.Date, q.Time, q.OwnCall, q.OwnGrid, q.Call, q.Grid}, " ")
}

// FromContact builds the submission line for a logged contact. Own call and
// grid are upper-cased.
func FromContact(c qso.Contact, st Station) QSO {
	return QSO{
		Band:    c.Band,
		Mode:    string(c.Mode),
		Date:    c.Date,
		Time:    c.Time,
		OwnCall: strutil.NormalizeUpper(st.Callsign),
		OwnGrid: locator.Normalize(st.Grid),
		Call:    c.Call,
		Grid:    c.Grid,
	}
}

// Contact returns the worked station's side of the line as a validated
// contact.
func (q QSO) Contact() (qso.Contact, error) {
	return qso.New(q.Date, q.Time, q.Band, q.Mode, q.Call, q.Grid)
}

// ADIF encodes the line as an interchange record. The worked station's grid
// is carried as gridsquare so the record converts back.
func (q QSO) ADIF() (adif.Record, error) {
	band, err := adif.BandToADIF(q.Band)
	if err != nil {
		return adif.Record{}, err
	}
	mode, err := adif.ModeToADIF(q.Mode)
	if err != nil {
		return adif.Record{}, err
	}
	rec := adif.Record{Fields: []adif.Field{
		{Name: adif.FieldCall, Value: q.Call},
		{Name: adif.FieldBand, Value: band},
		{Name: adif.FieldMode, Value: mode},
		{Name: adif.FieldQSODate, Value: qso.CompactDate(q.Date)},
		{Name: adif.FieldTimeOn, Value: q.Time},
	}}
	if q.Grid != "" {
		rec.Fields = append(rec.Fields, adif.Field{Name: adif.FieldGridsquare, Value: q.Grid})
	}
	return rec, nil
}

// ToADIF decodes a submission line and encodes it as an interchange record.
func ToADIF(line string) (adif.Record, error) {
	q, err := ParseQSOLine(line)
	if err != nil {
		return adif.Record{}, err
	}
	return q.ADIF()
}

// FromADIF builds a submission line from an interchange record. ADIF carries
// no own-station fields, so they come from st.
func FromADIF(rec adif.Record, st Station) (QSO, error) {
	if err := st.requireOwn(); err != nil {
		return QSO{}, err
	}
	call, err := rec.Require(adif.FieldCall)
	if err != nil {
		return QSO{}, err
	}
	rawBand, err := rec.Require(adif.FieldBand)
	if err != nil {
		return QSO{}, err
	}
	band, err := adif.BandFromADIF(rawBand)
	if err != nil {
		return QSO{}, err
	}
	rawMode, err := rec.Require(adif.FieldMode)
	if err != nil {
		return QSO{}, err
	}
	mode, err := adif.ModeFromADIF(rawMode)
	if err != nil {
		return QSO{}, err
	}
	rawDate, err := rec.Require(adif.FieldQSODate)
	if err != nil {
		return QSO{}, err
	}
	date, err := qso.ExpandDate(rawDate)
	if err != nil {
		return QSO{}, err
	}
	tm, err := rec.Require(adif.FieldTimeOn)
	if err != nil {
		return QSO{}, err
	}
	if len(tm) < 4 {
		return QSO{}, logerr.Formatf(adif.FieldTimeOn, tm, "want HHMM or HHMMSS")
	}
	grid, _ := rec.Get(adif.FieldGridsquare)
	return QSO{
		Band:    band,
		Mode:    mode,
		Date:    date,
		Time:    tm[:4],
		OwnCall: strutil.NormalizeUpper(st.Callsign),
		OwnGrid: locator.Normalize(st.Grid),
		Call:    strutil.NormalizeUpper(call),
		Grid:    locator.Normalize(grid),
	}, nil
}
