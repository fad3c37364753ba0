package adif

import (
	"errors"

	"vcl/logerr"
	"vcl/qso"
)

// Field names written and read for contacts.
const (
	FieldCall       = "call"
	FieldBand       = "band"
	FieldMode       = "mode"
	FieldQSODate    = "qso_date"
	FieldTimeOn     = "time_on"
	FieldGridsquare = "gridsquare"
	FieldFreq       = "freq"
)

// ErrMissingField is wrapped when a required field is absent.
var ErrMissingField = errors.New("required field missing")

// FromContact builds the interchange record for a logged contact.
func FromContact(c qso.Contact) (Record, error) {
	band, err := BandToADIF(c.Band)
	if err != nil {
		return Record{}, err
	}
	mode, err := ModeToADIF(string(c.Mode))
	if err != nil {
		return Record{}, err
	}
	return Record{Fields: []Field{
		{Name: FieldCall, Value: c.Call},
		{Name: FieldBand, Value: band},
		{Name: FieldMode, Value: mode},
		{Name: FieldQSODate, Value: qso.CompactDate(c.Date)},
		{Name: FieldTimeOn, Value: c.Time},
		{Name: FieldGridsquare, Value: c.Grid},
	}}, nil
}

// Require returns the value of a field that must be present and non-empty.
func (r Record) Require(name string) (string, error) {
	v, ok := r.Get(name)
	if !ok || v == "" {
		return "", logerr.Formatf(name, "", "%w", ErrMissingField)
	}
	return v, nil
}

// ToContact converts an interchange record into a validated contact. The
// gridsquare field is required; time_on may carry seconds, which are dropped.
func ToContact(r Record) (qso.Contact, error) {
	call, err := r.Require(FieldCall)
	if err != nil {
		return qso.Contact{}, err
	}
	rawBand, err := r.Require(FieldBand)
	if err != nil {
		return qso.Contact{}, err
	}
	band, err := BandFromADIF(rawBand)
	if err != nil {
		return qso.Contact{}, err
	}
	rawMode, err := r.Require(FieldMode)
	if err != nil {
		return qso.Contact{}, err
	}
	mode, err := ModeFromADIF(rawMode)
	if err != nil {
		return qso.Contact{}, err
	}
	rawDate, err := r.Require(FieldQSODate)
	if err != nil {
		return qso.Contact{}, err
	}
	date, err := qso.ExpandDate(rawDate)
	if err != nil {
		return qso.Contact{}, err
	}
	tm, err := r.Require(FieldTimeOn)
	if err != nil {
		return qso.Contact{}, err
	}
	if len(tm) < 4 {
		return qso.Contact{}, logerr.Formatf(FieldTimeOn, tm, "want HHMM or HHMMSS")
	}
	grid, err := r.Require(FieldGridsquare)
	if err != nil {
		return qso.Contact{}, err
	}
	return qso.New(date, tm[:4], band, mode, call, grid)
}
