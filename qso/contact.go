// Package qso defines the contact record shared by every stage of the logger:
// entry validation, dupe checking, scoring and the log format codecs.
package qso

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"vcl/contest"
	"vcl/locator"
	"vcl/logerr"
	"vcl/strutil"
)

// Mode is a Cabrillo mode token.
type Mode string

const (
	CW Mode = "CW"
	PH Mode = "PH"
	FM Mode = "FM"
	RY Mode = "RY"
	DG Mode = "DG"
)

// Modes lists the accepted mode tokens in display order.
var Modes = []Mode{CW, PH, FM, RY, DG}

const (
	// MaxCallLength bounds callsign entry.
	MaxCallLength = 10

	DateLayout        = "2006-01-02"
	CompactDateLayout = "20060102"
	TimeLayout        = "1504"
)

var (
	ErrUnknownMode    = errors.New("not a contest mode")
	ErrCallEmpty      = errors.New("callsign is empty")
	ErrCallTooLong    = fmt.Errorf("callsign longer than %d characters", MaxCallLength)
	ErrCallCharacters = errors.New("callsign may only contain A-Z, 0-9 and /")
	ErrGridPrecision  = errors.New("contact grid must have 4 or 6 characters")
)

// Contact is one logged QSO. Values are never mutated in place; an edit
// produces a replacement Contact at the same list position.
type Contact struct {
	Date string // YYYY-MM-DD, UTC
	Time string // HHMM, UTC
	Band string
	Mode Mode
	Call string
	Grid string
}

// New builds a validated Contact from raw field text. Case is folded and
// callsign characters outside the legal alphabet are filtered; anything else
// that is wrong is reported, never coerced.
func New(date, tm, band, mode, call, grid string) (Contact, error) {
	c := Contact{
		Date: strings.TrimSpace(date),
		Time: strings.TrimSpace(tm),
		Band: strutil.NormalizeUpper(band),
		Mode: Mode(strutil.NormalizeUpper(mode)),
		Call: NormalizeCall(call),
		Grid: locator.Normalize(grid),
	}
	if err := c.Validate(); err != nil {
		return Contact{}, err
	}
	return c, nil
}

// Validate checks every field of an already-normalized contact.
func (c Contact) Validate() error {
	if _, err := time.Parse(DateLayout, c.Date); err != nil {
		return logerr.Formatf("date", c.Date, "want YYYY-MM-DD")
	}
	if err := validateTime(c.Time); err != nil {
		return err
	}
	if !contest.ValidBand(c.Band) {
		return logerr.Unknown("band", c.Band, contest.ErrUnknownBand)
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if err := ValidateCall(c.Call); err != nil {
		return err
	}
	return ValidateGrid(c.Grid)
}

func validateTime(tm string) error {
	if len(tm) != 4 {
		return logerr.Formatf("time", tm, "want HHMM")
	}
	if _, err := time.Parse(TimeLayout, tm); err != nil {
		return logerr.Formatf("time", tm, "want HHMM")
	}
	return nil
}

// ParseMode resolves a mode token.
func ParseMode(raw string) (Mode, error) {
	m := Mode(strutil.NormalizeUpper(raw))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", logerr.Unknown("mode", raw, ErrUnknownMode)
}

func callChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '/'
}

// NormalizeCall upper-cases raw and keeps only A-Z, 0-9 and '/'.
func NormalizeCall(raw string) string {
	return strutil.KeepOnly(strutil.NormalizeUpper(raw), callChar)
}

// ValidateCall checks a normalized callsign.
func ValidateCall(call string) error {
	if call == "" {
		return logerr.Invalid("call", call, ErrCallEmpty)
	}
	if len(call) > MaxCallLength {
		return logerr.Invalid("call", call, ErrCallTooLong)
	}
	for i := 0; i < len(call); i++ {
		if !callChar(call[i]) {
			return logerr.Invalid("call", call, ErrCallCharacters)
		}
	}
	return nil
}

// ValidateGrid checks a contact grid: a valid locator of 4 or 6 characters.
func ValidateGrid(grid string) error {
	if err := locator.Validate(grid); err != nil {
		return err
	}
	if len(grid) != 4 && len(grid) != 6 {
		return logerr.Invalid("gridsquare", grid, ErrGridPrecision)
	}
	return nil
}

// CompactDate converts YYYY-MM-DD to the 8-digit interchange form.
func CompactDate(date string) string {
	return strings.ReplaceAll(date, "-", "")
}

// ExpandDate converts an 8-digit YYYYMMDD date to YYYY-MM-DD.
func ExpandDate(compact string) (string, error) {
	compact = strings.TrimSpace(compact)
	t, err := time.Parse(CompactDateLayout, compact)
	if err != nil || len(compact) != 8 {
		return "", logerr.Formatf("qso_date", compact, "want YYYYMMDD")
	}
	return t.Format(DateLayout), nil
}

// Timestamp returns the contact time as a UTC instant.
func (c Contact) Timestamp() (time.Time, error) {
	t, err := time.Parse(DateLayout+" "+TimeLayout, c.Date+" "+c.Time)
	if err != nil {
		return time.Time{}, logerr.Formatf("date/time", c.Date+" "+c.Time, "unparsable")
	}
	return t.UTC(), nil
}

func (c Contact) String() string {
	return fmt.Sprintf("%-12s%-6s%-6s%-4s%-10s%-6s", c.Date, c.Time, c.Band, c.Mode, c.Call, c.Grid)
}
