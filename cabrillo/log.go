package cabrillo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"vcl/adif"
	"vcl/locator"
	"vcl/logerr"
	"vcl/qso"
	"vcl/strutil"
)

// Version is written on the START-OF-LOG line.
const Version = "3.0"

// Station is the own-station block of a submission header.
type Station struct {
	Callsign string
	Grid     string

	Location      string
	Name          string
	Address       string
	City          string
	StateProvince string
	PostalCode    string
	Country       string
	Email         string

	CategoryAssisted    string
	CategoryBand        string
	CategoryMode        string
	CategoryOperator    string
	CategoryPower       string
	CategoryStation     string
	CategoryTransmitter string
}

func (st Station) requireOwn() error {
	if strings.TrimSpace(st.Callsign) == "" {
		return logerr.Invalid("callsign", "", ErrNoOwnCall)
	}
	if strings.TrimSpace(st.Grid) == "" {
		return logerr.Invalid("grid-locator", "", ErrNoOwnGrid)
	}
	return nil
}

// Header is everything written above the QSO lines.
type Header struct {
	Station Station
	Contest string
	// ClaimedScore is omitted when nil.
	ClaimedScore *int
	CreatedBy    string
}

// Tag is one header line as read.
type Tag struct {
	Name  string
	Value string
}

// LineError reports a rejected line of a submission.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// Log is a parsed submission.
type Log struct {
	Version  string
	Tags     []Tag
	QSOs     []QSO
	Rejected []*LineError
	// Ended reports whether END-OF-LOG: was seen.
	Ended bool

	lines []int // source line of each QSOs entry
}

// Tag returns the value of the first header line called name.
func (l *Log) Tag(name string) (string, bool) {
	for _, t := range l.Tags {
		if strings.EqualFold(t.Name, name) {
			return t.Value, true
		}
	}
	return "", false
}

// Write emits a complete submission for contacts in list order. Own callsign
// and grid are required.
func Write(w io.Writer, hdr Header, contacts []qso.Contact) error {
	st := hdr.Station
	if err := st.requireOwn(); err != nil {
		return err
	}
	if err := locator.Validate(locator.Normalize(st.Grid)); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	line := func(tag, value string) {
		fmt.Fprintf(bw, "%s: %s\n", tag, value)
	}
	line("START-OF-LOG", Version)
	line("LOCATION", st.Location)
	line("CALLSIGN", strutil.NormalizeUpper(st.Callsign))
	line("CONTEST", hdr.Contest)
	line("CATEGORY-ASSISTED", st.CategoryAssisted)
	line("CATEGORY-BAND", st.CategoryBand)
	line("CATEGORY-MODE", st.CategoryMode)
	line("CATEGORY-OPERATOR", st.CategoryOperator)
	line("CATEGORY-POWER", st.CategoryPower)
	line("CATEGORY-STATION", st.CategoryStation)
	line("CATEGORY-TRANSMITTER", st.CategoryTransmitter)
	line("GRID-LOCATOR", locator.Normalize(st.Grid))
	if hdr.ClaimedScore != nil {
		line("CLAIMED-SCORE", strconv.Itoa(*hdr.ClaimedScore))
	}
	line("NAME", st.Name)
	line("ADDRESS", st.Address)
	line("ADDRESS-CITY", st.City)
	line("ADDRESS-STATE-PROVINCE", st.StateProvince)
	line("ADDRESS-POSTALCODE", st.PostalCode)
	line("ADDRESS-COUNTRY", st.Country)
	line("EMAIL", st.Email)
	if hdr.CreatedBy != "" {
		line("CREATED-BY", hdr.CreatedBy)
	}
	for _, c := range contacts {
		bw.WriteString(FromContact(c, st).String())
		bw.WriteString("\n")
	}
	bw.WriteString(tagEndOfLog + "\n")
	return bw.Flush()
}

// Read parses a submission. Malformed QSO lines are collected in
// Log.Rejected with their line numbers and do not stop the read; reading
// stops at END-OF-LOG:. Only I/O failures are returned as errors.
func Read(r io.Reader) (*Log, error) {
	out := &Log{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		text := strutil.CollapseSpaces(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, tagEndOfLog) {
			out.Ended = true
			break
		}
		if strings.HasPrefix(text, tagQSO) {
			q, err := ParseQSOLine(text)
			if err != nil {
				out.Rejected = append(out.Rejected, &LineError{Line: n, Err: err})
				continue
			}
			out.QSOs = append(out.QSOs, q)
			out.lines = append(out.lines, n)
			continue
		}
		name, value, ok := strings.Cut(text, ":")
		if !ok {
			out.Rejected = append(out.Rejected, &LineError{Line: n, Err: logerr.Formatf("line", text, "not a tag line")})
			continue
		}
		name = strings.ToUpper(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name+":" == tagStartOfLog {
			out.Version = value
			continue
		}
		out.Tags = append(out.Tags, Tag{Name: name, Value: value})
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("cabrillo: read: %w", err)
	}
	return out, nil
}

// ConvertResult counts the outcome of a whole-file conversion.
type ConvertResult struct {
	Converted int
	Rejected  []*LineError
}

// ConvertToADIF reads a submission from r and writes its QSO lines to w as
// ADIF records. Lines that fail to parse or translate are counted as
// rejected and skipped.
func ConvertToADIF(r io.Reader, w io.Writer, programID string) (ConvertResult, error) {
	var res ConvertResult
	log, err := Read(r)
	if err != nil {
		return res, err
	}
	res.Rejected = append(res.Rejected, log.Rejected...)

	aw := adif.NewWriter(w)
	header := adif.Record{Fields: []adif.Field{{Name: "adif_ver", Value: "3.1.4"}}}
	if programID != "" {
		header.Fields = append(header.Fields, adif.Field{Name: "programid", Value: programID})
	}
	if err := aw.WriteHeader("Converted from Cabrillo", header); err != nil {
		return res, err
	}
	for i, q := range log.QSOs {
		rec, err := q.ADIF()
		if err != nil {
			res.Rejected = append(res.Rejected, &LineError{Line: log.lines[i], Err: err})
			continue
		}
		if err := aw.Write(rec); err != nil {
			return res, err
		}
		res.Converted++
	}
	return res, aw.Flush()
}
