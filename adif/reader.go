package adif

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"vcl/logerr"
)

// ErrMissingEOR is returned when the stream ends inside a record.
var ErrMissingEOR = errors.New("record not terminated by <eor>")

// Reader reads records from an ADIF stream. Text outside tags is skipped.
type Reader struct {
	br       *bufio.Reader
	header   Record
	count    int
	rejected int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Header returns the fields that preceded <eoh>, if any were read so far.
func (r *Reader) Header() Record { return r.header }

// Count is the number of records returned so far.
func (r *Reader) Count() int { return r.count }

// Rejected is the number of records dropped for a Format error so far.
func (r *Reader) Rejected() int { return r.rejected }

// Read returns the next record, or io.EOF once the stream is exhausted.
// A malformed token rejects only its own record: the reader skips past the
// next <eor> and returns the Format error, so the following Read starts on
// the next record.
func (r *Reader) Read() (Record, error) {
	var rec Record
	for {
		tok, err := r.next()
		if errors.Is(err, io.EOF) {
			if rec.Len() > 0 {
				r.rejected++
				return Record{}, logerr.Formatf("record", "", "%w", ErrMissingEOR)
			}
			return Record{}, io.EOF
		}
		if logerr.Is(err, logerr.Format) {
			r.rejected++
			if skipErr := r.skipRecord(); skipErr != nil && !errors.Is(skipErr, io.EOF) {
				return Record{}, skipErr
			}
			return Record{}, err
		}
		if err != nil {
			return Record{}, err
		}
		if tok.length < 0 {
			switch strings.ToLower(tok.name) {
			case tagEOH:
				r.header = rec
				rec = Record{}
			case tagEOR:
				r.count++
				return rec, nil
			}
			// Other bare tags carry no value and are skipped.
			continue
		}
		rec.Fields = append(rec.Fields, Field{Name: tok.name, Type: tok.typ, Value: tok.value})
	}
}

// ReadAll reads every remaining record. Format errors are joined and
// returned with the records that did parse.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	var errs []error
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, errors.Join(errs...)
		}
		if logerr.Is(err, logerr.Format) {
			errs = append(errs, err)
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// skipRecord discards input up to and including the next <eor>.
func (r *Reader) skipRecord() error {
	for {
		if _, err := r.br.ReadString('<'); err != nil {
			return err
		}
		peek, err := r.br.Peek(len(tagEOR) + 1)
		if err != nil {
			return err
		}
		if strings.EqualFold(string(peek), tagEOR+">") {
			_, err := r.br.Discard(len(peek))
			return err
		}
	}
}

func (r *Reader) next() (token, error) {
	if _, err := r.br.ReadString('<'); err != nil {
		return token{}, err
	}
	inner, err := r.br.ReadString('>')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return token{}, logerr.Formatf("tag", truncate(inner), "%w", ErrUnterminatedTag)
		}
		return token{}, err
	}
	tok, err := parseTag(strings.TrimSuffix(inner, ">"))
	if err != nil || tok.length < 0 {
		return tok, err
	}
	buf := make([]byte, tok.length)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return token{}, logerr.Formatf(tok.name, string(buf), "%w: want %d", ErrShortValue, tok.length)
		}
		return token{}, err
	}
	tok.value = string(buf)
	return tok, nil
}
