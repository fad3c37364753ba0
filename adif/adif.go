// Package adif reads and writes ADIF tagged-field text: a run of
// <name:length[:type]>value tokens closed by <eor>, optionally preceded by a
// header closed by <eoh>.
//
// Decoding trusts the embedded length to slice each value; encoding always
// recomputes it from the value.
package adif

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"vcl/logerr"
)

const (
	tagEOR = "eor"
	tagEOH = "eoh"
)

// MaxFieldLength bounds a declared value length. Longer declarations are
// rejected as ErrBadLength before any value is read.
const MaxFieldLength = 64 << 10

var (
	ErrUnterminatedTag = errors.New("unterminated tag")
	ErrBadLength       = errors.New("bad field length")
	ErrShortValue      = errors.New("value shorter than declared length")
)

// Field is one tagged value. Name keeps the case it was read with; lookups
// ignore case.
type Field struct {
	Name  string
	Type  string
	Value string
}

// Record is an ordered list of fields. Unknown fields are kept as read.
type Record struct {
	Fields []Field
}

// Get returns the value of the first field called name.
func (r Record) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value of name, or appends the field when absent.
func (r *Record) Set(name, value string) {
	for i := range r.Fields {
		if strings.EqualFold(r.Fields[i].Name, name) {
			r.Fields[i].Value = value
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: value})
}

// Len reports the number of fields.
func (r Record) Len() int { return len(r.Fields) }

// token is one scanned tag. For <eor>/<eoh> value is empty and length is -1.
type token struct {
	name   string
	typ    string
	value  string
	length int
}

// parseTag splits the text between '<' and '>' into name, length and type.
// Bare tags such as eor carry length -1.
func parseTag(inner string) (token, error) {
	parts := strings.SplitN(inner, ":", 3)
	name := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return token{name: name, length: -1}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || n < 0 || n > MaxFieldLength {
		return token{}, logerr.Formatf(name, truncate(parts[1]), "%w", ErrBadLength)
	}
	tok := token{name: name, length: n}
	if len(parts) == 3 {
		tok.typ = parts[2]
	}
	return tok, nil
}

// scanToken reads the next token from s starting at off. It returns the token,
// the offset just past it, and ok=false when no further '<' exists.
func scanToken(s string, off int) (token, int, bool, error) {
	open := strings.IndexByte(s[off:], '<')
	if open < 0 {
		return token{}, len(s), false, nil
	}
	open += off
	closeRel := strings.IndexByte(s[open:], '>')
	if closeRel < 0 {
		return token{}, len(s), false, logerr.Formatf("tag", truncate(s[open:]), "%w", ErrUnterminatedTag)
	}
	end := open + closeRel
	tok, err := parseTag(s[open+1 : end])
	if err != nil {
		return token{}, end + 1, false, err
	}
	if tok.length < 0 {
		return tok, end + 1, true, nil
	}
	start := end + 1
	if start+tok.length > len(s) {
		return token{}, len(s), false, logerr.Formatf(tok.name, truncate(s[start:]), "%w: want %d", ErrShortValue, tok.length)
	}
	tok.value = s[start : start+tok.length]
	return tok, start + tok.length, true, nil
}

func truncate(s string) string {
	if len(s) > 24 {
		return s[:24]
	}
	return s
}

// Find extracts the value of one field from a payload without building a
// record. ok is false when the field is absent. A malformed token before the
// field is reported as a Format error.
func Find(payload, name string) (value string, ok bool, err error) {
	off := 0
	for off < len(payload) {
		tok, next, found, err := scanToken(payload, off)
		if err != nil {
			return "", false, err
		}
		if !found {
			break
		}
		if tok.length >= 0 && strings.EqualFold(tok.name, name) {
			return tok.value, true, nil
		}
		off = next
	}
	return "", false, nil
}

// Decode parses a complete ADIF document held in memory. Malformed records
// are dropped and their Format errors joined into err; the well-formed
// records around them are still returned.
func Decode(data string) (header Record, records []Record, err error) {
	r := NewReader(strings.NewReader(data))
	var errs []error
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return r.Header(), records, errors.Join(errs...)
		}
		if logerr.Is(err, logerr.Format) {
			errs = append(errs, err)
			continue
		}
		if err != nil {
			return r.Header(), records, err
		}
		records = append(records, rec)
	}
}

// Encode renders one record followed by <eor>. Lengths are recomputed from
// the values.
func Encode(rec Record) string {
	var b strings.Builder
	for _, f := range rec.Fields {
		writeField(&b, f)
	}
	b.WriteString("<" + tagEOR + ">")
	return b.String()
}

func writeField(b *strings.Builder, f Field) {
	b.WriteByte('<')
	b.WriteString(f.Name)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(len(f.Value)))
	if f.Type != "" {
		b.WriteByte(':')
		b.WriteString(f.Type)
	}
	b.WriteByte('>')
	b.WriteString(f.Value)
}
