package cabrillo

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"vcl/adif"
	"vcl/logerr"
	"vcl/qso"
)

func testStation() Station {
	return Station{Callsign: "ve2zaz", Grid: "fn35fl", Name: "Bert", Email: "op@example.org"}
}

func TestParseQSOLine(t *testing.T) {
	q, err := ParseQSOLine("QSO:  144  PH 2024-01-20   1432 VE2ZAZ FN35FL  w1abc fn42")
	if err != nil {
		t.Fatalf("ParseQSOLine: %v", err)
	}
	want := QSO{Band: "144", Mode: "PH", Date: "2024-01-20", Time: "1432", OwnCall: "VE2ZAZ", OwnGrid: "FN35FL", Call: "W1ABC", Grid: "FN42"}
	if q != want {
		t.Fatalf("ParseQSOLine = %+v, want %+v", q, want)
	}
	if got := q.String(); got != "QSO: 144 PH 2024-01-20 1432 VE2ZAZ FN35FL W1ABC FN42" {
		t.Fatalf("String = %q", got)
	}
}

func TestParseQSOLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "not_qso", line: "CALLSIGN: VE2ZAZ"},
		{name: "short", line: "QSO: 144 PH 2024-01-20 1432 VE2ZAZ FN35FL W1ABC"},
		{name: "long", line: "QSO: 144 PH 2024-01-20 1432 VE2ZAZ FN35FL W1ABC FN42 599"},
		{name: "compact_date", line: "QSO: 144 PH 20240120 1432 VE2ZAZ FN35FL W1ABC FN42"},
		{name: "bad_time", line: "QSO: 144 PH 2024-01-20 14:32 VE2ZAZ FN35FL W1ABC FN42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseQSOLine(tt.line); !logerr.Is(err, logerr.Format) {
				t.Fatalf("expected format error, got %v", err)
			}
		})
	}
}

func TestToADIFAndBack(t *testing.T) {
	line := "QSO: 1.2G DG 2024-06-08 2310 VE2ZAZ FN35FL K1ABC FN42AB"
	rec, err := ToADIF(line)
	if err != nil {
		t.Fatalf("ToADIF: %v", err)
	}
	want := "<call:5>K1ABC<band:4>23cm<mode:3>FT8<qso_date:8>20240608<time_on:4>2310<gridsquare:6>FN42AB<eor>"
	if got := adif.Encode(rec); got != want {
		t.Fatalf("Encode = %q, want %q", got, want)
	}
	q, err := FromADIF(rec, testStation())
	if err != nil {
		t.Fatalf("FromADIF: %v", err)
	}
	if q.String() != line {
		t.Fatalf("round trip = %q, want %q", q.String(), line)
	}
}

func TestVocabularyRoundTrip(t *testing.T) {
	st := testStation()
	for _, band := range []string{"50", "144", "222", "432", "902", "1.2G", "10G", "24G", "122G"} {
		for _, mode := range []string{"CW", "PH", "FM", "RY", "DG"} {
			line := "QSO: " + band + " " + mode + " 2024-09-14 1801 VE2ZAZ FN35FL K1ABC FN42"
			rec, err := ToADIF(line)
			if err != nil {
				t.Fatalf("ToADIF(%s %s): %v", band, mode, err)
			}
			q, err := FromADIF(rec, st)
			if err != nil {
				t.Fatalf("FromADIF(%s %s): %v", band, mode, err)
			}
			if q.Band != band || q.Mode != mode {
				t.Fatalf("round trip %s/%s = %s/%s", band, mode, q.Band, q.Mode)
			}
		}
	}
}

func TestToADIFUnknownBand(t *testing.T) {
	_, err := ToADIF("QSO: 134G DG 2024-06-08 2310 VE2ZAZ FN35FL K1ABC FN42AB")
	if !logerr.Is(err, logerr.Lookup) {
		t.Fatalf("expected lookup failure, got %v", err)
	}
}

func TestFromADIFRequiresStation(t *testing.T) {
	rec, _ := ToADIF("QSO: 144 CW 2024-01-20 1432 VE2ZAZ FN35FL W1ABC FN42")
	if _, err := FromADIF(rec, Station{Grid: "FN35FL"}); !errors.Is(err, ErrNoOwnCall) {
		t.Fatalf("expected ErrNoOwnCall, got %v", err)
	}
	if _, err := FromADIF(rec, Station{Callsign: "VE2ZAZ"}); !errors.Is(err, ErrNoOwnGrid) {
		t.Fatalf("expected ErrNoOwnGrid, got %v", err)
	}
}

func TestWriteAndRead(t *testing.T) {
	contacts := []qso.Contact{
		{Date: "2024-01-20", Time: "1432", Band: "144", Mode: qso.PH, Call: "W1ABC", Grid: "FN42"},
		{Date: "2024-01-20", Time: "1501", Band: "432", Mode: qso.CW, Call: "K1XYZ", Grid: "FN31PR"},
	}
	claimed := 12
	hdr := Header{Station: testStation(), Contest: "ARRL January VHF Contest", ClaimedScore: &claimed, CreatedBy: "vcl"}
	var buf bytes.Buffer
	if err := Write(&buf, hdr, contacts); err != nil {
		t.Fatalf("Write: %v", err)
	}
	text := buf.String()
	for _, want := range []string{
		"START-OF-LOG: 3.0\n",
		"CALLSIGN: VE2ZAZ\n",
		"LOCATION: \n",
		"GRID-LOCATOR: FN35FL\n",
		"CLAIMED-SCORE: 12\n",
		"QSO: 144 PH 2024-01-20 1432 VE2ZAZ FN35FL W1ABC FN42\n",
		"QSO: 432 CW 2024-01-20 1501 VE2ZAZ FN35FL K1XYZ FN31PR\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(text, "END-OF-LOG:\n") {
		t.Fatalf("output not terminated:\n%s", text)
	}

	log, err := Read(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if log.Version != "3.0" || !log.Ended || len(log.Rejected) != 0 {
		t.Fatalf("unexpected log %+v", log)
	}
	if v, _ := log.Tag("email"); v != "op@example.org" {
		t.Fatalf("EMAIL tag = %q", v)
	}
	if len(log.QSOs) != 2 {
		t.Fatalf("expected 2 QSOs, got %d", len(log.QSOs))
	}
	c, err := log.QSOs[1].Contact()
	if err != nil || c != contacts[1] {
		t.Fatalf("Contact = %+v, %v", c, err)
	}
}

func TestWriteRequiresOwnStation(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Header{Station: Station{Grid: "FN35FL"}}, nil); !errors.Is(err, ErrNoOwnCall) {
		t.Fatalf("expected ErrNoOwnCall, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written on error")
	}
}

func TestReadRejectsLinesIndividually(t *testing.T) {
	doc := strings.Join([]string{
		"START-OF-LOG: 3.0",
		"CALLSIGN: VE2ZAZ",
		"QSO: 144 PH 2024-01-20 1432 VE2ZAZ FN35FL W1ABC FN42",
		"QSO: 144 PH 2024-01-20 VE2ZAZ FN35FL W1ABC FN42",
		"QSO: 432 CW 2024-01-20 1501 VE2ZAZ FN35FL K1XYZ FN31PR",
		"END-OF-LOG:",
		"QSO: 50 CW 2024-01-20 1501 VE2ZAZ FN35FL K1XYZ FN31PR",
	}, "\n")
	log, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(log.QSOs) != 2 {
		t.Fatalf("expected 2 QSOs before END-OF-LOG, got %d", len(log.QSOs))
	}
	if len(log.Rejected) != 1 || log.Rejected[0].Line != 4 {
		t.Fatalf("unexpected rejects %v", log.Rejected)
	}
	if !errors.Is(log.Rejected[0], ErrFieldCount) {
		t.Fatalf("expected ErrFieldCount, got %v", log.Rejected[0])
	}
}

func TestConvertToADIF(t *testing.T) {
	doc := strings.Join([]string{
		"START-OF-LOG: 3.0",
		"QSO: 144 PH 2024-01-20 1432 VE2ZAZ FN35FL W1ABC FN42",
		"QSO: 241G DG 2024-01-20 1433 VE2ZAZ FN35FL W1ABC FN42",
		"QSO: bad",
		"QSO: 10G CW 2024-01-20 1501 VE2ZAZ FN35FL K1XYZ FN31PR",
		"END-OF-LOG:",
	}, "\n")
	var out bytes.Buffer
	res, err := ConvertToADIF(strings.NewReader(doc), &out, "vcl")
	if err != nil {
		t.Fatalf("ConvertToADIF: %v", err)
	}
	if res.Converted != 2 || len(res.Rejected) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	header, recs, err := adif.Decode(out.String())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := header.Get("programid"); v != "vcl" {
		t.Fatalf("programid = %q", v)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if band, _ := recs[1].Get("band"); band != "3cm" {
		t.Fatalf("band = %q", band)
	}
	lines := map[int]bool{}
	for _, r := range res.Rejected {
		lines[r.Line] = true
	}
	if !lines[3] || !lines[4] {
		t.Fatalf("expected rejects on lines 3 and 4, got %v", res.Rejected)
	}
}
