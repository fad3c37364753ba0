package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vcl/logbook"
	"vcl/qso"
)

type testEnv struct {
	*cliEnv
	out, errOut *bytes.Buffer
	dir         string
	cfgPath     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := "station:\n  callsign: w1vcl\n  grid: fn31pr\n  name: Test Op\n" +
		"contest: vhf-sprint\n" +
		"logbook:\n  path: " + filepath.Join(dir, "contest.csv") + "\n" +
		"gridstore:\n  enabled: true\n  path: " + filepath.Join(dir, "hints") + "\n"
	cfgPath := filepath.Join(dir, "vcl.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	contacts := []qso.Contact{
		{Date: "2024-04-20", Time: "1810", Band: "144", Mode: qso.CW, Call: "K1ABC", Grid: "FN42"},
		{Date: "2024-04-20", Time: "1805", Band: "144", Mode: qso.CW, Call: "K1ABD", Grid: "FN42"},
		{Date: "2024-04-20", Time: "1800", Band: "144", Mode: qso.PH, Call: "K1ABC", Grid: "FN42"},
	}
	if err := logbook.Save(filepath.Join(dir, "contest.csv"), contacts); err != nil {
		t.Fatalf("seed logbook: %v", err)
	}
	te := &testEnv{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, dir: dir, cfgPath: cfgPath}
	te.cliEnv = &cliEnv{stdout: te.out, stderr: te.errOut, stdin: strings.NewReader("")}
	return te
}

func (te *testEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	te.out.Reset()
	te.errOut.Reset()
	full := append([]string{args[0], "-config", te.cfgPath}, args[1:]...)
	if err := run(te.cliEnv, full); err != nil {
		t.Fatalf("vcl %s: %v\nstderr: %s", strings.Join(args, " "), err, te.errOut.String())
	}
	return te.out.String()
}

func TestRunUsage(t *testing.T) {
	var stderr bytes.Buffer
	env := &cliEnv{stdout: &bytes.Buffer{}, stderr: &stderr}
	if err := run(env, nil); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	if !strings.Contains(stderr.String(), "listen") {
		t.Fatalf("usage does not list commands: %q", stderr.String())
	}
	if err := run(env, []string{"fly"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestScoreCommand(t *testing.T) {
	te := newTestEnv(t)
	out := te.run(t, "score", "-json")
	var report map[string]any
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("score -json output is not JSON: %v\n%s", err, out)
	}
	if report["score"] != float64(2) || report["dupes"] != float64(1) || report["multiplier"] != float64(1) {
		t.Fatalf("report = %v", report)
	}
	if report["latest"] != "K1ABC ~161 km" {
		t.Fatalf("latest = %v", report["latest"])
	}

	out = te.run(t, "score")
	if !strings.HasPrefix(out, "NA VHF/UHF Sprint (W1VCL)\n") || !strings.Contains(out, "Latest: K1ABC ~161 km") {
		t.Fatalf("score output:\n%s", out)
	}
}

func TestDupesCommand(t *testing.T) {
	te := newTestEnv(t)
	out := te.run(t, "dupes")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "3 contacts, 1 duplicate" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[1]), "1 ") || !strings.HasSuffix(lines[1], "first") {
		t.Fatalf("first row = %q", lines[1])
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[2]), "3 ") || !strings.HasSuffix(lines[2], "dupe") {
		t.Fatalf("second row = %q", lines[2])
	}
	if !strings.Contains(out, "K1ABC looks like K1ABD (#2, 1 edit)") {
		t.Fatalf("missing busted-call report:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color codes written to a non-terminal")
	}

	te.color = true
	if out := te.run(t, "dupes", "-edits", "0", "-sort", "call"); !strings.Contains(out, ansiDupe) || strings.Contains(out, "looks like") {
		t.Fatalf("colored output:\n%q", out)
	}
}

func TestCabrilloAndConvert(t *testing.T) {
	te := newTestEnv(t)
	path := filepath.Join(te.dir, "out", "w1vcl.log")
	te.run(t, "cabrillo", "-o", path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cabrillo: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "CLAIMED-SCORE: 2\n") || strings.Count(text, "QSO: ") != 3 {
		t.Fatalf("cabrillo output:\n%s", text)
	}
	if !strings.Contains(text, "CREATED-BY: "+createdBy()) {
		t.Fatalf("missing CREATED-BY")
	}

	out := te.run(t, "convert", path)
	if strings.Count(out, "<eor>") != 3 || !strings.Contains(out, "<call:5>K1ABD") {
		t.Fatalf("convert output:\n%s", out)
	}
	if !strings.Contains(te.errOut.String(), "converted 3 QSO lines, skipped 0") {
		t.Fatalf("convert stderr = %q", te.errOut.String())
	}
}

func TestImportAndHint(t *testing.T) {
	te := newTestEnv(t)
	adi := filepath.Join(te.dir, "more.adi")
	body := "exported <eoh>\n" +
		"<call:5>N2XYZ <band:4>70cm <mode:2>CW <qso_date:8>20240420 <time_on:4>1820 <gridsquare:4>FN20 <eor>\n" +
		"<call:5>N3BAD <band:4>70cm <mode:2>CW <qso_date:8>20240420 <time_on:4>1821 <eor>\n"
	if err := os.WriteFile(adi, []byte(body), 0o644); err != nil {
		t.Fatalf("write adif: %v", err)
	}
	out := te.run(t, "import", adi)
	if !strings.Contains(out, "imported 1 contacts (0 duplicates), skipped 1 records") {
		t.Fatalf("import output = %q, stderr %q", out, te.errOut.String())
	}

	var report map[string]any
	if err := json.Unmarshal([]byte(te.run(t, "score", "-json")), &report); err != nil {
		t.Fatalf("score json: %v", err)
	}
	if report["score"] != float64(6) {
		t.Fatalf("score after import = %v", report["score"])
	}

	out = te.run(t, "hint", "n2xyz", "k9zzz")
	if !strings.Contains(out, "N2XYZ      FN20    worked 1 time") || !strings.Contains(out, "K9ZZZ      no grid known") {
		t.Fatalf("hint output:\n%s", out)
	}

	out = te.run(t, "hint", "-seed", "-verify")
	if !strings.Contains(out, "remembered 4 contacts") || !strings.Contains(out, "verified 3 hints") || !strings.HasSuffix(strings.TrimSpace(out), ": ok") {
		t.Fatalf("hint -seed -verify output:\n%s", out)
	}
}

func TestImportSkipsMalformedRecord(t *testing.T) {
	te := newTestEnv(t)
	adi := filepath.Join(te.dir, "broken.adi")
	body := "<call:5>N2XYZ <band:4>70cm <mode:2>CW <qso_date:8>20240420 <time_on:4>1820 <gridsquare:4>FN20 <eor>\n" +
		"<call:5>W1BAD <band:x>70cm <mode:2>CW <qso_date:8>20240420 <time_on:4>1821 <gridsquare:4>FN31 <eor>\n" +
		"<call:5>N3ABC <band:4>70cm <mode:2>CW <qso_date:8>20240420 <time_on:4>1822 <gridsquare:4>FN21 <eor>\n"
	if err := os.WriteFile(adi, []byte(body), 0o644); err != nil {
		t.Fatalf("write adif: %v", err)
	}
	out := te.run(t, "import", adi)
	if !strings.Contains(out, "imported 2 contacts (0 duplicates), skipped 1 records") {
		t.Fatalf("import output = %q, stderr %q", out, te.errOut.String())
	}
	if !strings.Contains(te.errOut.String(), "record 2:") {
		t.Fatalf("stderr = %q", te.errOut.String())
	}
	out = te.run(t, "dupes", "-edits", "0")
	if !strings.HasPrefix(out, "5 contacts, 1 duplicate") || strings.Contains(out, "W1BAD") {
		t.Fatalf("dupes after import:\n%s", out)
	}
}

func TestHintForget(t *testing.T) {
	te := newTestEnv(t)
	if out := te.run(t, "hint", "-seed", "-list"); !strings.Contains(out, "2 hints stored") {
		t.Fatalf("hint -seed -list output:\n%s", out)
	}
	if out := te.run(t, "hint", "-forget", "k1abc"); !strings.Contains(out, "forgot 1 call, 1 hints stored") {
		t.Fatalf("hint -forget output:\n%s", out)
	}
	out := te.run(t, "hint", "-list", "k1abc")
	if !strings.Contains(out, "K1ABC      no grid known") || !strings.Contains(out, "K1ABD") || !strings.Contains(out, "1 hints stored") {
		t.Fatalf("hint after forget:\n%s", out)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	te := newTestEnv(t)
	t.Setenv("VCL_CONFIG_PATH", te.cfgPath)
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Station.Callsign != "W1VCL" {
		t.Fatalf("callsign = %q", cfg.Station.Callsign)
	}
	if _, err := loadConfig(filepath.Join(te.dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for a missing explicit path")
	}
}
