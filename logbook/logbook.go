// Package logbook persists the working contact list as comma-separated
// lines: date,time,band,mode,call,grid in list order.
package logbook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"vcl/qso"
)

// BackupSuffix is appended to the log path for the copy kept before each save.
const BackupSuffix = ".bak"

const fieldCount = 6

// RowError reports a persisted line that did not load.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// Load reads the log at path. A missing file is an empty log. Rows that fail
// validation are skipped and reported; the remaining rows load in order.
func Load(path string) ([]qso.Contact, []*RowError, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("logbook: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses persisted rows from r.
func Read(r io.Reader) ([]qso.Contact, []*RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var (
		contacts []qso.Contact
		rejected []*RowError
	)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rejected = append(rejected, &RowError{Row: row, Err: err})
				continue
			}
			return contacts, rejected, fmt.Errorf("logbook: read: %w", err)
		}
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		if len(rec) != fieldCount {
			rejected = append(rejected, &RowError{Row: row, Err: fmt.Errorf("want %d fields, got %d", fieldCount, len(rec))})
			continue
		}
		c, err := qso.New(rec[0], rec[1], rec[2], rec[3], rec[4], rec[5])
		if err != nil {
			rejected = append(rejected, &RowError{Row: row, Err: err})
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, rejected, nil
}

// Write renders contacts in list order.
func Write(w io.Writer, contacts []qso.Contact) error {
	cw := csv.NewWriter(w)
	for _, c := range contacts {
		if err := cw.Write([]string{c.Date, c.Time, c.Band, string(c.Mode), c.Call, c.Grid}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Purpose: Persist the working log.
// Key aspects: Copies the previous file to path+".bak" first (best effort,
// failure only logged), then writes a temp file in the same directory and
// renames it over path.
// Upstream: session mutations, cmd import.
// Downstream: backup, Write.
func Save(path string, contacts []qso.Contact) error {
	if err := backup(path); err != nil {
		log.Printf("Logbook: backup of %s failed: %v", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logbook: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("logbook: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := Write(tmp, contacts); err != nil {
		tmp.Close()
		return fmt.Errorf("logbook: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("logbook: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("logbook: rename: %w", err)
	}
	return nil
}

func backup(path string) error {
	in, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + BackupSuffix)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
