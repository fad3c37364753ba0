package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

var sidecars = []string{"", "-wal", "-shm", "-journal"}

// checkOrQuarantine runs a bounded quick_check on an existing journal. A
// failing file (and its sidecars) is renamed to <path>.bad-<timestamp> so
// Open can start over; a missing file is left for Open to create.
func checkOrQuarantine(path string, timeout time.Duration) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	checkErr := quickCheck(ctx, path)
	if checkErr == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("journal: integrity check timed out after %s", timeout)
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	for _, suffix := range sidecars {
		src := path + suffix
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, src+".bad-"+ts); err != nil {
			return fmt.Errorf("journal: quarantine %s: %w (quick_check=%v)", src, err, checkErr)
		}
	}
	log.Printf("Journal: quick_check failed (%v); moved %s to %s.bad-%s", checkErr, path, path, ts)
	return nil
}

func quickCheck(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}
