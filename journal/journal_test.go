package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	id, err := j.Record(ctx, Entry{Source: "udp-1", ReceivedAt: base, Outcome: Accepted, Call: "K1ABC", Grid: "FN42", Band: "144", Payload: "<call:5>K1ABC<eor>"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("expected uuid id, got %q", id)
	}
	if _, err := j.Record(ctx, Entry{Source: "udp-2", ReceivedAt: base.Add(time.Second), Outcome: Rejected, Detail: "format error"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := j.Record(ctx, Entry{Source: "udp-1", ReceivedAt: base.Add(2 * time.Second), Outcome: Rejected}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Source != "udp-1" || recent[1].Detail != "format error" {
		t.Fatalf("unexpected order %+v", recent)
	}
	if !recent[1].ReceivedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("ReceivedAt = %s", recent[1].ReceivedAt)
	}

	counts, err := j.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[Accepted] != 1 || counts[Rejected] != 2 {
		t.Fatalf("Counts = %v", counts)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Record(context.Background(), Entry{Source: "udp-1", Outcome: Accepted}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	recent, err := j.Recent(context.Background(), 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent after reopen = %v, %v", recent, err)
	}
}

func TestOpenQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database, just some bytes that fill a header"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()
	matches, _ := filepath.Glob(path + ".bad-*")
	if len(matches) != 1 {
		t.Fatalf("expected quarantined file, got %v", matches)
	}
	if _, err := j.Record(context.Background(), Entry{Source: "udp-1", Outcome: Accepted}); err != nil {
		t.Fatalf("Record after quarantine: %v", err)
	}
}

func TestClosedJournal(t *testing.T) {
	var j *Journal
	if _, err := j.Record(context.Background(), Entry{}); err == nil {
		t.Fatal("expected error on nil journal")
	}
}
