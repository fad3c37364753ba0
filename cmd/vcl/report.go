package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"

	"vcl/cty"
	"vcl/dedup"
	"vcl/logbook"
	"vcl/qso"
	"vcl/score"
	"vcl/session"

	"github.com/dustin/go-humanize"
)

const (
	ansiDupe  = "\x1b[1;31m"
	ansiFirst = "\x1b[33m"
	ansiReset = "\x1b[0m"
)

type scoreReport struct {
	score.Summary
	Entities int    `json:"entities,omitempty"`
	Latest   string `json:"latest,omitempty"`
}

func cmdScore(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "score")
	asJSON := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	sess, err := openLog(cfg)
	if err != nil {
		return err
	}
	sum, err := sess.Summary()
	if err != nil {
		if errors.Is(err, score.ErrContestUnset) {
			return fmt.Errorf("%w; set contest in the config", err)
		}
		return err
	}
	report := scoreReport{Summary: sum}
	if cfg.CTY.Enabled {
		db, err := cty.Load(cfg.CTY.File)
		if err != nil {
			log.Printf("CTY: %v", err)
		} else {
			report.Entities = countEntities(db, sess.Contacts(), env.stderr)
		}
	}
	if contacts := sess.Contacts(); len(contacts) > 0 {
		if km, approx, err := score.ContactDistance(cfg.Station.Grid, contacts[0].Grid); err == nil {
			report.Latest = contacts[0].Call + " " + score.FormatDistance(km, approx)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(env.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(env.stdout, "%s (%s)\n", sum.Contest, cfg.Station.Callsign)
	for _, line := range sum.Lines() {
		fmt.Fprintln(env.stdout, line)
	}
	if report.Entities > 0 {
		fmt.Fprintf(env.stdout, "%-22s %10s\n", "DXCC entities:", humanize.Comma(int64(report.Entities)))
	}
	if report.Latest != "" {
		fmt.Fprintf(env.stdout, "Latest: %s\n", report.Latest)
	}
	return nil
}

func countEntities(db *cty.Database, contacts []qso.Contact, warn io.Writer) int {
	calls := make([]string, len(contacts))
	for i, c := range contacts {
		calls[i] = c.Call
	}
	n, unknown := db.CountEntities(calls)
	if len(unknown) > 0 {
		fmt.Fprintf(warn, "no CTY match for %s\n", strings.Join(unknown, ", "))
	}
	return n
}

type dupeRow struct {
	index   int
	contact qso.Contact
	status  dedup.Status
}

func cmdDupes(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "dupes")
	all := fs.Bool("all", false, "list every contact, not only duplicate groups")
	sortBy := fs.String("sort", "", "display order: date, band, mode, call or grid (default from config)")
	edits := fs.Int("edits", 1, "report calls within this many edits on the same band and square; 0 disables")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	key := cfg.Logbook.Sort
	if *sortBy != "" {
		key = *sortBy
	}
	sortKey, err := logbook.ParseSortKey(key)
	if err != nil {
		return err
	}
	sess, err := openLog(cfg)
	if err != nil {
		return err
	}
	writeDupes(env, sess, sortKey, *all, *edits)
	return nil
}

// writeDupes prints the flagged contacts in display order. Numbers are list
// positions starting at 1, newest first, so they match the entry list.
func writeDupes(env *cliEnv, sess *session.Session, key logbook.SortKey, all bool, edits int) {
	contacts, statuses := sess.Contacts(), sess.Statuses()
	rows := make([]dupeRow, 0, len(contacts))
	for i, c := range contacts {
		st := dedup.Unique
		if i < len(statuses) {
			st = statuses[i]
		}
		if all || st != dedup.Unique {
			rows = append(rows, dupeRow{index: i, contact: c, status: st})
		}
	}
	cmp := logbook.Compare(key)
	slices.SortStableFunc(rows, func(a, b dupeRow) int { return cmp(a.contact, b.contact) })

	dupes := dedup.CountDuplicates(statuses)
	fmt.Fprintf(env.stdout, "%s contacts, %s %s\n",
		humanize.Comma(int64(len(contacts))), humanize.Comma(int64(dupes)), plural(dupes, "duplicate", "duplicates"))
	for _, r := range rows {
		line := fmt.Sprintf("%5d  %-44s %s", r.index+1, r.contact, r.status)
		if env.color {
			switch r.status {
			case dedup.Duplicate:
				line = ansiDupe + line + ansiReset
			case dedup.FirstOfGroup:
				line = ansiFirst + line + ansiReset
			}
		}
		fmt.Fprintln(env.stdout, line)
	}

	if edits <= 0 {
		return
	}
	var suspects []string
	for i, c := range contacts {
		for _, m := range dedup.SimilarCalls(c, contacts[i+1:], edits) {
			suspects = append(suspects, fmt.Sprintf("%5d  %s looks like %s (#%d, %d %s)",
				i+1, c.Call, m.Call, i+m.Index+2, m.Edits, plural(m.Edits, "edit", "edits")))
		}
	}
	if len(suspects) > 0 {
		fmt.Fprintln(env.stdout, "Possible busted calls:")
		for _, s := range suspects {
			fmt.Fprintln(env.stdout, s)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
