package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"vcl/gridstore"
	"vcl/journal"

	"github.com/dustin/go-humanize"
)

const verifyTimeout = 30 * time.Second

func cmdHint(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "hint")
	seed := fs.Bool("seed", false, "remember every grid in the working log first")
	list := fs.Bool("list", false, "list every stored hint")
	verify := fs.Bool("verify", false, "scan the store and check its counters")
	checkpoint := fs.String("checkpoint", "", "write a consistent copy of the store to this new directory")
	forget := fs.String("forget", "", "comma-separated calls whose hints are removed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if !cfg.GridStore.Enabled {
		return errors.New("hint: gridstore.enabled is false in the config")
	}
	svc, err := openServices(cfg, false)
	if err != nil {
		return err
	}
	defer svc.Close()
	store := svc.hints

	if *seed {
		sess, err := openLog(cfg)
		if err != nil {
			return err
		}
		contacts := sess.Contacts()
		if err := store.RememberContacts(contacts); err != nil {
			return err
		}
		fmt.Fprintf(env.stdout, "remembered %s contacts\n", humanize.Comma(int64(len(contacts))))
	}
	if *forget != "" {
		removed := 0
		for _, call := range strings.Split(*forget, ",") {
			if strings.TrimSpace(call) == "" {
				continue
			}
			if err := store.Forget(call); err != nil {
				return err
			}
			removed++
		}
		n, err := store.Count()
		if err != nil {
			return err
		}
		fmt.Fprintf(env.stdout, "forgot %d %s, %s hints stored\n", removed, plural(removed, "call", "calls"), humanize.Comma(n))
	}
	if *checkpoint != "" {
		if err := store.Checkpoint(*checkpoint); err != nil {
			return err
		}
		stats, err := gridstore.VerifyCheckpoint(context.Background(), *checkpoint, verifyTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.stdout, "checkpoint %s: %s hints\n", *checkpoint, humanize.Comma(stats.Hints))
	}
	if *verify {
		stats, err := store.Verify(context.Background(), verifyTimeout)
		if err != nil {
			return err
		}
		state := "ok"
		if !stats.CountMatches() {
			state = fmt.Sprintf("count mismatch (meta %d)", stats.CountMeta)
		}
		fmt.Fprintf(env.stdout, "verified %s hints in %s: %s\n", humanize.Comma(stats.Hints), stats.Duration.Round(time.Millisecond), state)
	}
	if *list {
		hints, err := store.Hints()
		if err != nil {
			return err
		}
		for _, h := range hints {
			writeHint(env.stdout, h)
		}
		n, err := store.Count()
		if err != nil {
			return err
		}
		fmt.Fprintf(env.stdout, "%s hints stored\n", humanize.Comma(n))
	}

	for _, call := range fs.Args() {
		var fb gridstore.Fallback
		if svc.cty != nil {
			fb = svc.cty
		}
		h, ok, err := store.Lookup(call, fb)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(env.stdout, "%-10s no grid known\n", strings.ToUpper(call))
			continue
		}
		writeHint(env.stdout, h)
	}
	return nil
}

func writeHint(w io.Writer, h gridstore.Hint) {
	if h.Source == gridstore.Derived {
		fmt.Fprintf(w, "%-10s %-6s  from country prefix\n", h.Call, h.Grid)
		return
	}
	fmt.Fprintf(w, "%-10s %-6s  worked %s, last %s\n", h.Call, h.Grid,
		humanize.Comma(int64(h.Observations))+" "+plural(h.Observations, "time", "times"),
		humanize.Time(h.UpdatedAt))
}

func cmdJournal(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "journal")
	limit := fs.Int("n", 20, "number of entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return errors.New("journal: journal.enabled is false in the config")
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()
	ctx := context.Background()

	counts, err := j.Counts(ctx)
	if err != nil {
		return err
	}
	outcomes := []journal.Outcome{journal.Accepted, journal.Warned, journal.Duplicate, journal.Replayed, journal.Rejected}
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(counts[o])), o))
	}
	fmt.Fprintln(env.stdout, strings.Join(parts, ", "))

	entries, err := j.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		what := strings.TrimSpace(e.Call + " " + e.Band + " " + e.Grid)
		if what == "" {
			what = "-"
		}
		line := fmt.Sprintf("%s  %-8s %-10s %-24s", e.ReceivedAt.UTC().Format("2006-01-02 15:04:05"), e.Source, e.Outcome, what)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Fprintln(env.stdout, strings.TrimRight(line, " "))
	}
	return nil
}
