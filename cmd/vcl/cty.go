package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"vcl/cty"
	"vcl/download"

	"github.com/dustin/go-humanize"
)

// Purpose: Refresh the CTY file and resolve callsigns against it.
// Key aspects: -update downloads cty.url conditionally and only replaces the
// file when the new copy decodes; with no calls on the command line, calls
// are read one per line from stdin.
// Upstream: vcl cty.
// Downstream: download.Fetch, cty.Load.
func cmdCty(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "cty")
	update := fs.Bool("update", false, "download cty.url before looking up calls")
	force := fs.Bool("force", false, "with -update, download even if unchanged")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	if *update {
		if strings.TrimSpace(cfg.CTY.URL) == "" {
			return errors.New("cty: cty.url is not set in the config")
		}
		res, err := download.Fetch(context.Background(), download.Request{
			URL:         cfg.CTY.URL,
			Destination: cfg.CTY.File,
			Timeout:     cfg.CTY.Timeout(),
			Force:       *force,
			UserAgent:   programID + "/" + Version,
			Check: func(path string) error {
				_, err := cty.Load(path)
				return err
			},
		})
		if err != nil {
			return err
		}
		switch res.Status {
		case download.StatusUpdated:
			fmt.Fprintf(env.stdout, "CTY: updated %s (%s)\n", cfg.CTY.File, humanize.Bytes(uint64(res.Bytes)))
		default:
			fmt.Fprintf(env.stdout, "CTY: %s is current\n", cfg.CTY.File)
		}
		if fs.NArg() == 0 {
			return nil
		}
	}

	db, err := cty.Load(cfg.CTY.File)
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		for _, call := range fs.Args() {
			writeEntity(env.stdout, db, call)
		}
		return nil
	}
	return lookupLines(env.stdin, env.stdout, db)
}

func lookupLines(r io.Reader, w io.Writer, db *cty.Database) error {
	if r == nil {
		return nil
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		call := strings.TrimSpace(scanner.Text())
		if call == "" {
			continue
		}
		writeEntity(w, db, call)
	}
	return scanner.Err()
}

func writeEntity(w io.Writer, db *cty.Database, call string) {
	call = strings.ToUpper(strings.TrimSpace(call))
	ent, ok := db.Lookup(call)
	if !ok {
		fmt.Fprintf(w, "%-10s no matching prefix\n", call)
		return
	}
	grid, _ := db.Grid(call)
	fmt.Fprintf(w, "%-10s %-6s prefix=%s country=%s CQ=%d ITU=%d\n",
		call, grid, ent.Prefix, ent.Country, ent.CQZone, ent.ITUZone)
}
