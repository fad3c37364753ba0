// Command vcl scores, checks and converts a VHF/microwave contest log and
// listens for contacts logged in WSJT-X.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"vcl/config"
	"vcl/session"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/term"
)

// Version is reported in Cabrillo CREATED-BY and ADIF headers.
const Version = "1.4.0"

const programID = "VCL"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type command struct {
	name    string
	summary string
	run     func(env *cliEnv, args []string) error
}

// cliEnv carries the process streams so commands can be run from tests.
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	color  bool
}

var commands = []command{
	{"score", "print the score summary of the working log", cmdScore},
	{"dupes", "list duplicate and near-duplicate contacts", cmdDupes},
	{"cabrillo", "write the working log as a Cabrillo submission", cmdCabrillo},
	{"adif", "write the working log as ADIF", cmdADIF},
	{"convert", "convert a Cabrillo file to ADIF", cmdConvert},
	{"import", "add the contacts of an ADIF file to the working log", cmdImport},
	{"listen", "log contacts reported by WSJT-X over UDP", cmdListen},
	{"hint", "look up remembered grids for callsigns", cmdHint},
	{"journal", "show recent WSJT-X ingest outcomes", cmdJournal},
	{"cty", "refresh the CTY file and look up callsigns", cmdCty},
}

func main() {
	env := &cliEnv{
		stdout: os.Stdout,
		stderr: os.Stderr,
		stdin:  os.Stdin,
		color:  isStdoutTTY(),
	}
	if err := run(env, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "vcl: %v\n", err)
		os.Exit(1)
	}
}

func run(env *cliEnv, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		usage(env.stderr)
		return flag.ErrHelp
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(env, args[1:])
		}
	}
	usage(env.stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: vcl <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nConfiguration is read from -config, $%s or %s.\n", config.EnvPath, config.DefaultPath)
}

func newFlagSet(env *cliEnv, name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("vcl "+name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	cfgPath := fs.String("config", "", "config file or directory")
	return fs, cfgPath
}

// Purpose: Report whether stdout is a TTY for dupe highlighting.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from flag/env/default locations.
// Key aspects: An explicit -config path must exist; otherwise the env
// override is tried before the default directory.
// Upstream: every command that touches the working log.
// Downstream: config.Load.
func loadConfig(explicit string) (*config.Config, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return config.Load(p)
	}
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(config.EnvPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, config.DefaultPath)

	var lastErr error
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("unable to load config; tried %s (last error: %v)", strings.Join(candidates, ", "), lastErr)
}

// openLog opens the working log with no collaborators attached.
func openLog(cfg *config.Config) (*session.Session, error) {
	def, err := cfg.ContestDefinition()
	if err != nil {
		return nil, err
	}
	return session.Open(session.Options{
		Contest:         def,
		Station:         cfg.Station.CabrilloStation(),
		LogbookPath:     cfg.Logbook.Path,
		WarningInterval: cfg.Logging.WarningInterval(),
	})
}

func createdBy() string {
	return programID + " " + Version
}

func init() {
	log.SetFlags(log.LstdFlags | log.LUTC)
}
