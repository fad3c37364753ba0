package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vcl/config"
	"vcl/cty"
	"vcl/dedup"
	"vcl/gridstore"
	"vcl/journal"
	"vcl/publish"
	"vcl/session"
	"vcl/wsjtx"

	"github.com/dustin/go-humanize"
)

const hintPurgeInterval = 6 * time.Hour

// services holds the optional collaborators enabled in the config. Any of
// the fields may be nil.
type services struct {
	journal *journal.Journal
	hints   *gridstore.Store
	cty     *cty.Database
	mqtt    *publish.Client
}

// Purpose: Open the collaborators the config enables.
// Key aspects: The CTY file and the MQTT broker are optional at runtime:
// failures are logged and the feature is skipped. Store failures are fatal.
// Upstream: listen, import, hint.
// Downstream: journal.Open, gridstore.Open, cty.Load, publish.Client.Connect.
func openServices(cfg *config.Config, withMQTT bool) (*services, error) {
	svc := &services{}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		svc.journal = j
	}
	if cfg.GridStore.Enabled {
		store, err := gridstore.Open(cfg.GridStore.Path, cfg.GridStore.Options())
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.hints = store
	}
	if cfg.CTY.Enabled {
		db, err := cty.Load(cfg.CTY.File)
		if err != nil {
			log.Printf("CTY: %v (derived grid hints disabled)", err)
		} else {
			svc.cty = db
			log.Printf("CTY: loaded %s prefixes from %s", humanize.Comma(int64(db.Len())), cfg.CTY.File)
		}
	}
	if withMQTT && cfg.MQTT.Enabled {
		client := publish.NewClient(cfg.Station.Callsign, cfg.MQTT.Options())
		if err := client.Connect(); err != nil {
			log.Printf("MQTT: %v (score publishing disabled)", err)
		} else {
			svc.mqtt = client
			log.Printf("MQTT: publishing score to %s", client.ScoreTopic())
		}
	}
	return svc, nil
}

func (s *services) openSession(cfg *config.Config, replay *dedup.ReplayFilter) (*session.Session, error) {
	def, err := cfg.ContestDefinition()
	if err != nil {
		return nil, err
	}
	opts := session.Options{
		Contest:         def,
		Station:         cfg.Station.CabrilloStation(),
		LogbookPath:     cfg.Logbook.Path,
		Journal:         s.journal,
		Hints:           s.hints,
		CTY:             s.cty,
		Replay:          replay,
		WarningInterval: cfg.Logging.WarningInterval(),
	}
	// A nil *publish.Client must not become a non-nil interface.
	if s.mqtt != nil {
		opts.Publisher = s.mqtt
	}
	return session.Open(opts)
}

func (s *services) Close() {
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.hints != nil {
		if err := s.hints.Close(); err != nil {
			log.Printf("Grid hints: close: %v", err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			log.Printf("Journal: close: %v", err)
		}
	}
}

func cmdListen(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "listen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if !cfg.WSJTX.Enabled {
		return errors.New("listen: wsjtx.enabled is false in the config")
	}

	fanout, err := setupLogging(cfg.Logging, env.stdout)
	if err != nil {
		fmt.Fprintf(env.stderr, "Logging: %v (file logging disabled)\n", err)
	}
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer func() {
		log.SetOutput(os.Stderr)
		_ = fanout.Close()
	}()
	log.Printf("VCL %s starting (config %s)", Version, cfg.LoadedFrom)
	cfg.Print()

	svc, err := openServices(cfg, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	replay := dedup.NewReplayFilter(cfg.WSJTX.ReplayWindow())
	replay.Start()
	defer replay.Stop()

	sess, err := svc.openSession(cfg, replay)
	if err != nil {
		return err
	}
	if sum, err := sess.Summary(); err == nil {
		log.Printf("Score: %s with %d contacts", humanize.Comma(int64(sum.Score)), sum.QSOs)
	} else {
		log.Printf("Score: %v", err)
	}

	var sources []wsjtx.NamedSource
	for _, sc := range cfg.WSJTX.Sources {
		if !sc.IsEnabled() {
			continue
		}
		src, err := listenUDP(sc.Listen, 0)
		if err != nil {
			closeSources(sources)
			return fmt.Errorf("WSJT-X source %s: %w", sc.Name, err)
		}
		log.Printf("WSJT-X: %s listening on %s", sc.Name, src.Addr())
		sources = append(sources, wsjtx.NamedSource{Name: sc.Name, Source: src})
	}
	if len(sources) == 0 {
		return errors.New("listen: no enabled WSJT-X sources")
	}
	defer closeSources(sources)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if svc.hints != nil && cfg.GridStore.Retention() > 0 {
		go purgeHintsLoop(ctx, svc.hints, cfg.GridStore.Retention())
	}

	poller := wsjtx.NewPoller(cfg.WSJTX.PollInterval(), func(source string, payload []byte) {
		reportIngest(sess, source, sess.Ingest(ctx, source, payload))
	}, sources...)
	log.Printf("Listening for WSJT-X contacts every %s. Press Ctrl+C to stop.", cfg.WSJTX.PollInterval())
	poller.Run(ctx)

	log.Println("Shutting down...")
	processed, suppressed, _ := replay.Stats()
	log.Printf("WSJT-X: %s datagrams checked, %s replays suppressed",
		humanize.Comma(int64(processed)), humanize.Comma(int64(suppressed)))
	if svc.journal != nil {
		if counts, err := svc.journal.Counts(context.Background()); err == nil {
			log.Printf("Journal: %d accepted, %d with warnings, %d duplicates, %d rejected",
				counts[journal.Accepted], counts[journal.Warned], counts[journal.Duplicate], counts[journal.Rejected])
		}
	}
	return nil
}

func reportIngest(sess *session.Session, source string, res session.IngestResult) {
	switch res.Outcome {
	case journal.Accepted, journal.Warned, journal.Duplicate:
	case journal.Replayed:
		log.Printf("WSJT-X: %s: repeated datagram ignored", source)
		return
	default:
		return
	}
	if res.Outcome == journal.Duplicate {
		log.Printf("WSJT-X: %s: %s is a duplicate", source, res.Contact.Call)
	}
	if latest, ok := sess.Latest(); ok {
		log.Printf("Latest: %s", latest)
	}
	if sum, err := sess.Summary(); err == nil {
		log.Printf("Score: %s (%d QSOs, %d dupes, %d mults)",
			humanize.Comma(int64(sum.Score)), sum.QSOs, sum.Duplicates, sum.Multiplier)
	}
}

func closeSources(sources []wsjtx.NamedSource) {
	for _, s := range sources {
		if c, ok := s.Source.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// purgeHintsLoop drops hints not refreshed within retention, once at start
// and then every hintPurgeInterval.
func purgeHintsLoop(ctx context.Context, store *gridstore.Store, retention time.Duration) {
	purge := func() {
		n, err := store.PurgeOlderThan(time.Now().Add(-retention))
		if err != nil {
			log.Printf("Grid hints: purge failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("Grid hints: purged %s hints older than %s", humanize.Comma(n), retention)
		}
	}
	purge()
	ticker := time.NewTicker(hintPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
