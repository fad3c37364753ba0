package wsjtx

import (
	"context"
	"log"
	"time"

	"vcl/internal/ratelimit"
)

// DefaultPollInterval matches the entry window refresh of the desktop logger.
const DefaultPollInterval = 100 * time.Millisecond

// Source yields at most one payload per call. ok=false with a nil error is
// the common "nothing waiting" case; implementations must not block for
// longer than a short read deadline.
type Source interface {
	Poll() (payload []byte, ok bool, err error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]byte, bool, error)

func (f SourceFunc) Poll() ([]byte, bool, error) { return f() }

// NamedSource pairs a source with the name used in logs and handler calls.
type NamedSource struct {
	Name   string
	Source Source
}

// Handler receives every payload, in source order within a tick.
type Handler func(source string, payload []byte)

// Poller polls its sources once per tick and hands payloads to a single
// handler. Sources are polled sequentially, so the handler never runs
// concurrently with itself.
type Poller struct {
	interval time.Duration
	sources  []NamedSource
	handle   Handler
	errLog   *ratelimit.Keyed
}

// NewPoller builds a poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(interval time.Duration, handle Handler, sources ...NamedSource) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval: interval,
		sources:  sources,
		handle:   handle,
		errLog:   ratelimit.NewKeyed(time.Minute),
	}
}

// Purpose: Drive the poll loop until shutdown.
// Key aspects: One goroutine, fixed ticker; a failing source is logged
// (throttled per source) and polled again next tick.
// Upstream: cmd/vcl listen.
// Downstream: PollOnce.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce polls every source once and returns the number of payloads
// delivered.
func (p *Poller) PollOnce() int {
	delivered := 0
	for _, src := range p.sources {
		if src.Source == nil {
			continue
		}
		payload, ok, err := src.Source.Poll()
		if err != nil {
			if total, allow := p.errLog.Inc(src.Name); allow {
				log.Printf("WSJT-X: source %s poll failed (%d total): %v", src.Name, total, err)
			}
			continue
		}
		if !ok {
			continue
		}
		if p.handle != nil {
			p.handle(src.Name, payload)
		}
		delivered++
	}
	return delivered
}
