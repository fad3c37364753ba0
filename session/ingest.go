package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"vcl/journal"
	"vcl/logerr"
	"vcl/qso"
	"vcl/wsjtx"
)

// IngestResult reports what happened to one status datagram.
type IngestResult struct {
	Outcome journal.Outcome
	Contact qso.Contact
	// Warning is a non-blocking problem with an accepted contact.
	Warning error
	// Err is why the payload was not logged (Rejected outcome only).
	Err error
}

// Purpose: Turn one WSJT-X datagram into a logged contact.
// Key aspects: Framed datagrams are unwrapped; anything without the WSJT-X
// magic is treated as a bare ADIF payload. Replays inside the filter window,
// non-ADIF message types and rejected payloads never touch the log. Every
// outcome except an ignored message type is journaled.
// Upstream: wsjtx.Poller handler in cmd/vcl listen.
// Downstream: wsjtx.ContactFromPayload, Add, journal.Record.
func (s *Session) Ingest(ctx context.Context, source string, datagram []byte) IngestResult {
	payload := datagram
	msg, err := wsjtx.DecodeDatagram(datagram)
	switch {
	case err == nil:
		payload = msg.Payload
	case errors.Is(err, wsjtx.ErrIgnored):
		// Heartbeats and decodes arrive every few seconds; keep them out of the journal.
		return IngestResult{Outcome: journal.Ignored}
	case errors.Is(err, wsjtx.ErrBadMagic) || len(datagram) < 12:
		// Older setups forward the bare ADIF record.
	default:
		s.warn(source, "WSJT-X: %s: bad datagram: %v", source, err)
		return s.journal(ctx, source, IngestResult{Outcome: journal.Rejected, Err: err}, err.Error(), datagram)
	}

	if s.opts.Replay != nil && !s.opts.Replay.Admit(payload) {
		return s.journal(ctx, source, IngestResult{Outcome: journal.Replayed}, "", payload)
	}

	c, warning, err := wsjtx.ContactFromPayload(payload, s.Contest())
	if err != nil {
		s.warn(source, "WSJT-X: %s: rejected: %v", source, err)
		return s.journal(ctx, source, IngestResult{Outcome: journal.Rejected, Err: err}, describe(err), payload)
	}
	check, err := s.Add(c)
	if err != nil {
		s.warn(source, "WSJT-X: %s: save %s failed: %v", source, c.Call, err)
		return s.journal(ctx, source, IngestResult{Outcome: journal.Rejected, Contact: c, Err: err}, err.Error(), payload)
	}

	res := IngestResult{Outcome: journal.Accepted, Contact: c, Warning: warning}
	detail := ""
	switch {
	case warning != nil:
		res.Outcome = journal.Warned
		detail = warning.Error()
		s.warn(source, "WSJT-X: %s: %s logged with warning: %v", source, c.Call, warning)
	case check.Duplicate >= 0:
		res.Outcome = journal.Duplicate
		detail = fmt.Sprintf("duplicates %s", check.DuplicateOf)
	}
	log.Printf("WSJT-X: %s: logged %s", source, c)
	return s.journal(ctx, source, res, detail, payload)
}

func (s *Session) journal(ctx context.Context, source string, res IngestResult, detail string, payload []byte) IngestResult {
	if s.opts.Journal == nil {
		return res
	}
	e := journal.Entry{
		Source:  source,
		Outcome: res.Outcome,
		Call:    res.Contact.Call,
		Grid:    res.Contact.Grid,
		Band:    res.Contact.Band,
		Detail:  detail,
		Payload: string(payload),
	}
	if _, err := s.opts.Journal.Record(ctx, e); err != nil {
		s.warn("journal", "Journal: record %s: %v", source, err)
	}
	return res
}

// describe prefixes typed errors with their kind for the journal.
func describe(err error) string {
	var le *logerr.Error
	if errors.As(err, &le) {
		return le.Kind.String() + ": " + err.Error()
	}
	return err.Error()
}

func (s *Session) warn(key, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnLocked(key, format, args...)
}
