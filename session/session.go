// Package session owns the working log of one contest: the contact list, its
// duplicate flags and score, and the side effects of changing it (saving the
// CSV logbook, remembering grids, publishing the score).
//
// All methods are safe for concurrent use; one mutex serializes every change
// so the WSJT-X ingest path and manual entry never interleave.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"vcl/cabrillo"
	"vcl/contest"
	"vcl/cty"
	"vcl/dedup"
	"vcl/gridstore"
	"vcl/internal/ratelimit"
	"vcl/journal"
	"vcl/logbook"
	"vcl/qso"
	"vcl/score"
)

// ErrIndex is returned for an edit or delete outside the list.
var ErrIndex = errors.New("session: no contact at that index")

// Publisher receives the score after every change. *publish.Client
// satisfies it.
type Publisher interface {
	PublishScore(grid string, s score.Summary) error
	PublishContact(c qso.Contact) error
}

// Options wires a session. Only Contest and LogbookPath are required; the
// optional collaborators are skipped when nil.
type Options struct {
	Contest     contest.Definition
	Station     cabrillo.Station
	LogbookPath string

	Journal   *journal.Journal
	Hints     *gridstore.Store
	CTY       *cty.Database
	Publisher Publisher
	Replay    *dedup.ReplayFilter

	// SimilarEdits bounds SimilarCalls in CheckEntry; 0 uses 1.
	SimilarEdits int
	// WarningInterval throttles repeated ingest warnings per source.
	WarningInterval time.Duration
}

// Session is the live contest log.
type Session struct {
	mu       sync.Mutex
	opts     Options
	contacts []qso.Contact
	statuses []dedup.Status
	summary  score.Summary
	scoreErr error
	latest   *Latest

	warnLog *ratelimit.Keyed
	now     func() time.Time
}

// Latest describes the most recently saved contact.
type Latest struct {
	Contact     qso.Contact
	DistanceKm  int
	Approximate bool
}

// String renders the distance the way the entry window shows it.
func (l Latest) String() string {
	return l.Contact.Call + " " + score.FormatDistance(l.DistanceKm, l.Approximate)
}

// Purpose: Load the logbook and compute the initial score.
// Key aspects: Bad logbook rows are logged and dropped; a missing file starts
// an empty log.
// Upstream: cmd/vcl.
// Downstream: logbook.Load, recompute.
func Open(opts Options) (*Session, error) {
	if opts.LogbookPath == "" {
		return nil, errors.New("session: logbook path is empty")
	}
	if opts.SimilarEdits <= 0 {
		opts.SimilarEdits = 1
	}
	opts.Station.Callsign = qso.NormalizeCall(opts.Station.Callsign)
	contacts, rejected, err := logbook.Load(opts.LogbookPath)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		log.Printf("Logbook: %s: skipped %v", opts.LogbookPath, r)
	}
	s := &Session{
		opts:     opts,
		contacts: contacts,
		warnLog:  ratelimit.NewKeyed(opts.WarningInterval),
		now:      time.Now,
	}
	s.recomputeLocked()
	if s.scoreErr != nil && !errors.Is(s.scoreErr, score.ErrContestUnset) {
		log.Printf("Score: %v", s.scoreErr)
	}
	return s, nil
}

// Contest returns the active contest.
func (s *Session) Contest() contest.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Contest
}

// SetContest switches contests and rescores the log.
func (s *Session) SetContest(def contest.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Contest = def
	s.recomputeLocked()
	if s.scoreErr != nil && !errors.Is(s.scoreErr, score.ErrContestUnset) {
		return s.scoreErr
	}
	if n := len(score.PrecisionMismatches(s.contacts, def)); n > 0 {
		log.Printf("Score: %d contacts have 4-character grids but %s needs 6", n, def.Name)
	}
	return nil
}

// Contacts returns a copy of the log, newest entries first.
func (s *Session) Contacts() []qso.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]qso.Contact(nil), s.contacts...)
}

// Statuses returns the duplicate flag of each contact, aligned with Contacts.
func (s *Session) Statuses() []dedup.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dedup.Status(nil), s.statuses...)
}

// Summary returns the current score and the error, if any, from the last
// recompute (score.ErrContestUnset before a contest is chosen).
func (s *Session) Summary() (score.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, s.scoreErr
}

// Latest returns the last saved contact and its distance, if any.
func (s *Session) Latest() (Latest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Latest{}, false
	}
	return *s.latest, true
}

// EntryCheck is the advisory result of checking a candidate before saving.
type EntryCheck struct {
	// Duplicate is the index of the contact the candidate duplicates, or -1.
	Duplicate int
	// DuplicateOf is the contact at Duplicate when it was checked.
	DuplicateOf qso.Contact
	// Similar lists near-miss callsigns on the same band and square.
	Similar []dedup.Match
	// Hint is the remembered grid for the call, when known.
	Hint *gridstore.Hint
}

// CheckEntry compares a candidate with the log. editing is the index being
// edited, or -1 for a new contact. The candidate need not be complete: an
// empty grid only affects the duplicate check.
func (s *Session) CheckEntry(c qso.Contact, editing int) EntryCheck {
	s.mu.Lock()
	check := s.checkLocked(c, editing)
	s.mu.Unlock()
	s.lookupHint(c.Call, &check)
	return check
}

func (s *Session) checkLocked(c qso.Contact, editing int) EntryCheck {
	check := EntryCheck{
		Duplicate: dedup.FindEntryDupe(c, s.contacts, s.opts.Contest, editing),
		Similar:   dedup.SimilarCalls(c, s.contacts, s.opts.SimilarEdits),
	}
	if check.Duplicate >= 0 {
		check.DuplicateOf = s.contacts[check.Duplicate]
	}
	return check
}

// lookupHint runs outside the session lock; the store serializes itself.
func (s *Session) lookupHint(call string, check *EntryCheck) {
	if s.opts.Hints == nil || call == "" {
		return
	}
	var fallback gridstore.Fallback
	if s.opts.CTY != nil {
		fallback = s.opts.CTY
	}
	h, ok, err := s.opts.Hints.Lookup(call, fallback)
	if err != nil {
		log.Printf("Grid hints: lookup %s: %v", call, err)
	} else if ok {
		check.Hint = &h
	}
}

// Add validates c, inserts it at the top of the log and saves. Duplicates
// are logged like any other contact and flagged by the recompute. The
// duplicate check runs in the same critical section as the insert, so
// Duplicate indexes the list c was inserted into and Hint is the grid known
// before c was remembered.
func (s *Session) Add(c qso.Contact) (EntryCheck, error) {
	if err := c.Validate(); err != nil {
		return EntryCheck{}, err
	}
	var prior EntryCheck
	s.lookupHint(c.Call, &prior)

	s.mu.Lock()
	defer s.mu.Unlock()
	check := s.checkLocked(c, -1)
	check.Hint = prior.Hint
	next := make([]qso.Contact, 0, len(s.contacts)+1)
	next = append(next, c)
	next = append(next, s.contacts...)
	if err := s.commitLocked(next, c); err != nil {
		return check, err
	}
	return check, nil
}

// Replace overwrites the contact at index i in place.
func (s *Session) Replace(i int, c qso.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.contacts) {
		return ErrIndex
	}
	next := append([]qso.Contact(nil), s.contacts...)
	next[i] = c
	return s.commitLocked(next, c)
}

// Delete removes the contact at index i.
func (s *Session) Delete(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.contacts) {
		return ErrIndex
	}
	next := append([]qso.Contact(nil), s.contacts[:i]...)
	next = append(next, s.contacts[i+1:]...)
	if err := logbook.Save(s.opts.LogbookPath, next); err != nil {
		return err
	}
	s.contacts = next
	s.recomputeLocked()
	s.publishScoreLocked()
	return nil
}

// commitLocked saves next, then updates state and the optional
// collaborators for the changed contact. Nothing changes if the save fails.
func (s *Session) commitLocked(next []qso.Contact, changed qso.Contact) error {
	if err := logbook.Save(s.opts.LogbookPath, next); err != nil {
		return err
	}
	s.contacts = next
	s.recomputeLocked()

	if km, approx, err := score.ContactDistance(s.opts.Station.Grid, changed.Grid); err == nil {
		s.latest = &Latest{Contact: changed, DistanceKm: km, Approximate: approx}
	} else {
		s.latest = nil
	}
	if s.opts.Hints != nil {
		at, err := changed.Timestamp()
		if err != nil {
			at = s.now()
		}
		if err := s.opts.Hints.Remember(changed.Call, changed.Grid, at); err != nil {
			log.Printf("Grid hints: remember %s: %v", changed.Call, err)
		}
	}
	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishContact(changed); err != nil {
			s.warnLocked("mqtt", "MQTT: publish contact %s: %v", changed.Call, err)
		}
	}
	s.publishScoreLocked()
	return nil
}

func (s *Session) publishScoreLocked() {
	if s.opts.Publisher == nil || s.scoreErr != nil {
		return
	}
	if err := s.opts.Publisher.PublishScore(s.opts.Station.Grid, s.summary); err != nil {
		s.warnLocked("mqtt", "MQTT: publish score: %v", err)
	}
}

func (s *Session) recomputeLocked() {
	sum, statuses, err := score.Recompute(s.contacts, s.opts.Contest, s.opts.Station.Grid)
	if err != nil {
		// Duplicate flags do not depend on the own locator.
		s.statuses = dedup.Classify(s.contacts, s.opts.Contest)
		s.summary = score.Summary{Contest: s.opts.Contest.Name, QSOs: len(s.contacts), Duplicates: dedup.CountDuplicates(s.statuses)}
		s.scoreErr = err
		return
	}
	s.summary, s.statuses, s.scoreErr = sum, statuses, nil
}

// warnLocked logs at most once per WarningInterval for key.
func (s *Session) warnLocked(key, format string, args ...any) {
	total, ok := s.warnLog.Inc(key)
	if !ok {
		return
	}
	if total > 1 {
		format += fmt.Sprintf(" (%d so far)", total)
	}
	log.Printf(format, args...)
}
