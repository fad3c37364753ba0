// Package gridstore remembers the grid last worked for each callsign in a
// Pebble key/value store so the entry form and the WSJT-X ingest path can
// suggest a locator before the operator types one.
package gridstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"

	"vcl/locator"
	"vcl/qso"
)

const (
	hintVersion         = 1
	hintHeaderSize      = 22
	maintenanceBatchCap = 1024
)

const (
	callPrefix    = "c|"
	updatedPrefix = "u|"
	metaCountKey  = "meta|count"
)

var (
	errStoreClosed  = errors.New("gridstore: store is closed")
	errNotOpen      = errors.New("gridstore: store is not initialized")
	errInvalidCount = errors.New("gridstore: invalid count metadata")
	errInvalidHint  = errors.New("gridstore: invalid hint encoding")
)

const (
	defaultCacheSizeBytes        = int64(8 << 20) // shared block cache for hot reads
	defaultBloomFilterBits       = 10             // bits per key for SSTable bloom filters
	defaultMemTableSizeBytes     = uint64(4 << 20)
	defaultL0CompactionThreshold = 4
	defaultL0StopWritesThreshold = 16
	defaultWriteQueueDepth       = 32 // buffered channel depth feeding the single writer
)

// Options controls Pebble tuning and writer buffering. Zero or negative
// fields are replaced with defaults by sanitizeOptions.
type Options struct {
	CacheSizeBytes        int64
	BloomFilterBitsPerKey int
	MemTableSizeBytes     uint64
	L0CompactionThreshold int
	L0StopWritesThreshold int
	WriteQueueDepth       int
}

// Source says where a hint came from.
type Source uint8

const (
	// Worked hints were logged by the operator or WSJT-X.
	Worked Source = iota + 1
	// Derived hints come from the CTY entity centre and are only 4 characters.
	Derived
)

func (s Source) String() string {
	switch s {
	case Worked:
		return "worked"
	case Derived:
		return "cty"
	}
	return "unknown"
}

// Hint is one callsign's remembered grid.
type Hint struct {
	Call         string
	Grid         string
	Source       Source
	Observations int
	FirstSeen    time.Time
	UpdatedAt    time.Time
}

// Fallback resolves a grid when the store has nothing for a call.
// *cty.Database satisfies it.
type Fallback interface {
	Grid(call string) (string, bool)
}

type hintValue struct {
	source       Source
	observations uint32
	firstSeen    int64
	updatedAt    int64
	grid         string
}

// Store owns the Pebble database. All writes go through one goroutine.
type Store struct {
	db     *pebble.DB
	writes chan writeRequest
	done   chan struct{}
	cache  *pebble.Cache

	mu     sync.Mutex
	closed bool
	count  atomic.Int64
}

type writeKind int

const (
	writeUpsert writeKind = iota
	writeDelete
	writePurge
)

type writeRequest struct {
	kind   writeKind
	hints  []Hint
	call   string
	cutoff time.Time
	resp   chan writeResult
}

type writeResult struct {
	removed int64
	err     error
}

func sanitizeOptions(opts Options) Options {
	if opts.CacheSizeBytes <= 0 {
		opts.CacheSizeBytes = defaultCacheSizeBytes
	}
	if opts.BloomFilterBitsPerKey <= 0 {
		opts.BloomFilterBitsPerKey = defaultBloomFilterBits
	}
	if opts.MemTableSizeBytes <= 0 {
		opts.MemTableSizeBytes = defaultMemTableSizeBytes
	}
	if opts.L0CompactionThreshold <= 0 {
		opts.L0CompactionThreshold = defaultL0CompactionThreshold
	}
	if opts.L0StopWritesThreshold <= opts.L0CompactionThreshold {
		opts.L0StopWritesThreshold = defaultL0StopWritesThreshold
		if opts.L0StopWritesThreshold <= opts.L0CompactionThreshold {
			opts.L0StopWritesThreshold = opts.L0CompactionThreshold + 4
		}
	}
	if opts.WriteQueueDepth <= 0 {
		opts.WriteQueueDepth = defaultWriteQueueDepth
	}
	return opts
}

// Purpose: Open or create the hint database directory.
// Key aspects: Bloom filters on every level keep misses off disk; starts the
// single writer goroutine.
// Upstream: session.Open and the hint command.
// Downstream: pebble.Open, loadCount, writeLoop.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("gridstore: database path is empty")
	}
	opts = sanitizeOptions(opts)

	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("gridstore: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("gridstore: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("gridstore: ensure directory: %w", err)
	}

	pebbleOpts := &pebble.Options{
		Cache:                 pebble.NewCache(opts.CacheSizeBytes),
		MemTableSize:          opts.MemTableSizeBytes,
		L0CompactionThreshold: opts.L0CompactionThreshold,
		L0StopWritesThreshold: opts.L0StopWritesThreshold,
	}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(opts.BloomFilterBitsPerKey),
		FilterType:   pebble.TableFilter,
	}
	pebbleOpts.Levels = make([]pebble.LevelOptions, 7)
	for i := range pebbleOpts.Levels {
		pebbleOpts.Levels[i] = level
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		pebbleOpts.Cache.Unref()
		return nil, fmt.Errorf("gridstore: open: %w", err)
	}
	count, err := loadCount(db)
	if err != nil {
		_ = db.Close()
		pebbleOpts.Cache.Unref()
		return nil, err
	}

	s := &Store{
		db:     db,
		writes: make(chan writeRequest, opts.WriteQueueDepth),
		done:   make(chan struct{}),
		cache:  pebbleOpts.Cache,
	}
	s.count.Store(count)
	go s.writeLoop()
	return s, nil
}

// Close drains the writer and closes Pebble.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.closeWriter() {
		<-s.done
	}
	err := s.db.Close()
	if s.cache != nil {
		s.cache.Unref()
		s.cache = nil
	}
	return err
}

// Remember records that call was worked in grid at the given time.
func (s *Store) Remember(call, grid string, at time.Time) error {
	return s.UpsertBatch([]Hint{{Call: call, Grid: grid, Source: Worked, Observations: 1, FirstSeen: at, UpdatedAt: at}})
}

// RememberContacts records every contact's grid in one batch.
func (s *Store) RememberContacts(contacts []qso.Contact) error {
	hints := make([]Hint, 0, len(contacts))
	for _, c := range contacts {
		at, err := c.Timestamp()
		if err != nil {
			at = time.Time{}
		}
		hints = append(hints, Hint{Call: c.Call, Grid: c.Grid, Source: Worked, Observations: 1, FirstSeen: at, UpdatedAt: at})
	}
	return s.UpsertBatch(hints)
}

// Purpose: Insert or merge hints in one Pebble batch.
// Key aspects: Grids are validated before they reach the writer; the writer
// merges with what is stored and commits with Sync.
// Upstream: Remember, RememberContacts, the import command.
// Downstream: writer loop.
func (s *Store) UpsertBatch(hints []Hint) error {
	if s == nil || s.db == nil {
		return errNotOpen
	}
	clean := make([]Hint, 0, len(hints))
	for _, h := range hints {
		h.Call = qso.NormalizeCall(h.Call)
		h.Grid = locator.Normalize(h.Grid)
		if h.Call == "" {
			continue
		}
		if err := qso.ValidateGrid(h.Grid); err != nil {
			return fmt.Errorf("gridstore: hint for %s: %w", h.Call, err)
		}
		clean = append(clean, h)
	}
	if len(clean) == 0 {
		return nil
	}
	result := s.submit(writeRequest{kind: writeUpsert, hints: clean})
	return result.err
}

// Forget removes the hint for call.
func (s *Store) Forget(call string) error {
	if s == nil || s.db == nil {
		return errNotOpen
	}
	call = qso.NormalizeCall(call)
	if call == "" {
		return nil
	}
	return s.submit(writeRequest{kind: writeDelete, call: call}).err
}

// PurgeOlderThan deletes hints last updated before cutoff and returns how many
// were removed.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotOpen
	}
	result := s.submit(writeRequest{kind: writePurge, cutoff: cutoff})
	return result.removed, result.err
}

// Get returns the stored hint for call, or (nil, nil) when there is none.
func (s *Store) Get(call string) (*Hint, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpen
	}
	call = qso.NormalizeCall(call)
	if call == "" {
		return nil, errors.New("gridstore: call is empty")
	}
	val, found, err := s.getHintValue(call)
	if err != nil || !found {
		return nil, err
	}
	h := hintFromValue(call, val)
	return &h, nil
}

// Lookup returns the stored hint for call, falling back to fb (which may be
// nil) when the store has none. The bool is false when neither knows the call.
func (s *Store) Lookup(call string, fb Fallback) (Hint, bool, error) {
	h, err := s.Get(call)
	if err != nil {
		return Hint{}, false, err
	}
	if h != nil {
		return *h, true, nil
	}
	if fb == nil {
		return Hint{}, false, nil
	}
	call = qso.NormalizeCall(call)
	grid, ok := fb.Grid(call)
	if !ok {
		return Hint{}, false, nil
	}
	return Hint{Call: call, Grid: grid, Source: Derived}, true, nil
}

// Hints returns every stored hint in callsign order.
func (s *Store) Hints() ([]Hint, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpen
	}
	iter, err := s.db.NewIter(iterOptionsForPrefix(callPrefix))
	if err != nil {
		return nil, fmt.Errorf("gridstore: hints iterator: %w", err)
	}
	defer iter.Close()

	var out []Hint
	for iter.First(); iter.Valid(); iter.Next() {
		call, ok := parseCallKey(iter.Key())
		if !ok {
			continue
		}
		val, err := decodeHintValue(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("gridstore: decode %s: %w", call, err)
		}
		out = append(out, hintFromValue(call, val))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("gridstore: iterate hints: %w", err)
	}
	return out, nil
}

// Count returns the number of stored calls, as maintained by the writer.
func (s *Store) Count() (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotOpen
	}
	return s.count.Load(), nil
}

func (s *Store) submit(req writeRequest) writeResult {
	resp := make(chan writeResult, 1)
	req.resp = resp
	if err := s.enqueue(req); err != nil {
		return writeResult{err: err}
	}
	return <-resp
}

func (s *Store) enqueue(req writeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	s.writes <- req
	return nil
}

func (s *Store) closeWriter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.writes)
	return true
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for req := range s.writes {
		var result writeResult
		switch req.kind {
		case writeUpsert:
			result.err = s.applyUpsert(req.hints)
		case writeDelete:
			result.err = s.applyDelete(req.call)
		case writePurge:
			result.removed, result.err = s.applyPurgeOlderThan(req.cutoff)
		default:
			result.err = errors.New("gridstore: unknown write request")
		}
		req.resp <- result
	}
}

func (s *Store) applyUpsert(hints []Hint) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	now := time.Now().UTC()
	added := int64(0)
	// Calls repeated within one batch must see the earlier entry.
	pending := make(map[string]hintValue, len(hints))

	for _, h := range hints {
		existing, found := pending[h.Call]
		if !found {
			var err error
			existing, found, err = s.getHintValue(h.Call)
			if err != nil {
				return err
			}
			if !found {
				added++
			}
		}
		merged := mergeHint(existing, found, valueFromHint(h, now))
		if found && existing.updatedAt != merged.updatedAt {
			if err := batch.Delete(updatedKeyBytes(existing.updatedAt, h.Call), nil); err != nil {
				return fmt.Errorf("gridstore: batch delete idx %s: %w", h.Call, err)
			}
		}
		if err := batch.Set(callKeyBytes(h.Call), encodeHintValue(merged), nil); err != nil {
			return fmt.Errorf("gridstore: batch set %s: %w", h.Call, err)
		}
		if err := batch.Set(updatedKeyBytes(merged.updatedAt, h.Call), nil, nil); err != nil {
			return fmt.Errorf("gridstore: batch set idx %s: %w", h.Call, err)
		}
		pending[h.Call] = merged
	}

	count := s.count.Load() + added
	if added != 0 {
		if err := batch.Set([]byte(metaCountKey), encodeCount(count), nil); err != nil {
			return fmt.Errorf("gridstore: batch set count: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("gridstore: batch commit: %w", err)
	}
	s.count.Store(count)
	return nil
}

func (s *Store) applyDelete(call string) error {
	existing, found, err := s.getHintValue(call)
	if err != nil || !found {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	count := max(s.count.Load()-1, 0)
	if err := batch.Delete(callKeyBytes(call), nil); err != nil {
		return fmt.Errorf("gridstore: delete %s: %w", call, err)
	}
	if err := batch.Delete(updatedKeyBytes(existing.updatedAt, call), nil); err != nil {
		return fmt.Errorf("gridstore: delete idx %s: %w", call, err)
	}
	if err := batch.Set([]byte(metaCountKey), encodeCount(count), nil); err != nil {
		return fmt.Errorf("gridstore: delete count: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("gridstore: delete commit: %w", err)
	}
	s.count.Store(count)
	return nil
}

// applyPurgeOlderThan walks the updated-at index up to cutoff.
func (s *Store) applyPurgeOlderThan(cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, nil
	}
	cutoffUnix := cutoff.UTC().Unix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(updatedPrefix),
		UpperBound: updatedKeyBytes(cutoffUnix, ""),
	})
	if err != nil {
		return 0, fmt.Errorf("gridstore: purge iterator: %w", err)
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()

	count := s.count.Load()
	pending := int64(0)
	removed := int64(0)
	commit := func() error {
		if pending == 0 {
			return nil
		}
		count = max(count-pending, 0)
		if err := batch.Set([]byte(metaCountKey), encodeCount(count), nil); err != nil {
			return fmt.Errorf("gridstore: purge set count: %w", err)
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			return fmt.Errorf("gridstore: purge commit: %w", err)
		}
		batch.Reset()
		removed += pending
		pending = 0
		return nil
	}

	for iter.First(); iter.Valid(); iter.Next() {
		_, call, ok := parseUpdatedKey(iter.Key())
		if !ok {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return removed, fmt.Errorf("gridstore: purge delete idx %s: %w", call, err)
		}
		if err := batch.Delete(callKeyBytes(call), nil); err != nil {
			return removed, fmt.Errorf("gridstore: purge delete %s: %w", call, err)
		}
		pending++
		if pending >= maintenanceBatchCap {
			if err := commit(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Error(); err != nil {
		return removed, fmt.Errorf("gridstore: purge iterate: %w", err)
	}
	if err := commit(); err != nil {
		return removed, err
	}
	s.count.Store(count)
	return removed, nil
}

func (s *Store) getHintValue(call string) (hintValue, bool, error) {
	value, closer, err := s.db.Get(callKeyBytes(call))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return hintValue{}, false, nil
		}
		return hintValue{}, false, fmt.Errorf("gridstore: get %s: %w", call, err)
	}
	defer closer.Close()
	val, err := decodeHintValue(value)
	if err != nil {
		return hintValue{}, false, fmt.Errorf("gridstore: decode %s: %w", call, err)
	}
	return val, true, nil
}

func valueFromHint(h Hint, now time.Time) hintValue {
	updated := h.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	first := h.FirstSeen
	if first.IsZero() {
		first = updated
	}
	src := h.Source
	if src == 0 {
		src = Worked
	}
	obs := h.Observations
	if obs <= 0 {
		obs = 1
	}
	return hintValue{
		source:       src,
		observations: uint32(min(obs, int(^uint32(0)>>1))),
		firstSeen:    first.UTC().Unix(),
		updatedAt:    updated.UTC().Unix(),
		grid:         h.Grid,
	}
}

// mergeHint folds incoming into existing. The newer observation supplies the
// grid, except that a 4-character grid never replaces a 6-character one inside
// the same square, and a derived grid never replaces a worked one.
func mergeHint(existing hintValue, found bool, incoming hintValue) hintValue {
	if !found {
		return incoming
	}
	out := existing
	out.observations = existing.observations + incoming.observations
	if incoming.firstSeen < out.firstSeen {
		out.firstSeen = incoming.firstSeen
	}
	if incoming.updatedAt < existing.updatedAt {
		return out
	}
	out.updatedAt = incoming.updatedAt
	if incoming.source == Derived && existing.source == Worked {
		return out
	}
	if len(incoming.grid) < len(existing.grid) && strings.HasPrefix(existing.grid, incoming.grid) {
		return out
	}
	out.grid = incoming.grid
	out.source = incoming.source
	return out
}

func hintFromValue(call string, v hintValue) Hint {
	return Hint{
		Call:         call,
		Grid:         v.grid,
		Source:       v.source,
		Observations: int(v.observations),
		FirstSeen:    time.Unix(v.firstSeen, 0).UTC(),
		UpdatedAt:    time.Unix(v.updatedAt, 0).UTC(),
	}
}

// encodeHintValue layout: version, source, observations (u32), first seen
// (i64), updated (i64), grid bytes.
func encodeHintValue(v hintValue) []byte {
	buf := make([]byte, hintHeaderSize+len(v.grid))
	buf[0] = hintVersion
	buf[1] = byte(v.source)
	binary.BigEndian.PutUint32(buf[2:6], v.observations)
	binary.BigEndian.PutUint64(buf[6:14], uint64(v.firstSeen))
	binary.BigEndian.PutUint64(buf[14:22], uint64(v.updatedAt))
	copy(buf[hintHeaderSize:], v.grid)
	return buf
}

func decodeHintValue(b []byte) (hintValue, error) {
	if len(b) < hintHeaderSize || b[0] != hintVersion {
		return hintValue{}, errInvalidHint
	}
	grid := string(b[hintHeaderSize:])
	if n := len(grid); n != 4 && n != 6 {
		return hintValue{}, errInvalidHint
	}
	return hintValue{
		source:       Source(b[1]),
		observations: binary.BigEndian.Uint32(b[2:6]),
		firstSeen:    int64(binary.BigEndian.Uint64(b[6:14])),
		updatedAt:    int64(binary.BigEndian.Uint64(b[14:22])),
		grid:         grid,
	}, nil
}

func encodeCount(count int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(count))
	return buf
}

func loadCount(db *pebble.DB) (int64, error) {
	count, err := readCountMeta(db)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) && !errors.Is(err, errInvalidCount) {
		return 0, fmt.Errorf("gridstore: read count: %w", err)
	}
	count, err = computeCount(db)
	if err != nil {
		return 0, err
	}
	if err := db.Set([]byte(metaCountKey), encodeCount(count), pebble.Sync); err != nil {
		return 0, fmt.Errorf("gridstore: write count: %w", err)
	}
	return count, nil
}

func readCountMeta(db *pebble.DB) (int64, error) {
	value, closer, err := db.Get([]byte(metaCountKey))
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(value) != 8 {
		return 0, errInvalidCount
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

func computeCount(db *pebble.DB) (int64, error) {
	iter, err := db.NewIter(iterOptionsForPrefix(callPrefix))
	if err != nil {
		return 0, fmt.Errorf("gridstore: count iterator: %w", err)
	}
	defer iter.Close()
	count := int64(0)
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("gridstore: count iterate: %w", err)
	}
	return count, nil
}

func callKeyBytes(call string) []byte {
	return append([]byte(callPrefix), call...)
}

func parseCallKey(key []byte) (string, bool) {
	prefix := []byte(callPrefix)
	if len(key) <= len(prefix) || !bytes.HasPrefix(key, prefix) {
		return "", false
	}
	return string(key[len(prefix):]), true
}

func updatedKeyBytes(updatedAt int64, call string) []byte {
	buf := make([]byte, len(updatedPrefix)+8+len(call))
	copy(buf, updatedPrefix)
	binary.BigEndian.PutUint64(buf[len(updatedPrefix):], uint64(updatedAt))
	copy(buf[len(updatedPrefix)+8:], call)
	return buf
}

func parseUpdatedKey(key []byte) (int64, string, bool) {
	prefix := []byte(updatedPrefix)
	if len(key) <= len(prefix)+8 || !bytes.HasPrefix(key, prefix) {
		return 0, "", false
	}
	ts := int64(binary.BigEndian.Uint64(key[len(prefix):]))
	return ts, string(key[len(prefix)+8:]), true
}

func iterOptionsForPrefix(prefix string) *pebble.IterOptions {
	lower := []byte(prefix)
	return &pebble.IterOptions{LowerBound: lower, UpperBound: prefixUpperBound(lower)}
}

func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
