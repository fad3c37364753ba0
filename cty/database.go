// Package cty loads the CTY country prefix database (plist form) and resolves
// callsigns to DXCC entities. The logger uses it to count entities worked and
// to derive a 4-character grid hint from an entity's centre when no grid has
// been logged for a call.
package cty

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"howett.net/plist"

	"vcl/locator"
	"vcl/qso"
)

// Entity is one CTY record. Longitude is east-positive.
type Entity struct {
	Country       string  `plist:"Country"`
	Prefix        string  `plist:"Prefix"`
	ADIF          int     `plist:"ADIF"`
	CQZone        int     `plist:"CQZone"`
	ITUZone       int     `plist:"ITUZone"`
	Continent     string  `plist:"Continent"`
	Latitude      float64 `plist:"Latitude"`
	Longitude     float64 `plist:"Longitude"`
	GMTOffset     float64 `plist:"GMTOffset"`
	ExactCallsign bool    `plist:"ExactCallsign"`
}

// key identifies the entity for counting; older files carry no ADIF number.
func (e Entity) key() string {
	if e.ADIF > 0 {
		return fmt.Sprintf("#%d", e.ADIF)
	}
	return strings.ToUpper(e.Country)
}

const defaultCacheCapacity = 4096

// Operating-condition suffixes that never carry location.
var suffixes = map[string]bool{
	"P": true, "M": true, "MM": true, "AM": true, "QRP": true, "R": true, "B": true,
}

// Database resolves callsigns by exact match first, then longest prefix.
type Database struct {
	entries map[string]Entity
	trie    prefixTrie

	mu       sync.Mutex
	lru      *list.List
	cached   map[string]*list.Element
	capacity int
}

type cacheItem struct {
	call   string
	entity Entity
	ok     bool
}

// prefixTrie is a read-only byte trie over the database keys. Walking a call
// and remembering the last terminal node gives the longest matching prefix.
type prefixTrie struct {
	nodes []trieNode
}

type trieNode struct {
	next map[byte]int
	key  string
}

func buildTrie(keys []string) prefixTrie {
	tr := prefixTrie{nodes: []trieNode{{}}}
	for _, key := range keys {
		state := 0
		for i := 0; i < len(key); i++ {
			if tr.nodes[state].next == nil {
				tr.nodes[state].next = make(map[byte]int)
			}
			child, ok := tr.nodes[state].next[key[i]]
			if !ok {
				child = len(tr.nodes)
				tr.nodes = append(tr.nodes, trieNode{})
				tr.nodes[state].next[key[i]] = child
			}
			state = child
		}
		tr.nodes[state].key = key
	}
	return tr
}

func (tr *prefixTrie) longest(call string) (string, bool) {
	state, best := 0, ""
	for i := 0; i < len(call); i++ {
		child, ok := tr.nodes[state].next[call[i]]
		if !ok {
			break
		}
		state = child
		if k := tr.nodes[state].key; k != "" {
			best = k
		}
	}
	return best, best != ""
}

// Load reads a cty.plist file.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cty: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads plist data. Keys are upper-cased; exact-callsign entries and
// prefixes share one table.
func Decode(r io.ReadSeeker) (*Database, error) {
	var raw map[string]Entity
	if err := plist.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("cty: decode plist: %w", err)
	}
	entries := make(map[string]Entity, len(raw))
	keys := make([]string, 0, len(raw))
	for k, v := range raw {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		entries[k] = v
		keys = append(keys, k)
	}
	if len(entries) == 0 {
		return nil, errors.New("cty: plist has no entries")
	}
	return &Database{
		entries:  entries,
		trie:     buildTrie(keys),
		lru:      list.New(),
		cached:   make(map[string]*list.Element),
		capacity: defaultCacheCapacity,
	}, nil
}

// Len returns the number of prefixes and exact calls loaded.
func (db *Database) Len() int {
	if db == nil {
		return 0
	}
	return len(db.entries)
}

// Lookup resolves call to its entity. Portable forms such as W6/K1ABC or
// K1ABC/W6 resolve through the shorter segment; /P, /M, /R and similar are
// ignored.
func (db *Database) Lookup(call string) (Entity, bool) {
	if db == nil {
		return Entity{}, false
	}
	call = qso.NormalizeCall(call)
	if call == "" {
		return Entity{}, false
	}
	if item, ok := db.cacheGet(call); ok {
		return item.entity, item.ok
	}
	ent, ok := db.resolve(call)
	db.cacheStore(&cacheItem{call: call, entity: ent, ok: ok})
	return ent, ok
}

func (db *Database) resolve(call string) (Entity, bool) {
	if !strings.Contains(call, "/") {
		return db.match(call)
	}
	segments := strings.Split(call, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg != "" && !suffixes[seg] {
			kept = append(kept, seg)
		}
	}
	switch len(kept) {
	case 0:
		return Entity{}, false
	case 1:
		if ent, ok := db.entries[kept[0]]; ok {
			return ent, true
		}
		return db.match(kept[0])
	}
	shortest := kept[0]
	for _, seg := range kept[1:] {
		if len(seg) < len(shortest) {
			shortest = seg
		}
	}
	if ent, ok := db.match(shortest); ok {
		return ent, true
	}
	return db.match(call)
}

func (db *Database) match(call string) (Entity, bool) {
	if ent, ok := db.entries[call]; ok {
		return ent, true
	}
	if key, ok := db.trie.longest(call); ok {
		return db.entries[key], true
	}
	return Entity{}, false
}

// Grid returns the 4-character grid of the entity centre for call.
func (db *Database) Grid(call string) (string, bool) {
	ent, ok := db.Lookup(call)
	if !ok {
		return "", false
	}
	grid, err := locator.FromLatLon(ent.Latitude, ent.Longitude, 4)
	if err != nil {
		return "", false
	}
	return grid, true
}

// CountEntities returns how many distinct entities the calls resolve to, and
// the calls that resolved to none.
func (db *Database) CountEntities(calls []string) (int, []string) {
	seen := make(map[string]struct{})
	var unknown []string
	for _, call := range calls {
		ent, ok := db.Lookup(call)
		if !ok {
			unknown = append(unknown, call)
			continue
		}
		seen[ent.key()] = struct{}{}
	}
	return len(seen), unknown
}

func (db *Database) cacheGet(call string) (*cacheItem, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	elem, ok := db.cached[call]
	if !ok {
		return nil, false
	}
	db.lru.MoveToFront(elem)
	return elem.Value.(*cacheItem), true
}

func (db *Database) cacheStore(item *cacheItem) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if elem, ok := db.cached[item.call]; ok {
		elem.Value = item
		db.lru.MoveToFront(elem)
		return
	}
	db.cached[item.call] = db.lru.PushFront(item)
	for len(db.cached) > db.capacity {
		tail := db.lru.Back()
		db.lru.Remove(tail)
		delete(db.cached, tail.Value.(*cacheItem).call)
	}
}
