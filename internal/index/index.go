package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Entry is one cached key -> position mapping.
type Entry struct {
	Position  int
	TouchedAt time.Time
}

// Index caches the row position of business keys. It is advisory: callers
// must verify hits against the ledger.
type Index interface {
	Lookup(ctx context.Context, key string) (int, bool, error)
	Upsert(ctx context.Context, key string, position int, at time.Time) error
	Entries(ctx context.Context) (map[string]Entry, error)
	Delete(ctx context.Context, keys ...string) error
}

func encodeEntry(position int, at time.Time) string {
	return fmt.Sprintf("%d|%d", position, at.UnixNano())
}

// decodeEntry parses "<position>|<unix-nanos>". Malformed values yield ok=false.
func decodeEntry(raw string) (Entry, bool) {
	posPart, tsPart, found := strings.Cut(raw, "|")
	if !found {
		return Entry{}, false
	}
	pos, err := strconv.Atoi(posPart)
	if err != nil || pos < 1 {
		return Entry{}, false
	}
	nanos, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Position: pos, TouchedAt: time.Unix(0, nanos).UTC()}, true
}

// MemoryIndex is a process-local Index.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: map[string]Entry{}}
}

func (m *MemoryIndex) Lookup(_ context.Context, key string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return 0, false, nil
	}
	return e.Position, true, nil
}

func (m *MemoryIndex) Upsert(_ context.Context, key string, position int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Position: position, TouchedAt: at.UTC()}
	return nil
}

func (m *MemoryIndex) Entries(context.Context) (map[string]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryIndex) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}
