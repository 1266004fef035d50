package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory ContentStore used in tests and local runs
// without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte // type -> id -> JSON
	order   map[string][]string          // type -> insertion order of ids
}

// NewMemoryStore creates a new in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string][]byte),
		order:   make(map[string][]string),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, typ string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[typ] == nil {
		s.records[typ] = make(map[string][]byte)
	}
	id := doc.ContentID()
	if _, exists := s.records[typ][id]; !exists {
		s.order[typ] = append(s.order[typ], id)
	}
	s.records[typ][id] = data
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, typ, id string, out any) error {
	s.mu.RLock()
	data, ok := s.records[typ][id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, out)
}

func (s *MemoryStore) Query(ctx context.Context, typ string, filter Filter, out any) error {
	s.mu.RLock()
	var docs []json.RawMessage
	for _, id := range s.order[typ] {
		data, ok := s.records[typ][id]
		if !ok {
			continue
		}
		if matches(data, filter) {
			docs = append(docs, data)
		}
	}
	s.mu.RUnlock()

	if docs == nil {
		docs = []json.RawMessage{}
	}
	buf, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal result set: %w", err)
	}
	return json.Unmarshal(buf, out)
}

func (s *MemoryStore) Delete(ctx context.Context, typ, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[typ] != nil {
		delete(s.records[typ], id)
		ids := s.order[typ][:0]
		for _, existing := range s.order[typ] {
			if existing != id {
				ids = append(ids, existing)
			}
		}
		s.order[typ] = ids
	}
	return nil
}

// Count returns the number of records of the given type.
func (s *MemoryStore) Count(typ string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[typ])
}

// Types returns the record types present, sorted.
func (s *MemoryStore) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.records))
	for typ := range s.records {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

func matches(data []byte, filter Filter) bool {
	if len(filter.Equals) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for field, want := range filter.Equals {
		got, ok := fields[field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}
