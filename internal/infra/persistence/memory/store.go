// Package memory provides a process-local document store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chebi2gene/internal/persistence/core"
)

// Store keeps documents in a map guarded by a RWMutex. Payloads are copied
// on the way in and out.
type Store struct {
	mu   sync.RWMutex
	docs map[string]core.Document
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[string]core.Document)}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Upsert(_ context.Context, id string, payload []byte) error {
	if id == "" {
		return fmt.Errorf("document id required")
	}
	s.mu.Lock()
	s.docs[id] = core.Document{ID: id, Payload: append([]byte(nil), payload...), UpdatedAt: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (core.Document, error) {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	doc.Payload = append([]byte(nil), doc.Payload...)
	return doc, nil
}

func (s *Store) List(_ context.Context) ([]core.Document, error) {
	s.mu.RLock()
	out := make([]core.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		doc.Payload = append([]byte(nil), doc.Payload...)
		out = append(out, doc)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Close() error { return nil }
