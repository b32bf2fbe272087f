package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"quizroom-service/internal/store"
)

// Store is the in-memory implementation of store.Store, used for tests and
// single-node deployments. One JSON document is kept per entity (the first
// two path segments); deeper reads and writes are spliced in and out.
type Store struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	subs  map[*subscriber]struct{}
	hooks map[string][]deferredWrite
}

type subscriber struct {
	prefix string
	ch     chan store.Snapshot
}

type deferredWrite struct {
	path  string
	value []byte // nil means delete
}

func NewStore() *Store {
	return &Store{
		docs:  make(map[string][]byte),
		subs:  make(map[*subscriber]struct{}),
		hooks: make(map[string][]deferredWrite),
	}
}

func (s *Store) Get(_ context.Context, path string, out any) error {
	entity, rest := store.EntityKey(path)

	s.mu.RLock()
	doc, ok := s.docs[entity]
	s.mu.RUnlock()
	if !ok {
		return store.ErrPathNotFound
	}
	raw, ok := store.Extract(doc, rest)
	if !ok {
		return store.ErrPathNotFound
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Set(_ context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(path, raw)
}

func (s *Store) Update(_ context.Context, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, value := range updates {
		var raw []byte
		if value != nil {
			var err error
			raw, err = json.Marshal(value)
			if err != nil {
				return err
			}
		}
		if err := s.writeLocked(path, raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(path, nil)
}

func (s *Store) DeleteTree(ctx context.Context, path string) error {
	prefix := strings.Trim(path, "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	for entity := range s.docs {
		if entity == prefix || strings.HasPrefix(entity, prefix+"/") {
			delete(s.docs, entity)
			s.notifyLocked(store.Snapshot{Path: entity})
		}
	}
	// A path below an entity root is a plain subtree delete.
	if _, rest := store.EntityKey(prefix); len(rest) > 0 {
		return s.writeLocked(prefix, nil)
	}
	return nil
}

func (s *Store) Transact(_ context.Context, path string, fn func(current []byte) (any, error)) error {
	entity, rest := store.EntityKey(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if doc, ok := s.docs[entity]; ok {
		current, _ = store.Extract(doc, rest)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	var raw []byte
	if next != nil {
		if raw, err = json.Marshal(next); err != nil {
			return err
		}
	}
	return s.writeLocked(path, raw)
}

func (s *Store) Push(_ context.Context, path string, value any) (string, error) {
	key := uuid.NewString()
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(strings.Trim(path, "/")+"/"+key, raw); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) Subscribe(path string) (<-chan store.Snapshot, func()) {
	sub := &subscriber{
		prefix: strings.Trim(path, "/"),
		ch:     make(chan store.Snapshot, 8),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return sub.ch, cancel
}

func (s *Store) RegisterDisconnect(clientID, path string, value any) {
	var raw []byte
	if value != nil {
		raw, _ = json.Marshal(value)
	}
	s.mu.Lock()
	s.hooks[clientID] = append(s.hooks[clientID], deferredWrite{path: path, value: raw})
	s.mu.Unlock()
}

func (s *Store) FireDisconnects(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.hooks[clientID] {
		_ = s.writeLocked(w.path, w.value)
	}
	delete(s.hooks, clientID)
}

// writeLocked splices raw (nil = delete) into the owning entity document
// and notifies subscribers. Caller holds the write lock.
func (s *Store) writeLocked(path string, raw []byte) error {
	path = strings.Trim(path, "/")
	entity, rest := store.EntityKey(path)

	doc, err := store.Splice(s.docs[entity], rest, raw)
	if err != nil {
		return err
	}
	if doc == nil {
		delete(s.docs, entity)
	} else {
		s.docs[entity] = doc
	}
	s.notifyLocked(store.Snapshot{Path: path, Value: raw})
	return nil
}

func (s *Store) notifyLocked(snap store.Snapshot) {
	for sub := range s.subs {
		if !overlaps(sub.prefix, snap.Path) {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
			// Drop a stale snapshot so slow consumers never block writers.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

// overlaps reports whether a write at path concerns a subscription at
// prefix: the write is inside the watched subtree, or replaces an ancestor
// of it.
func overlaps(prefix, path string) bool {
	if prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(prefix, path+"/")
}
