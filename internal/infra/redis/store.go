package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/store"
)

const casRetries = 16

var errContention = errors.New("redis store: transaction contention")

// Store is the Redis-backed implementation of store.Store. One Redis string
// key holds the JSON document of each entity (the first two path segments);
// deeper writes run a WATCH/MULTI splice against that key. Every write is
// published on one pub/sub channel so all service replicas see the same
// change feed.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu    sync.Mutex
	hooks map[string][]deferredWrite
}

type deferredWrite struct {
	path  string
	value []byte
}

// changeMsg is the wire form of one snapshot on the pub/sub channel.
type changeMsg struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// NewStore wraps client. ttl, when positive, bounds how long an untouched
// entity lives; every write refreshes it, so only abandoned rooms expire.
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "qr"
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		hooks:  make(map[string][]deferredWrite),
	}
}

func (s *Store) key(entity string) string { return s.prefix + ":" + entity }

func (s *Store) channel() string { return s.prefix + ":changes" }

func (s *Store) Get(ctx context.Context, path string, out any) error {
	entity, rest := store.EntityKey(path)
	doc, err := s.client.Get(ctx, s.key(entity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrPathNotFound
	}
	if err != nil {
		return err
	}
	raw, ok := store.Extract(doc, rest)
	if !ok {
		return store.ErrPathNotFound
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.write(ctx, path, raw)
}

func (s *Store) Update(ctx context.Context, updates map[string]any) error {
	for path, value := range updates {
		var raw []byte
		if value != nil {
			var err error
			raw, err = json.Marshal(value)
			if err != nil {
				return err
			}
		}
		if err := s.write(ctx, path, raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.write(ctx, path, nil)
}

func (s *Store) DeleteTree(ctx context.Context, path string) error {
	prefix := strings.Trim(path, "/")
	entity, rest := store.EntityKey(prefix)
	if len(rest) > 0 {
		return s.write(ctx, prefix, nil)
	}
	if strings.Contains(entity, "/") {
		if err := s.client.Del(ctx, s.key(entity)).Err(); err != nil {
			return err
		}
		s.publish(ctx, entity, nil)
		return nil
	}

	// Single-segment prefix: sweep every entity under it.
	iter := s.client.Scan(ctx, 0, s.key(entity)+"/*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return err
		}
		s.publish(ctx, strings.TrimPrefix(key, s.prefix+":"), nil)
	}
	return iter.Err()
}

func (s *Store) Transact(ctx context.Context, path string, fn func(current []byte) (any, error)) error {
	entity, rest := store.EntityKey(path)
	key := s.key(entity)

	var published []byte
	txf := func(tx *redis.Tx) error {
		doc, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, _ := store.Extract(doc, rest)
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
		updated, err := store.Splice(doc, rest, raw)
		if err != nil {
			return err
		}
		published = raw
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.persist(ctx, pipe, key, updated)
			return nil
		})
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		s.publish(ctx, strings.Trim(path, "/"), published)
		return nil
	}
	return errContention
}

func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	key := uuid.NewString()
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, strings.Trim(path, "/")+"/"+key, raw); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) Subscribe(path string) (<-chan store.Snapshot, func()) {
	prefix := strings.Trim(path, "/")
	ctx, cancel := context.WithCancel(context.Background())
	ps := s.client.Subscribe(ctx, s.channel())

	ch := make(chan store.Snapshot, 8)
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var cm changeMsg
			if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
				continue
			}
			if !overlaps(prefix, cm.Path) {
				continue
			}
			snap := store.Snapshot{Path: cm.Path, Value: cm.Value}
			select {
			case ch <- snap:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- snap
			}
		}
	}()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			_ = ps.Close()
			cancel()
		})
	}
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
	writes := s.hooks[clientID]
	delete(s.hooks, clientID)
	s.mu.Unlock()

	ctx := context.Background()
	for _, w := range writes {
		_ = s.write(ctx, w.path, w.value)
	}
}

// write splices raw (nil = delete) into the owning entity document under a
// WATCH, retrying on contention, then publishes the change.
func (s *Store) write(ctx context.Context, path string, raw []byte) error {
	path = strings.Trim(path, "/")
	entity, rest := store.EntityKey(path)
	key := s.key(entity)

	txf := func(tx *redis.Tx) error {
		doc, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		updated, err := store.Splice(doc, rest, raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.persist(ctx, pipe, key, updated)
			return nil
		})
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		s.publish(ctx, path, raw)
		return nil
	}
	return errContention
}

func (s *Store) persist(ctx context.Context, pipe redis.Pipeliner, key string, doc []byte) {
	if doc == nil {
		pipe.Del(ctx, key)
		return
	}
	pipe.Set(ctx, key, doc, s.ttl)
}

func (s *Store) publish(ctx context.Context, path string, raw []byte) {
	payload, err := json.Marshal(changeMsg{Path: path, Value: raw})
	if err != nil {
		return
	}
	_ = s.client.Publish(ctx, s.channel(), payload).Err()
}

// overlaps reports whether a write at path concerns a subscription at
// prefix: inside the watched subtree, or replacing an ancestor of it.
func overlaps(prefix, path string) bool {
	if prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(prefix, path+"/")
}
