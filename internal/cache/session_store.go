package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

const (
	sessionKeyPrefix  = keyNamespace + ":session"
	defaultSessionTTL = 24 * time.Hour
)

// ErrInvalidSession is returned for blank session ids.
var ErrInvalidSession = errors.New("invalid session id")

// SessionStore keeps, per UI session, the groups the user already marked as ordered.
// Marking refreshes the session TTL.
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	Ordered(ctx context.Context, sessionID string) (domain.KeySet, error)
	Mark(ctx context.Context, sessionID string, key domain.GroupKey) error
	Unmark(ctx context.Context, sessionID string, key domain.GroupKey) error
}

// OrderedKeys returns the marked keys sorted for stable output.
func OrderedKeys(set domain.KeySet) []domain.GroupKey {
	keys := make([]domain.GroupKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func checkSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidSession
	}
	return nil
}

type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore returns a redis-backed store, or an in-memory one when client is nil.
func NewSessionStore(client *redis.Client, ttl time.Duration) SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if client == nil {
		return NewMemorySessionStore(ttl)
	}
	return &redisSessionStore{client: client, ttl: ttl}
}

func orderedSetKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:ordered", sessionKeyPrefix, sessionID)
}

func (s *redisSessionStore) Create(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *redisSessionStore) Ordered(ctx context.Context, sessionID string) (domain.KeySet, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	members, err := s.client.SMembers(ctx, orderedSetKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	set := make(domain.KeySet, len(members))
	for _, m := range members {
		var key domain.GroupKey
		if err := json.Unmarshal([]byte(m), &key); err != nil {
			return nil, fmt.Errorf("decode ordered key: %w", err)
		}
		set[key] = struct{}{}
	}
	return set, nil
}

func (s *redisSessionStore) Mark(ctx context.Context, sessionID string, key domain.GroupKey) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	member, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encode ordered key: %w", err)
	}

	setKey := orderedSetKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, setKey, member)
	pipe.Expire(ctx, setKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mark ordered failed: %w", err)
	}
	return nil
}

func (s *redisSessionStore) Unmark(ctx context.Context, sessionID string, key domain.GroupKey) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	member, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encode ordered key: %w", err)
	}
	if err := s.client.SRem(ctx, orderedSetKey(sessionID), member).Err(); err != nil {
		return fmt.Errorf("redis unmark ordered failed: %w", err)
	}
	return nil
}

type memorySession struct {
	ordered domain.KeySet
	expires time.Time
}

// MemorySessionStore is the in-process fallback used when redis is disabled.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memorySession
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &MemorySessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memorySession),
	}
}

func (s *MemorySessionStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &memorySession{ordered: make(domain.KeySet), expires: s.now().Add(s.ttl)}
	return id, nil
}

// session returns the live session, dropping it when expired. Must be called with s.mu held.
func (s *MemorySessionStore) session(id string, create bool) *memorySession {
	sess, ok := s.sessions[id]
	if ok && s.now().After(sess.expires) {
		delete(s.sessions, id)
		ok = false
	}
	if !ok && create {
		sess = &memorySession{ordered: make(domain.KeySet)}
		s.sessions[id] = sess
		ok = true
	}
	if !ok {
		return nil
	}
	return sess
}

func (s *MemorySessionStore) Ordered(ctx context.Context, sessionID string) (domain.KeySet, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(domain.KeySet)
	if sess := s.session(sessionID, false); sess != nil {
		for k := range sess.ordered {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (s *MemorySessionStore) Mark(ctx context.Context, sessionID string, key domain.GroupKey) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sessionID, true)
	sess.ordered[key] = struct{}{}
	sess.expires = s.now().Add(s.ttl)
	return nil
}

func (s *MemorySessionStore) Unmark(ctx context.Context, sessionID string, key domain.GroupKey) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess := s.session(sessionID, false); sess != nil {
		delete(sess.ordered, key)
	}
	return nil
}
