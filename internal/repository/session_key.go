package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/redis/go-redis/v9"
)

// SessionKeyStore keeps only the latest session-key notification.
type SessionKeyStore interface {
	Put(ctx context.Context, rec *model.SessionKeyRecord) error
	// Get returns nil when nothing has been stored yet.
	Get(ctx context.Context) (*model.SessionKeyRecord, error)
}

type MemSessionKeyStore struct {
	mu  sync.RWMutex
	rec *model.SessionKeyRecord
}

func NewMemSessionKeyStore() *MemSessionKeyStore {
	return &MemSessionKeyStore{}
}

func (s *MemSessionKeyStore) Put(_ context.Context, rec *model.SessionKeyRecord) error {
	cp := *rec
	s.mu.Lock()
	s.rec = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemSessionKeyStore) Get(context.Context) (*model.SessionKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return nil, nil
	}
	cp := *s.rec
	return &cp, nil
}

// RedisSessionKeyStore shares the latest notification across replicas.
type RedisSessionKeyStore struct {
	client *RedisClient
	key    string
}

func NewRedisSessionKeyStore(client *RedisClient, key string) *RedisSessionKeyStore {
	if key == "" {
		key = "sessiongate:session_key"
	}
	return &RedisSessionKeyStore{client: client, key: key}
}

func (s *RedisSessionKeyStore) Put(ctx context.Context, rec *model.SessionKeyRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Client.Set(ctx, s.key, payload, 0).Err()
}

func (s *RedisSessionKeyStore) Get(ctx context.Context) (*model.SessionKeyRecord, error) {
	raw, err := s.client.Client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec model.SessionKeyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
