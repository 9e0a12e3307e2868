package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const sessionKeyPrefix = "shop:session:"

// SessionStore хранит сессии в Redis: токен указывает на сериализованную
// идентичность, TTL ключа ограничивает время жизни сессии.
type SessionStore struct {
	client *redis.Client
}

// Open создаёт клиент Redis и проверяет доступность сервера.
func Open(ctx context.Context, addr string) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &SessionStore{client: client}, nil
}

// Ping проверяет доступность Redis.
func (s *SessionStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis session store is not initialized")
	}
	return s.client.Ping(ctx).Err()
}

// Close закрывает подключение к Redis.
func (s *SessionStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

type sessionPayload struct {
	CustomerID string `json:"customer_id"`
	Role       string `json:"role"`
}

func (s *SessionStore) Identity(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Anonymous(), domain.ErrUnauthenticated
	}

	raw, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Anonymous(), domain.ErrUnauthenticated
		}
		return domain.Anonymous(), fmt.Errorf("get session: %w", err)
	}

	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Anonymous(), fmt.Errorf("decode session payload: %w", err)
	}

	return domain.Identity{
		CustomerID: payload.CustomerID,
		Role:       domain.Role(payload.Role),
	}, nil
}

func (s *SessionStore) Put(ctx context.Context, token string, ident domain.Identity, ttl time.Duration) error {
	if token == "" {
		return domain.ErrUnauthenticated
	}

	raw, err := json.Marshal(sessionPayload{
		CustomerID: ident.CustomerID,
		Role:       string(ident.Role),
	})
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+token, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}

	return nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
