package redis

// Package redis provides Redis-based adapters for the EMS auth pipeline.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peoplestack/ems-api/internal/ports"
)

// StateStore persists pending OAuth login state for the duration of the
// provider round-trip. Entries expire via Redis TTL and are redeemed at most
// once: Get removes the entry atomically.
type StateStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStateStore creates a login-state store with the default key prefix.
func NewStateStore(client redis.UniversalClient, ttl time.Duration) *StateStore {
	return &StateStore{client: client, prefix: "login_state:", ttl: ttl}
}

// NewStateStoreWithPrefix creates a login-state store with a custom key prefix.
func NewStateStoreWithPrefix(client redis.UniversalClient, prefix string, ttl time.Duration) *StateStore {
	return &StateStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *StateStore) Save(ctx context.Context, st ports.LoginState) error {
	if st.State == "" {
		return errors.New("login state cannot be empty")
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal login state: %w", err)
	}

	return s.client.Set(ctx, s.prefix+st.State, data, s.ttl).Err()
}

// Get returns the pending state and deletes it in the same round trip, so a
// replayed callback with the same state parameter fails.
func (s *StateStore) Get(ctx context.Context, state string) (ports.LoginState, error) {
	if state == "" {
		return ports.LoginState{}, ErrNotFound
	}

	data, err := s.client.GetDel(ctx, s.prefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.LoginState{}, ErrNotFound
		}
		return ports.LoginState{}, fmt.Errorf("redis getdel: %w", err)
	}

	var st ports.LoginState
	if unmarshalErr := json.Unmarshal([]byte(data), &st); unmarshalErr != nil {
		return ports.LoginState{}, fmt.Errorf("unmarshal login state: %w", unmarshalErr)
	}
	return st, nil
}

// ErrNotFound is returned when a pending login state is absent or expired.
type notFoundError struct{}

func (notFoundError) Error() string { return "login state not found" }

var ErrNotFound error = notFoundError{}
