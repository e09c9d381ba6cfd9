// Package session provides Redis-backed storage for editing and chat
// sessions, plus the per-action in-flight guard that keeps one save, one
// generation, or one chat turn outstanding at a time for a given session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"policystudio/api/internal/document"
	"policystudio/api/internal/genflow"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrActionInFlight = errors.New("action already in flight")
)

// EditState is the cached editable copy of a policy's structure for one
// editing session. BaseVersion records the version loaded when the session
// started; the policy service assigns every new version on save.
type EditState struct {
	PolicyID    string              `json:"policy_id"`
	Structure   document.Structure  `json:"structure"`
	Provenance  document.Provenance `json:"provenance,omitempty"`
	BaseVersion int                 `json:"base_version"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Store keeps session state in Redis under ttl'd keys.
type Store struct {
	client   *redis.Client
	ttl      time.Duration
	guardTTL time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStoreWithClient(client, ttl), nil
}

// NewStoreWithClient builds a store from an existing Redis client.
func NewStoreWithClient(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{
		client:   client,
		ttl:      ttl,
		guardTTL: 2 * time.Minute,
	}
}

func editKey(policyID string) string        { return "edit:" + policyID }
func chatKey(sessionID string) string       { return "chat:" + sessionID }
func actionKey(scope, action string) string { return "action:" + scope + ":" + action }

// SaveEdit stores the editing session for a policy, refreshing its TTL.
func (s *Store) SaveEdit(ctx context.Context, state EditState) error {
	state.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal edit state: %w", err)
	}
	if err := s.client.Set(ctx, editKey(state.PolicyID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save edit state: %w", err)
	}
	return nil
}

func (s *Store) LoadEdit(ctx context.Context, policyID string) (EditState, error) {
	payload, err := s.client.Get(ctx, editKey(policyID)).Result()
	if err == redis.Nil {
		return EditState{}, ErrNotFound
	}
	if err != nil {
		return EditState{}, fmt.Errorf("load edit state: %w", err)
	}
	var state EditState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return EditState{}, fmt.Errorf("unmarshal edit state: %w", err)
	}
	return state, nil
}

func (s *Store) DeleteEdit(ctx context.Context, policyID string) error {
	if err := s.client.Del(ctx, editKey(policyID)).Err(); err != nil {
		return fmt.Errorf("delete edit state: %w", err)
	}
	return nil
}

// SaveChat stores a generation session, refreshing its TTL.
func (s *Store) SaveChat(ctx context.Context, state *genflow.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal chat state: %w", err)
	}
	if err := s.client.Set(ctx, chatKey(state.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save chat state: %w", err)
	}
	return nil
}

func (s *Store) LoadChat(ctx context.Context, sessionID string) (*genflow.State, error) {
	payload, err := s.client.Get(ctx, chatKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chat state: %w", err)
	}
	var state genflow.State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("unmarshal chat state: %w", err)
	}
	return &state, nil
}

func (s *Store) DeleteChat(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, chatKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete chat state: %w", err)
	}
	return nil
}

// AcquireAction takes the single-flight slot for one action on one session
// scope. A second identical action while the first is outstanding gets
// ErrActionInFlight; distinct actions on the same scope do not contend. The
// guard TTL bounds the damage of a crashed holder.
func (s *Store) AcquireAction(ctx context.Context, scope, action string) error {
	ok, err := s.client.SetNX(ctx, actionKey(scope, action), "1", s.guardTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire action guard: %w", err)
	}
	if !ok {
		return ErrActionInFlight
	}
	return nil
}

// ReleaseAction frees the slot once the action resolves, success or failure.
// The request context may already be cancelled by the time the deferred
// release runs, so the DEL must not inherit its cancellation.
func (s *Store) ReleaseAction(ctx context.Context, scope, action string) {
	_ = s.client.Del(context.WithoutCancel(ctx), actionKey(scope, action)).Err()
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
