package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

const sessionsSet = "tpuzzle:sessions"

// RedisSessionStore keeps session state as JSON values plus an index set of
// session keys, so several daemons can serve the same sessions.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) makeKey(id string) string {
	return fmt.Sprintf("tpuzzle:session:%s", id)
}

func (s *RedisSessionStore) Save(ctx context.Context, st puzzle.State) error {
	if st.ID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", st.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.makeKey(st.ID), data, 0)
		pipe.SAdd(ctx, sessionsSet, st.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", st.ID, err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (puzzle.State, error) {
	data, err := s.client.Get(ctx, s.makeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return puzzle.State{}, game.ErrSessionNotFound
		}
		return puzzle.State{}, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	var st puzzle.State
	if err := json.Unmarshal(data, &st); err != nil {
		return puzzle.State{}, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return st, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.makeKey(id))
		pipe.SRem(ctx, sessionsSet, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if del.Val() == 0 {
		return game.ErrSessionNotFound
	}
	return nil
}

// List returns session IDs in sorted order.
func (s *RedisSessionStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, sessionsSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS %s: %w", sessionsSet, err)
	}
	slices.Sort(ids)
	return ids, nil
}
