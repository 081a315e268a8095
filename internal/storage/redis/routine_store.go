package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type routineStore struct {
	client *redis.Client
}

func (s *routineStore) Get(ctx context.Context, id string) (*storage.Routine, error) {
	data, err := s.client.HGet(ctx, keyRoutines, id).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var routine storage.Routine
	if err := json.Unmarshal([]byte(data), &routine); err != nil {
		return nil, fmt.Errorf("unmarshal routine: %w", err)
	}
	return &routine, nil
}

func (s *routineStore) List(ctx context.Context) ([]storage.Routine, error) {
	entries, err := s.client.HGetAll(ctx, keyRoutines).Result()
	if err != nil {
		return nil, err
	}

	routines := make([]storage.Routine, 0, len(entries))
	for _, data := range entries {
		var routine storage.Routine
		if err := json.Unmarshal([]byte(data), &routine); err != nil {
			return nil, fmt.Errorf("unmarshal routine: %w", err)
		}
		routines = append(routines, routine)
	}
	return routines, nil
}

func (s *routineStore) ListEnabled(ctx context.Context) ([]storage.Routine, error) {
	routines, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]storage.Routine, 0, len(routines))
	for _, routine := range routines {
		if routine.Enabled {
			enabled = append(enabled, routine)
		}
	}
	return enabled, nil
}

func (s *routineStore) Upsert(ctx context.Context, routine storage.Routine) error {
	if routine.ID == "" {
		return fmt.Errorf("routine id is required")
	}
	routine.Limits = storage.DedupeLimits(routine.Limits)

	data, err := json.Marshal(routine)
	if err != nil {
		return fmt.Errorf("marshal routine: %w", err)
	}
	return s.client.HSet(ctx, keyRoutines, routine.ID, data).Err()
}

func (s *routineStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.HDel(ctx, keyRoutines, id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}
