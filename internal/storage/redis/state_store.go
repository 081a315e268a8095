package redis

import (
	"context"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type stateStore struct {
	client *redis.Client
}

func (s *stateStore) ActiveRoutine(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, keyActiveRoutine).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *stateStore) SetActiveRoutine(ctx context.Context, id string) error {
	return s.client.Set(ctx, keyActiveRoutine, id, 0).Err()
}

func (s *stateStore) ClearActiveRoutine(ctx context.Context) error {
	return s.client.Del(ctx, keyActiveRoutine).Err()
}

func (s *stateStore) LastSummaryDate(ctx context.Context) (string, error) {
	date, err := s.client.Get(ctx, keyLastSummary).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return date, nil
}

func (s *stateStore) SetLastSummaryDate(ctx context.Context, date string) error {
	return s.client.Set(ctx, keyLastSummary, date, 0).Err()
}
