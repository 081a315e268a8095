package redis

import (
	"context"
	"strconv"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type limitStore struct {
	client *redis.Client
}

func (s *limitStore) GetLimit(ctx context.Context, pkg string) (int, error) {
	data, err := s.client.HGet(ctx, keyLimits, pkg).Result()
	if err == redis.Nil {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(data)
}

func (s *limitStore) ListLimits(ctx context.Context) (map[string]int, error) {
	entries, err := s.client.HGetAll(ctx, keyLimits).Result()
	if err != nil {
		return nil, err
	}

	limits := make(map[string]int, len(entries))
	for pkg, value := range entries {
		minutes, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		limits[pkg] = minutes
	}
	return limits, nil
}

func (s *limitStore) SetLimit(ctx context.Context, pkg string, minutes int) error {
	return s.client.HSet(ctx, keyLimits, pkg, strconv.Itoa(minutes)).Err()
}

func (s *limitStore) RemoveLimit(ctx context.Context, pkg string) error {
	removed, err := s.client.HDel(ctx, keyLimits, pkg).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *limitStore) IsWhitelisted(ctx context.Context, pkg string) (bool, error) {
	return s.client.SIsMember(ctx, keyWhitelist, pkg).Result()
}

func (s *limitStore) ListWhitelist(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, keyWhitelist).Result()
}

func (s *limitStore) AddToWhitelist(ctx context.Context, pkg string) error {
	return s.client.SAdd(ctx, keyWhitelist, pkg).Err()
}

func (s *limitStore) RemoveFromWhitelist(ctx context.Context, pkg string) error {
	removed, err := s.client.SRem(ctx, keyWhitelist, pkg).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}
