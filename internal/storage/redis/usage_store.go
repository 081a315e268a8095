package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/redis/go-redis/v9"
)

type usageStore struct {
	client *redis.Client
}

// AddEvent appends a lifecycle event to the event log, scored by timestamp.
// Members carry a random prefix so identical events in the same millisecond
// remain distinct set members.
func (s *usageStore) AddEvent(ctx context.Context, event usage.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("event nonce: %w", err)
	}
	member := hex.EncodeToString(buf) + "|" + string(data)

	return s.client.ZAdd(ctx, keyEvents, redis.Z{
		Score:  float64(event.Timestamp),
		Member: member,
	}).Err()
}

func (s *usageStore) QueryEvents(ctx context.Context, start, end int64) ([]usage.Event, error) {
	events := make([]usage.Event, 0)
	if end <= start {
		return events, nil
	}

	members, err := s.client.ZRangeByScore(ctx, keyEvents, &redis.ZRangeBy{
		Min: strconv.FormatInt(start, 10),
		Max: "(" + strconv.FormatInt(end, 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, member := range members {
		_, data, found := strings.Cut(member, "|")
		if !found {
			continue
		}
		var event usage.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events, nil
}

func (s *usageStore) DeleteEventsBefore(ctx context.Context, cutoff int64) (int, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, keyEvents,
		"-inf", "("+strconv.FormatInt(cutoff, 10)).Result()
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *usageStore) GetDailyUsage(ctx context.Context, date, pkg string) (*storage.DailyUsage, error) {
	data, err := s.client.HGet(ctx, keyDailyPrefix+date, pkg).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	totalMs, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse daily usage: %w", err)
	}
	return &storage.DailyUsage{Date: date, Package: pkg, TotalMs: totalMs}, nil
}

func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	entries, err := s.client.HGetAll(ctx, keyDailyPrefix+date).Result()
	if err != nil {
		return nil, err
	}

	usages := make([]storage.DailyUsage, 0, len(entries))
	for pkg, value := range entries {
		totalMs, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse daily usage: %w", err)
		}
		usages = append(usages, storage.DailyUsage{Date: date, Package: pkg, TotalMs: totalMs})
	}

	sort.Slice(usages, func(i, j int) bool {
		return usages[i].Package < usages[j].Package
	})
	return usages, nil
}

func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, pkg string, ms int64) error {
	return s.client.HIncrBy(ctx, keyDailyPrefix+date, pkg, ms).Err()
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse("2006-01-02", cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyDailyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, err
		}

		for _, key := range keys {
			date := strings.TrimPrefix(key, keyDailyPrefix)
			dateValue, err := time.Parse("2006-01-02", date)
			if err != nil {
				continue
			}
			if !dateValue.Before(cutoff) {
				continue
			}

			entries, err := s.client.HLen(ctx, key).Result()
			if err != nil {
				return deleted, err
			}
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return deleted, err
			}
			deleted += int(entries)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}
