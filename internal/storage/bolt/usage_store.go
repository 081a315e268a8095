package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) AddEvent(ctx context.Context, event usage.Event) error {
	key, err := eventKey(event.Timestamp)
	if err != nil {
		return err
	}
	return putBucketValue(ctx, s.db, bucketEvents, key, event)
}

func (s *usageStore) QueryEvents(ctx context.Context, start, end int64) ([]usage.Event, error) {
	events := make([]usage.Event, 0)
	if end <= start {
		return events, nil
	}

	from := []byte(fmt.Sprintf("%020d", start))
	to := []byte(fmt.Sprintf("%020d", end))

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketEvents))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(from); k != nil && bytes.Compare(k, to) < 0; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var event usage.Event
			if err := unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	return events, err
}

func (s *usageStore) DeleteEventsBefore(ctx context.Context, cutoff int64) (int, error) {
	limit := []byte(fmt.Sprintf("%020d", cutoff))
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketEvents))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, limit) < 0; k, _ = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
}

func (s *usageStore) GetDailyUsage(ctx context.Context, date, pkg string) (*storage.DailyUsage, error) {
	return getBucketValue[storage.DailyUsage](ctx, s.db, bucketDailyUsage, dailyUsageKey(date, pkg))
}

func (s *usageStore) ListDailyUsage(ctx context.Context, date string) ([]storage.DailyUsage, error) {
	prefix := []byte(date + "/")
	entries := make([]storage.DailyUsage, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry storage.DailyUsage
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

func (s *usageStore) IncrementDailyUsage(ctx context.Context, date, pkg string, ms int64) error {
	key := dailyUsageKey(date, pkg)
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return fmt.Errorf("daily usage bucket missing")
		}
		var entry storage.DailyUsage
		if existing := b.Get([]byte(key)); existing != nil {
			if err := unmarshal(existing, &entry); err != nil {
				return err
			}
		} else {
			entry = storage.DailyUsage{Date: date, Package: pkg}
		}
		entry.TotalMs += ms
		data, err := marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse("2006-01-02", cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry storage.DailyUsage
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			dateValue, err := time.Parse("2006-01-02", entry.Date)
			if err != nil {
				continue
			}
			if dateValue.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
}

func dailyUsageKey(date, pkg string) string {
	return fmt.Sprintf("%s/%s", date, pkg)
}
