package bolt

import (
	"context"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	keyActiveRoutine = "active_routine_id"
	keyLastSummary   = "last_summary_date"
)

type stateStore struct {
	db *bbolt.DB
}

func (s *stateStore) ActiveRoutine(ctx context.Context) (string, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketState))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(keyActiveRoutine))
		if value == nil {
			return storage.ErrNotFound
		}
		id = string(value)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *stateStore) SetActiveRoutine(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketState))
		return b.Put([]byte(keyActiveRoutine), []byte(id))
	})
}

func (s *stateStore) LastSummaryDate(ctx context.Context) (string, error) {
	var date string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketState))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(keyLastSummary))
		if value == nil {
			return storage.ErrNotFound
		}
		date = string(value)
		return nil
	})
	if err != nil {
		return "", err
	}
	return date, nil
}

func (s *stateStore) SetLastSummaryDate(ctx context.Context, date string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketState))
		return b.Put([]byte(keyLastSummary), []byte(date))
	})
}

func (s *stateStore) ClearActiveRoutine(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketState))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(keyActiveRoutine))
	})
}
