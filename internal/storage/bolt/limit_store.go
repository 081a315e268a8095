package bolt

import (
	"context"
	"strconv"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

type limitStore struct {
	db *bbolt.DB
}

func (s *limitStore) GetLimit(ctx context.Context, pkg string) (int, error) {
	var minutes int
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketLimits))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(pkg))
		if value == nil {
			return storage.ErrNotFound
		}
		parsed, err := strconv.Atoi(string(value))
		if err != nil {
			return err
		}
		minutes = parsed
		return nil
	})
	if err != nil {
		return 0, err
	}
	return minutes, nil
}

func (s *limitStore) ListLimits(ctx context.Context) (map[string]int, error) {
	limits := make(map[string]int)
	return limits, s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketLimits))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			minutes, err := strconv.Atoi(string(v))
			if err != nil {
				return err
			}
			limits[string(k)] = minutes
			return nil
		})
	})
}

func (s *limitStore) SetLimit(ctx context.Context, pkg string, minutes int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketLimits))
		return b.Put([]byte(pkg), []byte(strconv.Itoa(minutes)))
	})
}

func (s *limitStore) RemoveLimit(ctx context.Context, pkg string) error {
	return deleteRawKey(ctx, s.db, bucketLimits, pkg)
}

func (s *limitStore) IsWhitelisted(ctx context.Context, pkg string) (bool, error) {
	whitelisted := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketWhitelist))
		if b == nil {
			return nil
		}
		whitelisted = b.Get([]byte(pkg)) != nil
		return nil
	})
	return whitelisted, err
}

func (s *limitStore) ListWhitelist(ctx context.Context) ([]string, error) {
	packages := make([]string, 0)
	return packages, s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketWhitelist))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			packages = append(packages, string(k))
			return nil
		})
	})
}

func (s *limitStore) AddToWhitelist(ctx context.Context, pkg string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketWhitelist))
		return b.Put([]byte(pkg), []byte{1})
	})
}

func (s *limitStore) RemoveFromWhitelist(ctx context.Context, pkg string) error {
	return deleteRawKey(ctx, s.db, bucketWhitelist, pkg)
}

func deleteRawKey(ctx context.Context, db *bbolt.DB, bucket, key string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return storage.ErrNotFound
		}
		if b.Get([]byte(key)) == nil {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(key))
	})
}
