package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

type routineStore struct {
	db *bbolt.DB
}

func (s *routineStore) Get(ctx context.Context, id string) (*storage.Routine, error) {
	return getBucketValue[storage.Routine](ctx, s.db, bucketRoutines, id)
}

func (s *routineStore) List(ctx context.Context) ([]storage.Routine, error) {
	return listBucket[storage.Routine](ctx, s.db, bucketRoutines)
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
	return putBucketValue(ctx, s.db, bucketRoutines, routine.ID, routine)
}

func (s *routineStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketRoutines, id)
}
