package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Key layout:
//
//	screentime:routines                 hash  id -> routine JSON
//	screentime:limits                   hash  package -> minutes
//	screentime:whitelist                set   package
//	screentime:events                   zset  event JSON scored by timestamp
//	screentime:usage:daily:<date>       hash  package -> total ms
//	screentime:state:active_routine     string
//	screentime:state:last_summary       string date
const (
	keyRoutines      = "screentime:routines"
	keyLimits        = "screentime:limits"
	keyWhitelist     = "screentime:whitelist"
	keyEvents        = "screentime:events"
	keyDailyPrefix   = "screentime:usage:daily:"
	keyActiveRoutine = "screentime:state:active_routine"
	keyLastSummary   = "screentime:state:last_summary"
)

// Store implements the storage.Store interface using Redis.
type Store struct {
	client       *redis.Client
	routineStore *routineStore
	limitStore   *limitStore
	usageStore   *usageStore
	stateStore   *stateStore
}

// Open creates a new Redis-backed storage instance.
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:       client,
		routineStore: &routineStore{client: client},
		limitStore:   &limitStore{client: client},
		usageStore:   &usageStore{client: client},
		stateStore:   &stateStore{client: client},
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Routines returns the RoutineStore implementation.
func (s *Store) Routines() storage.RoutineStore {
	return s.routineStore
}

// Limits returns the LimitStore implementation.
func (s *Store) Limits() storage.LimitStore {
	return s.limitStore
}

// Usage returns the UsageStore implementation.
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

// State returns the StateStore implementation.
func (s *Store) State() storage.StateStore {
	return s.stateStore
}
