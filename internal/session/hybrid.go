package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// HybridStore combines Redis (hot session hashes) and Badger (durable mirror)
type HybridStore struct {
	rdb *redis.Client
	db  *badger.DB
	ttl time.Duration
}

// NewHybridStore initializes databases.
// Pass badgerPath="" to run in "Redis-Only" mode (for CLI tools).
// A zero ttl keeps sessions until they are deleted.
func NewHybridStore(redisAddr string, badgerPath string, ttl time.Duration) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *badger.DB
	var err error

	if badgerPath != "" {
		opts := badger.DefaultOptions(badgerPath)
		opts.Logger = nil // Silence default logger
		db, err = badger.Open(opts)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
	}

	return &HybridStore{rdb: rdb, db: db, ttl: ttl}, nil
}

// Close cleans up connections
func (s *HybridStore) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func hashKey(sid string) string {
	return fmt.Sprintf("session:%s", sid)
}

func diskKey(sid, key string) []byte {
	return []byte(fmt.Sprintf("session:%s:%s", sid, key))
}

// Get reads from Redis first and falls back to Badger, copying a disk hit
// back into Redis. A hit extends the session TTL in both tiers, the same way
// Manager slides the cookie on every response.
func (s *HybridStore) Get(ctx context.Context, sid, key string) ([]byte, error) {
	val, err := s.rdb.HGet(ctx, hashKey(sid), key).Bytes()
	if err == nil {
		if err := s.touch(ctx, sid, key, val); err != nil {
			return nil, err
		}
		return val, nil
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	if s.db == nil {
		return nil, ErrNotFound
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diskKey(sid, key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}

	if err := s.writeHot(ctx, sid, key, val); err != nil {
		return nil, err
	}
	if err := s.writeDisk(sid, key, val); err != nil {
		return nil, err
	}
	return val, nil
}

func (s *HybridStore) touch(ctx context.Context, sid, key string, value []byte) error {
	if s.ttl <= 0 {
		return nil
	}
	if err := s.rdb.Expire(ctx, hashKey(sid), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	// Badger has no TTL update; rewriting the entry resets it.
	return s.writeDisk(sid, key, value)
}

// Set writes the value to Redis and, when configured, to Badger.
func (s *HybridStore) Set(ctx context.Context, sid, key string, value []byte) error {
	if err := s.writeHot(ctx, sid, key, value); err != nil {
		return err
	}
	return s.writeDisk(sid, key, value)
}

func (s *HybridStore) writeDisk(sid, key string, value []byte) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(diskKey(sid, key), value)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

func (s *HybridStore) writeHot(ctx context.Context, sid, key string, value []byte) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, hashKey(sid), key, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, hashKey(sid), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete removes key from both tiers. Missing keys are ignored.
func (s *HybridStore) Delete(ctx context.Context, sid, key string) error {
	if err := s.rdb.HDel(ctx, hashKey(sid), key).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}

	if s.db == nil {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(diskKey(sid, key))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Compact runs Badger value log GC until a pass rewrites nothing.
func (s *HybridStore) Compact() error {
	if s.db == nil {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(0.7)
		if err == nil {
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		return fmt.Errorf("badger value log gc: %w", err)
	}
}
