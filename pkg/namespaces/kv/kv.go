// Package kv exposes a BadgerDB key-value store as the "kv" namespace.
//
// Vars (args are JSON arrays):
//
//	kv/get    ["key"]          -> stored JSON value
//	kv/put    ["key", value]   -> true
//	kv/delete ["key"]          -> true if the key existed
//	kv/keys   [] | ["prefix"]  -> sorted list of keys
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/pkg/metrics"
	"github.com/marmos91/podsock/pkg/pod"
	"github.com/marmos91/podsock/pkg/registry"
)

// Namespace is the namespace the vars are registered under.
const Namespace = "kv"

// keyPrefix isolates pod keys from anything else sharing the database.
const keyPrefix = "kv:"

// ErrNotFound is returned by kv/get for a missing key.
var ErrNotFound = errors.New("key not found")

type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Path is the database directory. Required unless InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps everything in RAM; nothing survives a restart.
	InMemory bool `mapstructure:"in_memory"`
}

// Store is a badger-backed key-value store.
type Store struct {
	db      *badger.DB
	metrics metrics.StoreMetrics
}

// Open opens (or creates) the database. storeMetrics may be nil.
func Open(cfg Config, storeMetrics metrics.StoreMetrics) (*Store, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path != "":
		opts = badger.DefaultOptions(cfg.Path)
	default:
		return nil, errors.New("kv: path is required unless in_memory is set")
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %q: %w", cfg.Path, err)
	}

	if storeMetrics == nil {
		storeMetrics = metrics.NewNoopStoreMetrics()
	}

	logger.Info("kv namespace opened: path=%q in_memory=%v", cfg.Path, cfg.InMemory)
	return &Store{db: db, metrics: storeMetrics}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Register adds the kv vars to b.
func (s *Store) Register(b *registry.Builder) error {
	return b.RegisterNamespace(Namespace, map[string]registry.Handler{
		"get":    registry.HandlerFunc(s.handleGet),
		"put":    registry.JSONFunc(s.handlePut),
		"delete": registry.JSONFunc(s.handleDelete),
		"keys":   registry.JSONFunc(s.handleKeys),
	})
}

// Get returns the raw JSON stored under key.
func (s *Store) Get(ctx context.Context, key string) (value []byte, err error) {
	defer s.record("get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBytes("get", int64(len(value)))
	return value, nil
}

// Put stores a JSON value under key.
func (s *Store) Put(ctx context.Context, key string, value json.RawMessage) (err error) {
	defer s.record("put", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), value)
	})
	if err == nil {
		s.metrics.RecordBytes("put", int64(len(value)))
	}
	return err
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (existed bool, err error) {
	defer s.record("delete", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		k := []byte(keyPrefix + key)
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(k)
	})
	return existed, err
}

// Keys lists keys starting with prefix, in byte order.
func (s *Store) Keys(ctx context.Context, prefix string) (keys []string, err error) {
	defer s.record("keys", time.Now(), &err)

	keys = []string{}
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix + prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if len(keys)%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	return keys, err
}

func (s *Store) record(op string, start time.Time, err *error) {
	s.metrics.RecordOperation(op, time.Since(start), *err)
}

// handleGet writes the stored JSON straight into the response value so it is
// not encoded twice.
func (s *Store) handleGet(ctx context.Context, req *pod.Request) (pod.Response, error) {
	args, err := registry.DecodeArgs(req)
	if err != nil {
		return nil, err
	}
	strs, err := registry.StringArgs(args, 1)
	if err != nil {
		return nil, err
	}

	value, err := s.Get(ctx, strs[0])
	if err != nil {
		return nil, err
	}
	return pod.NewInvokeResponse(req.GetID(), value), nil
}

func (s *Store) handlePut(ctx context.Context, args []json.RawMessage) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expected 2 args, got %d", len(args))
	}
	keys, err := registry.StringArgs(args[:1], 1)
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, keys[0], args[1]); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Store) handleDelete(ctx context.Context, args []json.RawMessage) (any, error) {
	strs, err := registry.StringArgs(args, 1)
	if err != nil {
		return nil, err
	}
	return s.Delete(ctx, strs[0])
}

func (s *Store) handleKeys(ctx context.Context, args []json.RawMessage) (any, error) {
	prefix := ""
	if len(args) > 0 {
		strs, err := registry.StringArgs(args, 1)
		if err != nil {
			return nil, err
		}
		prefix = strs[0]
	}
	return s.Keys(ctx, prefix)
}
