package authdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minus-twelve/authdb/storage"
	"github.com/minus-twelve/authdb/types"
)

// Store is a TokenStore of generic account records together with the
// backend CreateStore built for it.
type Store struct {
	*TokenStore[types.Account]
	closer io.Closer
	cancel context.CancelFunc
}

// Close stops background cleanup and releases the backend connection.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// CreateStore builds the backend named by cfg.StoreType. A zero Config
// connects to Redis on 127.0.0.1:6379.
func CreateStore(cfg types.Config, logger *slog.Logger, metrics *Metrics) (*Store, error) {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = discardLogger()
	}

	opts := []Option[types.Account]{
		WithLogger[types.Account](logger),
		WithMetrics[types.Account](metrics),
	}
	if cfg.AtomicSet != nil {
		opts = append(opts, WithAtomicSet[types.Account](*cfg.AtomicSet))
	}

	switch cfg.StoreType {
	case types.StoreRedis:
		backend := storage.NewRedisBackend(cfg.Redis)
		logger.Info("using redis backend", slog.String("host", cfg.Redis.Host), slog.Int("port", cfg.Redis.Port), slog.Int("db", cfg.Redis.DB))
		return &Store{TokenStore: New(backend, opts...), closer: backend}, nil
	case types.StoreMemory:
		backend := storage.NewMemoryBackend(nil)
		ctx, cancel := context.WithCancel(context.Background())
		go backend.PeriodicCleanup(ctx, cfg.Memory.CleanupInterval)
		logger.Info("using memory backend", slog.Duration("cleanup_interval", cfg.Memory.CleanupInterval))
		return &Store{TokenStore: New(backend, opts...), closer: backend, cancel: cancel}, nil
	default:
		return nil, fmt.Errorf("invalid store type %q", cfg.StoreType)
	}
}
