// Package authdb stores account records under caller-supplied session
// tokens in Redis. Entries expire 365 days after they were last written.
package authdb

import (
	"context"
	"log/slog"
	"time"
)

// TTL is how long an account stays retrievable after the last AddAccount.
const TTL = 365 * 24 * time.Hour

// Backend is the key-value contract the store needs. storage.RedisBackend
// and storage.MemoryBackend implement it.
type Backend interface {
	// Get returns found=false with a nil error when key is absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set overwrites key. A positive ttl also sets the deadline in the same command.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL reports a negative duration for keys without a deadline.
	TTL(ctx context.Context, key string) (remaining time.Duration, found bool, err error)
	// Delete must succeed for keys that do not exist.
	Delete(ctx context.Context, key string) error
}

// TokenStore maps tokens to account records. It holds no state besides
// the backend handle and is safe for concurrent use.
type TokenStore[A any] struct {
	backend   Backend
	codec     Codec[A]
	logger    *slog.Logger
	metrics   *Metrics
	atomicSet bool
}

type Option[A any] func(*TokenStore[A])

func WithCodec[A any](codec Codec[A]) Option[A] {
	return func(s *TokenStore[A]) {
		s.codec = codec
	}
}

func WithLogger[A any](logger *slog.Logger) Option[A] {
	return func(s *TokenStore[A]) {
		s.logger = logger
	}
}

func WithMetrics[A any](metrics *Metrics) Option[A] {
	return func(s *TokenStore[A]) {
		s.metrics = metrics
	}
}

// WithAtomicSet selects how AddAccount writes. true (the default) sends
// one SET with expiry. false sends SET then EXPIRE; if the EXPIRE fails the
// entry is left without a deadline and the failure is only logged.
func WithAtomicSet[A any](atomic bool) Option[A] {
	return func(s *TokenStore[A]) {
		s.atomicSet = atomic
	}
}

// New wraps an existing backend. The caller owns the backend's lifecycle.
func New[A any](backend Backend, opts ...Option[A]) *TokenStore[A] {
	s := &TokenStore[A]{
		backend:   backend,
		codec:     JSONCodec[A]{},
		logger:    discardLogger(),
		atomicSet: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenStore[A]) Backend() Backend {
	return s.backend
}

// GetAccount returns the account stored under token. It fails with
// ErrNotFound when there is no live entry, ErrBackend when the backend
// fails and ErrCorruptData when the stored value does not decode.
// Reading does not extend the deadline.
func (s *TokenStore[A]) GetAccount(ctx context.Context, token string) (account A, err error) {
	defer s.observe("get", time.Now(), &err)

	data, found, err := s.backend.Get(ctx, token)
	if err != nil {
		s.logger.ErrorContext(ctx, "account lookup failed", tokenAttr(token), slog.Any("error", err))
		return account, newError("get", KindBackend, err)
	}
	if !found {
		return account, newError("get", KindNotFound, nil)
	}

	account, err = s.codec.Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "stored account does not decode", tokenAttr(token), slog.Any("error", err))
		var zero A
		return zero, newError("get", KindCorruptData, err)
	}
	return account, nil
}

// AddAccount stores account under token, replacing any previous value,
// and sets the deadline to TTL from now.
func (s *TokenStore[A]) AddAccount(ctx context.Context, token string, account A) (err error) {
	defer s.observe("add", time.Now(), &err)

	data, err := s.codec.Encode(account)
	if err != nil {
		return newError("add", KindEncode, err)
	}

	if s.atomicSet {
		if err := s.backend.Set(ctx, token, data, TTL); err != nil {
			s.logger.ErrorContext(ctx, "account write failed", tokenAttr(token), slog.Any("error", err))
			return newError("add", KindBackend, err)
		}
		s.logger.DebugContext(ctx, "account stored", tokenAttr(token))
		return nil
	}

	if err := s.backend.Set(ctx, token, data, 0); err != nil {
		s.logger.ErrorContext(ctx, "account write failed", tokenAttr(token), slog.Any("error", err))
		return newError("add", KindBackend, err)
	}
	if err := s.backend.Expire(ctx, token, TTL); err != nil {
		s.logger.WarnContext(ctx, "account stored without expiry", tokenAttr(token), slog.Any("error", err))
	}
	s.logger.DebugContext(ctx, "account stored", tokenAttr(token))
	return nil
}

// RemoveAccount deletes the entry for token. Removing an unknown token
// succeeds.
func (s *TokenStore[A]) RemoveAccount(ctx context.Context, token string) (err error) {
	defer s.observe("remove", time.Now(), &err)

	if err := s.backend.Delete(ctx, token); err != nil {
		s.logger.ErrorContext(ctx, "account removal failed", tokenAttr(token), slog.Any("error", err))
		return newError("remove", KindBackend, err)
	}
	s.logger.DebugContext(ctx, "account removed", tokenAttr(token))
	return nil
}

// Expiry returns how long the entry for token remains retrievable.
// A negative duration means the entry has no deadline.
func (s *TokenStore[A]) Expiry(ctx context.Context, token string) (remaining time.Duration, err error) {
	defer s.observe("ttl", time.Now(), &err)

	remaining, found, err := s.backend.TTL(ctx, token)
	if err != nil {
		return 0, newError("ttl", KindBackend, err)
	}
	if !found {
		return 0, newError("ttl", KindNotFound, nil)
	}
	return remaining, nil
}

// TTLSeconds converts an Expiry result to whole seconds. Entries without a
// deadline report -1 and expires=false.
func TTLSeconds(remaining time.Duration) (seconds int64, expires bool) {
	if remaining < 0 {
		return -1, false
	}
	return int64(remaining.Seconds()), true
}

func (s *TokenStore[A]) observe(op string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.observe(op, time.Since(start), *err)
}
