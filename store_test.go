package authdb_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/minus-twelve/authdb"
	"github.com/minus-twelve/authdb/storage"
	"github.com/minus-twelve/authdb/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*authdb.TokenStore[types.Account], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return authdb.New[types.Account](storage.NewRedisBackendFromClient(client)), mr
}

// failingBackend wraps a MemoryBackend and fails selected commands.
type failingBackend struct {
	*storage.MemoryBackend
	getErr, setErr, expireErr, deleteErr error
}

func (b *failingBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if b.getErr != nil {
		return "", false, b.getErr
	}
	return b.MemoryBackend.Get(ctx, key)
}

func (b *failingBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if b.setErr != nil {
		return b.setErr
	}
	return b.MemoryBackend.Set(ctx, key, value, ttl)
}

func (b *failingBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if b.expireErr != nil {
		return b.expireErr
	}
	return b.MemoryBackend.Expire(ctx, key, ttl)
}

func (b *failingBackend) Delete(ctx context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.MemoryBackend.Delete(ctx, key)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	account := types.Account{
		"id":    "u-42",
		"name":  "Ada",
		"admin": true,
		"age":   float64(36),
		"roles": []any{"reader", "writer"},
		"profile": map[string]any{
			"locale": "en",
			"tags":   []any{},
		},
	}

	require.NoError(t, s.AddAccount(ctx, "tok-roundtrip", account))
	got, err := s.GetAccount(ctx, "tok-roundtrip")

	require.NoError(t, err)
	assert.Equal(t, account, got)
}

type profile struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Scopes []string `json:"scopes"`
}

func TestRoundTripStruct(t *testing.T) {
	ctx := context.Background()
	s := authdb.New[profile](storage.NewMemoryBackend(nil))

	p := profile{ID: "u-1", Email: "ada@example.com", Scopes: []string{"read"}}
	require.NoError(t, s.AddAccount(ctx, "tok", p))

	got, err := s.GetAccount(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestAddSetsFixedTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))

	assert.Equal(t, 365*24*time.Hour, mr.TTL("tok"))
	assert.Equal(t, 31_536_000*time.Second, authdb.TTL)
}

func TestExpiration(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))

	mr.FastForward(authdb.TTL - time.Second)
	_, err := s.GetAccount(ctx, "tok")
	require.NoError(t, err)

	mr.FastForward(time.Second)
	_, err = s.GetAccount(ctx, "tok")
	assert.ErrorIs(t, err, authdb.ErrNotFound)
}

func TestGetDoesNotRefreshDeadline(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))
	mr.FastForward(24 * time.Hour)
	_, err := s.GetAccount(ctx, "tok")
	require.NoError(t, err)

	assert.Equal(t, authdb.TTL-24*time.Hour, mr.TTL("tok"))
}

func TestAddResetsDeadline(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))
	mr.FastForward(100 * 24 * time.Hour)
	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))

	assert.Equal(t, authdb.TTL, mr.TTL("tok"))
}

func TestNotFoundIsNotBackendError(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.GetAccount(ctx, "never-added")
	require.Error(t, err)
	assert.ErrorIs(t, err, authdb.ErrNotFound)
	assert.NotErrorIs(t, err, authdb.ErrBackend)
	assert.True(t, authdb.IsNotFound(err))
	assert.Equal(t, "authdb get: account not found", err.Error())

	mr.Close()
	_, err = s.GetAccount(ctx, "never-added")
	require.Error(t, err)
	assert.ErrorIs(t, err, authdb.ErrBackend)
	assert.NotErrorIs(t, err, authdb.ErrNotFound)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestOverwrite(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "first"}))
	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "second"}))

	got, err := s.GetAccount(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, types.Account{"id": "second"}, got)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	assert.NoError(t, s.RemoveAccount(ctx, "missing"))

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))
	require.NoError(t, s.RemoveAccount(ctx, "tok"))

	_, err := s.GetAccount(ctx, "tok")
	assert.ErrorIs(t, err, authdb.ErrNotFound)
}

func TestRemoveBackendError(t *testing.T) {
	cause := errors.New("connection reset")
	s := authdb.New[types.Account](&failingBackend{MemoryBackend: storage.NewMemoryBackend(nil), deleteErr: cause})

	err := s.RemoveAccount(context.Background(), "tok")
	assert.ErrorIs(t, err, authdb.ErrBackend)
	assert.ErrorIs(t, err, cause)
}

func TestCorruptPayload(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, mr.Set("tok", "{not json"))

	got, err := s.GetAccount(ctx, "tok")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, authdb.ErrCorruptData)
	assert.NotErrorIs(t, err, authdb.ErrNotFound)
	assert.Equal(t, authdb.KindCorruptData, authdb.KindOf(err))
}

func TestAddBackendError(t *testing.T) {
	cause := errors.New("broken pipe")
	s := authdb.New[types.Account](&failingBackend{MemoryBackend: storage.NewMemoryBackend(nil), setErr: cause})

	err := s.AddAccount(context.Background(), "tok", types.Account{"id": "1"})
	assert.ErrorIs(t, err, authdb.ErrBackend)
	assert.ErrorIs(t, err, cause)
}

func TestAddEncodeError(t *testing.T) {
	s := authdb.New[types.Account](storage.NewMemoryBackend(nil))

	err := s.AddAccount(context.Background(), "tok", types.Account{"ch": make(chan int)})
	assert.ErrorIs(t, err, authdb.ErrEncode)
}

func TestTwoStepAddExpireFailureIsNotReported(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryBackend(nil)
	b := &failingBackend{MemoryBackend: mem, expireErr: errors.New("timeout")}
	s := authdb.New[types.Account](b, authdb.WithAtomicSet[types.Account](false))

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))

	remaining, err := s.Expiry(ctx, "tok")
	require.NoError(t, err)
	assert.Less(t, remaining, time.Duration(0))
}

func TestTwoStepAddSetsDeadline(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := authdb.New[types.Account](storage.NewRedisBackendFromClient(client), authdb.WithAtomicSet[types.Account](false))

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))
	assert.Equal(t, authdb.TTL, mr.TTL("tok"))
}

func TestTTLSeconds(t *testing.T) {
	seconds, expires := authdb.TTLSeconds(-1)
	assert.Equal(t, int64(-1), seconds)
	assert.False(t, expires)

	seconds, expires = authdb.TTLSeconds(90 * time.Second)
	assert.Equal(t, int64(90), seconds)
	assert.True(t, expires)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.Expiry(ctx, "tok")
	assert.ErrorIs(t, err, authdb.ErrNotFound)

	require.NoError(t, s.AddAccount(ctx, "tok", types.Account{"id": "1"}))
	mr.FastForward(time.Hour)

	remaining, err := s.Expiry(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, authdb.TTL-time.Hour, remaining)
}

func TestConcurrentDisjointTokens(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("tok-%d", i)
			account := types.Account{"n": float64(i)}

			if err := s.AddAccount(ctx, token, account); err != nil {
				errs <- err
				return
			}
			got, err := s.GetAccount(ctx, token)
			if err != nil {
				errs <- err
				return
			}
			if got["n"] != float64(i) {
				errs <- fmt.Errorf("token %s: got %v", token, got["n"])
				return
			}
			if i%2 == 0 {
				if err := s.RemoveAccount(ctx, token); err != nil {
					errs <- err
					return
				}
				if _, err := s.GetAccount(ctx, token); !authdb.IsNotFound(err) {
					errs <- fmt.Errorf("token %s: expected not found, got %v", token, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
