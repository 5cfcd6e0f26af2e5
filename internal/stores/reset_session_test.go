package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newSession(token string) *ResetSession {
	return &ResetSession{
		Token:        token,
		AttemptID:    "a3c1f0de-8f36-4a71-9a0e-1c55d2f3b6aa",
		SubjectID:    "subject-1",
		ContactEmail: "pensioner@example.org",
		ContactPhone: "+15550100",
		CreatedAt:    baseTime,
		ExpiresAt:    baseTime.Add(30 * time.Minute),
	}
}

func storeBackends(t *testing.T) map[string]SessionStore {
	t.Helper()
	_, rdb := newTestRedis(t)
	return map[string]SessionStore{
		"memory": NewMemorySessionStore(),
		"redis":  NewRedisSessionStore(rdb, "test"),
	}
}

func TestResetSessionCodecRoundTrip(t *testing.T) {
	in := newSession("tok")
	in.Code = "482913"
	in.CodeVerified = true
	in.VerificationAttempts = 2

	data, err := encodeResetSession(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	out, err := decodeResetSession("tok", data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.ExpiresAt = out.ExpiresAt.UTC()

	if *out != *in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestResetSessionDecodeRejectsUnknownVersion(t *testing.T) {
	data, err := encodeResetSession(newSession("tok"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	data[0] = 9

	if _, err := decodeResetSession("tok", data); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := decodeResetSession("tok", data[:5]); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestSessionStoreSaveGetDelete(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := baseTime.Add(time.Minute)

			if err := store.Save(ctx, newSession("t1"), baseTime); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := store.Get(ctx, "t1", now)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.SubjectID != "subject-1" || got.Token != "t1" {
				t.Fatalf("unexpected session: %+v", got)
			}

			removed, err := store.Delete(ctx, "t1", now)
			if err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if removed.ContactEmail != "pensioner@example.org" {
				t.Fatalf("unexpected removed session: %+v", removed)
			}

			if _, err := store.Get(ctx, "t1", now); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
			}
			if _, err := store.Delete(ctx, "t1", now); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestSessionStoreExpiredIsAbsent(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, newSession("t1"), baseTime); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			later := baseTime.Add(31 * time.Minute)
			if _, err := store.Get(ctx, "t1", later); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("Get: expected ErrSessionNotFound, got %v", err)
			}

			_, err := store.Update(ctx, "t1", later, func(s *ResetSession) error {
				t.Fatal("update callback must not run for expired session")
				return nil
			})
			if !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("Update: expected ErrSessionNotFound, got %v", err)
			}
			if _, err := store.Delete(ctx, "t1", later); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("Delete: expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestSessionStoreUpdatePersistsAndPropagatesErrors(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := baseTime.Add(time.Minute)
			if err := store.Save(ctx, newSession("t1"), baseTime); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			updated, err := store.Update(ctx, "t1", now, func(s *ResetSession) error {
				s.Code = "123456"
				s.ExpiresAt = now.Add(10 * time.Minute)
				return nil
			})
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			if updated.Code != "123456" {
				t.Fatalf("expected code in returned session, got %q", updated.Code)
			}

			stop := errors.New("stop")
			_, err = store.Update(ctx, "t1", now, func(s *ResetSession) error {
				s.Code = "999999"
				return stop
			})
			if !errors.Is(err, stop) {
				t.Fatalf("expected callback error, got %v", err)
			}

			got, err := store.Get(ctx, "t1", now)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Code != "123456" {
				t.Fatalf("aborted update leaked: code=%q", got.Code)
			}
			if !got.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
				t.Fatalf("expiry not persisted: %v", got.ExpiresAt)
			}
		})
	}
}

func TestSessionStoreConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := baseTime.Add(time.Minute)
			if err := store.Save(ctx, newSession("t1"), baseTime); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			const workers = 3
			start := make(chan struct{})
			var wg sync.WaitGroup
			errs := make(chan error, workers)

			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := store.Update(ctx, "t1", now, func(s *ResetSession) error {
						s.VerificationAttempts++
						return nil
					})
					errs <- err
				}()
			}
			close(start)
			wg.Wait()
			close(errs)

			succeeded := 0
			for err := range errs {
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ErrStoreContention):
				default:
					t.Fatalf("unexpected update error: %v", err)
				}
			}

			got, err := store.Get(ctx, "t1", now)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if int(got.VerificationAttempts) != succeeded {
				t.Fatalf("lost update: attempts=%d successful updates=%d", got.VerificationAttempts, succeeded)
			}
		})
	}
}

func TestMemorySessionStoreSweepExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	short := newSession("short")
	short.ExpiresAt = baseTime.Add(5 * time.Minute)
	if err := store.Save(ctx, short, baseTime); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, newSession("long"), baseTime); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	removed, err := store.SweepExpired(ctx, baseTime.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 || store.Len() != 1 {
		t.Fatalf("expected 1 removed and 1 left, got removed=%d len=%d", removed, store.Len())
	}
}

func TestRedisSessionStoreKeysDoNotContainToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb, "rrs")

	if err := store.Save(context.Background(), newSession("plain-token"), baseTime); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	if keys[0] == "rrs:plain-token" {
		t.Fatal("token stored verbatim in key")
	}
	if ttl := mr.TTL(keys[0]); ttl != 30*time.Minute {
		t.Fatalf("expected ttl 30m, got %v", ttl)
	}
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisSessionStore(rdb, "rrs")
	mr.Close()

	err := store.Save(context.Background(), newSession("t1"), baseTime)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	_, err = store.Get(context.Background(), "t1", baseTime)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
