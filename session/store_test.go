package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "as"), mr
}

func testSession(id string, now time.Time) *Session {
	return &Session{
		SessionID: id,
		AccountID: "acct-1",
		IPHash:    [32]byte{7},
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(time.Hour).UnixMilli(),
	}
}

func TestEncodeDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(testSession("sid-1", time.Now()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes to be rejected")
	}
	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Fatal("expected truncated record to be rejected")
	}
}

func TestSaveGetDelete(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	now := time.Now()

	sess := testSession("sid-1", now)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "sid-1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccountID != "acct-1" || got.IPHash != sess.IPHash || got.ExpiresAt != sess.ExpiresAt {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := store.Delete(ctx, "acct-1", "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "acct-1", "sid-1"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1", now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	ids, err := store.ActiveSessionIDs(ctx, "acct-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

func TestGetRejectsSessionPastExpiry(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.Save(ctx, testSession("sid-1", now), 2*time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1", now.Add(time.Hour)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be rejected, got %v", err)
	}
	if _, err := store.Get(ctx, "sid-1", now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be pruned, got %v", err)
	}
}

func TestDeleteAllForAccount(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"sid-1", "sid-2", "sid-3"} {
		if err := store.Save(ctx, testSession(id, now), time.Hour); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	other := testSession("sid-other", now)
	other.AccountID = "acct-2"
	if err := store.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("save other: %v", err)
	}

	n, err := store.DeleteAllForAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 sessions removed, got %d", n)
	}
	if _, err := store.Get(ctx, "sid-2", now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked session, got %v", err)
	}
	if _, err := store.Get(ctx, "sid-other", now); err != nil {
		t.Fatalf("other account session should survive: %v", err)
	}

	n, err = store.DeleteAllForAccount(ctx, "acct-1")
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent revoke, got n=%d err=%v", n, err)
	}
}

func TestStoreReportsUnavailableRedis(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	mr.Close()

	err := store.Save(context.Background(), testSession("sid-1", time.Now()), time.Hour)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
