package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_CreateGetExpire(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "v1", "c1", "k1", "m1", 200, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || rec.ExpiresAt.Before(now) {
		t.Fatalf("bad record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "v1", "c1", "k1", now)
	if err != nil || got.MessageID != "m1" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	// A different visitor or conversation does not see the record.
	if _, err := GetIdempotency(ctx, db, "v2", "c1", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-visitor get: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "v1", "c2", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-conversation get: %v", err)
	}
	// Empty conversation id short-circuits.
	if _, err := GetIdempotency(ctx, db, "v1", "", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty conversation get: %v", err)
	}

	// Expired records are invisible.
	if _, err := GetIdempotency(ctx, db, "v1", "c1", "k1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired get: %v", err)
	}
}

func TestIdempotency_DuplicateKey(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "v1", "c1", "k1", "m1", 200, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "v1", "c1", "k1", "m2", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key under another conversation is a distinct tuple.
	if _, err := CreateIdempotency(ctx, db, "v1", "c2", "k1", "m3", 200, time.Hour); err != nil {
		t.Fatalf("distinct tuple: %v", err)
	}
}
