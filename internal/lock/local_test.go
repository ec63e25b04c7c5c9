package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLocker(t *testing.T, dir string, opts Options) *LocalLocker {
	t.Helper()
	l, err := NewLocal(LocalOptions{Dir: dir, Key: "obj", Options: opts})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestLocalLocker_AcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l := newTestLocker(t, dir, Options{})
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Released lock can be taken again.
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	_ = l.Release(ctx)
}

func TestLocalLocker_TimeoutWithinBound(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	holder := newTestLocker(t, dir, Options{})
	if err := holder.Acquire(ctx); err != nil {
		t.Fatalf("holder Acquire: %v", err)
	}
	defer holder.Release(ctx)

	waiter := newTestLocker(t, dir, Options{Timeout: time.Second, Retry: 50 * time.Millisecond})
	start := time.Now()
	err := waiter.Acquire(ctx)
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Acquire err = %v, want TimeoutError", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Acquire took %s, want about 1s", elapsed)
	}
}

func TestLocalLocker_ExpiredLeaseReaped(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	holder := newTestLocker(t, dir, Options{TTL: 10 * time.Millisecond})
	if err := holder.Acquire(ctx); err != nil {
		t.Fatalf("holder Acquire: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	waiter := newTestLocker(t, dir, Options{Timeout: time.Second})
	if err := waiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire over expired lease: %v", err)
	}
	_ = waiter.Release(ctx)
}

func TestLocalLocker_SharedAllowsSharers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := newTestLocker(t, dir, Options{Mode: Shared})
	b := newTestLocker(t, dir, Options{Mode: Shared})
	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("a.Acquire: %v", err)
	}
	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("b.Acquire: %v", err)
	}

	excl := newTestLocker(t, dir, Options{Timeout: 200 * time.Millisecond, Retry: 20 * time.Millisecond})
	var timeoutErr *TimeoutError
	if err := excl.Acquire(ctx); !errors.As(err, &timeoutErr) {
		t.Fatalf("exclusive Acquire over shared = %v, want TimeoutError", err)
	}

	_ = a.Release(ctx)
	_ = b.Release(ctx)
	if err := excl.Acquire(ctx); err != nil {
		t.Fatalf("exclusive Acquire after release: %v", err)
	}
	_ = excl.Release(ctx)
}

func TestLocalLocker_SharedBlockedByExclusive(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	excl := newTestLocker(t, dir, Options{})
	if err := excl.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer excl.Release(ctx)

	shared := newTestLocker(t, dir, Options{Mode: Shared, Timeout: 200 * time.Millisecond, Retry: 20 * time.Millisecond})
	var timeoutErr *TimeoutError
	if err := shared.Acquire(ctx); !errors.As(err, &timeoutErr) {
		t.Fatalf("shared Acquire over exclusive = %v, want TimeoutError", err)
	}
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l := newTestLocker(t, dir, Options{})
	wantErr := errors.New("boom")
	err := WithLock(ctx, l, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithLock err = %v, want %v", err, wantErr)
	}

	// The lock must be free again.
	other := newTestLocker(t, dir, Options{Timeout: 500 * time.Millisecond})
	if err := other.Acquire(ctx); err != nil {
		t.Fatalf("Acquire after WithLock error: %v", err)
	}
	_ = other.Release(ctx)
}

func TestRelease_Idempotent(t *testing.T) {
	dir := t.TempDir()
	l := newTestLocker(t, dir, Options{})
	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("Release without Acquire: %v", err)
	}
}
