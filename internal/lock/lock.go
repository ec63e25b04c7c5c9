package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Mode int

const (
	Exclusive Mode = iota
	Shared
)

const (
	DefaultTTL     = 60 * time.Second
	DefaultTimeout = 10 * time.Second
	DefaultRetry   = 100 * time.Millisecond
)

// Lease is the durable record of one lock holder.
type Lease struct {
	Key       string    `json:"key"`
	OwnerID   string    `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (l Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

func (l Lease) Marshal() ([]byte, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal lease: %w", err)
	}
	return data, nil
}

func UnmarshalLease(data []byte) (Lease, error) {
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return Lease{}, fmt.Errorf("unmarshal lease: %w", err)
	}
	return l, nil
}

// TimeoutError reports that the bounded wait for a lock was exhausted.
type TimeoutError struct {
	Key  string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock %q: acquisition timed out after %s", e.Key, e.Wait)
}

type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

type Options struct {
	TTL     time.Duration
	Timeout time.Duration
	Retry   time.Duration
	Mode    Mode
}

func (o *Options) fill() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retry <= 0 {
		o.Retry = DefaultRetry
	}
}

// WithLock runs fn while holding the lock, releasing it on every exit path.
func WithLock(ctx context.Context, l Locker, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		// Release even when ctx is already cancelled.
		_ = l.Release(context.Background())
	}()
	return fn(ctx)
}

// waitLoop drives bounded-wait acquisition: try returns true when the lock
// was taken, false to back off and retry until the deadline.
func waitLoop(ctx context.Context, key string, opts Options, try func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(opts.Timeout)
	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Key: key, Wait: opts.Timeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Retry):
		}
	}
}
