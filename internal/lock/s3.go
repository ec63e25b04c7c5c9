package lock

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"VelRegistry/internal/s3"

	"github.com/google/uuid"
)

// S3Locker implements the lease lock over bucket objects: one object per
// holder under locks/{key}/, written with a write-if-absent precondition.
// Plain pushes never need it; lock.serialize_writes opts the registry
// front-end into it for buckets without reliable conditional writes.
type S3Locker struct {
	client  *s3.Client
	key     string
	ownerID string
	opts    Options

	mu       sync.Mutex
	held     bool
	entryKey string
}

type S3Options struct {
	Client *s3.Client
	Key    string
	Options
}

func NewS3(opts S3Options) (*S3Locker, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("s3 lock: client is required")
	}
	if opts.Key == "" {
		return nil, fmt.Errorf("s3 lock: key is required")
	}
	if strings.ContainsAny(opts.Key, "/\\") {
		return nil, fmt.Errorf("s3 lock: invalid key %q", opts.Key)
	}
	opts.Options.fill()
	return &S3Locker{
		client:  opts.Client,
		key:     opts.Key,
		ownerID: uuid.NewString(),
		opts:    opts.Options,
	}, nil
}

func (l *S3Locker) OwnerID() string {
	return l.ownerID
}

func (l *S3Locker) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("lock %q already held by this locker", l.key)
	}
	if err := waitLoop(ctx, l.key, l.opts, l.tryAcquire); err != nil {
		return err
	}
	l.held = true
	return nil
}

func (l *S3Locker) tryAcquire(ctx context.Context) (bool, error) {
	blocked, err := l.blockedByLive(ctx, "")
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	lease := Lease{
		Key:       l.key,
		OwnerID:   l.ownerID,
		ExpiresAt: time.Now().Add(l.opts.TTL),
	}
	data, err := lease.Marshal()
	if err != nil {
		return false, err
	}
	entryKey := s3.LockKey(l.key, l.entryName())
	created, err := l.client.PutObjectIfAbsent(ctx, entryKey, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false, fmt.Errorf("write lease: %w", err)
	}
	if !created {
		return false, nil
	}

	// Same check-then-create race as the local flavor: an exclusive holder
	// re-lists and backs off when anyone else slipped in.
	if l.opts.Mode == Exclusive {
		blocked, err := l.blockedByLive(ctx, entryKey)
		if err != nil {
			_ = l.client.DeleteObject(ctx, entryKey)
			return false, err
		}
		if blocked {
			_ = l.client.DeleteObject(ctx, entryKey)
			return false, nil
		}
	}
	l.entryKey = entryKey
	return true, nil
}

func (l *S3Locker) entryName() string {
	prefix := "excl"
	if l.opts.Mode == Shared {
		prefix = "shared"
	}
	return prefix + "-" + l.ownerID + ".lock"
}

func (l *S3Locker) blockedByLive(ctx context.Context, ignoreKey string) (bool, error) {
	keys, err := l.client.ListObjects(ctx, s3.LockPrefix(l.key), 0)
	if err != nil {
		return false, fmt.Errorf("list leases: %w", err)
	}
	now := time.Now()
	for _, key := range keys {
		if key == ignoreKey {
			continue
		}
		data, err := l.client.GetObjectBytes(ctx, key)
		if err != nil {
			continue
		}
		lease, err := UnmarshalLease(data)
		if err != nil || lease.Expired(now) {
			_ = l.client.DeleteObject(ctx, key)
			continue
		}
		if l.opts.Mode == Exclusive || strings.HasPrefix(path.Base(key), "excl-") {
			return true, nil
		}
	}
	return false, nil
}

func (l *S3Locker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	if l.entryKey != "" {
		if err := l.client.DeleteObject(ctx, l.entryKey); err != nil {
			return fmt.Errorf("release lock %q: %w", l.key, err)
		}
		l.entryKey = ""
	}
	l.held = false
	return nil
}
