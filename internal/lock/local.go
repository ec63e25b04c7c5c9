package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultLockDir = "/var/run/velregistry"

// LocalLocker implements a lease lock over a directory: one file per holder,
// created with O_EXCL. Expired leases are reaped by the next acquirer.
type LocalLocker struct {
	dir     string
	key     string
	ownerID string
	opts    Options

	mu   sync.Mutex
	held bool
	path string
}

type LocalOptions struct {
	Dir  string
	Key  string
	Options
}

func NewLocal(opts LocalOptions) (*LocalLocker, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultLockDir
	}
	if opts.Key == "" {
		return nil, fmt.Errorf("local lock: key is required")
	}
	if strings.ContainsAny(opts.Key, "/\\") {
		return nil, fmt.Errorf("local lock: invalid key %q", opts.Key)
	}
	opts.Options.fill()
	return &LocalLocker{
		dir:     filepath.Join(dir, opts.Key),
		key:     opts.Key,
		ownerID: uuid.NewString(),
		opts:    opts.Options,
	}, nil
}

func (l *LocalLocker) OwnerID() string {
	return l.ownerID
}

func (l *LocalLocker) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("lock %q already held by this locker", l.key)
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	if err := waitLoop(ctx, l.key, l.opts, l.tryAcquire); err != nil {
		return err
	}
	l.held = true
	return nil
}

func (l *LocalLocker) tryAcquire(ctx context.Context) (bool, error) {
	blocked, err := l.blockedByLive()
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
	path := filepath.Join(l.dir, l.entryName())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create lease file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, fmt.Errorf("write lease file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("close lease file: %w", err)
	}

	// An exclusive holder must be alone: another writer may have slipped in
	// between the check and the create, so verify and back off on conflict.
	if l.opts.Mode == Exclusive {
		others, err := l.liveEntries(path)
		if err != nil {
			_ = os.Remove(path)
			return false, err
		}
		if len(others) > 0 {
			_ = os.Remove(path)
			return false, nil
		}
	}
	l.path = path
	return true, nil
}

func (l *LocalLocker) entryName() string {
	prefix := "excl"
	if l.opts.Mode == Shared {
		prefix = "shared"
	}
	return prefix + "-" + l.ownerID + ".lock"
}

// blockedByLive reports whether a live lease prevents acquisition: any lease
// blocks an exclusive acquirer, only exclusive leases block a shared one.
func (l *LocalLocker) blockedByLive() (bool, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read lock dir: %w", err)
	}
	now := time.Now()
	for _, e := range entries {
		path := filepath.Join(l.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		lease, err := UnmarshalLease(data)
		if err != nil || lease.Expired(now) {
			_ = os.Remove(path)
			continue
		}
		if l.opts.Mode == Exclusive || strings.HasPrefix(e.Name(), "excl-") {
			return true, nil
		}
	}
	return false, nil
}

// liveEntries returns the live lease paths other than own.
func (l *LocalLocker) liveEntries(own string) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read lock dir: %w", err)
	}
	now := time.Now()
	var live []string
	for _, e := range entries {
		path := filepath.Join(l.dir, e.Name())
		if path == own {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		lease, err := UnmarshalLease(data)
		if err != nil || lease.Expired(now) {
			continue
		}
		live = append(live, path)
	}
	return live, nil
}

func (l *LocalLocker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("release lock %q: %w", l.key, err)
		}
		l.path = ""
	}
	l.held = false
	return nil
}
