package cmd

import (
	"context"
	"fmt"
	"time"

	"VelRegistry/internal/config"
	"VelRegistry/internal/lock"
	"VelRegistry/internal/registry"
	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"
	"VelRegistry/internal/storage/localstore"
	"VelRegistry/internal/storage/s3store"

	"github.com/spf13/viper"
)

func loadConfig() (*config.Config, error) {
	v, err := config.Load(false)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromFile(path string) (*config.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := config.Unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func lockOptions(cfg *config.Config) lock.Options {
	var opts lock.Options
	if cfg.Lock != nil {
		opts.TTL = time.Duration(cfg.Lock.TTLSeconds) * time.Second
		opts.Timeout = time.Duration(cfg.Lock.TimeoutSeconds) * time.Second
	}
	return opts
}

func buildBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Mode {
	case config.ModeLocal:
		return localstore.New(localstore.Options{
			Root: cfg.Local.Root,
			Lock: lockOptions(cfg),
		})
	case config.ModeS3:
		client, err := buildS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		planTTL := time.Duration(0)
		if cfg.Janitor != nil {
			planTTL = time.Duration(cfg.Janitor.PlanTTLMinutes) * time.Minute
		}
		return s3store.New(s3store.Options{
			Store:       client,
			PlanTTL:     planTTL,
			Concurrency: cfg.Concurrency,
		})
	default:
		return nil, config.ErrInvalidMode
	}
}

func buildS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	return s3.New(ctx, s3.Options{
		Endpoint:           cfg.S3.Endpoint,
		Region:             cfg.S3.Region,
		AccessKey:          cfg.S3.AccessKey,
		SecretKey:          cfg.S3.SecretKey,
		Bucket:             cfg.S3.Bucket,
		Prefix:             config.NormalizePrefix(cfg.S3.Prefix),
		InsecureSkipVerify: cfg.S3.TLS != nil && cfg.S3.TLS.InsecureSkipVerify,
	})
}

// buildRegistry wires the front-end: the local path serializes writes with
// the lease lock, the S3 path relies on conditional writes alone unless
// lock.serialize_writes opts into bucket-object leases.
func buildRegistry(ctx context.Context, cfg *config.Config, logf func(format string, args ...any)) (*registry.Registry, error) {
	opts := registry.Options{Logf: logf}
	lopts := lockOptions(cfg)

	switch cfg.Mode {
	case config.ModeLocal:
		backend, err := localstore.New(localstore.Options{
			Root: cfg.Local.Root,
			Lock: lopts,
		})
		if err != nil {
			return nil, err
		}
		opts.Backend = backend
		lockDir := lock.DefaultLockDir
		if cfg.Local.LockDir != "" {
			lockDir = cfg.Local.LockDir
		}
		opts.NewLocker = func(key string) (lock.Locker, error) {
			return lock.NewLocal(lock.LocalOptions{Dir: lockDir, Key: key, Options: lopts})
		}
	case config.ModeS3:
		client, err := buildS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		planTTL := time.Duration(0)
		if cfg.Janitor != nil {
			planTTL = time.Duration(cfg.Janitor.PlanTTLMinutes) * time.Minute
		}
		backend, err := s3store.New(s3store.Options{
			Store:       client,
			PlanTTL:     planTTL,
			Concurrency: cfg.Concurrency,
		})
		if err != nil {
			return nil, err
		}
		opts.Backend = backend
		if cfg.Lock != nil && cfg.Lock.SerializeWrites {
			opts.NewLocker = func(key string) (lock.Locker, error) {
				return lock.NewS3(lock.S3Options{Client: client, Key: key, Options: lopts})
			}
		}
	default:
		return nil, config.ErrInvalidMode
	}
	return registry.New(opts)
}
