package config

import (
	"errors"
	"fmt"
)

var ErrInvalidMode = errors.New("invalid mode: must be exactly 'local' or 's3'")

func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Mode {
	case ModeLocal:
		if cfg.Local == nil || cfg.Local.Root == "" {
			return fmt.Errorf("local mode requires local.root")
		}
	case ModeS3:
		if cfg.S3 == nil {
			return fmt.Errorf("s3 mode requires an s3 section")
		}
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("s3 mode requires s3.bucket")
		}
		if cfg.S3.Endpoint == "" {
			return fmt.Errorf("s3 mode requires s3.endpoint")
		}
	case "":
		return fmt.Errorf("%w (mode is required)", ErrInvalidMode)
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidMode, cfg.Mode)
	}
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", cfg.Concurrency)
	}
	if cfg.Lock != nil {
		if cfg.Lock.TTLSeconds < 0 || cfg.Lock.TimeoutSeconds < 0 {
			return fmt.Errorf("lock ttl and timeout must not be negative")
		}
	}
	if cfg.Janitor != nil && cfg.Janitor.PlanTTLMinutes < 0 {
		return fmt.Errorf("janitor plan ttl must not be negative")
	}
	return nil
}
