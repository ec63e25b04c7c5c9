package config

import "github.com/spf13/viper"

const (
	ModeLocal = "local"
	ModeS3    = "s3"
)

type Config struct {
	Mode        string         `mapstructure:"mode" yaml:"mode"`
	S3          *S3Config      `mapstructure:"s3" yaml:"s3,omitempty"`
	Local       *LocalConfig   `mapstructure:"local" yaml:"local,omitempty"`
	Lock        *LockConfig    `mapstructure:"lock" yaml:"lock,omitempty"`
	Janitor     *JanitorConfig `mapstructure:"janitor" yaml:"janitor,omitempty"`
	Concurrency int            `mapstructure:"concurrency" yaml:"concurrency,omitempty"`
}

type S3Config struct {
	Endpoint  string     `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string     `mapstructure:"region" yaml:"region"`
	AccessKey string     `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string     `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string     `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string     `mapstructure:"prefix" yaml:"prefix,omitempty"`
	TLS       *TLSConfig `mapstructure:"tls" yaml:"tls,omitempty"`
}

type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty"`
	CAFile             string `mapstructure:"ca_file" yaml:"ca_file,omitempty"`
}

type LocalConfig struct {
	Root    string `mapstructure:"root" yaml:"root"`
	LockDir string `mapstructure:"lock_dir" yaml:"lock_dir,omitempty"`
}

type LockConfig struct {
	TTLSeconds     int `mapstructure:"ttl_seconds" yaml:"ttl_seconds,omitempty"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty"`

	// SerializeWrites forces lease-lock serialization of registry saves in
	// s3 mode. The MVCC path does not need it; it exists for buckets
	// without conditional-write support. Local mode always serializes.
	SerializeWrites bool `mapstructure:"serialize_writes" yaml:"serialize_writes,omitempty"`
}

type JanitorConfig struct {
	PlanTTLMinutes int `mapstructure:"plan_ttl_minutes" yaml:"plan_ttl_minutes,omitempty"`
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
