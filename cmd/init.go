package cmd

import (
	"fmt"
	"os"

	"VelRegistry/internal/config"

	"github.com/spf13/cobra"
)

var (
	initMode      string
	initRoot      string
	initEndpoint  string
	initRegion    string
	initBucket    string
	initPrefix    string
	initAccessKey string
	initSecretKey string
	initForce     bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initMode, "mode", config.ModeLocal, "Backend mode: local or s3")
	initCmd.Flags().StringVar(&initRoot, "root", "/var/lib/velregistry", "Registry root directory (local mode)")
	initCmd.Flags().StringVar(&initEndpoint, "endpoint", "", "S3 endpoint URL (s3 mode)")
	initCmd.Flags().StringVar(&initRegion, "region", "us-east-1", "S3 region (s3 mode)")
	initCmd.Flags().StringVar(&initBucket, "bucket", "", "S3 bucket (s3 mode)")
	initCmd.Flags().StringVar(&initPrefix, "prefix", "", "Key prefix inside the bucket (s3 mode)")
	initCmd.Flags().StringVar(&initAccessKey, "access-key", "", "S3 access key (s3 mode)")
	initCmd.Flags().StringVar(&initSecretKey, "secret-key", "", "S3 secret key (s3 mode)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.ResolveConfigPath()
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}

	cfg := &config.Config{Mode: initMode}
	switch initMode {
	case config.ModeLocal:
		cfg.Local = &config.LocalConfig{Root: initRoot}
	case config.ModeS3:
		cfg.S3 = &config.S3Config{
			Endpoint:  initEndpoint,
			Region:    initRegion,
			AccessKey: initAccessKey,
			SecretKey: initSecretKey,
			Bucket:    initBucket,
			Prefix:    config.NormalizePrefix(initPrefix),
		}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Write(cfg, path); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", path)
	return nil
}
