package cmd

import (
	"context"
	"fmt"
	"time"

	"VelRegistry/internal/config"
	"VelRegistry/internal/storage/s3store"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the janitor: reclaim storage from expired commit plans",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Mode != config.ModeS3 {
		return fmt.Errorf("sweep only applies to s3 mode (local writes are lock-serialized)")
	}

	client, err := buildS3Client(ctx, cfg)
	if err != nil {
		return err
	}
	planTTL := time.Duration(0)
	if cfg.Janitor != nil {
		planTTL = time.Duration(cfg.Janitor.PlanTTLMinutes) * time.Minute
	}
	store, err := s3store.New(s3store.Options{
		Store:       client,
		PlanTTL:     planTTL,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return err
	}

	result, err := store.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	cmd.Printf("Plans scanned: %d, expired: %d\n", result.Scanned, result.Expired)
	cmd.Printf("Folders deleted: %d, plans deleted: %d\n", result.FoldersDeleted, result.PlansDeleted)
	for _, e := range result.Errors {
		cmd.PrintErrln("Warning:", e)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("sweep finished with %d errors", len(result.Errors))
	}
	return nil
}
