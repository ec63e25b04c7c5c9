package cmd

import (
	"context"

	"VelRegistry/internal/storage"

	"github.com/spf13/cobra"
)

var pruneKeep int

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 5, "Number of newest versions to keep")
}

var pruneCmd = &cobra.Command{
	Use:   "prune <name>",
	Short: "Delete all but the newest N versions of an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if err := storage.ValidateName(args[0]); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := buildRegistry(ctx, cfg, warnf(cmd))
	if err != nil {
		return err
	}

	deleted, err := reg.Prune(ctx, args[0], pruneKeep)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		cmd.Printf("Nothing to prune for %s (keep=%d)\n", args[0], pruneKeep)
		return nil
	}
	for _, v := range deleted {
		cmd.Printf("Deleted %s@%s\n", args[0], v)
	}
	return nil
}
