package cmd

import (
	"context"

	"VelRegistry/internal/storage"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionsCmd)
}

var versionsCmd = &cobra.Command{
	Use:   "versions <name>",
	Short: "List committed versions of an object, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

func runVersions(cmd *cobra.Command, args []string) error {
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

	versions, err := reg.ListVersions(ctx, args[0])
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		cmd.Printf("No versions of %s\n", args[0])
		return nil
	}
	for _, v := range versions {
		cmd.Println(v)
	}
	return nil
}
