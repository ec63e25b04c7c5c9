package cmd

import (
	"context"
	"fmt"

	"VelRegistry/internal/storage"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pullCmd)
}

var pullCmd = &cobra.Command{
	Use:   "pull <name[@version]> <dest-dir>",
	Short: "Pull an object version into a local directory",
	Long:  "Pull the files of one object version into dest-dir. Without a version, the latest committed version is pulled.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, version, err := splitCoordinate(args[0])
	if err != nil {
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

	if version == "" || version == storage.LatestAlias {
		version, err = reg.LatestVersion(ctx, name)
		if err != nil {
			return err
		}
	}

	results, err := reg.Backend().Pull(ctx, []storage.PullRequest{{
		Name:     name,
		Version:  version,
		DestPath: args[1],
	}}, storage.PullOptions{Concurrency: cfg.Concurrency})
	if err != nil {
		return err
	}
	res, _ := results.Get(storage.ObjectRef{Name: name, Version: version})
	if res.Failed() {
		return fmt.Errorf("pull %s@%s failed: %s", name, version, res.Err)
	}
	cmd.Printf("Pulled %s@%s into %s\n", name, version, args[1])
	return nil
}

func warnf(cmd *cobra.Command) func(format string, args ...any) {
	return func(format string, args ...any) {
		cmd.PrintErrf("Warning: "+format+"\n", args...)
	}
}
