package cmd

import (
	"context"
	"sort"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List object names with their latest version",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := buildRegistry(ctx, cfg, warnf(cmd))
	if err != nil {
		return err
	}

	names, err := reg.ListNames(ctx)
	if err != nil {
		return err
	}
	sort.Strings(names)
	if len(names) == 0 {
		cmd.Println("No objects")
		return nil
	}
	for _, name := range names {
		latest, err := reg.LatestVersion(ctx, name)
		if err != nil {
			// Names with only in-flight temp versions have no maximum yet.
			cmd.Printf("%s\t(no committed version)\n", name)
			continue
		}
		cmd.Printf("%s\t%s\n", name, latest)
	}
	return nil
}
