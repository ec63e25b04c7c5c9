package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rmAll bool

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVar(&rmAll, "all", false, "Delete every version of the object")
}

var rmCmd = &cobra.Command{
	Use:   "rm <name[@version]>",
	Short: "Delete an object version (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, version, err := splitCoordinate(args[0])
	if err != nil {
		return err
	}
	if rmAll && version != "" {
		return fmt.Errorf("--all cannot be combined with an explicit version")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := buildRegistry(ctx, cfg, warnf(cmd))
	if err != nil {
		return err
	}

	if rmAll {
		if err := reg.DeleteAll(ctx, name); err != nil {
			return err
		}
		cmd.Printf("Deleted all versions of %s\n", name)
		return nil
	}
	if err := reg.Delete(ctx, name, version); err != nil {
		return err
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}
