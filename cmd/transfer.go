package cmd

import (
	"context"
	"fmt"

	"VelRegistry/internal/registry"
	"VelRegistry/internal/storage"

	"github.com/spf13/cobra"
)

var (
	transferDestConfig  string
	transferNewName     string
	transferNewVersion  string
	transferAllVersions bool
)

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().StringVar(&transferDestConfig, "dest-config", "", "Config file of the destination registry (required)")
	transferCmd.Flags().StringVar(&transferNewName, "rename", "", "Name at the destination")
	transferCmd.Flags().StringVar(&transferNewVersion, "reversion", "", "Version at the destination (single-version only)")
	transferCmd.Flags().BoolVar(&transferAllVersions, "all-versions", false, "Copy every committed version")
	_ = transferCmd.MarkFlagRequired("dest-config")
}

var transferCmd = &cobra.Command{
	Use:   "transfer <name[@version]>",
	Short: "Copy an object into another registry",
	Long:  "Copy object bytes and metadata into the registry described by --dest-config. The copy is rejected when the destination coordinate already exists.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransfer,
}

func runTransfer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, version, err := splitCoordinate(args[0])
	if err != nil {
		return err
	}
	if transferAllVersions && version != "" && version != storage.LatestAlias {
		return fmt.Errorf("--all-versions cannot be combined with an explicit version")
	}

	srcCfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := buildRegistry(ctx, srcCfg, warnf(cmd))
	if err != nil {
		return err
	}

	dstCfg, err := configFromFile(transferDestConfig)
	if err != nil {
		return err
	}
	dst, err := buildRegistry(ctx, dstCfg, warnf(cmd))
	if err != nil {
		return err
	}

	err = registry.Transfer(ctx, src, dst, name, version, registry.TransferOptions{
		NewName:     transferNewName,
		NewVersion:  transferNewVersion,
		AllVersions: transferAllVersions,
	})
	if err != nil {
		return err
	}
	cmd.Printf("Transferred %s\n", args[0])
	return nil
}
