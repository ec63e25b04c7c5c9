package cmd

import (
	"context"
	"fmt"
	"strings"

	"VelRegistry/internal/storage"

	"github.com/spf13/cobra"
)

var (
	pushOverwrite bool
	pushClass     string
	pushMeta      []string
)

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().BoolVar(&pushOverwrite, "overwrite", false, "Replace an existing version instead of skipping")
	pushCmd.Flags().StringVar(&pushClass, "class", "files", "Class recorded in object metadata")
	pushCmd.Flags().StringArrayVar(&pushMeta, "meta", nil, "User metadata as key=value (repeatable)")
}

var pushCmd = &cobra.Command{
	Use:   "push <name@version> <path>",
	Short: "Push a file or directory as one object version",
	Args:  cobra.ExactArgs(2),
	RunE:  runPush,
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name, version, err := splitCoordinate(args[0])
	if err != nil {
		return err
	}
	if version == "" || version == storage.LatestAlias {
		return fmt.Errorf("push requires an explicit version, got %q", args[0])
	}

	meta, err := parseMetaFlags(pushMeta)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		return err
	}

	policy := storage.PolicySkip
	if pushOverwrite {
		policy = storage.PolicyOverwrite
	}
	results, err := backend.Push(ctx, []storage.PushRequest{{
		Name:       name,
		Version:    version,
		SourcePath: args[1],
		Class:      pushClass,
		Metadata:   meta,
	}}, storage.PushOptions{OnConflict: policy, Concurrency: cfg.Concurrency})
	if err != nil {
		return err
	}
	res, _ := results.Get(storage.ObjectRef{Name: name, Version: version})
	switch res.Status {
	case storage.StatusSuccess:
		cmd.Printf("Pushed %s@%s\n", name, version)
	case storage.StatusOverwritten:
		cmd.Printf("Overwrote %s@%s\n", name, version)
	case storage.StatusSkipped:
		return fmt.Errorf("%s@%s already exists (use --overwrite to replace)", name, version)
	default:
		return fmt.Errorf("push %s@%s failed: %s", name, version, res.Err)
	}
	return nil
}

func splitCoordinate(arg string) (name, version string, err error) {
	if i := strings.LastIndex(arg, "@"); i >= 0 {
		name, version = arg[:i], arg[i+1:]
	} else {
		name = arg
	}
	if err := storage.ValidateName(name); err != nil {
		return "", "", err
	}
	return name, version, nil
}

func parseMetaFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta entry %q (want key=value)", p)
		}
		meta[k] = v
	}
	return meta, nil
}
