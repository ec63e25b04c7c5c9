package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "velregistry",
	Short: "Versioned artifact registry over local or S3-compatible storage",
	Long:  "VelRegistry stores named, versioned artifacts in a local directory or an S3/MinIO bucket, with lock-free concurrent writers on the S3 path.",
}

func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
