package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"VelRegistry/internal/config"
	"VelRegistry/internal/schedule"
	"VelRegistry/internal/systemd"

	"github.com/spf13/cobra"
)

var (
	systemdBinary    string
	systemdUnitDir   string
	systemdInterval  int
	systemdJitter    int
	systemdHardening bool
	systemdPrint     bool
)

func init() {
	rootCmd.AddCommand(installSystemdCmd)
	installSystemdCmd.Flags().StringVar(&systemdBinary, "binary", systemd.DefaultBinary, "Path to the velregistry binary")
	installSystemdCmd.Flags().StringVar(&systemdUnitDir, "unit-dir", systemd.DefaultUnitDir, "Directory to write unit files into")
	installSystemdCmd.Flags().IntVar(&systemdInterval, "interval", systemd.DefaultIntervalMinutes, "Sweep interval in minutes")
	installSystemdCmd.Flags().IntVar(&systemdJitter, "jitter", 0, "Randomized delay in minutes")
	installSystemdCmd.Flags().BoolVar(&systemdHardening, "hardening", false, "Include systemd hardening directives")
	installSystemdCmd.Flags().BoolVar(&systemdPrint, "print", false, "Print units to stdout instead of writing files")
}

var installSystemdCmd = &cobra.Command{
	Use:   "install-systemd",
	Short: "Install the janitor sweep service and timer units",
	RunE:  runInstallSystemd,
}

func runInstallSystemd(cmd *cobra.Command, args []string) error {
	units, err := systemd.Generate(systemd.GeneratorOptions{
		Binary:          systemdBinary,
		ConfigPath:      config.ResolveConfigPath(),
		UnitDir:         systemdUnitDir,
		IntervalMinutes: systemdInterval,
		JitterMinutes:   systemdJitter,
		Hardening:       systemdHardening,
	})
	if err != nil {
		return err
	}

	if systemdPrint {
		cmd.Printf("# %s\n%s\n", systemd.ServiceName, units.Service)
		cmd.Printf("# %s\n%s\n", systemd.TimerName, units.Timer)
		return nil
	}

	servicePath := filepath.Join(systemdUnitDir, systemd.ServiceName)
	timerPath := filepath.Join(systemdUnitDir, systemd.TimerName)
	if err := os.WriteFile(servicePath, []byte(units.Service), 0644); err != nil {
		return fmt.Errorf("write %s: %w", servicePath, err)
	}
	if err := os.WriteFile(timerPath, []byte(units.Timer), 0644); err != nil {
		return fmt.Errorf("write %s: %w", timerPath, err)
	}

	next, desc := schedule.NextSweep(systemdInterval, systemdJitter, time.Now())
	cmd.Printf("Wrote %s and %s\n", servicePath, timerPath)
	cmd.Printf("Sweep schedule: %s, first run by %s\n", desc, next.Format(time.RFC3339))
	cmd.Println("Enable with: systemctl daemon-reload && systemctl enable --now", systemd.TimerName)
	return nil
}
