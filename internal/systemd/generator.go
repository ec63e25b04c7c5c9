// Package systemd generates the service and timer units that run the
// janitor sweep out of band. Scheduling policy lives in systemd; this
// package only renders unit text.
package systemd

import (
	"fmt"
	"strings"
)

const (
	DefaultUnitDir    = "/etc/systemd/system"
	DefaultBinary     = "/usr/bin/velregistry"
	DefaultConfigPath = "/etc/velregistry/config.yaml"

	ServiceName = "velregistry-sweep.service"
	TimerName   = "velregistry-sweep.timer"

	DefaultIntervalMinutes = 60
)

type GeneratorOptions struct {
	Binary          string
	ConfigPath      string
	UnitDir         string
	IntervalMinutes int
	JitterMinutes   int
	Hardening       bool
}

type GeneratedUnits struct {
	Service string
	Timer   string
}

func Generate(opts GeneratorOptions) (*GeneratedUnits, error) {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = DefaultConfigPath
	}
	if opts.IntervalMinutes == 0 {
		opts.IntervalMinutes = DefaultIntervalMinutes
	}
	if opts.IntervalMinutes < 1 {
		return nil, fmt.Errorf("sweep interval must be at least 1 minute, got %d", opts.IntervalMinutes)
	}

	execStart := fmt.Sprintf("%s sweep", opts.Binary)
	service := buildService(execStart, opts.ConfigPath, opts.Hardening)
	timer := buildTimer(opts.IntervalMinutes, opts.JitterMinutes)

	return &GeneratedUnits{Service: service, Timer: timer}, nil
}

func buildService(execStart, configPath string, hardening bool) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	b.WriteString("Description=VelRegistry janitor sweep\n")
	b.WriteString("After=network-online.target\n")
	b.WriteString("Wants=network-online.target\n\n")

	b.WriteString("[Service]\n")
	b.WriteString("Type=oneshot\n")
	b.WriteString(fmt.Sprintf("ExecStart=%s\n", execStart))
	b.WriteString("Environment=VELREGISTRY_CONFIG=" + configPath + "\n")

	if hardening {
		b.WriteString("ProtectSystem=full\n")
		b.WriteString("ProtectHome=read-only\n")
		b.WriteString("PrivateTmp=yes\n")
		b.WriteString("NoNewPrivileges=yes\n")
		b.WriteString("ProtectKernelTunables=yes\n")
		b.WriteString("ProtectKernelModules=yes\n")
		b.WriteString("ProtectControlGroups=yes\n")
		b.WriteString("RestrictRealtime=yes\n")
		b.WriteString("RestrictSUIDSGID=yes\n")
		b.WriteString("LockPersonality=yes\n")
		b.WriteString("PrivateMounts=yes\n")
		b.WriteString("ProtectClock=yes\n")
		b.WriteString("ProtectHostname=yes\n")
		b.WriteString("ProtectKernelLogs=yes\n")
		b.WriteString("ProtectProc=invisible\n")
		b.WriteString("ProcSubset=pid\n")
		b.WriteString("RestrictNamespaces=yes\n")
		b.WriteString("RestrictAddressFamilies=AF_UNIX AF_INET AF_INET6\n")
	}

	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")

	return b.String()
}

func buildTimer(intervalMinutes, jitterMinutes int) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	b.WriteString("Description=VelRegistry janitor sweep timer\n")
	b.WriteString("Requires=" + ServiceName + "\n\n")

	b.WriteString("[Timer]\n")
	b.WriteString("OnBootSec=5min\n")
	b.WriteString(fmt.Sprintf("OnUnitActiveSec=%dmin\n", intervalMinutes))
	jitterSec := jitterMinutes * 60
	if jitterSec > 0 {
		b.WriteString(fmt.Sprintf("RandomizedDelaySec=%d\n", jitterSec))
	}
	b.WriteString("Persistent=yes\n\n")

	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=timers.target\n")

	return b.String()
}
