package main

import (
	"testing"
	"time"

	"github.com/leightonpayne/colab-phage-assembly/internal/config"
)

func TestApplyOverridesFlagsWin(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		RunsDir:         "/from/file",
		RawPollInterval: "1s",
	}
	applyOverrides(cfg, rootOptions{
		runsDir:      "/from/flag",
		pollInterval: 500 * time.Millisecond,
		serviceCmd:   []string{"python3", "svc.py"},
		paramsPath:   "params.json",
	})

	if cfg.RunsDirectory() != "/from/flag" {
		t.Fatalf("runs dir not overridden: %q", cfg.RunsDirectory())
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Fatalf("poll interval not overridden: %v", cfg.PollInterval())
	}
	if len(cfg.Service.Command) != 2 || cfg.Service.Command[0] != "python3" {
		t.Fatalf("service command not overridden: %v", cfg.Service.Command)
	}
	if cfg.ParamsFile != "params.json" {
		t.Fatalf("params file not overridden: %q", cfg.ParamsFile)
	}
}

func TestApplyOverridesKeepsConfigWhenUnset(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		RunsDir:         "/from/file",
		RawPollInterval: "1s",
		ParamsFile:      "file-params.json",
	}
	applyOverrides(cfg, rootOptions{})

	if cfg.RunsDirectory() != "/from/file" {
		t.Fatalf("runs dir clobbered: %q", cfg.RunsDirectory())
	}
	if cfg.PollInterval() != time.Second {
		t.Fatalf("poll interval clobbered: %v", cfg.PollInterval())
	}
	if cfg.ParamsFile != "file-params.json" {
		t.Fatalf("params file clobbered: %q", cfg.ParamsFile)
	}
}

func TestRootCmdFlags(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	for _, name := range []string{"config", "params", "runs-dir", "poll-interval", "service-cmd", "log-file"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag %q", name)
		}
	}

	found := false
	for _, sub := range cmd.Commands() {
		if sub.Name() == "version" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing version subcommand")
	}
}
