package cli

import (
	"fmt"
	"os"

	"github.com/LoveLedger/LoveLedger/internal/config"
	"github.com/LoveLedger/LoveLedger/internal/store"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "LoveLedger %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, roster and invitation counts",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(out, "💞 LoveLedger Status")
	fmt.Fprintf(out, "Version:  %s\n", version)

	if path, err := config.ConfigPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Config:   %s (%s)\n", ok("✓ Found"), path)
		} else {
			fmt.Fprintf(out, "Config:   %s (defaults; %s)\n", warn("✗ Not found"), path)
		}
	}

	a, err := openApp(cmd)
	if err != nil {
		fmt.Fprintf(out, "Store:    %s\n", bad("✗ "+err.Error()))
		return err
	}
	defer a.Close(cmd.Context())

	fmt.Fprintf(out, "Database: %s\n", a.cfg.Paths.Database)
	fmt.Fprintf(out, "Roster:   %s (%d agents)\n", a.roster.Path(), len(a.roster.All()))
	fmt.Fprintf(out, "Dialogue: %s\n", a.cfg.Dialogue.Generator)
	if a.cfg.Dialogue.Generator == "provider" {
		if a.cfg.Providers.OpenAI.APIKey != "" {
			fmt.Fprintf(out, "API Key:  %s\n", ok("✓ Found"))
		} else {
			fmt.Fprintf(out, "API Key:  %s\n", bad("✗ Not found"))
		}
	}
	fmt.Fprintf(out, "Kafka:    %s\n", onOff(a.cfg.Notify.Kafka.Enabled))
	fmt.Fprintf(out, "Slack:    %s\n", onOff(a.cfg.Notify.Slack.Enabled))

	stats, err := a.engine.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Invitations:")
	for _, st := range []store.Status{store.StatusPending, store.StatusAccepted, store.StatusCompleted, store.StatusDeclined, store.StatusExpired} {
		fmt.Fprintf(out, "  %-10s %d\n", st, stats.Invitations[st])
	}
	for _, run := range stats.Sweeps {
		last := "never"
		if run.LastRunAt != nil {
			last = run.LastRunAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "Sweep %s: %s at %s (%d runs) %s\n", run.JobName, run.LastStatus, last, run.RunCount, run.LastSummary)
	}
	return nil
}

func onOff(v bool) string {
	if v {
		return ok("enabled")
	}
	return "disabled"
}
