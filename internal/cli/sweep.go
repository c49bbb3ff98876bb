package cli

import (
	"errors"
	"fmt"

	"github.com/LoveLedger/LoveLedger/internal/scheduler"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one matchmaking, resolution and expiry sweep now",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	report, err := a.newScheduler().Sweep(cmd.Context())
	if errors.Is(err, scheduler.ErrSweepInProgress) {
		fmt.Fprintln(cmd.OutOrStdout(), "Another sweep is running; nothing to do.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sweep: %s\n", report.Summary())
	if len(report.Created) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "New invitations: %v\n", report.Created)
	}
	return err
}
