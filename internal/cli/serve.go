package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event dispatcher and the auto-date scheduler",
	RunE:  runServe,
}

var serveNoScheduler bool

var serveSignalNotify = signal.Notify
var serveSignalStop = signal.Stop

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Dispatch events only; do not run sweeps")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	// Close after the dispatcher stops so buffered events are still delivered.
	defer a.Close(context.Background())

	printHeader(cmd.OutOrStdout(), "💞 LoveLedger Serve")
	fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\nRoster:   %s\n", a.cfg.Paths.Database, a.roster.Path())

	sigChan := make(chan os.Signal, 1)
	serveSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer serveSignalStop(sigChan)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.events.Dispatch(gctx)
	})
	if a.cfg.Scheduler.Enabled && !serveNoScheduler {
		sched := a.newScheduler()
		g.Go(func() error {
			return sched.Run(gctx)
		})
	} else {
		slog.Info("Scheduler disabled")
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					a.reloadRoster()
					continue
				}
				slog.Info("Shutting down", "signal", sig.String())
				cancel()
				return nil
			}
		}
	})

	slog.Info("LoveLedger serving", "version", version, "tick", a.cfg.Scheduler.TickInterval)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("LoveLedger stopped")
	return nil
}

// reloadRoster re-reads the roster file and drops cached lookups. A roster
// that fails to parse leaves the previous one in place.
func (a *app) reloadRoster() {
	if err := a.roster.Reload(); err != nil {
		slog.Warn("Roster reload failed", "path", a.roster.Path(), "error", err)
		return
	}
	a.registry.Purge()
	slog.Info("Roster reloaded", "path", a.roster.Path(), "agents", len(a.roster.All()))
}
