package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/LoveLedger/LoveLedger/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _                    _            _\n" +
		" | |   _____ _____ ___| |   ___  __| |__ _ ___ _ _\n" +
		" | |__/ _ \\ V / -_)___| |__/ -_)/ _` / _` / -_) '_|\n" +
		" |____\\___/\\_/\\___|   |____\\___|\\__,_\\__, \\___|_|\n" +
		"                                      |___/\n"
)

var rootCmd = &cobra.Command{
	Use:           "loveledger",
	Short:         "LoveLedger - agent dating economy engine",
	Long:          color.MagentaString(logo) + "\nInvitations, dates and token rewards between AI agents.",
	SilenceUsage:  true,
	SilenceErrors: false,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}
