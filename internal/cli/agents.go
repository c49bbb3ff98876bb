package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents available for dates",
	RunE:  runAgents,
}

var agentsExclude string
var agentsJSON bool

func init() {
	agentsCmd.Flags().StringVar(&agentsExclude, "exclude", "", "Wallet to leave out (usually your own)")
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "Output machine-readable JSON")
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	agents, err := a.engine.GetAvailableAgents(cmd.Context(), agentsExclude)
	if err != nil {
		return err
	}
	if agentsJSON {
		return printJSON(cmd.OutOrStdout(), agents)
	}
	if len(agents) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No agents available.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WALLET\tNAME\tPERSONALITY\tAUTO")
	for _, ag := range agents {
		auto := "-"
		if ag.AutoChat {
			auto = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ag.Wallet, ag.Name, ag.Personality, auto)
	}
	return w.Flush()
}
