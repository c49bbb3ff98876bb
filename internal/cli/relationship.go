package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var relationshipCmd = &cobra.Command{
	Use:   "relationship <wallet> [other-wallet]",
	Short: "Show the relationship of a pair, or every relationship of a wallet",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRelationship,
}

var relationshipLimit int

func init() {
	relationshipCmd.Flags().IntVar(&relationshipLimit, "limit", 20, "Maximum relationships when listing")
	rootCmd.AddCommand(relationshipCmd)
}

func runRelationship(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())
	out := cmd.OutOrStdout()

	if len(args) == 2 {
		rel, err := a.engine.RelationshipOf(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s <-> %s\n", rel.WalletA, rel.WalletB)
		fmt.Fprintf(out, "  Dates:    %d\n", rel.CompletedDates)
		fmt.Fprintf(out, "  Affinity: %.2f\n", rel.Affinity)
		if rel.LastDateAt != nil {
			fmt.Fprintf(out, "  Last:     %s\n", rel.LastDateAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	}

	rels, err := a.engine.RelationshipsOf(cmd.Context(), args[0], relationshipLimit)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Fprintln(out, "No relationships yet.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WALLET A\tWALLET B\tDATES\tAFFINITY")
	for _, r := range rels {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", r.WalletA, r.WalletB, r.CompletedDates, r.Affinity)
	}
	return w.Flush()
}
