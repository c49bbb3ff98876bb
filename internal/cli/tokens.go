package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/LoveLedger/LoveLedger/internal/ledger"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <wallet>",
	Short: "Show LOVE, PMON and CHARM balances of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

var historyCmd = &cobra.Command{
	Use:   "history <wallet>",
	Short: "Show ledger entries of a wallet, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var awardCmd = &cobra.Command{
	Use:   "award <wallet> <currency> <amount>",
	Short: "Credit tokens to a wallet outside of any date",
	Args:  cobra.ExactArgs(3),
	RunE:  runAward,
}

var spendCmd = &cobra.Command{
	Use:   "spend <wallet> <currency> <amount>",
	Short: "Debit tokens from a wallet",
	Args:  cobra.ExactArgs(3),
	RunE:  runSpend,
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard [currency]",
	Short: "Rank wallets by balance",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLeaderboard,
}

var (
	balanceJSON   bool
	historyLimit  int
	historyOffset int
	awardReason   string
	spendReason   string
	boardLimit    int
)

func init() {
	balanceCmd.Flags().BoolVar(&balanceJSON, "json", false, "Output machine-readable JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Entries to skip")
	awardCmd.Flags().StringVar(&awardReason, "reason", string(ledger.ReasonAdminAward), "Reason recorded on the entry")
	spendCmd.Flags().StringVar(&spendReason, "reason", string(ledger.ReasonSpend), "Reason recorded on the entry")
	leaderboardCmd.Flags().IntVar(&boardLimit, "limit", 10, "Number of wallets")
	rootCmd.AddCommand(balanceCmd, historyCmd, awardCmd, spendCmd, leaderboardCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	balances, err := a.engine.Balances(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if balanceJSON {
		out := make(map[string]string, len(balances))
		for _, c := range ledger.Currencies() {
			out[string(c)] = balances[c].String()
		}
		return printJSON(cmd.OutOrStdout(), out)
	}
	for _, c := range ledger.Currencies() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", strings.ToUpper(string(c)), balances[c])
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	entries, err := a.engine.History(cmd.Context(), args[0], historyLimit, historyOffset)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No ledger entries.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tCURRENCY\tDELTA\tREASON\tINVITATION")
	for _, e := range entries {
		inv := "-"
		if e.InvitationID > 0 {
			inv = fmt.Sprintf("#%d", e.InvitationID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Currency, e.Delta, e.Reason, inv)
	}
	return w.Flush()
}

func parseTokens(currency, amount string) (ledger.Currency, ledger.Amount, error) {
	c, err := ledger.ParseCurrency(currency)
	if err != nil {
		return "", 0, err
	}
	amt, err := ledger.ParseAmount(amount)
	if err != nil {
		return "", 0, err
	}
	return c, amt, nil
}

func runAward(cmd *cobra.Command, args []string) error {
	c, amt, err := parseTokens(args[1], args[2])
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	entry, err := a.engine.AwardTokens(cmd.Context(), args[0], c, amt, ledger.Reason(strings.TrimSpace(awardReason)))
	if err != nil {
		return err
	}
	bal, err := a.engine.BalanceOf(cmd.Context(), entry.Wallet, c)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Awarded %s %s to %s (balance %s)\n", entry.Delta, strings.ToUpper(string(c)), entry.Wallet, bal)
	return nil
}

func runSpend(cmd *cobra.Command, args []string) error {
	c, amt, err := parseTokens(args[1], args[2])
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	entry, err := a.engine.Spend(cmd.Context(), args[0], c, amt, ledger.Reason(strings.TrimSpace(spendReason)))
	if err != nil {
		return err
	}
	bal, err := a.engine.BalanceOf(cmd.Context(), entry.Wallet, c)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Spent %s %s from %s (balance %s)\n", -entry.Delta, strings.ToUpper(string(c)), entry.Wallet, bal)
	return nil
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	c := ledger.Pmon
	if len(args) == 1 {
		parsed, err := ledger.ParseCurrency(args[0])
		if err != nil {
			return err
		}
		c = parsed
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	board, err := a.engine.Leaderboard(cmd.Context(), c, boardLimit)
	if err != nil {
		return err
	}
	if len(board) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s balances yet.\n", strings.ToUpper(string(c)))
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "#\tWALLET\t%s\n", strings.ToUpper(string(c)))
	for i, b := range board {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, b.Wallet, b.Amount)
	}
	return w.Flush()
}
