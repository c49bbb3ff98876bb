package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/invitation"
	"github.com/LoveLedger/LoveLedger/internal/ledger"
	"github.com/LoveLedger/LoveLedger/internal/store"
	"github.com/spf13/cobra"
)

var inviteCmd = &cobra.Command{
	Use:   "invite <inviter-wallet> <invitee-wallet>",
	Short: "Open a date invitation",
	Args:  cobra.ExactArgs(2),
	RunE:  runInvite,
}

var respondCmd = &cobra.Command{
	Use:   "respond <invitation-id> <responder-wallet>",
	Short: "Accept or decline a pending invitation",
	Args:  cobra.ExactArgs(2),
	RunE:  runRespond,
}

var showCmd = &cobra.Command{
	Use:   "show <invitation-id>",
	Short: "Show an invitation with its conversation and rewards",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var completeCmd = &cobra.Command{
	Use:   "complete [invitation-id]",
	Short: "Resolve one accepted date, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runComplete,
}

var invitationsCmd = &cobra.Command{
	Use:   "invitations",
	Short: "List invitations",
	RunE:  runInvitations,
}

var (
	inviteDate    string
	inviteVenue   string
	inviteMessage string
	inviteStake   string

	respondAccept  bool
	respondDecline bool
	respondReply   string

	showJSON bool

	listStatus string
	listWallet string
	listLimit  int
	listOffset int
)

func init() {
	inviteCmd.Flags().StringVar(&inviteDate, "date", string(compat.Coffee), "Date type (coffee, casual, dinner, adventure)")
	inviteCmd.Flags().StringVar(&inviteVenue, "venue", string(compat.Cafe), "Venue (cafe, park, rooftop, beach, arcade, gallery)")
	inviteCmd.Flags().StringVar(&inviteMessage, "message", "", "Opening message")
	inviteCmd.Flags().StringVar(&inviteStake, "stake", "0", "LOVE tokens staked on the invitation")
	_ = inviteCmd.MarkFlagRequired("message")

	respondCmd.Flags().BoolVar(&respondAccept, "accept", false, "Accept the invitation")
	respondCmd.Flags().BoolVar(&respondDecline, "decline", false, "Decline the invitation")
	respondCmd.Flags().StringVar(&respondReply, "reply", "", "Optional reply message")
	respondCmd.MarkFlagsMutuallyExclusive("accept", "decline")
	respondCmd.MarkFlagsOneRequired("accept", "decline")

	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output machine-readable JSON")

	invitationsCmd.Flags().StringVar(&listStatus, "status", "", "Only this status")
	invitationsCmd.Flags().StringVar(&listWallet, "wallet", "", "Only invitations involving this wallet")
	invitationsCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum rows")
	invitationsCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")

	rootCmd.AddCommand(inviteCmd, respondCmd, showCmd, completeCmd, invitationsCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.CodeInvalidArgument, fmt.Sprintf("invalid invitation id %q", s))
	}
	return id, nil
}

func runInvite(cmd *cobra.Command, args []string) error {
	dt, err := compat.ParseDateType(inviteDate)
	if err != nil {
		return err
	}
	venue, err := compat.ParseVenue(inviteVenue)
	if err != nil {
		return err
	}
	stake, err := ledger.ParseAmount(inviteStake)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	inv, err := a.engine.CreateInvitation(cmd.Context(), invitation.CreateInput{
		Inviter:  args[0],
		Invitee:  args[1],
		DateType: dt,
		Venue:    venue,
		Message:  inviteMessage,
		Stake:    stake,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Invitation #%d %s: %s date at the %s\n", inv.ID, inv.Status, inv.DateType, inv.Venue)
	return nil
}

func runRespond(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	inv, err := a.engine.RespondToInvitation(cmd.Context(), id, args[1], respondAccept, respondReply)
	if err != nil {
		if inv != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Invitation #%d is already %s\n", inv.ID, inv.Status)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Invitation #%d %s\n", inv.ID, inv.Status)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	inv, err := a.engine.GetInvitation(cmd.Context(), id)
	if err != nil {
		return err
	}
	if showJSON {
		return printJSON(cmd.OutOrStdout(), inv)
	}
	printInvitation(cmd.OutOrStdout(), inv)
	return nil
}

func printInvitation(w io.Writer, inv *store.Invitation) {
	fmt.Fprintf(w, "Invitation #%d [%s]\n", inv.ID, inv.Status)
	fmt.Fprintf(w, "  From:    %s\n", inv.InviterWallet)
	fmt.Fprintf(w, "  To:      %s\n", inv.InviteeWallet)
	fmt.Fprintf(w, "  Date:    %s at the %s\n", inv.DateType, inv.Venue)
	fmt.Fprintf(w, "  Message: %s\n", inv.Message)
	if inv.Stake > 0 {
		fmt.Fprintf(w, "  Stake:   %s LOVE\n", inv.Stake)
	}
	if inv.Reply != "" {
		fmt.Fprintf(w, "  Reply:   %s\n", inv.Reply)
	}
	if len(inv.Conversation) > 0 {
		fmt.Fprintln(w, "  Conversation:")
		for _, t := range inv.Conversation {
			marker := ""
			if t.Fallback {
				marker = " (fallback)"
			}
			fmt.Fprintf(w, "    %s: %s%s\n", t.Speaker, t.Message, marker)
		}
	}
	if r := inv.Rewards; r != nil {
		fmt.Fprintf(w, "  Rating:  %.2f (compatibility %.2f)\n", r.AverageRating, r.Compatibility)
		fmt.Fprintf(w, "  Rewards: %.2f PMON, %.2f CHARM each\n", r.PmonAwarded, r.CharmAwarded)
	}
}

func runComplete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		inv, err := a.engine.CompleteInvitation(cmd.Context(), id)
		if err != nil {
			return err
		}
		printInvitation(out, inv)
		return nil
	}

	report, err := a.engine.CompleteAcceptedDates(cmd.Context())
	for _, inv := range report.Completed {
		fmt.Fprintf(out, "Completed #%d: rating %.2f\n", inv.ID, inv.Rewards.AverageRating)
	}
	fmt.Fprintf(out, "Completed %d, already resolved %d, failed %d\n", len(report.Completed), report.AlreadyResolved, report.Failed)
	return err
}

func runInvitations(cmd *cobra.Command, args []string) error {
	f := store.InvitationFilter{Wallet: listWallet, Limit: listLimit, Offset: listOffset}
	if listStatus != "" {
		st, err := store.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		f.Status = st
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	invs, err := a.engine.ListInvitations(cmd.Context(), f)
	if err != nil {
		return err
	}
	if len(invs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No invitations.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tFROM\tTO\tDATE\tVENUE")
	for _, inv := range invs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", inv.ID, inv.Status, inv.InviterWallet, inv.InviteeWallet, inv.DateType, inv.Venue)
	}
	return w.Flush()
}
