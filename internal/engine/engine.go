// Package engine is the entry point callers use: it composes the invitation
// lifecycle, the reward model, dialogue generation and the ledger, and
// publishes an event after every committed change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/bus"
	"github.com/LoveLedger/LoveLedger/internal/dialogue"
	"github.com/LoveLedger/LoveLedger/internal/invitation"
	"github.com/LoveLedger/LoveLedger/internal/ledger"
	"github.com/LoveLedger/LoveLedger/internal/registry"
	"github.com/LoveLedger/LoveLedger/internal/reward"
	"github.com/LoveLedger/LoveLedger/internal/store"
	"github.com/LoveLedger/LoveLedger/internal/wallet"
)

// Options wires an Engine. Store and Registry are required.
type Options struct {
	Store      *store.Store
	Registry   registry.Registry
	Ledger     *ledger.Ledger         // defaults to a ledger over Store
	Rewards    *reward.Calculator     // defaults to a time-seeded calculator
	Dialogue   *dialogue.Orchestrator // defaults to the fixture generator
	Events     bus.Publisher          // defaults to bus.Discard
	Invitation invitation.Config
	// ResolveBatch bounds how many accepted invitations one resolution pass takes.
	ResolveBatch int
	Clock        func() time.Time
}

// Engine implements the exposed operations.
type Engine struct {
	store    *store.Store
	ledger   *ledger.Ledger
	registry registry.Registry
	machine  *invitation.Machine
	rewards  *reward.Calculator
	dialogue *dialogue.Orchestrator
	events   bus.Publisher
	batch    int
	now      func() time.Time
}

// New builds an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Registry == nil {
		return nil, fmt.Errorf("engine: store and registry are required")
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(opts.Store.DB())
	}
	if opts.Rewards == nil {
		opts.Rewards = reward.NewSeeded(reward.DefaultConfig(), time.Now().UnixNano())
	}
	if opts.Dialogue == nil {
		opts.Dialogue = dialogue.NewOrchestrator(dialogue.FixtureGenerator{}, dialogue.DefaultConfig())
	}
	if opts.Events == nil {
		opts.Events = bus.Discard{}
	}
	if opts.ResolveBatch <= 0 {
		opts.ResolveBatch = 100
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:    opts.Store,
		ledger:   opts.Ledger,
		registry: opts.Registry,
		machine:  invitation.New(opts.Store, opts.Ledger, opts.Registry, opts.Invitation, invitation.WithClock(opts.Clock)),
		rewards:  opts.Rewards,
		dialogue: opts.Dialogue,
		events:   opts.Events,
		batch:    opts.ResolveBatch,
		now:      opts.Clock,
	}, nil
}

// CreateInvitation opens a pending invitation.
func (e *Engine) CreateInvitation(ctx context.Context, in invitation.CreateInput) (*store.Invitation, error) {
	inv, err := e.machine.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	e.publish(bus.EventInvitationCreated, map[string]any{
		"invitationId": inv.ID,
		"inviter":      inv.InviterWallet,
		"invitee":      inv.InviteeWallet,
		"dateType":     string(inv.DateType),
		"venue":        string(inv.Venue),
		"stake":        inv.Stake.Float64(),
	})
	return inv, nil
}

// RespondToInvitation records the invitee's decision. A second response
// returns the settled invitation with NOT_PENDING.
func (e *Engine) RespondToInvitation(ctx context.Context, id int64, responder string, accept bool, reply string) (*store.Invitation, error) {
	inv, err := e.machine.Respond(ctx, id, responder, accept, reply)
	if err != nil {
		return inv, err
	}
	e.publish(bus.EventInvitationResponded, map[string]any{
		"invitationId": inv.ID,
		"inviter":      inv.InviterWallet,
		"invitee":      inv.InviteeWallet,
		"status":       string(inv.Status),
	})
	return inv, nil
}

// GetAvailableAgents lists enabled agents, optionally excluding one wallet.
func (e *Engine) GetAvailableAgents(ctx context.Context, exclude string) ([]registry.Agent, error) {
	if exclude != "" {
		w, err := wallet.Normalize(exclude)
		if err != nil {
			return nil, err
		}
		exclude = w
	}
	agents, err := e.registry.ListEligible(ctx, exclude)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeRegistryUnavailable, "list agents", err)
	}
	return agents, nil
}

// ResolutionReport summarises one resolution pass.
type ResolutionReport struct {
	Completed       []*store.Invitation
	AlreadyResolved int
	Failed          int
}

// CompleteAcceptedDates resolves every accepted invitation, oldest first.
// An invitation claimed by a concurrent pass is counted and skipped; other
// failures leave the invitation accepted for the next pass and are joined
// into the returned error.
func (e *Engine) CompleteAcceptedDates(ctx context.Context) (ResolutionReport, error) {
	var report ResolutionReport
	accepted, err := e.store.ListAccepted(ctx, e.batch)
	if err != nil {
		return report, err
	}

	var errs []error
	for _, inv := range accepted {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		done, err := e.resolve(ctx, inv)
		switch {
		case err == nil:
			report.Completed = append(report.Completed, done)
		case apperr.CodeOf(err) == apperr.CodeAlreadyResolved:
			report.AlreadyResolved++
		default:
			report.Failed++
			slog.Warn("Date resolution failed", "invitation_id", inv.ID, "error", err)
			errs = append(errs, fmt.Errorf("resolve invitation %d: %w", inv.ID, err))
		}
	}
	if len(accepted) > 0 {
		slog.Info("Resolution pass finished", "accepted", len(accepted), "completed", len(report.Completed),
			"already_resolved", report.AlreadyResolved, "failed", report.Failed)
	}
	return report, errors.Join(errs...)
}

// CompleteInvitation resolves a single accepted invitation.
func (e *Engine) CompleteInvitation(ctx context.Context, id int64) (*store.Invitation, error) {
	inv, err := e.machine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.resolve(ctx, inv)
}

func (e *Engine) resolve(ctx context.Context, inv *store.Invitation) (*store.Invitation, error) {
	if inv.Status != store.StatusAccepted {
		return inv, apperr.New(apperr.CodeAlreadyResolved, fmt.Sprintf("invitation %d is %s, not accepted", inv.ID, inv.Status))
	}
	inviter, err := e.participant(ctx, inv.InviterWallet)
	if err != nil {
		return nil, err
	}
	invitee, err := e.participant(ctx, inv.InviteeWallet)
	if err != nil {
		return nil, err
	}

	rewards, err := e.rewards.Compute(reward.Input{
		Inviter:  inviter.Personality,
		Invitee:  invitee.Personality,
		DateType: inv.DateType,
		Venue:    inv.Venue,
	})
	if err != nil {
		return nil, err
	}
	turns := e.dialogue.Generate(ctx, inv, inviter, invitee, rewards.Compatibility)

	done, err := e.machine.Complete(ctx, inv.ID, invitation.Outcome{Conversation: turns, Rewards: rewards})
	if err != nil {
		return done, err
	}

	fallbacks := 0
	for _, t := range done.Conversation {
		if t.Fallback {
			fallbacks++
		}
	}
	e.publish(bus.EventDateCompleted, map[string]any{
		"invitationId":  done.ID,
		"inviter":       done.InviterWallet,
		"invitee":       done.InviteeWallet,
		"dateType":      string(done.DateType),
		"venue":         string(done.Venue),
		"averageRating": rewards.AverageRating,
		"pmonAwarded":   rewards.PmonAwarded,
		"charmAwarded":  rewards.CharmAwarded,
		"compatibility": rewards.Compatibility,
		"fallbackTurns": fallbacks,
	})
	return done, nil
}

func (e *Engine) participant(ctx context.Context, w string) (dialogue.Participant, error) {
	a, err := e.registry.GetAgent(ctx, w)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return dialogue.Participant{}, err
		}
		return dialogue.Participant{}, apperr.Wrap(apperr.CodeRegistryUnavailable, "look up participant", err)
	}
	return dialogue.Participant{Name: a.Name, Personality: a.Personality}, nil
}

// ExpireStale expires every pending invitation past its TTL.
func (e *Engine) ExpireStale(ctx context.Context) ([]int64, error) {
	ids, err := e.machine.ExpireStale(ctx, e.now())
	for _, id := range ids {
		e.publish(bus.EventInvitationExpired, map[string]any{"invitationId": id})
	}
	return ids, err
}

// AwardTokens credits a wallet outside of any date.
func (e *Engine) AwardTokens(ctx context.Context, walletAddr string, c ledger.Currency, amount ledger.Amount, reason ledger.Reason) (ledger.Entry, error) {
	if reason == "" {
		reason = ledger.ReasonAdminAward
	}
	entry, err := e.ledger.Credit(ctx, ledger.Posting{Wallet: walletAddr, Currency: c, Amount: amount, Reason: reason})
	if err != nil {
		return entry, err
	}
	e.publish(bus.EventTokensAwarded, map[string]any{
		"wallet":   entry.Wallet,
		"currency": string(entry.Currency),
		"amount":   entry.Delta.Float64(),
		"reason":   string(entry.Reason),
	})
	return entry, nil
}

// Spend debits a wallet; it never drives a balance negative.
func (e *Engine) Spend(ctx context.Context, walletAddr string, c ledger.Currency, amount ledger.Amount, reason ledger.Reason) (ledger.Entry, error) {
	entry, err := e.ledger.Spend(ctx, ledger.Posting{Wallet: walletAddr, Currency: c, Amount: amount, Reason: reason})
	if err != nil {
		return entry, err
	}
	e.publish(bus.EventTokensSpent, map[string]any{
		"wallet":   entry.Wallet,
		"currency": string(entry.Currency),
		"amount":   (-entry.Delta).Float64(),
		"reason":   string(entry.Reason),
	})
	return entry, nil
}

// BalanceOf returns one balance.
func (e *Engine) BalanceOf(ctx context.Context, walletAddr string, c ledger.Currency) (ledger.Amount, error) {
	return e.ledger.BalanceOf(ctx, walletAddr, c)
}

// Balances returns every currency balance of a wallet.
func (e *Engine) Balances(ctx context.Context, walletAddr string) (map[ledger.Currency]ledger.Amount, error) {
	return e.ledger.Balances(ctx, walletAddr)
}

// History returns ledger entries of a wallet, newest first.
func (e *Engine) History(ctx context.Context, walletAddr string, limit, offset int) ([]ledger.Entry, error) {
	return e.ledger.History(ctx, walletAddr, limit, offset)
}

// Leaderboard ranks wallets by balance in one currency.
func (e *Engine) Leaderboard(ctx context.Context, c ledger.Currency, limit int) ([]ledger.Balance, error) {
	return e.ledger.Leaderboard(ctx, c, limit)
}

// RelationshipOf returns the pair's relationship. A pair that never dated
// gets a zero record rather than an error.
func (e *Engine) RelationshipOf(ctx context.Context, a, b string) (*store.Relationship, error) {
	wa, err := wallet.Normalize(a)
	if err != nil {
		return nil, err
	}
	wb, err := wallet.Normalize(b)
	if err != nil {
		return nil, err
	}
	if wa == wb {
		return nil, apperr.New(apperr.CodeSelfInvitation, "a relationship needs two different wallets")
	}
	rel, err := e.store.Relationship(ctx, wa, wb)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		lo, hi := wallet.Order(wa, wb)
		return &store.Relationship{WalletA: lo, WalletB: hi}, nil
	}
	return rel, nil
}

// RelationshipsOf lists a wallet's relationships, highest affinity first.
func (e *Engine) RelationshipsOf(ctx context.Context, walletAddr string, limit int) ([]*store.Relationship, error) {
	w, err := wallet.Normalize(walletAddr)
	if err != nil {
		return nil, err
	}
	return e.store.RelationshipsFor(ctx, w, limit)
}

// GetInvitation loads one invitation.
func (e *Engine) GetInvitation(ctx context.Context, id int64) (*store.Invitation, error) {
	return e.machine.Get(ctx, id)
}

// ListInvitations lists invitations matching f, newest first.
func (e *Engine) ListInvitations(ctx context.Context, f store.InvitationFilter) ([]*store.Invitation, error) {
	return e.machine.List(ctx, f)
}

// Stats is a snapshot for status displays.
type Stats struct {
	Invitations map[store.Status]int
	Sweeps      []store.SweepRun
}

// Stats counts invitations by status and lists recorded sweeps.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	runs, err := e.store.SweepRuns(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Invitations: counts, Sweeps: runs}, nil
}

func (e *Engine) publish(name string, payload map[string]any) {
	e.events.Publish(&bus.Event{Name: name, Payload: payload, OccurredAt: e.now().UTC()})
}
