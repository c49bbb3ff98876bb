// Package invitation implements the date invitation lifecycle:
//
//	pending -> accepted -> completed
//	pending -> declined
//	pending -> expired
//
// Every transition is a conditional update on the required source state, so
// concurrent callers race safely and the loser observes a state conflict.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/ledger"
	"github.com/LoveLedger/LoveLedger/internal/registry"
	"github.com/LoveLedger/LoveLedger/internal/store"
	"github.com/LoveLedger/LoveLedger/internal/wallet"
)

// Config holds lifecycle settings.
type Config struct {
	TTL              time.Duration // pending invitations older than this expire
	MaxMessageLength int           // in runes, for openers and replies
	AffinityAlpha    float64       // EWMA weight of the newest rating
}

// DefaultConfig returns the standard lifecycle settings.
func DefaultConfig() Config {
	return Config{
		TTL:              24 * time.Hour,
		MaxMessageLength: 280,
		AffinityAlpha:    0.3,
	}
}

// CreateInput is the request to open an invitation.
type CreateInput struct {
	Inviter  string
	Invitee  string
	DateType compat.DateType
	Venue    compat.Venue
	Message  string
	Stake    ledger.Amount
}

// Outcome is what a resolved date produced.
type Outcome struct {
	Conversation []store.Turn
	Rewards      store.Rewards
}

// Option customises a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine applies lifecycle transitions.
type Machine struct {
	store    *store.Store
	ledger   *ledger.Ledger
	registry registry.Registry
	cfg      Config
	now      func() time.Time
}

// New creates a Machine.
func New(st *store.Store, l *ledger.Ledger, reg registry.Registry, cfg Config, opts ...Option) *Machine {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = def.MaxMessageLength
	}
	if cfg.AffinityAlpha <= 0 || cfg.AffinityAlpha > 1 {
		cfg.AffinityAlpha = def.AffinityAlpha
	}
	m := &Machine{store: st, ledger: l, registry: reg, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective settings.
func (m *Machine) Config() Config { return m.cfg }

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to store.Status) bool {
	switch from {
	case store.StatusPending:
		return to == store.StatusAccepted || to == store.StatusDeclined || to == store.StatusExpired
	case store.StatusAccepted:
		return to == store.StatusCompleted
	}
	return false
}

// Create opens a pending invitation. A non-zero stake is taken from the
// inviter's love tokens in the same transaction.
func (m *Machine) Create(ctx context.Context, in CreateInput) (*store.Invitation, error) {
	inviter, err := wallet.Normalize(in.Inviter)
	if err != nil {
		return nil, err
	}
	invitee, err := wallet.Normalize(in.Invitee)
	if err != nil {
		return nil, err
	}
	if inviter == invitee {
		return nil, apperr.New(apperr.CodeSelfInvitation, "inviter and invitee must differ")
	}
	dt, err := compat.ParseDateType(string(in.DateType))
	if err != nil {
		return nil, err
	}
	venue, err := compat.ParseVenue(string(in.Venue))
	if err != nil {
		return nil, err
	}
	msg, err := m.checkText(in.Message, false)
	if err != nil {
		return nil, err
	}
	if in.Stake < 0 {
		return nil, apperr.New(apperr.CodeInvalidAmount, fmt.Sprintf("stake must not be negative, got %s", in.Stake))
	}
	if err := m.requireAvailable(ctx, inviter, "inviter"); err != nil {
		return nil, err
	}
	if err := m.requireAvailable(ctx, invitee, "invitee"); err != nil {
		return nil, err
	}

	inv := &store.Invitation{
		InviterWallet: inviter,
		InviteeWallet: invitee,
		DateType:      dt,
		Venue:         venue,
		Message:       msg,
		Stake:         in.Stake,
		CreatedAt:     m.now().UTC(),
	}
	pairKey := wallet.PairKey(inviter, invitee)

	if in.Stake > 0 {
		unlock := m.ledger.Lock(inviter, ledger.Love)
		defer unlock()
	}
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		active, err := tx.ActiveInvitationForPair(ctx, pairKey)
		if err != nil {
			return err
		}
		if active != nil {
			return apperr.New(apperr.CodeDuplicateActiveInvitation,
				fmt.Sprintf("invitation %d is already %s for this pair", active.ID, active.Status))
		}
		if err := tx.InsertInvitation(ctx, inv, pairKey); err != nil {
			return err
		}
		if in.Stake > 0 {
			_, err := m.ledger.SpendTx(ctx, tx.SQL(), ledger.Posting{
				Wallet:       inviter,
				Currency:     ledger.Love,
				Amount:       in.Stake,
				Reason:       ledger.ReasonStake,
				InvitationID: inv.ID,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Invitation created", "invitation_id", inv.ID, "inviter", inviter, "invitee", invitee,
		"date_type", dt, "venue", venue, "stake", inv.Stake)
	return inv, nil
}

// Respond records the invitee's decision. When the invitation is no longer
// pending it is returned unchanged together with a NOT_PENDING error; the
// first response wins. A pending invitation past its TTL is expired first.
func (m *Machine) Respond(ctx context.Context, id int64, responder string, accept bool, reply string) (*store.Invitation, error) {
	who, err := wallet.Normalize(responder)
	if err != nil {
		return nil, err
	}
	reply, err = m.checkText(reply, true)
	if err != nil {
		return nil, err
	}
	inv, err := m.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	if who != inv.InviteeWallet {
		return nil, apperr.New(apperr.CodeNotInvitee, fmt.Sprintf("%s is not the invitee of invitation %d", who, id))
	}
	to := store.StatusDeclined
	if accept {
		to = store.StatusAccepted
	}
	if !CanTransition(inv.Status, to) {
		return inv, notPending(inv)
	}
	if m.stale(inv) {
		if _, err := m.Expire(ctx, id); err != nil {
			return nil, err
		}
		return m.reloadConflict(ctx, id)
	}

	won := false
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		ok, err := tx.SetResponse(ctx, id, to, reply, m.now())
		if err != nil || !ok {
			return err
		}
		won = true
		if to == store.StatusDeclined {
			return m.refundStake(ctx, tx, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return m.reloadConflict(ctx, id)
	}

	slog.Info("Invitation answered", "invitation_id", id, "status", to)
	return m.store.GetInvitation(ctx, id)
}

// Expire moves a pending invitation to expired and refunds its stake. Any
// other state is a logged no-op reporting false.
func (m *Machine) Expire(ctx context.Context, id int64) (bool, error) {
	inv, err := m.store.GetInvitation(ctx, id)
	if err != nil {
		return false, err
	}
	if !CanTransition(inv.Status, store.StatusExpired) {
		slog.Debug("Invitation expiry skipped", "invitation_id", id, "status", inv.Status)
		return false, nil
	}
	won := false
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		ok, err := tx.MarkExpired(ctx, id, m.now())
		if err != nil || !ok {
			return err
		}
		won = true
		return m.refundStake(ctx, tx, inv)
	})
	if err != nil {
		return false, err
	}
	if won {
		slog.Info("Invitation expired", "invitation_id", id)
	}
	return won, nil
}

// ExpireStale expires every pending invitation older than the TTL at now.
// Failures on single invitations are logged and joined into the returned error.
func (m *Machine) ExpireStale(ctx context.Context, now time.Time) ([]int64, error) {
	stale, err := m.store.ListStalePending(ctx, now.Add(-m.cfg.TTL), 0)
	if err != nil {
		return nil, err
	}
	var expired []int64
	var errs []error
	for _, inv := range stale {
		ok, err := m.Expire(ctx, inv.ID)
		if err != nil {
			slog.Warn("Invitation expiry failed", "invitation_id", inv.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			expired = append(expired, inv.ID)
		}
	}
	return expired, errors.Join(errs...)
}

// Complete claims an accepted invitation and, in the same transaction, pays
// both participants, gifts the stake to the invitee and updates their
// relationship. Anything but an accepted invitation yields ALREADY_RESOLVED
// and applies nothing.
func (m *Machine) Complete(ctx context.Context, id int64, out Outcome) (*store.Invitation, error) {
	r := out.Rewards
	if r.AverageRating < 1 || r.AverageRating > 5 || r.PmonAwarded < 0 || r.CharmAwarded < 0 {
		return nil, apperr.New(apperr.CodeInvalidAmount, fmt.Sprintf("invalid rewards %+v", r))
	}
	inv, err := m.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(inv.Status, store.StatusCompleted) {
		slog.Info("Invitation already resolved", "invitation_id", id, "status", inv.Status)
		return inv, alreadyResolved(inv)
	}

	at := m.now()
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		ok, err := tx.ClaimCompleted(ctx, id, out.Conversation, r, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.CodeAlreadyResolved, fmt.Sprintf("invitation %d was claimed concurrently", id))
		}
		pmon := ledger.AmountFromFloat(r.PmonAwarded)
		charm := ledger.AmountFromFloat(r.CharmAwarded)
		for _, w := range []string{inv.InviterWallet, inv.InviteeWallet} {
			if err := m.credit(ctx, tx, w, ledger.Pmon, pmon, ledger.ReasonDateReward, id); err != nil {
				return err
			}
			if err := m.credit(ctx, tx, w, ledger.Charm, charm, ledger.ReasonDateReward, id); err != nil {
				return err
			}
		}
		if err := m.credit(ctx, tx, inv.InviteeWallet, ledger.Love, inv.Stake, ledger.ReasonStakeGift, id); err != nil {
			return err
		}
		_, err = tx.RecordDate(ctx, inv.InviterWallet, inv.InviteeWallet, r.AverageRating, m.cfg.AffinityAlpha, at)
		return err
	})
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeAlreadyResolved {
			slog.Info("Invitation already resolved", "invitation_id", id)
			cur, gerr := m.store.GetInvitation(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			return cur, err
		}
		return nil, err
	}

	slog.Info("Invitation completed", "invitation_id", id, "average_rating", r.AverageRating,
		"pmon", r.PmonAwarded, "charm", r.CharmAwarded)
	return m.store.GetInvitation(ctx, id)
}

// Get loads one invitation.
func (m *Machine) Get(ctx context.Context, id int64) (*store.Invitation, error) {
	return m.store.GetInvitation(ctx, id)
}

// List returns invitations matching f, newest first.
func (m *Machine) List(ctx context.Context, f store.InvitationFilter) ([]*store.Invitation, error) {
	if f.Wallet != "" {
		w, err := wallet.Normalize(f.Wallet)
		if err != nil {
			return nil, err
		}
		f.Wallet = w
	}
	return m.store.ListInvitations(ctx, f)
}

func (m *Machine) credit(ctx context.Context, tx *store.Tx, w string, c ledger.Currency, amt ledger.Amount, reason ledger.Reason, id int64) error {
	if amt <= 0 {
		return nil
	}
	_, err := m.ledger.CreditTx(ctx, tx.SQL(), ledger.Posting{
		Wallet:       w,
		Currency:     c,
		Amount:       amt,
		Reason:       reason,
		InvitationID: id,
	})
	return err
}

func (m *Machine) refundStake(ctx context.Context, tx *store.Tx, inv *store.Invitation) error {
	return m.credit(ctx, tx, inv.InviterWallet, ledger.Love, inv.Stake, ledger.ReasonStakeRefund, inv.ID)
}

func (m *Machine) requireAvailable(ctx context.Context, w, role string) error {
	a, err := m.registry.GetAgent(ctx, w)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Wrap(apperr.CodeRegistryUnavailable, "look up "+role, err)
	}
	if !a.Enabled {
		return apperr.New(apperr.CodeAgentUnavailable, fmt.Sprintf("%s %s is not available", role, w))
	}
	return nil
}

func (m *Machine) checkText(s string, optional bool) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n == 0 && !optional {
		return "", apperr.New(apperr.CodeInvalidMessage, "message must not be empty")
	}
	if n > m.cfg.MaxMessageLength {
		return "", apperr.New(apperr.CodeInvalidMessage,
			fmt.Sprintf("message is %d characters, limit is %d", n, m.cfg.MaxMessageLength))
	}
	return s, nil
}

func (m *Machine) stale(inv *store.Invitation) bool {
	return !m.now().Before(inv.CreatedAt.Add(m.cfg.TTL))
}

func (m *Machine) reloadConflict(ctx context.Context, id int64) (*store.Invitation, error) {
	inv, err := m.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv, notPending(inv)
}

func notPending(inv *store.Invitation) error {
	return apperr.New(apperr.CodeNotPending, fmt.Sprintf("invitation %d is already %s", inv.ID, inv.Status))
}

func alreadyResolved(inv *store.Invitation) error {
	return apperr.New(apperr.CodeAlreadyResolved, fmt.Sprintf("invitation %d is %s, not accepted", inv.ID, inv.Status))
}
