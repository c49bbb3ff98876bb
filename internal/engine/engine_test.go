package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/bus"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/dialogue"
	"github.com/LoveLedger/LoveLedger/internal/invitation"
	"github.com/LoveLedger/LoveLedger/internal/ledger"
	"github.com/LoveLedger/LoveLedger/internal/registry"
	"github.com/LoveLedger/LoveLedger/internal/reward"
	"github.com/LoveLedger/LoveLedger/internal/store"
)

const (
	ada   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bea   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	cyrus = "0xcccccccccccccccccccccccccccccccccccccccc"
)

type recorder struct {
	mu     sync.Mutex
	events []*bus.Event
}

func (r *recorder) Publish(ev *bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

type brokenGenerator struct{}

func (brokenGenerator) GenerateTurn(context.Context, dialogue.TurnContext) (string, error) {
	return "", apperr.New(apperr.CodeDialogueUnavailable, "provider offline")
}

type harness struct {
	e   *Engine
	st  *store.Store
	rec *recorder
	now time.Time
	mu  sync.Mutex
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func newHarness(t *testing.T, gen dialogue.Generator) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg, err := registry.NewStatic(
		registry.Agent{Wallet: ada, Name: "Ada", Personality: compat.Romantic, Enabled: true, AutoChat: true},
		registry.Agent{Wallet: bea, Name: "Bea", Personality: compat.Playful, Enabled: true, AutoChat: true},
		registry.Agent{Wallet: cyrus, Name: "Cyrus", Personality: compat.Chill, Enabled: false},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if gen == nil {
		gen = dialogue.FixtureGenerator{}
	}
	h := &harness{st: st, rec: &recorder{}, now: time.Date(2026, 2, 14, 19, 0, 0, 0, time.UTC)}
	h.e, err = New(Options{
		Store:    st,
		Registry: reg,
		Rewards:  reward.NewSeeded(reward.DefaultConfig(), 7),
		Dialogue: dialogue.NewOrchestrator(gen, dialogue.Config{Turns: 4, TurnTimeout: time.Second}),
		Events:   h.rec,
		Clock:    h.clock,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return h
}

func (h *harness) acceptedDate(t *testing.T, stake ledger.Amount) *store.Invitation {
	t.Helper()
	ctx := context.Background()
	inv, err := h.e.CreateInvitation(ctx, invitation.CreateInput{
		Inviter: ada, Invitee: bea, DateType: compat.Dinner, Venue: compat.Rooftop,
		Message: "Rooftop dinner on Friday?", Stake: stake,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inv, err = h.e.RespondToInvitation(ctx, inv.ID, bea, true, "Yes!")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	return inv
}

func TestDinnerRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.acceptedDate(t, 0)

	report, err := h.e.CompleteAcceptedDates(ctx)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(report.Completed) != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	done := report.Completed[0]
	if done.ID != inv.ID || done.Status != store.StatusCompleted {
		t.Fatalf("unexpected invitation %+v", done)
	}
	r := done.Rewards
	if r == nil || r.AverageRating < 1 || r.AverageRating > 5 || r.PmonAwarded < 0 || r.CharmAwarded < 0 {
		t.Fatalf("rewards out of range: %+v", r)
	}
	if len(done.Conversation) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(done.Conversation))
	}

	for _, w := range []string{ada, bea} {
		pmon, err := h.e.BalanceOf(ctx, w, ledger.Pmon)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if pmon != ledger.AmountFromFloat(r.PmonAwarded) {
			t.Fatalf("%s pmon = %s, want %.2f", w, pmon, r.PmonAwarded)
		}
	}
	rel, err := h.e.RelationshipOf(ctx, bea, ada)
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel.CompletedDates != 1 || rel.Affinity != r.AverageRating {
		t.Fatalf("unexpected relationship %+v", rel)
	}

	want := []string{bus.EventInvitationCreated, bus.EventInvitationResponded, bus.EventDateCompleted}
	got := h.rec.names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestCompletesWhenDialogueAlwaysFails(t *testing.T) {
	h := newHarness(t, brokenGenerator{})
	inv := h.acceptedDate(t, 0)

	report, err := h.e.CompleteAcceptedDates(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(report.Completed) != 1 {
		t.Fatalf("expected date to complete, got %+v", report)
	}
	done, err := h.e.GetInvitation(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != store.StatusCompleted || done.Rewards == nil {
		t.Fatalf("unexpected invitation %+v", done)
	}
	for i, turn := range done.Conversation {
		if !turn.Fallback || turn.Message == "" {
			t.Fatalf("turn %d should be fallback content: %+v", i, turn)
		}
	}
	if done.Rewards.AverageRating < 1 || done.Rewards.AverageRating > 5 {
		t.Fatalf("invalid rating %v", done.Rewards.AverageRating)
	}
}

func TestSecondPassIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.acceptedDate(t, 0)

	if _, err := h.e.CompleteAcceptedDates(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	report, err := h.e.CompleteAcceptedDates(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(report.Completed) != 0 {
		t.Fatalf("second pass completed %d dates", len(report.Completed))
	}
	cur, err := h.e.CompleteInvitation(ctx, inv.ID)
	if !errors.Is(err, apperr.ErrAlreadyResolved) {
		t.Fatalf("expected ALREADY_RESOLVED, got %v", err)
	}
	if cur == nil || cur.Status != store.StatusCompleted {
		t.Fatalf("expected the completed invitation back, got %+v", cur)
	}
	if n := h.rec.count(bus.EventDateCompleted); n != 1 {
		t.Fatalf("expected one completion event, got %d", n)
	}
}

func TestOverlappingPassesPayOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.e.AwardTokens(ctx, ada, ledger.Love, ledger.AmountFromFloat(10), ""); err != nil {
		t.Fatalf("award: %v", err)
	}
	inv := h.acceptedDate(t, ledger.AmountFromFloat(5))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.e.CompleteAcceptedDates(ctx)
		}()
	}
	wg.Wait()

	entries, err := ledger.New(h.st.DB()).EntriesForInvitation(ctx, inv.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	// stake debit, two currencies for two wallets, stake gift
	if len(entries) != 6 {
		t.Fatalf("expected 6 postings, got %d: %+v", len(entries), entries)
	}
	if n := h.rec.count(bus.EventDateCompleted); n != 1 {
		t.Fatalf("expected one completion event, got %d", n)
	}
}

func TestStakedCreateNeedsFunds(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.e.CreateInvitation(context.Background(), invitation.CreateInput{
		Inviter: ada, Invitee: bea, DateType: compat.Coffee, Venue: compat.Cafe,
		Message: "Coffee?", Stake: ledger.AmountFromFloat(1),
	})
	if apperr.KindOf(err) != apperr.KindInsufficientBalance {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if n := h.rec.count(bus.EventInvitationCreated); n != 0 {
		t.Fatalf("no event expected for a failed create, got %d", n)
	}
}

func TestRespondConflictReportsSettledState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.acceptedDate(t, 0)

	cur, err := h.e.RespondToInvitation(ctx, inv.ID, bea, false, "")
	if apperr.KindOf(err) != apperr.KindStateConflict {
		t.Fatalf("expected StateConflict, got %v", err)
	}
	if cur == nil || cur.Status != store.StatusAccepted {
		t.Fatalf("expected accepted invitation back, got %+v", cur)
	}
	if n := h.rec.count(bus.EventInvitationResponded); n != 1 {
		t.Fatalf("expected one response event, got %d", n)
	}
}

func TestExpireStalePublishes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv, err := h.e.CreateInvitation(ctx, invitation.CreateInput{
		Inviter: bea, Invitee: ada, DateType: compat.Casual, Venue: compat.Park, Message: "Walk?",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.advance(25 * time.Hour)

	ids, err := h.e.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(ids) != 1 || ids[0] != inv.ID {
		t.Fatalf("unexpected expired ids %v", ids)
	}
	if n := h.rec.count(bus.EventInvitationExpired); n != 1 {
		t.Fatalf("expected one expiry event, got %d", n)
	}
}

func TestAwardAndSpend(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.e.AwardTokens(ctx, ada, ledger.Love, ledger.AmountFromFloat(10), ""); err != nil {
		t.Fatalf("award: %v", err)
	}
	if _, err := h.e.AwardTokens(ctx, ada, ledger.Love, -1, ""); !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("expected INVALID_AMOUNT, got %v", err)
	}
	if _, err := h.e.Spend(ctx, ada, ledger.Love, ledger.AmountFromFloat(4), ""); err != nil {
		t.Fatalf("spend: %v", err)
	}
	if _, err := h.e.Spend(ctx, ada, ledger.Love, ledger.AmountFromFloat(7), ""); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
	bal, err := h.e.Balances(ctx, ada)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if bal[ledger.Love] != ledger.AmountFromFloat(6) {
		t.Fatalf("love = %s, want 6.00", bal[ledger.Love])
	}
	hist, err := h.e.History(ctx, ada, 10, 0)
	if err != nil || len(hist) != 2 {
		t.Fatalf("history = %+v, %v", hist, err)
	}
	if h.rec.count(bus.EventTokensAwarded) != 1 || h.rec.count(bus.EventTokensSpent) != 1 {
		t.Fatalf("unexpected events %v", h.rec.names())
	}
}

func TestRelationshipOfUnknownPair(t *testing.T) {
	h := newHarness(t, nil)
	rel, err := h.e.RelationshipOf(context.Background(), bea, ada)
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel.WalletA != ada || rel.WalletB != bea || rel.CompletedDates != 0 {
		t.Fatalf("unexpected zero relationship %+v", rel)
	}
	if _, err := h.e.RelationshipOf(context.Background(), ada, ada); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetAvailableAgents(t *testing.T) {
	h := newHarness(t, nil)
	agents, err := h.e.GetAvailableAgents(context.Background(), ada)
	if err != nil {
		t.Fatalf("agents: %v", err)
	}
	if len(agents) != 1 || agents[0].Wallet != bea {
		t.Fatalf("expected only bea, got %+v", agents)
	}
	if _, err := h.e.GetAvailableAgents(context.Background(), "nope"); !errors.Is(err, apperr.ErrInvalidWallet) {
		t.Fatalf("expected INVALID_WALLET, got %v", err)
	}
}

func TestListInvitationsAndStats(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.acceptedDate(t, 0)

	list, err := h.e.ListInvitations(ctx, store.InvitationFilter{Wallet: "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"})
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	stats, err := h.e.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Invitations[store.StatusAccepted] != 1 {
		t.Fatalf("unexpected counts %+v", stats.Invitations)
	}
}
