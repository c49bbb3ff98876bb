package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/bus"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/engine"
	"github.com/LoveLedger/LoveLedger/internal/invitation"
	"github.com/LoveLedger/LoveLedger/internal/registry"
	"github.com/LoveLedger/LoveLedger/internal/reward"
	"github.com/LoveLedger/LoveLedger/internal/store"
)

const (
	ada   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bea   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	cyrus = "0xcccccccccccccccccccccccccccccccccccccccc"
	dora  = "0xdddddddddddddddddddddddddddddddddddddddd"
	eli   = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	s     *Scheduler
	e     *engine.Engine
	st    *store.Store
	clock *testClock
}

func newFixture(t *testing.T, cfg Config, agents ...registry.Agent) *fixture {
	t.Helper()
	return newFixtureWith(t, cfg, nil, agents...)
}

// newFixtureWith lets wrap replace the registry the engine sees.
func newFixtureWith(t *testing.T, cfg Config, wrap func(*registry.Static) registry.Registry, agents ...registry.Agent) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "sweep.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if len(agents) == 0 {
		agents = []registry.Agent{
			{Wallet: ada, Personality: compat.Romantic, Enabled: true, AutoChat: true},
			{Wallet: bea, Personality: compat.Playful, Enabled: true, AutoChat: true},
			{Wallet: cyrus, Personality: compat.Chill, Enabled: true, AutoChat: true},
			{Wallet: dora, Personality: compat.Mysterious, Enabled: true, AutoChat: true},
			{Wallet: eli, Personality: compat.Intellectual, Enabled: true, AutoChat: false},
		}
	}
	reg, err := registry.NewStatic(agents...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	clock := &testClock{t: time.Date(2026, 2, 14, 19, 0, 0, 0, time.UTC)}
	var engineReg registry.Registry = reg
	if wrap != nil {
		engineReg = wrap(reg)
	}
	e, err := engine.New(engine.Options{
		Store:    st,
		Registry: engineReg,
		Rewards:  reward.NewSeeded(reward.DefaultConfig(), 1),
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(dir, "sweep.lock")
	}
	s := New(cfg, e, st, WithRand(rand.New(rand.NewSource(42))), WithClock(clock.Now))
	return &fixture{s: s, e: e, st: st, clock: clock}
}

func (f *fixture) invitations(t *testing.T) []*store.Invitation {
	t.Helper()
	list, err := f.st.ListInvitations(context.Background(), store.InvitationFilter{Limit: 100})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return list
}

func TestSweepPairsEachAgentOnce(t *testing.T) {
	f := newFixture(t, Config{})
	report, err := f.s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Created) != 2 {
		t.Fatalf("expected 2 autonomous dates from 4 agents, got %d (%s)", len(report.Created), report.Summary())
	}
	if report.Accepted+report.Declined != 2 || report.Completed != report.Accepted {
		t.Fatalf("inconsistent report %s", report.Summary())
	}

	seen := map[string]int{}
	for _, inv := range f.invitations(t) {
		seen[inv.InviterWallet]++
		seen[inv.InviteeWallet]++
		if inv.InviterWallet == eli || inv.InviteeWallet == eli {
			t.Fatalf("agent without autoChat was paired: %+v", inv)
		}
		if inv.Status != store.StatusCompleted && inv.Status != store.StatusDeclined {
			t.Fatalf("expected every date decided and resolved, got %s", inv.Status)
		}
	}
	for w, n := range seen {
		if n != 1 {
			t.Fatalf("%s used %d times in one sweep", w, n)
		}
	}
}

func TestSweepRespectsMaxPairs(t *testing.T) {
	f := newFixture(t, Config{MaxPairsPerTick: 1})
	report, err := f.s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Created) != 1 {
		t.Fatalf("expected 1 date, got %d", len(report.Created))
	}
}

func TestSweepSkipsSaturatedPairs(t *testing.T) {
	f := newFixture(t, Config{SaturationAffinity: 4.5},
		registry.Agent{Wallet: ada, Personality: compat.Romantic, Enabled: true, AutoChat: true},
		registry.Agent{Wallet: bea, Personality: compat.Romantic, Enabled: true, AutoChat: true},
	)
	if _, err := f.st.RecordDate(context.Background(), ada, bea, 4.8, 0.3, f.clock.Now()); err != nil {
		t.Fatalf("seed relationship: %v", err)
	}
	report, err := f.s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Created) != 0 {
		t.Fatalf("saturated pair should not be matched, got %s", report.Summary())
	}
}

func TestSweepSkipsActivePairs(t *testing.T) {
	f := newFixture(t, Config{},
		registry.Agent{Wallet: ada, Personality: compat.Romantic, Enabled: true, AutoChat: true},
		registry.Agent{Wallet: bea, Personality: compat.Romantic, Enabled: true, AutoChat: true},
	)
	if _, err := f.e.CreateInvitation(context.Background(), invitation.CreateInput{
		Inviter: bea, Invitee: ada, DateType: compat.Coffee, Venue: compat.Cafe, Message: "Coffee?",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	report, err := f.s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Created) != 0 {
		t.Fatalf("pair with pending invitation should not be matched, got %s", report.Summary())
	}
}

func TestSweepExpiresStaleInvitations(t *testing.T) {
	f := newFixture(t, Config{},
		registry.Agent{Wallet: ada, Personality: compat.Romantic, Enabled: true},
		registry.Agent{Wallet: bea, Personality: compat.Romantic, Enabled: true},
	)
	inv, err := f.e.CreateInvitation(context.Background(), invitation.CreateInput{
		Inviter: ada, Invitee: bea, DateType: compat.Coffee, Venue: compat.Cafe, Message: "Coffee?",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.clock.Advance(25 * time.Hour)

	report, err := f.s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Expired != 1 {
		t.Fatalf("expected 1 expiry, got %s", report.Summary())
	}
	got, err := f.e.GetInvitation(context.Background(), inv.ID)
	if err != nil || got.Status != store.StatusExpired {
		t.Fatalf("expected expired invitation, got %+v, %v", got, err)
	}
}

func TestSweepRecordsRuns(t *testing.T) {
	f := newFixture(t, Config{})
	for i := 0; i < 2; i++ {
		if _, err := f.s.Sweep(context.Background()); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	runs, err := f.st.SweepRuns(context.Background())
	if err != nil {
		t.Fatalf("sweep runs: %v", err)
	}
	if len(runs) != 1 || runs[0].JobName != JobName || runs[0].RunCount != 2 || runs[0].LastStatus != "ok" {
		t.Fatalf("unexpected runs %+v", runs)
	}
}

// offlineLookups lists agents but fails every single-agent lookup.
type offlineLookups struct{ *registry.Static }

func (offlineLookups) GetAgent(context.Context, string) (registry.Agent, error) {
	return registry.Agent{}, errors.New("roster backend offline")
}

func TestSweepWithFailedPairsIsPartial(t *testing.T) {
	f := newFixtureWith(t, Config{}, func(s *registry.Static) registry.Registry { return offlineLookups{s} })

	report, err := f.s.Sweep(context.Background())
	if err == nil {
		t.Fatal("expected sweep error when every pair fails")
	}
	if report.Errors == 0 || len(report.Created) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	runs, err := f.st.SweepRuns(context.Background())
	if err != nil {
		t.Fatalf("sweep runs: %v", err)
	}
	if len(runs) != 1 || runs[0].LastStatus != "partial" {
		t.Fatalf("expected partial sweep run, got %+v", runs)
	}
}

func TestSweepPublishesEvent(t *testing.T) {
	f := newFixture(t, Config{})
	b := bus.New(10)
	f.s.events = b
	var got []*bus.Event
	b.Subscribe(bus.EventSweepFinished, func(_ context.Context, ev *bus.Event) { got = append(got, ev) })

	if _, err := f.s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	b.Drain(context.Background())
	if len(got) != 1 || got[0].Payload["status"] != "ok" {
		t.Fatalf("unexpected sweep events %+v", got)
	}
}

func TestSweepDoesNotOverlapInProcess(t *testing.T) {
	f := newFixture(t, Config{})
	if !f.s.sem.TryAcquire() {
		t.Fatal("semaphore should be free")
	}
	_, err := f.s.Sweep(context.Background())
	f.s.sem.Release()
	if !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t, Config{})
	other := NewFileLock(f.s.Config().LockPath)
	acquired, err := other.TryLock()
	if err != nil || !acquired {
		t.Fatalf("other holder should acquire lock: %v", err)
	}
	defer other.Unlock()

	report, err := f.s.Sweep(context.Background())
	if !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}
	if len(report.Created) != 0 || len(f.invitations(t)) != 0 {
		t.Fatal("a skipped sweep must not create invitations")
	}
	runs, _ := f.st.SweepRuns(context.Background())
	if len(runs) != 1 || runs[0].LastStatus != "skipped_locked" {
		t.Fatalf("expected skipped run recorded, got %+v", runs)
	}
}

func TestFileLockPreventsOverlap(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "overlap.lock")
	l1, l2 := NewFileLock(lockPath), NewFileLock(lockPath)

	acquired, err := l1.TryLock()
	if err != nil || !acquired {
		t.Fatal("l1 should acquire lock")
	}
	acquired2, err := l2.TryLock()
	if err != nil {
		t.Fatal("unexpected error on l2 lock:", err)
	}
	if acquired2 {
		t.Error("l2 should NOT acquire lock while l1 holds it")
		l2.Unlock()
	}

	l1.Unlock()

	acquired3, err := l2.TryLock()
	if err != nil {
		t.Fatal("unexpected error on l2 retry:", err)
	}
	if !acquired3 {
		t.Error("l2 should acquire lock after l1 released")
	}
	l2.Unlock()
}

func TestSemaphoreConcurrencyLimit(t *testing.T) {
	sem := NewSemaphore(2)

	if !sem.TryAcquire() {
		t.Error("first acquire should succeed")
	}
	if !sem.TryAcquire() {
		t.Error("second acquire should succeed")
	}
	if sem.TryAcquire() {
		t.Error("third acquire should fail (cap=2)")
	}
	if sem.Available() != 0 {
		t.Errorf("Available() = %d, want 0", sem.Available())
	}

	sem.Release()
	if sem.Available() != 1 {
		t.Errorf("Available() = %d, want 1", sem.Available())
	}
}

func TestRunSweepsOnTick(t *testing.T) {
	f := newFixture(t, Config{TickInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- f.s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runs, _ := f.st.SweepRuns(context.Background())
		if len(runs) == 1 && runs[0].RunCount >= 1 {
			cancel()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	runs, _ := f.st.SweepRuns(context.Background())
	if len(runs) != 1 {
		t.Fatal("expected at least one sweep from the ticker")
	}
}

func TestFillOpener(t *testing.T) {
	got := fillOpener("The {venue} made me think of you. {Date} together?", compat.Dinner, compat.Rooftop)
	if got != "The rooftop made me think of you. Dinner together?" {
		t.Fatalf("unexpected opener %q", got)
	}
}
