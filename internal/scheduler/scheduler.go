// Package scheduler runs the periodic auto-date sweep: matchmaking between
// autonomous agents, resolution of accepted dates and expiry of stale
// invitations. Sweeps never overlap, within a process (semaphore) or across
// processes sharing a lock file.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/bus"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/engine"
	"github.com/LoveLedger/LoveLedger/internal/invitation"
	"github.com/LoveLedger/LoveLedger/internal/registry"
	"github.com/LoveLedger/LoveLedger/internal/store"
	"github.com/LoveLedger/LoveLedger/internal/wallet"
)

// JobName is the sweep_runs key of the auto-date sweep.
const JobName = "auto-date"

// ErrSweepInProgress is returned when another sweep holds the semaphore or lock file.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Config holds scheduler settings.
type Config struct {
	Enabled            bool          `json:"enabled" envconfig:"ENABLED"`
	TickInterval       time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	MaxPairsPerTick    int           `json:"maxPairsPerTick" envconfig:"MAX_PAIRS_PER_TICK"`
	SaturationAffinity float64       `json:"-" ignored:"true"`
	LockPath           string        `json:"lockPath" envconfig:"LOCK_PATH"`
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Enabled:            true,
		TickInterval:       3 * time.Minute,
		MaxPairsPerTick:    5,
		SaturationAffinity: 4.5,
		LockPath:           filepath.Join(home, ".loveledger", "scheduler.lock"),
	}
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithRand injects the source used for shuffling, date picks and invitee decisions.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rnd = r }
}

// WithEvents publishes a sweep.finished event after every sweep.
func WithEvents(p bus.Publisher) Option {
	return func(s *Scheduler) { s.events = p }
}

// WithClock replaces time.Now for sweep bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler drives sweeps on a fixed interval.
type Scheduler struct {
	cfg    Config
	engine *engine.Engine
	store  *store.Store
	events bus.Publisher
	sem    *Semaphore
	lock   *FileLock
	now    func() time.Time

	rmu sync.Mutex
	rnd *rand.Rand
}

// New creates a Scheduler.
func New(cfg Config, e *engine.Engine, st *store.Store, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxPairsPerTick <= 0 {
		cfg.MaxPairsPerTick = def.MaxPairsPerTick
	}
	if cfg.SaturationAffinity <= 0 {
		cfg.SaturationAffinity = def.SaturationAffinity
	}
	if cfg.LockPath == "" {
		cfg.LockPath = def.LockPath
	}

	s := &Scheduler{
		cfg:    cfg,
		engine: e,
		store:  st,
		events: bus.Discard{},
		sem:    NewSemaphore(1),
		lock:   NewFileLock(cfg.LockPath),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// Config returns the effective settings.
func (s *Scheduler) Config() Config { return s.cfg }

// Run starts the tick loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Scheduler started", "tick", s.cfg.TickInterval, "max_pairs", s.cfg.MaxPairsPerTick,
		"saturation", s.cfg.SaturationAffinity)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				slog.Warn("Sweep finished with errors", "error", err)
			}
		}
	}
}

// Report is the outcome of one sweep.
type Report struct {
	Created         []int64
	Accepted        int
	Declined        int
	Completed       int
	AlreadyResolved int
	ResolveFailed   int
	Expired         int
	Errors          int
}

// Summary renders the report for sweep_runs.
func (r Report) Summary() string {
	return fmt.Sprintf("created=%d accepted=%d declined=%d completed=%d already_resolved=%d resolve_failed=%d expired=%d errors=%d",
		len(r.Created), r.Accepted, r.Declined, r.Completed, r.AlreadyResolved, r.ResolveFailed, r.Expired, r.Errors)
}

// Sweep runs matchmaking, resolution and expiry once. An error in one pass
// is logged and joined into the result; the other passes still run.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	var report Report
	if !s.sem.TryAcquire() {
		slog.Debug("Sweep skipped: already running in this process")
		return report, ErrSweepInProgress
	}
	defer s.sem.Release()

	acquired, err := s.lock.TryLock()
	if err != nil {
		slog.Warn("Scheduler lock error", "error", err)
		return report, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		slog.Debug("Sweep skipped: lock held by another process")
		s.logRun(ctx, "skipped_locked", "")
		return report, ErrSweepInProgress
	}
	defer s.lock.Unlock()

	started := s.now()
	var errs []error

	if err := s.matchmake(ctx, &report); err != nil {
		errs = append(errs, fmt.Errorf("matchmaking: %w", err))
	}

	res, err := s.engine.CompleteAcceptedDates(ctx)
	report.Completed = len(res.Completed)
	report.AlreadyResolved = res.AlreadyResolved
	report.ResolveFailed = res.Failed
	if err != nil {
		errs = append(errs, fmt.Errorf("resolution: %w", err))
	}

	expired, err := s.engine.ExpireStale(ctx)
	report.Expired = len(expired)
	if err != nil {
		errs = append(errs, fmt.Errorf("expiry: %w", err))
	}

	status := "ok"
	if len(errs) > 0 {
		status = "partial"
	}
	s.logRun(ctx, status, report.Summary())
	s.events.Publish(&bus.Event{
		Name: bus.EventSweepFinished,
		Payload: map[string]any{
			"status":    status,
			"created":   len(report.Created),
			"completed": report.Completed,
			"expired":   report.Expired,
			"errors":    report.Errors + report.ResolveFailed,
		},
		OccurredAt: s.now().UTC(),
	})
	slog.Info("Sweep finished", "status", status, "duration", s.now().Sub(started), "summary", report.Summary())
	return report, errors.Join(errs...)
}

type pair struct {
	inviter, invitee registry.Agent
}

// matchmake pairs autonomous agents greedily, each at most once per sweep.
// State conflicts are skipped; any other pair failure is returned joined.
func (s *Scheduler) matchmake(ctx context.Context, report *Report) error {
	agents, err := s.engine.GetAvailableAgents(ctx, "")
	if err != nil {
		return err
	}
	var eligible []registry.Agent
	for _, a := range agents {
		if a.AutoChat {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) < 2 {
		slog.Debug("Matchmaking skipped: not enough autonomous agents", "eligible", len(eligible))
		return nil
	}
	s.withRand(func(r *rand.Rand) {
		r.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	})

	active, err := s.store.ActivePairKeys(ctx)
	if err != nil {
		return err
	}

	used := make(map[string]bool, len(eligible))
	var pairs []pair
	var failed []error
	for i := 0; i < len(eligible) && len(pairs) < s.cfg.MaxPairsPerTick; i++ {
		a := eligible[i]
		if used[a.Wallet] {
			continue
		}
		for j := i + 1; j < len(eligible); j++ {
			b := eligible[j]
			if used[b.Wallet] || active[wallet.PairKey(a.Wallet, b.Wallet)] {
				continue
			}
			saturated, err := s.saturated(ctx, a.Wallet, b.Wallet)
			if err != nil {
				slog.Warn("Matchmaking relationship lookup failed", "a", a.Wallet, "b", b.Wallet, "error", err)
				report.Errors++
				failed = append(failed, fmt.Errorf("relationship %s/%s: %w", a.Wallet, b.Wallet, err))
				continue
			}
			if saturated {
				continue
			}
			used[a.Wallet], used[b.Wallet] = true, true
			pairs = append(pairs, pair{inviter: a, invitee: b})
			break
		}
	}

	for _, p := range pairs {
		if err := s.date(ctx, p, report); err != nil {
			report.Errors++
			if apperr.KindOf(err) == apperr.KindStateConflict {
				slog.Debug("Matchmaking pair skipped", "inviter", p.inviter.Wallet, "invitee", p.invitee.Wallet, "error", err)
				continue
			}
			slog.Warn("Matchmaking pair failed", "inviter", p.inviter.Wallet, "invitee", p.invitee.Wallet, "error", err)
			failed = append(failed, fmt.Errorf("pair %s/%s: %w", p.inviter.Wallet, p.invitee.Wallet, err))
		}
	}
	return errors.Join(failed...)
}

func (s *Scheduler) saturated(ctx context.Context, a, b string) (bool, error) {
	rel, err := s.store.Relationship(ctx, a, b)
	if err != nil {
		return false, err
	}
	return rel != nil && rel.Affinity >= s.cfg.SaturationAffinity, nil
}

// date opens an invitation for p and lets the invitee decide through the
// same transition a human responder uses.
func (s *Scheduler) date(ctx context.Context, p pair, report *Report) error {
	var dt compat.DateType
	var venue compat.Venue
	var opener, reply string
	s.withRand(func(r *rand.Rand) {
		dts, venues := compat.DateTypes(), compat.Venues()
		dt = dts[r.Intn(len(dts))]
		venue = venues[r.Intn(len(venues))]
		opener = openers[r.Intn(len(openers))]
	})

	inv, err := s.engine.CreateInvitation(ctx, invitation.CreateInput{
		Inviter:  p.inviter.Wallet,
		Invitee:  p.invitee.Wallet,
		DateType: dt,
		Venue:    venue,
		Message:  fillOpener(opener, dt, venue),
	})
	if err != nil {
		return err
	}
	report.Created = append(report.Created, inv.ID)

	score, err := compat.Score(p.inviter.Personality, p.invitee.Personality, dt, venue)
	if err != nil {
		return err
	}
	var u float64
	s.withRand(func(r *rand.Rand) { u = r.Float64() })
	accept := u < compat.AcceptProbability(score)
	if accept {
		reply = "Sounds lovely, count me in."
	} else {
		reply = "Not this time, but thank you."
	}

	if _, err := s.engine.RespondToInvitation(ctx, inv.ID, p.invitee.Wallet, accept, reply); err != nil {
		return err
	}
	if accept {
		report.Accepted++
	} else {
		report.Declined++
	}
	slog.Debug("Autonomous date decided", "invitation_id", inv.ID, "score", score, "accepted", accept)
	return nil
}

func (s *Scheduler) withRand(fn func(r *rand.Rand)) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	fn(s.rnd)
}

// logRun persists the sweep status to sweep_runs (best-effort).
func (s *Scheduler) logRun(ctx context.Context, status, summary string) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordSweep(ctx, JobName, status, summary, s.now()); err != nil {
		slog.Debug("Sweep run not recorded", "error", err)
	}
}
