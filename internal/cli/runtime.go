package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/bus"
	"github.com/LoveLedger/LoveLedger/internal/config"
	"github.com/LoveLedger/LoveLedger/internal/dialogue"
	"github.com/LoveLedger/LoveLedger/internal/engine"
	"github.com/LoveLedger/LoveLedger/internal/invitation"
	"github.com/LoveLedger/LoveLedger/internal/notify"
	"github.com/LoveLedger/LoveLedger/internal/provider"
	"github.com/LoveLedger/LoveLedger/internal/registry"
	"github.com/LoveLedger/LoveLedger/internal/reward"
	"github.com/LoveLedger/LoveLedger/internal/scheduler"
	"github.com/LoveLedger/LoveLedger/internal/store"
	"github.com/spf13/cobra"
)

// loadConfigFn is swapped in tests.
var loadConfigFn = config.Load

// app is the wired runtime shared by every command.
type app struct {
	cfg      *config.Config
	store    *store.Store
	roster   *registry.FileRegistry
	registry *registry.Cached
	events   *bus.EventBus
	engine   *engine.Engine
	closers  []io.Closer
}

// openApp loads config, opens the store and roster and wires the engine.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfigFn()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Log))

	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}
	roster, err := registry.LoadFile(cfg.Paths.Roster)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load roster (create %s first): %w", cfg.Paths.Roster, err)
	}
	cached, err := registry.NewCached(roster, 0)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    st,
		roster:   roster,
		registry: cached,
		events:   bus.New(cfg.Notify.BusBuffer),
	}
	a.attachSinks()

	rewards := reward.NewSeeded(reward.Config{
		Exchanges: cfg.Economy.RewardExchanges,
		Noise:     cfg.Economy.RewardNoise,
	}, rewardSeed(cfg.Economy.RewardSeed))

	eng, err := engine.New(engine.Options{
		Store:    st,
		Registry: cached,
		Rewards:  rewards,
		Dialogue: newOrchestrator(cfg),
		Events:   a.events,
		Invitation: invitation.Config{
			TTL:              cfg.Economy.InvitationTTL,
			MaxMessageLength: cfg.Economy.MaxMessageLength,
			AffinityAlpha:    cfg.Economy.AffinityAlpha,
		},
		ResolveBatch: cfg.Scheduler.ResolveBatch,
	})
	if err != nil {
		a.Close(cmd.Context())
		return nil, err
	}
	a.engine = eng
	return a, nil
}

// attachSinks subscribes the configured notification sinks. A sink that
// cannot be built is logged and skipped.
func (a *app) attachSinks() {
	n := a.cfg.Notify
	if n.LogEvents {
		notify.Attach(a.events, notify.LogSink{})
	}
	if n.Kafka.Enabled {
		sink, err := notify.NewKafkaSink(a.kafkaConfig())
		if err != nil {
			slog.Warn("Kafka sink disabled", "error", err)
		} else {
			notify.Attach(a.events, sink)
			a.closers = append(a.closers, sink)
		}
	}
	if n.Slack.Enabled {
		sink, err := notify.NewSlackSink(notify.SlackConfig{
			Token:   n.Slack.Token,
			Channel: n.Slack.Channel,
			APIBase: n.Slack.APIBase,
		})
		if err != nil {
			slog.Warn("Slack sink disabled", "error", err)
		} else {
			notify.Attach(a.events, sink)
		}
	}
}

func (a *app) kafkaConfig() notify.KafkaConfig {
	return notify.KafkaConfig{
		Brokers: a.cfg.Notify.Kafka.Brokers,
		Topic:   a.cfg.Notify.Kafka.Topic,
		GroupID: a.cfg.Notify.Kafka.GroupID,
		Timeout: 10 * time.Second,
	}
}

// newScheduler builds the sweep scheduler over the app's engine.
func (a *app) newScheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		Enabled:            a.cfg.Scheduler.Enabled,
		TickInterval:       a.cfg.Scheduler.TickInterval,
		MaxPairsPerTick:    a.cfg.Scheduler.MaxPairsPerTick,
		SaturationAffinity: a.cfg.Economy.SaturationAffinity,
		LockPath:           a.cfg.Paths.LockFile,
	}, a.engine, a.store, scheduler.WithEvents(a.events))
}

// Close delivers buffered events, then releases sinks and the store.
func (a *app) Close(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	a.events.Drain(ctx)
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Warn("Close sink failed", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Close store failed", "error", err)
	}
}

func newOrchestrator(cfg *config.Config) *dialogue.Orchestrator {
	dcfg := dialogue.Config{Turns: cfg.Dialogue.Turns, TurnTimeout: cfg.Dialogue.TurnTimeout}
	if cfg.Dialogue.Generator != "provider" {
		return dialogue.NewOrchestrator(dialogue.FixtureGenerator{}, dcfg)
	}
	if cfg.Providers.OpenAI.APIKey == "" {
		slog.Warn("Dialogue provider selected without an API key, using fixture lines")
		return dialogue.NewOrchestrator(dialogue.FixtureGenerator{}, dcfg)
	}
	llm := provider.NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Dialogue.Model)
	pcfg := dialogue.ProviderConfig{
		Model:         cfg.Dialogue.Model,
		Temperature:   cfg.Dialogue.Temperature,
		MaxTokens:     cfg.Dialogue.MaxTokens,
		RatePerSecond: cfg.Dialogue.RatePerSecond,
		Burst:         cfg.Dialogue.Burst,
	}
	if cfg.Dialogue.Redact {
		pcfg.Redactor = dialogue.NewRedactor()
	}
	gen := dialogue.NewProviderGenerator(llm, pcfg)
	return dialogue.NewOrchestrator(gen, dcfg)
}

func rewardSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// newLogger builds the slog handler named by cfg.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
