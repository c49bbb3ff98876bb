// Package config provides configuration types and loading for loveledger.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Economy, Scheduler, Dialogue, Providers, Notify, Log.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Economy   EconomyConfig   `json:"economy"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dialogue  DialogueConfig  `json:"dialogue"`
	Providers ProvidersConfig `json:"providers"`
	Notify    NotifyConfig    `json:"notify"`
	Log       LogConfig       `json:"log"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Database string `json:"database" envconfig:"DATABASE"`
	Roster   string `json:"roster" envconfig:"ROSTER"`
	LockFile string `json:"lockFile" envconfig:"LOCK_FILE"`
}

// ---------------------------------------------------------------------------
// Economy – lifecycle and reward tuning
// ---------------------------------------------------------------------------

// EconomyConfig groups invitation lifecycle and reward settings.
type EconomyConfig struct {
	InvitationTTL    time.Duration `json:"invitationTTL" envconfig:"INVITATION_TTL"`
	MaxMessageLength int           `json:"maxMessageLength" envconfig:"MAX_MESSAGE_LENGTH"`
	AffinityAlpha    float64       `json:"affinityAlpha" envconfig:"AFFINITY_ALPHA"`
	// SaturationAffinity stops autonomous matchmaking of a pair at or above this affinity.
	SaturationAffinity float64 `json:"saturationAffinity" envconfig:"SATURATION_AFFINITY"`
	RewardExchanges    int     `json:"rewardExchanges" envconfig:"REWARD_EXCHANGES"`
	RewardNoise        float64 `json:"rewardNoise" envconfig:"REWARD_NOISE"`
	// RewardSeed makes reward draws reproducible when non-zero.
	RewardSeed int64 `json:"rewardSeed,omitempty" envconfig:"REWARD_SEED"`
}

// ---------------------------------------------------------------------------
// Scheduler – periodic auto-date sweep
// ---------------------------------------------------------------------------

// SchedulerConfig contains settings for the sweep loop.
type SchedulerConfig struct {
	Enabled         bool          `json:"enabled" envconfig:"ENABLED"`
	TickInterval    time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	MaxPairsPerTick int           `json:"maxPairsPerTick" envconfig:"MAX_PAIRS_PER_TICK"`
	ResolveBatch    int           `json:"resolveBatch" envconfig:"RESOLVE_BATCH"`
}

// ---------------------------------------------------------------------------
// Dialogue – conversation generation
// ---------------------------------------------------------------------------

// DialogueConfig selects and tunes the dialogue generator.
type DialogueConfig struct {
	Generator     string        `json:"generator" envconfig:"GENERATOR"` // "fixture" or "provider"
	Turns         int           `json:"turns" envconfig:"TURNS"`
	TurnTimeout   time.Duration `json:"turnTimeout" envconfig:"TURN_TIMEOUT"`
	Model         string        `json:"model" envconfig:"MODEL"`
	Temperature   float64       `json:"temperature" envconfig:"TEMPERATURE"`
	MaxTokens     int           `json:"maxTokens" envconfig:"MAX_TOKENS"`
	RatePerSecond float64       `json:"ratePerSecond" envconfig:"RATE_PER_SECOND"`
	Burst         int           `json:"burst" envconfig:"BURST"`
	// Redact masks emails, phone numbers, links and credentials in generated lines.
	Redact bool `json:"redact" envconfig:"REDACT"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Notify – event sinks
// ---------------------------------------------------------------------------

// NotifyConfig configures where events go.
type NotifyConfig struct {
	BusBuffer int         `json:"busBuffer" envconfig:"BUS_BUFFER"`
	LogEvents bool        `json:"logEvents" envconfig:"LOG_EVENTS"`
	Kafka     KafkaConfig `json:"kafka"`
	Slack     SlackConfig `json:"slack"`
}

// KafkaConfig configures the event topic.
type KafkaConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
	GroupID string `json:"groupId" envconfig:"GROUP_ID"`
}

// SlackConfig configures completed-date summaries.
type SlackConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Token   string `json:"token" envconfig:"TOKEN"`
	Channel string `json:"channel" envconfig:"CHANNEL"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Log
// ---------------------------------------------------------------------------

// LogConfig sets the slog handler of long-running commands.
type LogConfig struct {
	Level  string `json:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"FORMAT"` // text or json
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Database: "~/.loveledger/loveledger.db",
			Roster:   "~/.loveledger/agents.yaml",
			LockFile: "~/.loveledger/scheduler.lock",
		},
		Economy: EconomyConfig{
			InvitationTTL:      24 * time.Hour,
			MaxMessageLength:   280,
			AffinityAlpha:      0.3,
			SaturationAffinity: 4.5,
			RewardExchanges:    3,
			RewardNoise:        1,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			TickInterval:    3 * time.Minute,
			MaxPairsPerTick: 5,
			ResolveBatch:    100,
		},
		Dialogue: DialogueConfig{
			Generator:     "fixture",
			Turns:         4,
			TurnTimeout:   15 * time.Second,
			Model:         "gpt-4o-mini",
			Temperature:   0.9,
			MaxTokens:     120,
			RatePerSecond: 2,
			Burst:         4,
			Redact:        true,
		},
		Notify: NotifyConfig{
			BusBuffer: 256,
			LogEvents: true,
			Kafka: KafkaConfig{
				Topic:   "loveledger.events",
				GroupID: "loveledger-tail",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
