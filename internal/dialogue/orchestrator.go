package dialogue

import (
	"context"
	"log/slog"
	"time"

	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/store"
)

// Config sets the conversation shape.
type Config struct {
	Turns       int
	TurnTimeout time.Duration
}

// DefaultConfig returns four turns with a 15 second budget each.
func DefaultConfig() Config {
	return Config{Turns: 4, TurnTimeout: 15 * time.Second}
}

// Participant is one side of the date as the generator sees it.
type Participant struct {
	Name        string
	Personality compat.Personality
}

// Orchestrator runs a fixed number of alternating turns. A turn that fails
// or times out is replaced with a fallback line; a conversation is always
// produced.
type Orchestrator struct {
	gen Generator
	cfg Config
}

// NewOrchestrator creates an Orchestrator over gen.
func NewOrchestrator(gen Generator, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Turns <= 0 {
		cfg.Turns = def.Turns
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = def.TurnTimeout
	}
	return &Orchestrator{gen: gen, cfg: cfg}
}

// Generate produces the conversation for inv, the inviter speaking first.
func (o *Orchestrator) Generate(ctx context.Context, inv *store.Invitation, inviter, invitee Participant, score float64) []store.Turn {
	turns := make([]store.Turn, 0, o.cfg.Turns)
	fallbacks := 0
	for i := 0; i < o.cfg.Turns; i++ {
		speaker, self, partner := store.SpeakerInviter, inviter, invitee
		if i%2 == 1 {
			speaker, self, partner = store.SpeakerInvitee, invitee, inviter
		}
		tc := TurnContext{
			Index:              i,
			Speaker:            speaker,
			SpeakerName:        self.Name,
			SpeakerPersonality: self.Personality,
			PartnerName:        partner.Name,
			PartnerPersonality: partner.Personality,
			DateType:           inv.DateType,
			Venue:              inv.Venue,
			Compatibility:      score,
			Opener:             inv.Message,
			Transcript:         append([]store.Turn(nil), turns...),
		}

		text, err := o.turn(ctx, tc)
		if err != nil {
			slog.Warn("Dialogue turn failed, using fallback", "invitation_id", inv.ID, "turn", i, "error", err)
			turns = append(turns, store.Turn{Speaker: speaker, Message: FallbackLine(i, tc), Fallback: true})
			fallbacks++
			continue
		}
		turns = append(turns, store.Turn{Speaker: speaker, Message: text})
	}
	if fallbacks > 0 {
		slog.Info("Dialogue generated with fallbacks", "invitation_id", inv.ID, "turns", len(turns), "fallbacks", fallbacks)
	}
	return turns
}

func (o *Orchestrator) turn(ctx context.Context, tc TurnContext) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()
	text, err := o.gen.GenerateTurn(tctx, tc)
	if err != nil {
		return "", err
	}
	return CleanTurn(text, tc.SpeakerName)
}
