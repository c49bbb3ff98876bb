// Package dialogue produces the conversation of a resolved date, one turn at
// a time, from a pluggable Generator.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/provider"
	"github.com/LoveLedger/LoveLedger/internal/store"
)

// MaxTurnLength bounds one generated line, in runes.
const MaxTurnLength = 280

// ErrMalformedTurn is returned when generated text is not a usable line.
var ErrMalformedTurn = errors.New("malformed turn")

// TurnContext is everything a generator sees when voicing one turn.
type TurnContext struct {
	Index              int
	Speaker            store.Speaker
	SpeakerName        string
	SpeakerPersonality compat.Personality
	PartnerName        string
	PartnerPersonality compat.Personality
	DateType           compat.DateType
	Venue              compat.Venue
	Compatibility      float64
	Opener             string
	Transcript         []store.Turn
}

// Generator voices a single conversation turn.
type Generator interface {
	GenerateTurn(ctx context.Context, tc TurnContext) (string, error)
}

// ProviderConfig tunes ProviderGenerator.
type ProviderConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// RatePerSecond throttles completion calls across all dates; zero disables it.
	RatePerSecond float64
	Burst         int
	// Redactor masks contact details in model output; nil leaves lines as generated.
	Redactor *Redactor
}

// ProviderGenerator voices turns through a chat completion API.
type ProviderGenerator struct {
	llm     provider.LLMProvider
	cfg     ProviderConfig
	limiter *rate.Limiter
}

// NewProviderGenerator wraps llm.
func NewProviderGenerator(llm provider.LLMProvider, cfg ProviderConfig) *ProviderGenerator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 120
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.9
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return &ProviderGenerator{llm: llm, cfg: cfg, limiter: limiter}
}

// GenerateTurn asks the model for the next line of the speaker.
func (g *ProviderGenerator) GenerateTurn(ctx context.Context, tc TurnContext) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(apperr.CodeDialogueUnavailable, "wait for dialogue rate limit", err)
	}
	req := &provider.ChatRequest{
		Messages:    buildMessages(tc),
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}
	resp, err := g.llm.Chat(ctx, req)
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && apiErr.Retryable() {
		// One retry for throttling and server errors; the orchestrator falls back after that.
		slog.Debug("Dialogue turn retrying", "speaker", tc.SpeakerName, "status", apiErr.StatusCode)
		resp, err = g.llm.Chat(ctx, req)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.CodeDialogueUnavailable, "generate turn", err)
	}
	line, err := CleanTurn(resp.Content, tc.SpeakerName)
	if err != nil {
		return "", err
	}
	if kinds := g.cfg.Redactor.Found(line); len(kinds) > 0 {
		slog.Debug("Dialogue turn redacted", "speaker", tc.SpeakerName, "kinds", kinds)
		line = g.cfg.Redactor.Redact(line)
	}
	return line, nil
}

func unquote(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\""))
}

func buildMessages(tc TurnContext) []provider.Message {
	system := fmt.Sprintf(
		"You are %s, a %s agent on a %s date at the %s with %s, who is %s. "+
			"Your compatibility is %.0f%%. Reply with one short line of dialogue, no name prefix, no stage directions.",
		tc.SpeakerName, tc.SpeakerPersonality, tc.DateType, tc.Venue, tc.PartnerName, tc.PartnerPersonality,
		tc.Compatibility*100)
	msgs := []provider.Message{{Role: "system", Content: system}}
	if tc.Opener != "" {
		msgs = append(msgs, provider.Message{Role: "user", Content: "The invitation said: " + tc.Opener})
	}
	for _, t := range tc.Transcript {
		role := "user"
		if t.Speaker == tc.Speaker {
			role = "assistant"
		}
		msgs = append(msgs, provider.Message{Role: role, Content: t.Message})
	}
	if len(tc.Transcript) == 0 {
		msgs = append(msgs, provider.Message{Role: "user", Content: "Start the conversation."})
	}
	return msgs
}

// CleanTurn trims generated text, strips a leading speaker label and checks
// that one non-empty line of at most MaxTurnLength runes remains.
func CleanTurn(raw, speakerName string) (string, error) {
	s := unquote(raw)
	for _, prefix := range []string{speakerName + ":", "Inviter:", "Invitee:", "inviter:", "invitee:"} {
		if prefix != ":" && strings.HasPrefix(s, prefix) {
			s = unquote(strings.TrimPrefix(s, prefix))
			break
		}
	}
	switch {
	case s == "":
		return "", fmt.Errorf("%w: empty", ErrMalformedTurn)
	case strings.ContainsAny(s, "\r\n"):
		return "", fmt.Errorf("%w: more than one line", ErrMalformedTurn)
	case utf8.RuneCountInString(s) > MaxTurnLength:
		return "", fmt.Errorf("%w: longer than %d characters", ErrMalformedTurn, MaxTurnLength)
	}
	return s, nil
}
