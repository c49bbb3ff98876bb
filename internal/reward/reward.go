// Package reward turns a compatibility score into the rating and token
// payout of a completed date.
package reward

import (
	"math"
	"math/rand"
	"sync"

	"github.com/LoveLedger/LoveLedger/internal/compat"
	"github.com/LoveLedger/LoveLedger/internal/store"
)

// Source supplies uniform values in [0,1).
type Source interface {
	Float64() float64
}

// Config tunes the rating draw.
type Config struct {
	Exchanges int     // ratings averaged per date
	Noise     float64 // half-width of the symmetric rating noise
}

// DefaultConfig returns three exchanges with ±1 noise.
func DefaultConfig() Config {
	return Config{Exchanges: 3, Noise: 1}
}

// Input describes the date being rewarded.
type Input struct {
	Inviter  compat.Personality
	Invitee  compat.Personality
	DateType compat.DateType
	Venue    compat.Venue
}

// Calculator computes rewards. It is safe for concurrent use.
type Calculator struct {
	cfg Config

	mu  sync.Mutex
	src Source
}

// New returns a calculator drawing from src.
func New(cfg Config, src Source) *Calculator {
	if cfg.Exchanges <= 0 {
		cfg.Exchanges = DefaultConfig().Exchanges
	}
	if cfg.Noise < 0 {
		cfg.Noise = 0
	}
	return &Calculator{cfg: cfg, src: src}
}

// NewSeeded returns a calculator over a math/rand source with the given seed.
func NewSeeded(cfg Config, seed int64) *Calculator {
	return New(cfg, rand.New(rand.NewSource(seed)))
}

// Compute scores the pair and draws the rating. Unknown personalities, date
// types or venues fail with the matching validation error.
func (c *Calculator) Compute(in Input) (store.Rewards, error) {
	score, err := compat.Score(in.Inviter, in.Invitee, in.DateType, in.Venue)
	if err != nil {
		return store.Rewards{}, err
	}

	center := 1 + 4*score
	c.mu.Lock()
	sum := 0.0
	for i := 0; i < c.cfg.Exchanges; i++ {
		u := c.src.Float64()
		sum += clamp(center+(2*u-1)*c.cfg.Noise, 1, 5)
	}
	c.mu.Unlock()

	avg := round2(sum / float64(c.cfg.Exchanges))
	return store.Rewards{
		AverageRating: avg,
		PmonAwarded:   round2(compat.BasePmon(in.DateType) * avg / 5),
		CharmAwarded:  round2(compat.BaseCharm(in.DateType, in.Venue) * score),
		Compatibility: round2(score),
	}, nil
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
