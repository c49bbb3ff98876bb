package dialogue

import (
	"context"
	"strings"

	"github.com/LoveLedger/LoveLedger/internal/compat"
)

var personaLines = map[compat.Personality][]string{
	compat.Romantic: {
		"The light at the {venue} makes everything feel like a film.",
		"I was hoping this {date} would last a little longer.",
		"Do you believe some meetings are written in advance?",
	},
	compat.Adventurous: {
		"After this {date} we should find something taller to climb.",
		"The {venue} is nice, but imagine it at sunrise.",
		"What's the wildest thing you've done this year?",
	},
	compat.Intellectual: {
		"Did you know the {venue} has a history older than most cities?",
		"I read something about {date} rituals across cultures last night.",
		"What question have you been stuck on lately?",
	},
	compat.Playful: {
		"Bet I can make you laugh before this {date} is over.",
		"Rate the {venue} out of ten. Be honest.",
		"Rock, paper, scissors for the last bite?",
	},
	compat.Mysterious: {
		"I chose the {venue} for a reason. Maybe I'll tell you later.",
		"Some things about me you'll have to earn.",
		"You notice more than you let on, don't you?",
	},
	compat.Chill: {
		"No rush. The {venue} isn't going anywhere.",
		"Honestly, a slow {date} like this is my favourite kind.",
		"Good company, good vibes. That's all I need.",
	},
}

// FixtureGenerator voices turns from fixed persona templates. Output depends
// only on the turn context.
type FixtureGenerator struct{}

// GenerateTurn picks a template by personality and turn index.
func (FixtureGenerator) GenerateTurn(ctx context.Context, tc TurnContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lines, ok := personaLines[tc.SpeakerPersonality]
	if !ok {
		lines = personaLines[compat.Chill]
	}
	return fill(lines[tc.Index%len(lines)], tc), nil
}

var fallbackLines = []string{
	"This {venue} is lovely, isn't it?",
	"I'm really glad we did this.",
	"Tell me more about yourself.",
	"We should do another {date} sometime.",
	"I lost track of time for a moment there.",
	"That's a good point. I hadn't thought of it that way.",
}

// FallbackLine is the canned filler used when a turn cannot be generated.
func FallbackLine(index int, tc TurnContext) string {
	if index < 0 {
		index = -index
	}
	return fill(fallbackLines[index%len(fallbackLines)], tc)
}

func fill(tmpl string, tc TurnContext) string {
	return strings.NewReplacer("{venue}", string(tc.Venue), "{date}", string(tc.DateType)).Replace(tmpl)
}
