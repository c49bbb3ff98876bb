package scheduler

import (
	"strings"

	"github.com/LoveLedger/LoveLedger/internal/compat"
)

var openers = []string{
	"Would you like to join me for a {date} at the {venue}?",
	"I found a lovely {venue}. Fancy a {date} there?",
	"How about a {date} this week? I'm thinking the {venue}.",
	"The {venue} made me think of you. {Date} together?",
}

func fillOpener(tmpl string, dt compat.DateType, v compat.Venue) string {
	d := string(dt)
	title := strings.ToUpper(d[:1]) + d[1:]
	return strings.NewReplacer("{date}", d, "{Date}", title, "{venue}", string(v)).Replace(tmpl)
}
