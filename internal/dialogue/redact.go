package dialogue

import (
	"regexp"
	"sort"
	"strings"
)

// Redactor masks contact details and credentials in generated lines before
// they are stored or published.
type Redactor struct {
	patterns []namedPattern
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var redactPatterns = map[string]string{
	"email":        `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
	"phone":        `(?:\+\d{1,3}[\s\-]?)?\(?\d{2,4}\)?[\s\-]\d{3,4}[\s\-]?\d{3,4}\b`,
	"url":          `\bhttps?://[^\s]+`,
	"api_key":      `\b(?:sk-[A-Za-z0-9]{20,}|AKIA[A-Z0-9]{16}|ghp_[A-Za-z0-9]{36}|xox[bpa]-[A-Za-z0-9\-]{10,})\b`,
	"bearer_token": `Bearer\s+[A-Za-z0-9\-._~+/]+=*`,
}

// NewRedactor builds a redactor for the named kinds; no names selects all.
// Unknown names are ignored.
func NewRedactor(kinds ...string) *Redactor {
	if len(kinds) == 0 {
		for k := range redactPatterns {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	r := &Redactor{}
	for _, k := range kinds {
		pattern, ok := redactPatterns[k]
		if !ok {
			continue
		}
		r.patterns = append(r.patterns, namedPattern{name: k, re: regexp.MustCompile(pattern)})
	}
	return r
}

// Redact replaces every match with [REDACTED:<KIND>].
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return text
	}
	for _, p := range r.patterns {
		text = p.re.ReplaceAllString(text, "[REDACTED:"+strings.ToUpper(p.name)+"]")
	}
	return text
}

// Found lists the kinds present in text.
func (r *Redactor) Found(text string) []string {
	if r == nil {
		return nil
	}
	var kinds []string
	for _, p := range r.patterns {
		if p.re.MatchString(text) {
			kinds = append(kinds, p.name)
		}
	}
	return kinds
}
