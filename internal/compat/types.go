package compat

import (
	"fmt"
	"strings"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
)

// Personality is the categorical tag indexing the compatibility matrix.
type Personality string

const (
	Romantic     Personality = "romantic"
	Adventurous  Personality = "adventurous"
	Intellectual Personality = "intellectual"
	Playful      Personality = "playful"
	Mysterious   Personality = "mysterious"
	Chill        Personality = "chill"
)

// DateType is the kind of date; each has its own base rewards.
type DateType string

const (
	Coffee    DateType = "coffee"
	Casual    DateType = "casual"
	Dinner    DateType = "dinner"
	Adventure DateType = "adventure"
)

// Venue is where a date happens.
type Venue string

const (
	Cafe    Venue = "cafe"
	Park    Venue = "park"
	Rooftop Venue = "rooftop"
	Beach   Venue = "beach"
	Arcade  Venue = "arcade"
	Gallery Venue = "gallery"
)

// Personalities returns every known personality in matrix order.
func Personalities() []Personality {
	return []Personality{Romantic, Adventurous, Intellectual, Playful, Mysterious, Chill}
}

// DateTypes returns every known date type.
func DateTypes() []DateType {
	return []DateType{Coffee, Casual, Dinner, Adventure}
}

// Venues returns every known venue.
func Venues() []Venue {
	return []Venue{Cafe, Park, Rooftop, Beach, Arcade, Gallery}
}

func (p Personality) index() int {
	switch p {
	case Romantic:
		return 0
	case Adventurous:
		return 1
	case Intellectual:
		return 2
	case Playful:
		return 3
	case Mysterious:
		return 4
	case Chill:
		return 5
	}
	return -1
}

func (d DateType) index() int {
	switch d {
	case Coffee:
		return 0
	case Casual:
		return 1
	case Dinner:
		return 2
	case Adventure:
		return 3
	}
	return -1
}

func (v Venue) index() int {
	switch v {
	case Cafe:
		return 0
	case Park:
		return 1
	case Rooftop:
		return 2
	case Beach:
		return 3
	case Arcade:
		return 4
	case Gallery:
		return 5
	}
	return -1
}

// Valid reports whether p is a known personality.
func (p Personality) Valid() bool { return p.index() >= 0 }

// Valid reports whether d is a known date type.
func (d DateType) Valid() bool { return d.index() >= 0 }

// Valid reports whether v is a known venue.
func (v Venue) Valid() bool { return v.index() >= 0 }

// ParsePersonality normalises and validates a personality tag.
func ParsePersonality(s string) (Personality, error) {
	p := Personality(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", apperr.New(apperr.CodeUnknownPersonality, fmt.Sprintf("unknown personality %q", s))
	}
	return p, nil
}

// ParseDateType normalises and validates a date type.
func ParseDateType(s string) (DateType, error) {
	d := DateType(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", apperr.New(apperr.CodeUnknownDateType, fmt.Sprintf("unknown date type %q", s))
	}
	return d, nil
}

// ParseVenue normalises and validates a venue.
func ParseVenue(s string) (Venue, error) {
	v := Venue(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", apperr.New(apperr.CodeUnknownVenue, fmt.Sprintf("unknown venue %q", s))
	}
	return v, nil
}
