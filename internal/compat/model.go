// Package compat implements the personality compatibility model and the fixed
// reward weight tables for date types and venues.
package compat

import (
	"fmt"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
)

// Lookup tables are indexed by the enum index() helpers and never written
// after package initialisation.

// pairBase is symmetric; the diagonal is the self-pairing score.
var pairBase = [6][6]float64{
	//  rom   adv   int   pla   mys   chi
	{0.90, 0.60, 0.55, 0.70, 0.80, 0.65}, // romantic
	{0.60, 0.75, 0.50, 0.85, 0.60, 0.45}, // adventurous
	{0.55, 0.50, 0.80, 0.45, 0.75, 0.60}, // intellectual
	{0.70, 0.85, 0.45, 0.80, 0.50, 0.70}, // playful
	{0.80, 0.60, 0.75, 0.50, 0.65, 0.55}, // mysterious
	{0.65, 0.45, 0.60, 0.70, 0.55, 0.85}, // chill
}

// dateTypeMod[dateType][personality]
var dateTypeMod = [4][6]float64{
	{0.00, -0.03, 0.05, 0.00, 0.02, 0.04},  // coffee
	{-0.02, 0.02, 0.00, 0.04, -0.01, 0.05}, // casual
	{0.05, -0.02, 0.03, -0.01, 0.04, 0.00}, // dinner
	{0.01, 0.05, -0.03, 0.04, 0.02, -0.04}, // adventure
}

// venueMod[venue][personality]
var venueMod = [6][6]float64{
	{0.01, -0.02, 0.04, 0.00, 0.02, 0.03},  // cafe
	{0.02, 0.03, 0.00, 0.03, -0.01, 0.04},  // park
	{0.05, 0.02, 0.01, 0.00, 0.04, 0.00},   // rooftop
	{0.03, 0.04, -0.02, 0.04, 0.00, 0.05},  // beach
	{-0.03, 0.03, -0.01, 0.05, -0.02, 0.02}, // arcade
	{0.02, -0.03, 0.05, -0.02, 0.05, 0.01}, // gallery
}

var basePmon = [4]float64{5, 10, 20, 30}

var baseCharm = [4]float64{2, 4, 8, 10}

var venueCharm = [6]float64{1.0, 1.0, 1.5, 1.25, 1.1, 1.2}

// Score returns the compatibility of two personalities on a date of the given
// type at the given venue, in [0,1]. Score(a,b,...) == Score(b,a,...).
func Score(a, b Personality, dt DateType, v Venue) (float64, error) {
	ia, ib := a.index(), b.index()
	if ia < 0 {
		return 0, apperr.New(apperr.CodeUnknownPersonality, fmt.Sprintf("unknown personality %q", a))
	}
	if ib < 0 {
		return 0, apperr.New(apperr.CodeUnknownPersonality, fmt.Sprintf("unknown personality %q", b))
	}
	id, iv := dt.index(), v.index()
	if id < 0 {
		return 0, apperr.New(apperr.CodeUnknownDateType, fmt.Sprintf("unknown date type %q", dt))
	}
	if iv < 0 {
		return 0, apperr.New(apperr.CodeUnknownVenue, fmt.Sprintf("unknown venue %q", v))
	}

	// Two-operand sums keep the result bit-identical when a and b swap.
	dm := dateTypeMod[id][ia] + dateTypeMod[id][ib]
	vm := venueMod[iv][ia] + venueMod[iv][ib]
	return clamp01(pairBase[ia][ib] + dm + vm), nil
}

// BasePmon is the pMON paid for a perfect (5.0) rating on a date type.
// Unknown date types pay nothing.
func BasePmon(dt DateType) float64 {
	i := dt.index()
	if i < 0 {
		return 0
	}
	return basePmon[i]
}

// BaseCharm is the charm paid for a fully compatible pair on a date type at a venue.
func BaseCharm(dt DateType, v Venue) float64 {
	id, iv := dt.index(), v.index()
	if id < 0 || iv < 0 {
		return 0
	}
	return baseCharm[id] * venueCharm[iv]
}

// AcceptProbability is the chance an autonomous invitee accepts a date with
// the given compatibility.
func AcceptProbability(score float64) float64 {
	return 0.15 + 0.8*clamp01(score)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
