package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
)

// Amount is a token quantity in hundredths.
type Amount int64

// AmountFromFloat rounds f to the nearest hundredth.
func AmountFromFloat(f float64) Amount {
	return Amount(math.Round(f * 100))
}

// Float64 returns the amount in whole tokens.
func (a Amount) Float64() float64 {
	return float64(a) / 100
}

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseAmount parses a decimal string with at most two fractional digits.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperr.New(apperr.CodeInvalidAmount, fmt.Sprintf("invalid amount %q", s))
	}
	a := AmountFromFloat(f)
	if a.Float64() != f {
		return 0, apperr.New(apperr.CodeInvalidAmount, fmt.Sprintf("amount %q has more than two decimals", s))
	}
	return a, nil
}

// Currency names a token balance kept per wallet.
type Currency string

const (
	Love  Currency = "love"
	Pmon  Currency = "pmon"
	Charm Currency = "charm"
)

// Currencies returns every currency in display order.
func Currencies() []Currency {
	return []Currency{Love, Pmon, Charm}
}

// Valid reports whether c is a known currency.
func (c Currency) Valid() bool {
	switch c {
	case Love, Pmon, Charm:
		return true
	}
	return false
}

// ParseCurrency normalises and validates a currency name.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", apperr.New(apperr.CodeUnknownCurrency, fmt.Sprintf("unknown currency %q", s))
	}
	return c, nil
}

// Reason records why a ledger entry exists.
type Reason string

const (
	ReasonDateReward  Reason = "date_reward"
	ReasonAdminAward  Reason = "admin_award"
	ReasonStake       Reason = "stake"
	ReasonStakeRefund Reason = "stake_refund"
	ReasonStakeGift   Reason = "stake_gift"
	ReasonSpend       Reason = "spend"
)
