// Package wallet validates and normalises EVM-style wallet addresses.
package wallet

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/LoveLedger/LoveLedger/internal/apperr"
)

var addressRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Normalize trims and lower-cases an address and checks its shape.
func Normalize(addr string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(addr))
	if !addressRe.MatchString(a) {
		return "", apperr.New(apperr.CodeInvalidWallet, fmt.Sprintf("invalid wallet address %q", addr))
	}
	return a, nil
}

// PairKey is the order-independent key for two normalised wallets.
func PairKey(a, b string) string {
	lo, hi := Order(a, b)
	return lo + ":" + hi
}

// Order returns the two wallets lexicographically sorted.
func Order(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
