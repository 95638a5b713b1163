package domain

import (
	"fmt"
	"strings"
)

// Tier is a subscription level. Higher tiers unlock more topics and
// receive every send addressed to a lower tier.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierPro     Tier = "PRO"
	TierPremium Tier = "PREMIUM"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierFree, TierPro, TierPremium}

// Rank orders tiers. Unknown tiers rank below FREE.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 0
	case TierPro:
		return 1
	case TierPremium:
		return 2
	default:
		return -1
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Label is the human-readable badge text.
func (t Tier) Label() string {
	switch t {
	case TierPro:
		return "Pro"
	case TierPremium:
		return "Premium"
	default:
		return "Free"
	}
}

// Receives reports whether a subscriber on tier t gets a send that
// targets the given tier.
func (t Tier) Receives(target Tier) bool {
	return t.Valid() && target.Valid() && t.Rank() >= target.Rank()
}

// Inclusion returns the tiers that receive a send targeting t.
//
//	FREE    -> FREE, PRO, PREMIUM
//	PRO     -> PRO, PREMIUM
//	PREMIUM -> PREMIUM
func Inclusion(target Tier) []Tier {
	out := make([]Tier, 0, len(Tiers))
	for _, t := range Tiers {
		if t.Receives(target) {
			out = append(out, t)
		}
	}
	return out
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}
