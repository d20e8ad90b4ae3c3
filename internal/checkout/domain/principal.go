package domain

import "strings"

// Principal is the authenticated shopper as resolved by the identity provider.
// It is passed explicitly through every call that needs it.
type Principal struct {
	UserID string
	Email  string
	Plans  []string
}

func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.UserID) != ""
}

// HasPlan reports whether the shopper holds the named membership tier.
func (p Principal) HasPlan(tier string) bool {
	tier = strings.TrimSpace(tier)
	if tier == "" {
		return false
	}
	for _, plan := range p.Plans {
		if strings.EqualFold(strings.TrimSpace(plan), tier) {
			return true
		}
	}
	return false
}
