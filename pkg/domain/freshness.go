package domain

import (
	"fmt"
	"strings"
	"time"
)

// Freshness is the time-derived classification of a batch. It is never stored
// on a batch and must be recomputed against the current instant.
type Freshness string

const (
	// FreshnessFresh means the batch expires 24 hours or more from now.
	FreshnessFresh Freshness = "Fresh"
	// FreshnessExpiringToday means the batch expires within the next 24 hours.
	FreshnessExpiringToday Freshness = "ExpiringToday"
	// FreshnessExpired means the expiration instant has passed.
	FreshnessExpired Freshness = "Expired"
)

// ExpiringWindow is the rolling window, measured from now, that counts as
// "expiring today". It is not aligned to calendar days.
const ExpiringWindow = 24 * time.Hour

// Freshnesses lists every category in overview order.
var Freshnesses = []Freshness{FreshnessFresh, FreshnessExpiringToday, FreshnessExpired}

// Classify maps an expiration instant to its freshness at now.
func Classify(expiration, now time.Time) Freshness {
	switch {
	case now.After(expiration):
		return FreshnessExpired
	case expiration.Before(now.Add(ExpiringWindow)):
		return FreshnessExpiringToday
	default:
		return FreshnessFresh
	}
}

// ParseFreshness resolves a freshness name case-insensitively. Separators such
// as "Expiring Today" or "expiring_today" are accepted.
func ParseFreshness(raw string) (Freshness, error) {
	norm := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(raw))
	for _, f := range Freshnesses {
		if strings.EqualFold(norm, string(f)) {
			return f, nil
		}
	}
	return "", ValidationError{Reason: fmt.Sprintf("unknown freshness %q", raw)}
}

// Valid reports whether f is one of the three categories.
func (f Freshness) Valid() bool {
	for _, known := range Freshnesses {
		if f == known {
			return true
		}
	}
	return false
}
