package domain

import "time"

// FreshnessTally counts batches and their available portions in one category.
type FreshnessTally struct {
	Batches  int `json:"batches"`
	Portions int `json:"portions"`
}

// OverviewByFreshness aggregates the batch collection by current freshness.
// It is derived on demand and never persisted.
type OverviewByFreshness struct {
	Fresh         FreshnessTally `json:"fresh"`
	ExpiringToday FreshnessTally `json:"expiring_today"`
	Expired       FreshnessTally `json:"expired"`
}

// Tally returns the counters for f.
func (o OverviewByFreshness) Tally(f Freshness) FreshnessTally {
	if t := o.slot(f); t != nil {
		return *t
	}
	return FreshnessTally{}
}

func (o *OverviewByFreshness) slot(f Freshness) *FreshnessTally {
	switch f {
	case FreshnessFresh:
		return &o.Fresh
	case FreshnessExpiringToday:
		return &o.ExpiringToday
	case FreshnessExpired:
		return &o.Expired
	default:
		return nil
	}
}

// AggregateOverview reduces batches into per-freshness counters evaluated at now.
func AggregateOverview(batches []Batch, now time.Time) OverviewByFreshness {
	var overview OverviewByFreshness
	for _, b := range batches {
		t := overview.slot(b.FreshnessAt(now))
		t.Batches++
		t.Portions += b.AvailableQuantity
	}
	return overview
}
