// Package loyalty summarizes a customer's sessions across brands.
package loyalty

import (
	"github.com/Gobusters/ectolinq"

	"github.com/blessingk/neo4j/pkg/models"
)

// Compute aggregates sessions into loyalty metrics. Sessions are counted once per
// id and brands once per Brand node; a session with no brand edge adds no brand.
func Compute(sessions []models.SessionWithBrand) models.LoyaltyMetrics {
	metrics := models.LoyaltyMetrics{}
	if len(sessions) == 0 {
		return metrics
	}

	seen := map[string]struct{}{}
	brands := map[string]struct{}{}
	var latest *models.SessionWithBrand

	for i := range sessions {
		s := &sessions[i]
		if _, dup := seen[sessionKey(s.Session)]; dup {
			continue
		}
		seen[sessionKey(s.Session)] = struct{}{}

		if s.Brand != nil && s.Brand.ID != "" {
			brands[s.Brand.ID] = struct{}{}
		}
		if latest == nil || s.Session.LastSeenAt.After(latest.Session.LastSeenAt) {
			latest = s
		}
	}

	metrics.TotalSessions = len(seen)
	metrics.TotalBrands = len(brands)
	metrics.CrossBrandActivity = metrics.TotalBrands > 1

	if latest != nil && !latest.Session.LastSeenAt.IsZero() {
		last := latest.Session.LastSeenAt
		metrics.LastActivity = &last
	}
	if latest != nil {
		metrics.LastBrand = latest.Brand
	}
	return metrics
}

// DistinctBrands returns each brand once, in first-seen order. Sessions with no
// resolved brand are skipped.
func DistinctBrands(sessions []models.SessionWithBrand) []models.Brand {
	withBrand := ectolinq.Filter(sessions, func(s models.SessionWithBrand) bool {
		return s.Brand != nil
	})

	out := []models.Brand{}
	ids := []string{}
	for _, b := range ectolinq.Map(withBrand, func(s models.SessionWithBrand) models.Brand { return *s.Brand }) {
		if ectolinq.Contains(ids, b.ID) {
			continue
		}
		ids = append(ids, b.ID)
		out = append(out, b)
	}
	return out
}

// Matches reports whether metrics pass every set filter.
func Matches(metrics models.LoyaltyMetrics, filters models.LoyaltyFilters) bool {
	if filters.CrossBrandOnly && !metrics.CrossBrandActivity {
		return false
	}
	if filters.MinSessions > 0 && metrics.TotalSessions < filters.MinSessions {
		return false
	}
	if filters.MinBrands > 0 && metrics.TotalBrands < filters.MinBrands {
		return false
	}
	return true
}

func sessionKey(s models.Session) string {
	return ectolinq.Ternary(s.ID != "", s.ID, s.InternalSessionID)
}
