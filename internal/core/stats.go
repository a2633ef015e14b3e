package core

import (
	"context"
	"math"
	"sort"
)

// DashboardStats summarises an admin's listings and the lead inbox.
type DashboardStats struct {
	Total       int                  `json:"total"`
	Published   int                  `json:"published"`
	Unpublished int                  `json:"unpublished"`
	Featured    int                  `json:"featured"`
	ByType      map[PropertyType]int `json:"by_type"`
	ByOperation map[Operation]int    `json:"by_operation"`
	Leads       int                  `json:"leads"`
}

// DashboardStats counts the listings owned by adminID and all leads.
func (s *Service) DashboardStats(ctx context.Context, adminID string) (DashboardStats, error) {
	stats := DashboardStats{
		ByType:      make(map[PropertyType]int),
		ByOperation: make(map[Operation]int),
	}
	err := s.run(ctx, read("dashboard_stats"), func(context.Context) (string, error) {
		for _, p := range s.store.ListProperties() {
			if p.AdminID != adminID {
				continue
			}
			stats.Total++
			if p.Published() {
				stats.Published++
			} else {
				stats.Unpublished++
			}
			if p.Featured {
				stats.Featured++
			}
			stats.ByType[p.Type]++
			stats.ByOperation[p.Operation]++
		}
		stats.Leads = len(s.store.ListLeads())
		return adminID, nil
	})
	return stats, err
}

// similarTo picks published listings sharing location or type with subject,
// ordered by absolute price difference. Ties keep the newest-first order of
// listings.
func similarTo(subject Property, listings []Property, limit int) []Property {
	candidates := make([]Property, 0, len(listings))
	for _, p := range listings {
		if p.ID == subject.ID || !p.Published() {
			continue
		}
		if p.Location == subject.Location || p.Type == subject.Type {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return math.Abs(candidates[i].Price-subject.Price) < math.Abs(candidates[j].Price-subject.Price)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
