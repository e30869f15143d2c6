package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
)

// ReportStore keeps reports in memory, indexed by ID and by domain.
type ReportStore struct {
	mu       sync.RWMutex
	reports  map[string]report.Report
	byDomain map[string][]string
}

// NewReportStore constructs an empty ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{
		reports:  make(map[string]report.Report),
		byDomain: make(map[string][]string),
	}
}

// SaveReport stores a report. IDs must be unique.
func (s *ReportStore) SaveReport(_ context.Context, r report.Report) error {
	if r.ID == "" {
		return errors.New("report id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[r.ID]; exists {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	s.reports[r.ID] = r
	s.byDomain[r.Domain] = append(s.byDomain[r.Domain], r.ID)
	return nil
}

// GetReport fetches a report by ID.
func (s *ReportStore) GetReport(_ context.Context, id string) (report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return report.Report{}, fmt.Errorf("report %s: %w", id, crawler.ErrNotFound)
	}
	return r, nil
}

// LatestReport returns the most recently scraped report of a domain.
func (s *ReportStore) LatestReport(_ context.Context, domain string) (report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest report.Report
		found  bool
	)
	for _, id := range s.byDomain[domain] {
		r := s.reports[id]
		if !found || !r.ScrapedAt.Before(latest.ScrapedAt) {
			latest, found = r, true
		}
	}
	if !found {
		return report.Report{}, fmt.Errorf("domain %s: %w", domain, crawler.ErrNotFound)
	}
	return latest, nil
}
