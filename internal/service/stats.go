package service

import (
	"sync"
	"time"
)

// ProcessingStats counts what the processors have done since start.
type ProcessingStats struct {
	mu              sync.Mutex
	issuesProcessed int64
	prsProcessed    int64
	errors          int64
	lastProcessedAt *time.Time
}

type StatsSnapshot struct {
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	IssuesProcessed int64      `json:"issues_processed"`
	PRsProcessed    int64      `json:"prs_processed"`
	Errors          int64      `json:"errors"`
}

func NewProcessingStats() *ProcessingStats {
	return &ProcessingStats{}
}

func (s *ProcessingStats) issue() { s.record(&s.issuesProcessed) }
func (s *ProcessingStats) pr()    { s.record(&s.prsProcessed) }

func (s *ProcessingStats) failure() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *ProcessingStats) record(counter *int64) {
	if s == nil {
		return
	}
	ts := time.Now().UTC()
	s.mu.Lock()
	*counter++
	s.lastProcessedAt = &ts
	s.mu.Unlock()
}

func (s *ProcessingStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		LastProcessedAt: s.lastProcessedAt,
		IssuesProcessed: s.issuesProcessed,
		PRsProcessed:    s.prsProcessed,
		Errors:          s.errors,
	}
}
