package model

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so the worst match can be reported.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

type IssueStatus string

const (
	IssueStatusPending   IssueStatus = "pending"
	IssueStatusAnalyzing IssueStatus = "analyzing"
	IssueStatusRejected  IssueStatus = "rejected"
	IssueStatusFiltered  IssueStatus = "filtered"
	IssueStatusPlanned   IssueStatus = "planned"
	IssueStatusCompleted IssueStatus = "completed"
	IssueStatusFailed    IssueStatus = "failed"
)

var issueTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusPending: {IssueStatusAnalyzing},
	// analyzing falls back to pending when a transient error will be retried
	IssueStatusAnalyzing: {IssueStatusRejected, IssueStatusFiltered, IssueStatusPlanned, IssueStatusPending},
	IssueStatusPlanned:   {IssueStatusCompleted, IssueStatusFailed},
	IssueStatusFailed:    {IssueStatusCompleted, IssueStatusFailed},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s IssueStatus) CanTransitionTo(next IssueStatus) bool {
	for _, allowed := range issueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Final reports whether no further processing will happen for the issue.
func (s IssueStatus) Final() bool {
	switch s {
	case IssueStatusRejected, IssueStatusFiltered, IssueStatusCompleted:
		return true
	default:
		return false
	}
}

type IssueRecord struct {
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	FilterReason     *string     `json:"filter_reason,omitempty"`
	Severity         *Severity   `json:"severity,omitempty"`
	PlanID           *string     `json:"plan_id,omitempty"`
	Title            string      `json:"title"`
	Body             string      `json:"body"`
	Author           string      `json:"author"`
	State            string      `json:"state"`
	ProcessingStatus IssueStatus `json:"processing_status"`
	Labels           []string    `json:"labels"`
	Number           int         `json:"number"`
	Reactions        int         `json:"reactions"`
}

// HasLabel matches label names case-insensitively.
func (r IssueRecord) HasLabel(name string) bool {
	return hasLabel(r.Labels, name)
}

func hasLabel(labels []string, name string) bool {
	for _, l := range labels {
		if strings.EqualFold(strings.TrimSpace(l), name) {
			return true
		}
	}
	return false
}
