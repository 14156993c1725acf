package model

import "time"

type PRStatus string

const (
	PRStatusPending   PRStatus = "pending"
	PRStatusValidated PRStatus = "validated"
	PRStatusRejected  PRStatus = "rejected"
	PRStatusMerged    PRStatus = "merged"
	PRStatusApproved  PRStatus = "approved"
)

var prTransitions = map[PRStatus][]PRStatus{
	PRStatusPending:   {PRStatusValidated, PRStatusRejected},
	PRStatusValidated: {PRStatusMerged, PRStatusApproved, PRStatusRejected},
	// a new push re-opens validation
	PRStatusApproved: {PRStatusPending},
	PRStatusRejected: {PRStatusPending},
}

func (s PRStatus) CanTransitionTo(next PRStatus) bool {
	for _, allowed := range prTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PRRecord struct {
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	State            string    `json:"state"`
	HeadRef          string    `json:"head_ref"`
	HeadSHA          string    `json:"head_sha"`
	ProcessingStatus PRStatus  `json:"processing_status"`
	Labels           []string  `json:"labels"`
	ValidationErrors []string  `json:"validation_errors"`
	ContentHashes    []string  `json:"content_hashes"`
	Number           int       `json:"number"`
}

func (r PRRecord) HasLabel(name string) bool {
	return hasLabel(r.Labels, name)
}

// PRFile is one changed file of a pull request with its content at the head
// commit. Removed files carry no content.
type PRFile struct {
	Path    string
	Status  string
	Content string
}

// TrackedContent is an entry of the content-hash index used to reject
// duplicate submissions.
type TrackedContent struct {
	CreatedAt time.Time `json:"created_at"`
	Hash      string    `json:"hash"`
	Path      string    `json:"path"`
	PRNumber  int       `json:"pr_number"`
}
