package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Typed views over the parts of GitHub payloads the processors read. The
// stored event keeps the full payload; these are decoded on demand.

type User struct {
	CreatedAt   time.Time `json:"created_at"`
	Login       string    `json:"login"`
	AvatarURL   string    `json:"avatar_url"`
	PublicRepos int       `json:"public_repos"`
}

type Label struct {
	Name string `json:"name"`
}

type Reactions struct {
	TotalCount int `json:"total_count"`
	PlusOne    int `json:"+1"`
	Heart      int `json:"heart"`
	Hooray     int `json:"hooray"`
}

type Issue struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	User      User      `json:"user"`
	Labels    []Label   `json:"labels"`
	Reactions Reactions `json:"reactions"`
	Number    int       `json:"number"`
}

type IssueEvent struct {
	Action string `json:"action"`
	Issue  Issue  `json:"issue"`
}

type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type PullRequest struct {
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	User   User    `json:"user"`
	Head   Ref     `json:"head"`
	Base   Ref     `json:"base"`
	Labels []Label `json:"labels"`
	Number int     `json:"number"`
	Merged bool    `json:"merged"`
}

type Review struct {
	State string `json:"state"`
	User  User   `json:"user"`
}

type PullRequestEvent struct {
	Action      string      `json:"action"`
	PullRequest PullRequest `json:"pull_request"`
	Review      *Review     `json:"review,omitempty"`
}

type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type PushEvent struct {
	Ref     string   `json:"ref"`
	Before  string   `json:"before"`
	After   string   `json:"after"`
	Commits []Commit `json:"commits"`
}

type ReleaseEvent struct {
	Action  string `json:"action"`
	Release struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
	} `json:"release"`
}

// Names flattens a label list.
func Names(labels []Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if name := strings.TrimSpace(l.Name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// PositiveReactions counts the reactions that signal demand for a request.
func (r Reactions) PositiveReactions() int {
	return r.PlusOne + r.Heart + r.Hooray
}

// Decode unmarshals a stored payload into one of the event views.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decoding %T: %w", v, err)
	}
	return v, nil
}
