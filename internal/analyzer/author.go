package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"basegraph.app/skillflow/internal/domain"
)

// ErrUserNotFound is returned by a UserLookup for an unknown login.
var ErrUserNotFound = errors.New("user not found")

// UserProfile is the public profile data the author check needs.
type UserProfile struct {
	CreatedAt   time.Time
	Login       string
	AvatarURL   string
	PublicRepos int
}

type UserLookup interface {
	User(ctx context.Context, login string) (*UserProfile, error)
}

// AuthorInfo is the reputation verdict for an issue author.
type AuthorInfo struct {
	Login          string   `json:"login"`
	Reasons        []string `json:"reasons,omitempty"`
	AccountAgeDays int      `json:"account_age_days"`
	Contributions  int      `json:"contributions"`
	Suspicious     bool     `json:"suspicious"`
}

type AuthorPolicy struct {
	MinAccountAge     time.Duration
	MinContributions  int
	FlagDefaultAvatar bool
}

// AuthorChecker flags new or empty accounts.
type AuthorChecker struct {
	lookup UserLookup
	policy AuthorPolicy
	now    func() time.Time
}

func NewAuthorChecker(lookup UserLookup, policy AuthorPolicy) *AuthorChecker {
	return &AuthorChecker{lookup: lookup, policy: policy, now: time.Now}
}

// Check looks the author up and applies the policy. A lookup failure other
// than an unknown login is returned as a transient error.
func (c *AuthorChecker) Check(ctx context.Context, login string) (AuthorInfo, error) {
	info := AuthorInfo{Login: login}

	user, err := c.lookup.User(ctx, login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			info.Suspicious = true
			info.Reasons = []string{"author account could not be found"}
			return info, nil
		}
		return info, domain.Transient("author lookup", fmt.Errorf("user %s: %w", login, err))
	}

	info.Contributions = user.PublicRepos
	minDays := int(c.policy.MinAccountAge.Hours() / 24)
	if !user.CreatedAt.IsZero() {
		info.AccountAgeDays = int(c.now().Sub(user.CreatedAt).Hours() / 24)
		if c.now().Sub(user.CreatedAt) < c.policy.MinAccountAge {
			info.Reasons = append(info.Reasons,
				fmt.Sprintf("account age (%d days) below minimum (%d)", info.AccountAgeDays, minDays))
		}
	}
	if user.PublicRepos < c.policy.MinContributions {
		info.Reasons = append(info.Reasons,
			fmt.Sprintf("low contribution count (%d)", user.PublicRepos))
	}
	if c.policy.FlagDefaultAvatar && strings.Contains(user.AvatarURL, "identicon") {
		info.Reasons = append(info.Reasons, "using default identicon avatar")
	}

	info.Suspicious = len(info.Reasons) > 0
	return info, nil
}
