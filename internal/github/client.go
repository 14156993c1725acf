package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"basegraph.app/skillflow/internal/analyzer"
	"basegraph.app/skillflow/internal/model"
)

// ErrNotMergeable is returned when GitHub refuses to merge a pull request.
var ErrNotMergeable = errors.New("pull request is not mergeable")

type Config struct {
	Token string
	Owner string
	Repo  string
	// BaseURL points at a GitHub Enterprise API; empty means github.com.
	BaseURL string
}

// Client talks to the repository the pipeline maintains.
type Client struct {
	api   *github.Client
	owner string
	repo  string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	api := github.NewClient(oauth2.NewClient(ctx, ts))

	if cfg.BaseURL != "" {
		var err error
		api, err = api.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}

	return newClient(api, cfg.Owner, cfg.Repo), nil
}

func newClient(api *github.Client, owner, repo string) *Client {
	return &Client{api: api, owner: owner, repo: repo}
}

// PostComment comments on an issue or pull request.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	_, _, err := c.api.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("commenting on #%d: %w", number, err)
	}
	slog.InfoContext(ctx, "posted comment", "number", number, "length", len(body))
	return nil
}

func (c *Client) AddLabels(ctx context.Context, number int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}
	if _, _, err := c.api.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels); err != nil {
		return fmt.Errorf("labelling #%d: %w", number, err)
	}
	return nil
}

// PullRequestFiles lists the changed files of a pull request. Markdown files
// that still exist are returned with their content at ref.
func (c *Client) PullRequestFiles(ctx context.Context, number int, ref string) ([]model.PRFile, error) {
	var (
		files []model.PRFile
		opts  = &github.ListOptions{PerPage: 100}
	)

	for {
		page, resp, err := c.api.PullRequests.ListFiles(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files of #%d: %w", number, err)
		}

		for _, f := range page {
			file := model.PRFile{Path: f.GetFilename(), Status: f.GetStatus()}
			if file.Status != "removed" && strings.HasSuffix(strings.ToLower(file.Path), ".md") {
				content, err := c.fileContent(ctx, file.Path, ref)
				if err != nil {
					return nil, err
				}
				file.Content = content
			}
			files = append(files, file)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return files, nil
}

func (c *Client) fileContent(ctx context.Context, path, ref string) (string, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	fc, _, _, err := c.api.Repositories.GetContents(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		return "", fmt.Errorf("fetching %s@%s: %w", path, ref, err)
	}
	if fc == nil {
		return "", fmt.Errorf("fetching %s@%s: path is a directory", path, ref)
	}

	content, err := fc.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return content, nil
}

// Merge merges a pull request with the given method (merge, squash, rebase).
func (c *Client) Merge(ctx context.Context, number int, title, method string) error {
	result, _, err := c.api.PullRequests.Merge(ctx, c.owner, c.repo, number,
		"Automatically merged after submission validation",
		&github.PullRequestOptions{CommitTitle: title, MergeMethod: method},
	)
	if err != nil {
		if statusCode(err) == http.StatusMethodNotAllowed || statusCode(err) == http.StatusConflict {
			return fmt.Errorf("%w: #%d: %v", ErrNotMergeable, number, err)
		}
		return fmt.Errorf("merging #%d: %w", number, err)
	}
	if !result.GetMerged() {
		return fmt.Errorf("%w: #%d: %s", ErrNotMergeable, number, result.GetMessage())
	}

	slog.InfoContext(ctx, "merged pull request", "number", number, "sha", result.GetSHA())
	return nil
}

// IsMerged reports whether a pull request has been merged.
func (c *Client) IsMerged(ctx context.Context, number int) (bool, error) {
	merged, _, err := c.api.PullRequests.IsMerged(ctx, c.owner, c.repo, number)
	if err != nil {
		return false, fmt.Errorf("checking merge state of #%d: %w", number, err)
	}
	return merged, nil
}

// User implements analyzer.UserLookup.
func (c *Client) User(ctx context.Context, login string) (*analyzer.UserProfile, error) {
	u, _, err := c.api.Users.Get(ctx, url.PathEscape(login))
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", analyzer.ErrUserNotFound, login)
		}
		return nil, fmt.Errorf("fetching user %s: %w", login, err)
	}

	return &analyzer.UserProfile{
		Login:       u.GetLogin(),
		CreatedAt:   u.GetCreatedAt().Time,
		AvatarURL:   u.GetAvatarURL(),
		PublicRepos: u.GetPublicRepos(),
	}, nil
}

func statusCode(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}
