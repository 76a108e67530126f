package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"licensegate/internal/config"
)

// GitHubClient stores each document as a JSON file in a repository and uses
// the contents API's sha field as the version token. A write with a stale
// sha is rejected by the API with 409, which surfaces here as
// ErrVersionConflict.
type GitHubClient struct {
	gh     *github.Client
	owner  string
	repo   string
	branch string
	logger *slog.Logger
}

// NewGitHubClient creates a store client from the store configuration.
// The credential, repository and branch are opaque here; they come from the
// config struct built once at process start.
func NewGitHubClient(cfg config.StoreConfig, logger *slog.Logger) (*GitHubClient, error) {
	owner, repo := cfg.RepositoryParts()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout

	gh := github.NewClient(httpClient)
	if cfg.APIBaseURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(cfg.APIBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid store API base URL: %w", err)
		}
		gh.BaseURL = baseURL
	}

	return &GitHubClient{
		gh:     gh,
		owner:  owner,
		repo:   repo,
		branch: cfg.Branch,
		logger: logger.With(slog.String("component", "store")),
	}, nil
}

// Read fetches the named document at the configured branch and returns its
// decoded content together with the blob sha as the version token.
func (c *GitHubClient) Read(ctx context.Context, name string) (*Document, error) {
	start := time.Now()

	file, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, name,
		&github.RepositoryContentGetOptions{Ref: c.branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			c.logger.WarnContext(ctx, "document not found",
				slog.String("document", name),
				slog.String("branch", c.branch))
			return nil, fmt.Errorf("read %s: %w", name, ErrNotFound)
		}
		c.logger.ErrorContext(ctx, "document read failed",
			slog.String("document", name),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if file == nil {
		// The path resolved to a directory listing, not a file.
		return nil, fmt.Errorf("read %s: not a file: %w", name, ErrNotFound)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("read %s: decode content: %w", name, err)
	}

	c.logger.DebugContext(ctx, "document read",
		slog.String("document", name),
		slog.String("version", file.GetSHA()),
		slog.Int("bytes", len(content)),
		slog.Duration("elapsed", time.Since(start)))

	return &Document{
		Content: []byte(content),
		Version: file.GetSHA(),
	}, nil
}

// Write conditionally replaces the named document. The message becomes the
// commit message and serves as the store-side audit trail.
func (c *GitHubClient) Write(ctx context.Context, name string, content []byte, version, message string) error {
	start := time.Now()

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		SHA:     github.String(version),
		Branch:  github.String(c.branch),
	}

	_, resp, err := c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, name, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			c.logger.WarnContext(ctx, "document write rejected: stale version",
				slog.String("document", name),
				slog.String("version", version))
			return fmt.Errorf("write %s: %w", name, ErrVersionConflict)
		}
		c.logger.ErrorContext(ctx, "document write failed",
			slog.String("document", name),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return fmt.Errorf("write %s: %w", name, err)
	}

	c.logger.InfoContext(ctx, "document written",
		slog.String("document", name),
		slog.String("message", message),
		slog.Int("bytes", len(content)),
		slog.Duration("elapsed", time.Since(start)))

	return nil
}
