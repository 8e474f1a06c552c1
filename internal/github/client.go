// Package github lists releases and downloads release assets from GitHub.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/clean-dependency-project/droidrepo/internal/upstream"
)

// Sentinel errors for GitHub operations.
var (
	ErrInvalidRepo = errors.New("repository must be in format 'owner/repo'")
	ErrNilRelease  = errors.New("github release cannot be nil")
)

const (
	defaultPerPage   = 30
	defaultMaxPages  = 1
	defaultUserAgent = "droidrepo"
)

// Client implements upstream.Source on top of the GitHub Releases API.
type Client struct {
	client     *github.Client
	httpClient *http.Client
	perPage    int
	maxPages   int
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithPerPage sets the release page size.
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithMaxPages caps how many release pages are read per app.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithHTTPClient sets the client used for both API calls and downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a GitHub client. An empty token makes unauthenticated
// requests, which GitHub rate limits far more aggressively.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		perPage:   defaultPerPage,
		maxPages:  defaultMaxPages,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(0)
	}

	gh := github.NewClient(c.httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	gh.UserAgent = c.userAgent
	c.client = gh
	return c
}

// Host returns the API host; the fetcher groups circuit breakers by it.
func (c *Client) Host() string {
	return c.client.BaseURL.Host
}

// ListReleases returns the most recent releases of locator ("owner/repo").
func (c *Client) ListReleases(ctx context.Context, locator string) ([]upstream.ReleaseCandidate, error) {
	owner, repo, err := parseRepository(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", upstream.ErrNotFound, err)
	}

	var out []upstream.ReleaseCandidate
	opts := &github.ListOptions{PerPage: c.perPage}
	for page := 0; page < c.maxPages; page++ {
		releases, resp, err := c.client.Repositories.ListReleases(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list releases for %s: %w", locator, mapError(err))
		}
		for _, r := range releases {
			candidate, err := convertRelease(r)
			if err != nil {
				continue
			}
			out = append(out, candidate)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// Download fetches an asset's browser download URL, reading at most
// maxBytes.
func (c *Client) Download(ctx context.Context, asset upstream.Asset, maxBytes int64) ([]byte, error) {
	if asset.URL == "" {
		return nil, fmt.Errorf("asset %s has no download URL: %w", asset.Name, upstream.ErrNotFound)
	}
	if maxBytes > 0 && asset.Size > maxBytes {
		return nil, fmt.Errorf("asset %s is %d bytes: %w", asset.Name, asset.Size, upstream.ErrTooLarge)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", upstream.ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("download %s: %w", asset.Name, err)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("asset %s is %d bytes: %w", asset.Name, resp.ContentLength, upstream.ErrTooLarge)
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading %s: %w: %w", asset.Name, upstream.ErrUnreachable, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("asset %s exceeds %d bytes: %w", asset.Name, maxBytes, upstream.ErrTooLarge)
	}
	return data, nil
}

func convertRelease(r *github.RepositoryRelease) (upstream.ReleaseCandidate, error) {
	if r == nil {
		return upstream.ReleaseCandidate{}, ErrNilRelease
	}
	published := r.GetPublishedAt().Time
	if published.IsZero() {
		published = r.GetCreatedAt().Time
	}
	candidate := upstream.ReleaseCandidate{
		Tag:         r.GetTagName(),
		Name:        r.GetName(),
		PublishedAt: published.UTC(),
		Prerelease:  r.GetPrerelease(),
		Draft:       r.GetDraft(),
	}
	for _, a := range r.Assets {
		if a == nil {
			continue
		}
		candidate.Assets = append(candidate.Assets, upstream.Asset{
			ID:          a.GetID(),
			Name:        a.GetName(),
			URL:         a.GetBrowserDownloadURL(),
			Size:        int64(a.GetSize()),
			ContentType: a.GetContentType(),
		})
	}
	return candidate, nil
}

// mapError attaches the upstream sentinel matching a go-github error.
func mapError(err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fmt.Errorf("%w: %w", upstream.ErrRateLimited, err)
	case errors.As(err, &respErr) && respErr.Response != nil:
		return fmt.Errorf("%w: %w", sentinelForStatus(respErr.Response), err)
	default:
		return fmt.Errorf("%w: %w", upstream.ErrUnreachable, err)
	}
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%w: unexpected status %d", sentinelForStatus(resp), resp.StatusCode)
}

func sentinelForStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return upstream.ErrRateLimited
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return upstream.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return upstream.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return upstream.ErrNotFound
	default:
		return upstream.ErrUnreachable
	}
}

// parseRepository splits a repository string into owner and repo.
// Returns an error if the format is invalid.
func parseRepository(repository string) (owner, repo string, err error) {
	if repository == "" {
		return "", "", ErrInvalidRepo
	}

	parts := strings.Split(repository, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: got %s", ErrInvalidRepo, repository)
	}

	owner = strings.TrimSpace(parts[0])
	repo = strings.TrimSpace(parts[1])

	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: owner or repo is empty", ErrInvalidRepo)
	}

	return owner, repo, nil
}
