package github

import (
	"net/http"
	"net/url"

	"github.com/google/go-github/v57/github"
)

// NewTestClient creates a client whose API calls go to baseURL, typically
// an httptest.Server.
func NewTestClient(httpClient *http.Client, baseURL string, opts ...Option) (*Client, error) {
	parsedURL, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, err
	}

	c := &Client{
		httpClient: httpClient,
		perPage:    defaultPerPage,
		maxPages:   defaultMaxPages,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}

	gh := github.NewClient(c.httpClient)
	gh.BaseURL = parsedURL
	gh.UploadURL = parsedURL
	gh.UserAgent = c.userAgent
	c.client = gh
	return c, nil
}
