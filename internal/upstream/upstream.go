// Package upstream lists and downloads release artifacts from an upstream
// source, applying the per-app release policy and guarding each source
// host with a circuit breaker.
package upstream

import (
	"context"
	"time"
)

// Asset is one downloadable file attached to a release.
type Asset struct {
	ID          int64
	Name        string
	URL         string
	Size        int64
	ContentType string
}

// ReleaseCandidate is an upstream release as reported by the source.
type ReleaseCandidate struct {
	Tag         string
	Name        string
	PublishedAt time.Time
	Prerelease  bool
	Draft       bool
	Assets      []Asset
}

// Source is the capability the pipeline needs from an upstream provider.
type Source interface {
	// ListReleases returns releases for locator (e.g. "owner/repo") in
	// provider order.
	ListReleases(ctx context.Context, locator string) ([]ReleaseCandidate, error)
	// Download returns the asset bytes. Implementations must stop reading
	// after maxBytes and report ErrTooLarge.
	Download(ctx context.Context, asset Asset, maxBytes int64) ([]byte, error)
}
