package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

const (
	defaultListTimeout     = 30 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
	defaultMaxAssetSize    = 200 << 20
	defaultTripThreshold   = 3
)

// Fetcher wraps a Source with per-call timeouts and a circuit breaker per
// upstream host. Calls are never retried; a failure is reported against
// the single app that made the call.
type Fetcher struct {
	source          Source
	listTimeout     time.Duration
	downloadTimeout time.Duration
	maxAssetSize    int64
	tripThreshold   int64
	logger          *slog.Logger

	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
	lastKind map[string]Kind
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithListTimeout bounds each release listing call.
func WithListTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.listTimeout = d
	}
}

// WithDownloadTimeout bounds each asset download.
func WithDownloadTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.downloadTimeout = d
	}
}

// WithMaxAssetSize caps the bytes read for one asset.
func WithMaxAssetSize(n int64) Option {
	return func(f *Fetcher) {
		f.maxAssetSize = n
	}
}

// WithTripThreshold sets how many host-level failures open a breaker.
func WithTripThreshold(n int64) Option {
	return func(f *Fetcher) {
		f.tripThreshold = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a Fetcher for source.
func NewFetcher(source Source, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:          source,
		listTimeout:     defaultListTimeout,
		downloadTimeout: defaultDownloadTimeout,
		maxAssetSize:    defaultMaxAssetSize,
		tripThreshold:   defaultTripThreshold,
		logger:          slog.Default(),
		breakers:        make(map[string]*circuit.Breaker),
		lastKind:        make(map[string]Kind),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// hostNamer is implemented by sources that know the host they talk to.
type hostNamer interface {
	Host() string
}

// Releases lists releases for locator and applies the policy.
func (f *Fetcher) Releases(ctx context.Context, locator string, p Policy) ([]ReleaseCandidate, error) {
	all, err := f.ListReleases(ctx, locator)
	if err != nil {
		return nil, err
	}
	return ApplyPolicy(all, p), nil
}

// ListReleases returns the unfiltered releases for locator.
func (f *Fetcher) ListReleases(ctx context.Context, locator string) ([]ReleaseCandidate, error) {
	key := "upstream"
	if hn, ok := f.source.(hostNamer); ok {
		key = hn.Host()
	}
	var releases []ReleaseCandidate
	err := f.call(ctx, OpList, locator, key, f.listTimeout, func(ctx context.Context) error {
		var err error
		releases, err = f.source.ListReleases(ctx, locator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return releases, nil
}

// Download fetches one asset.
func (f *Fetcher) Download(ctx context.Context, asset Asset) ([]byte, error) {
	var data []byte
	err := f.call(ctx, OpDownload, asset.URL, hostOf(asset.URL), f.downloadTimeout, func(ctx context.Context) error {
		var err error
		data, err = f.source.Download(ctx, asset, f.maxAssetSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *Fetcher) call(ctx context.Context, op, locator, key string, timeout time.Duration, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	breaker := f.getBreaker(key)
	if !breaker.Ready() {
		return &FetchError{Op: op, Locator: locator, Kind: f.kindFor(key), Err: fmt.Errorf("%s: %w", key, ErrCircuitOpen)}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var fetchErr *FetchError
	err := breaker.Call(func() error {
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		fetchErr = NewFetchError(op, locator, err)
		if fetchErr.hostLevel() {
			return fetchErr
		}
		return nil
	}, 0)

	// The run itself was cancelled; that says nothing about the host.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if fetchErr != nil {
		if fetchErr.hostLevel() {
			f.remember(key, fetchErr.Kind)
			if fetchErr.Kind == KindRateLimited && !breaker.Tripped() {
				breaker.Trip()
			}
			if breaker.Tripped() {
				f.logger.Warn("circuit breaker opened", "host", key, "kind", fetchErr.Kind)
			}
		}
		return fetchErr
	}
	if err != nil {
		return &FetchError{Op: op, Locator: locator, Kind: f.kindFor(key), Err: errors.Join(ErrCircuitOpen, err)}
	}
	return nil
}

// getBreaker returns or creates the circuit breaker for a host.
func (f *Fetcher) getBreaker(key string) *circuit.Breaker {
	f.mu.RLock()
	breaker, exists := f.breakers[key]
	f.mu.RUnlock()
	if exists {
		return breaker
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if breaker, exists := f.breakers[key]; exists {
		return breaker
	}

	// A run is short; once a host is tripped it stays open for the run.
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(f.tripThreshold),
	})
	f.breakers[key] = breaker
	return breaker
}

func (f *Fetcher) remember(key string, kind Kind) {
	f.mu.Lock()
	f.lastKind[key] = kind
	f.mu.Unlock()
}

func (f *Fetcher) kindFor(key string) Kind {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if kind, ok := f.lastKind[key]; ok {
		return kind
	}
	return KindUnreachable
}

// BreakerStates reports "open" or "closed" per host seen this run.
func (f *Fetcher) BreakerStates() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	states := make(map[string]string, len(f.breakers))
	for host, breaker := range f.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// hostOf extracts the host used to group breakers.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
