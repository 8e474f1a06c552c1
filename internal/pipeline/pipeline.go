// Package pipeline runs the per-app build stages over a bounded worker
// pool and merges accepted versions into the next repository index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/clean-dependency-project/droidrepo/internal/apk"
	"github.com/clean-dependency-project/droidrepo/internal/clamav"
	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/index"
	"github.com/clean-dependency-project/droidrepo/internal/report"
	"github.com/clean-dependency-project/droidrepo/internal/selector"
	"github.com/clean-dependency-project/droidrepo/internal/upstream"
	"github.com/clean-dependency-project/droidrepo/internal/validate"
)

// Stages reported for per-app failures.
const (
	StageConfig   = "config"
	StageFetch    = "fetch"
	StageSelect   = "select"
	StageDownload = "download"
	StageScan     = "scan"
	StageInspect  = "inspect"
	StageValidate = "validate"
	StageMerge    = "merge"
)

// Skip reasons.
const (
	ReasonNoReleases = "no releases"
	ReasonNoAsset    = "no ARM asset"
	ReasonUpToDate   = "up to date"
)

// ErrCancelled is returned by Run when the context ends before every app
// finished.
var ErrCancelled = errors.New("run cancelled")

// Fetcher lists and downloads upstream releases.
type Fetcher interface {
	Releases(ctx context.Context, locator string, p upstream.Policy) ([]upstream.ReleaseCandidate, error)
	Download(ctx context.Context, asset upstream.Asset) ([]byte, error)
}

// Scanner checks a downloaded package for malware. *clamav.Scanner
// satisfies it.
type Scanner interface {
	Scan(ctx context.Context, name string, data []byte) (clamav.Result, error)
}

// AppResult is the self-contained result of processing one app.
type AppResult struct {
	LogicalID string
	// Update is set when at least one new version was accepted.
	Update  *index.Update
	Outcome report.Outcome
}

// Pipeline builds the next index from the configured apps.
type Pipeline struct {
	cfg         *config.Config
	fetcher     Fetcher
	scanner     Scanner
	scanTimeout time.Duration
	reporter    *report.Reporter
	ignore      config.IgnoreConfig
	concurrency int
	now         func() time.Time
	stdout      *slog.Logger
	stderr      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithIgnore skips the release tags listed in ic.
func WithIgnore(ic config.IgnoreConfig) Option {
	return func(p *Pipeline) {
		p.ignore = ic
	}
}

// WithScanner scans every downloaded package before it is inspected.
// A scan that cannot complete rejects the release.
func WithScanner(s Scanner, timeout time.Duration) Option {
	return func(p *Pipeline) {
		p.scanner = s
		p.scanTimeout = timeout
	}
}

// WithConcurrency overrides repo.concurrency.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline. Outcomes are recorded on reporter.
func New(cfg *config.Config, fetcher Fetcher, reporter *report.Reporter, stdout, stderr *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		fetcher:     fetcher,
		reporter:    reporter,
		concurrency: cfg.Repo.Concurrency,
		now:         time.Now,
		stdout:      stdout,
		stderr:      stderr,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency <= 0 {
		p.concurrency = config.DefaultConcurrency
	}
	return p
}

// Run processes every configured app against prev and returns the next
// index. prev is not modified. Per-app failures are recorded and never
// abort the run; a cancelled context does.
func (p *Pipeline) Run(ctx context.Context, prev *index.RepositoryIndex) (*index.RepositoryIndex, error) {
	if prev == nil {
		prev = index.Empty()
	}
	apps := p.cfg.Apps

	p.stdout.Info("starting build",
		"apps", len(apps),
		"concurrency", p.concurrency,
		"run_id", p.reporter.RunID())

	semaphore := make(chan struct{}, p.concurrency)
	results := make(chan AppResult, len(apps))
	var wg sync.WaitGroup

	for i := range apps {
		app := &apps[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				results <- failed(app.LogicalID, StageFetch, ctx.Err(), nil)
				return
			}
			results <- p.processApp(ctx, app, prev.Entry(app.LogicalID))
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make(map[string]AppResult, len(apps))
	for res := range results {
		collected[res.LogicalID] = res
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	updates := p.merge(prev, collected)
	for _, id := range slices.Sorted(maps.Keys(collected)) {
		p.reporter.Record(collected[id].Outcome)
	}

	next := index.Build(prev, RepoFromConfig(p.cfg), updates, p.now())
	p.stdout.Info("build finished",
		"updated_apps", len(updates),
		"timestamp", next.Repo.Timestamp)
	return next, nil
}

// merge turns accepted results into index updates, rejecting updates whose
// package already belongs to another logical app.
func (p *Pipeline) merge(prev *index.RepositoryIndex, collected map[string]AppResult) []index.Update {
	// Apps moving to a new package release their old one, so movers are
	// placed first and their previous packages are not seeded.
	var movers, rest []string
	for _, id := range slices.Sorted(maps.Keys(collected)) {
		if u := collected[id].Update; u != nil {
			if e := prev.Entry(id); e != nil && e.PackageName != u.PackageName {
				movers = append(movers, id)
				continue
			}
		}
		rest = append(rest, id)
	}
	owners := map[string]string{}
	for _, id := range prev.IDs() {
		if !slices.Contains(movers, id) {
			owners[prev.Entries[id].PackageName] = id
		}
	}

	var updates []index.Update
	for _, id := range append(movers, rest...) {
		res := collected[id]
		if res.Update == nil {
			continue
		}
		pkg := res.Update.PackageName
		if owner, ok := owners[pkg]; ok && owner != id {
			p.stderr.Error("duplicate package", "app", id, "package", pkg, "owner", owner)
			res.Outcome = report.Failed(id, StageMerge, validate.DuplicatePackage(pkg, owner), res.Outcome.Warnings)
			res.Update = nil
			collected[id] = res
			// A rejected mover keeps its previous package.
			if e := prev.Entry(id); e != nil {
				if _, taken := owners[e.PackageName]; !taken {
					owners[e.PackageName] = id
				}
			}
			continue
		}
		owners[pkg] = id
		updates = append(updates, *res.Update)
	}
	return updates
}

// processApp runs fetch, select, download, scan, inspect and validate for one
// app. It walks releases newest first and stops at the first release that
// is already published or once retain releases have been considered.
func (p *Pipeline) processApp(ctx context.Context, app *config.AppConfig, prev *index.Entry) AppResult {
	id := app.LogicalID
	log := p.stdout.With("app", id)

	policy, err := upstream.NewPolicy(app.Release)
	if err != nil {
		return failed(id, StageConfig, err, nil)
	}
	releases, err := p.fetcher.Releases(ctx, app.GitHub, policy)
	if err != nil {
		p.stderr.Warn("fetch failed", "app", id, "stage", StageFetch, "error", err)
		return failed(id, StageFetch, err, nil)
	}
	if len(releases) == 0 {
		return skipped(id, ReasonNoReleases, nil)
	}

	criteria := selector.CriteriaFor(app, p.ignore)
	retain := p.cfg.RetainVersions(app)

	var (
		accepted  []index.Version
		pkg       string
		warnings  []string
		firstErr  error
		errStage  string
		upToDate  bool
		qualified int
	)
	fail := func(stage, tag string, err error) {
		p.stderr.Warn("release rejected", "app", id, "stage", stage, "tag", tag, "error", err)
		if firstErr == nil {
			firstErr, errStage = fmt.Errorf("%s: %w", tag, err), stage
			return
		}
		warnings = append(warnings, fmt.Sprintf("%s: %s: %v", tag, stage, err))
	}

	for _, release := range releases {
		if qualified >= retain {
			break
		}
		if err := ctx.Err(); err != nil {
			return failed(id, StageFetch, err, warnings)
		}

		asset, err := selector.Select(release, criteria)
		if errors.Is(err, selector.ErrNoAssetFound) {
			log.Debug("no qualifying asset", "tag", release.Tag, "rejected", selector.Explain(release, criteria))
			continue
		}
		if err != nil {
			fail(StageSelect, release.Tag, err)
			continue
		}
		qualified++

		if prev.HasFile(asset.URL) {
			upToDate = true
			break
		}

		log.Info("downloading asset", "tag", release.Tag, "asset", asset.Name, "abi", asset.ABI)
		data, err := p.fetcher.Download(ctx, asset.Asset)
		if err != nil {
			fail(StageDownload, release.Tag, err)
			continue
		}

		if err := p.scan(ctx, asset.Name, data); err != nil {
			fail(StageScan, release.Tag, err)
			continue
		}

		md, err := apk.Inspect(data)
		if err != nil {
			fail(StageInspect, release.Tag, err)
			continue
		}

		result := validate.Validate(validate.Input{
			App:      app,
			Metadata: md,
			Asset:    asset,
			Previous: prev,
			Pending:  accepted,
		})
		for _, w := range result.Warnings {
			warnings = append(warnings, release.Tag+": "+w)
		}
		if !result.Passed() {
			fail(StageValidate, release.Tag, result.Err())
			continue
		}

		added := release.PublishedAt.UnixMilli()
		if release.PublishedAt.IsZero() {
			added = p.now().UnixMilli()
		}
		if pkg == "" {
			pkg = md.PackageName
		}
		accepted = append(accepted, NewVersion(md, asset, added))
		log.Info("version accepted",
			"tag", release.Tag,
			"package", md.PackageName,
			"version_code", md.VersionCode,
			"sha256", md.SHA256)
	}

	switch {
	case len(accepted) > 0:
		if firstErr != nil {
			warnings = append([]string{fmt.Sprintf("%s: %v", errStage, firstErr)}, warnings...)
		}
		codes := make([]int64, len(accepted))
		for i, v := range accepted {
			codes[i] = v.Manifest.VersionCode
		}
		return AppResult{
			LogicalID: id,
			Update: &index.Update{
				LogicalID:   id,
				PackageName: pkg,
				Metadata:    MetadataFromConfig(app),
				Versions:    accepted,
				Retain:      retain,
			},
			Outcome: report.Accepted(id, codes, warnings),
		}
	case firstErr != nil:
		return failed(id, errStage, firstErr, warnings)
	case upToDate:
		return skipped(id, ReasonUpToDate, warnings)
	default:
		return skipped(id, ReasonNoAsset, warnings)
	}
}

func (p *Pipeline) scan(ctx context.Context, name string, data []byte) error {
	if p.scanner == nil {
		return nil
	}
	if p.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.scanTimeout)
		defer cancel()
	}
	result, err := p.scanner.Scan(ctx, name, data)
	if err != nil {
		return err
	}
	return result.Err()
}

func failed(id, stage string, err error, warnings []string) AppResult {
	return AppResult{LogicalID: id, Outcome: report.Failed(id, stage, err, warnings)}
}

func skipped(id, reason string, warnings []string) AppResult {
	return AppResult{LogicalID: id, Outcome: report.Skipped(id, reason, warnings)}
}
