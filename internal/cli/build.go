package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/droidrepo/internal/clamav"
	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/gpg"
	"github.com/clean-dependency-project/droidrepo/internal/index"
	"github.com/clean-dependency-project/droidrepo/internal/pipeline"
	"github.com/clean-dependency-project/droidrepo/internal/report"
	"github.com/clean-dependency-project/droidrepo/internal/upstream"
)

// buildCommand runs one repository build: load the previous index, process
// every app, then emit the next index in one step.
func buildCommand(c *cli.Context, deps Dependencies) error {
	cfg, stdout, stderr, err := setup(c, deps)
	if err != nil {
		return err
	}

	ignoreFile := c.String("ignore-file")
	if ignoreFile == "" {
		ignoreFile = cfg.Repo.IgnoreFile
	}
	ignore, err := config.LoadIgnoreConfig(ignoreFile)
	if err != nil {
		return err
	}

	// Load the signing key before any network work so a bad key fails fast.
	signer, err := loadSigner(cfg.Repo.Signing, deps.Getenv)
	if err != nil {
		return err
	}

	dir := repoDir(c, cfg)
	prev, err := index.Load(filepath.Join(dir, index.FileV2), pipeline.ResolveLogicalID(cfg))
	if err != nil {
		return fmt.Errorf("failed to load previous index: %w", err)
	}
	stdout.Info("loaded previous index",
		"path", filepath.Join(dir, index.FileV2),
		"apps", len(prev.Entries))

	fetcher := upstream.NewFetcher(deps.NewSource(c.String("github-token")),
		upstream.WithListTimeout(cfg.Repo.GetFetchTimeout()),
		upstream.WithDownloadTimeout(cfg.Repo.GetDownloadTimeout()),
		upstream.WithMaxAssetSize(cfg.Repo.MaxAssetSize()),
		upstream.WithLogger(stderr),
	)
	reporter := report.NewReporter(stdout)

	popts := []pipeline.Option{
		pipeline.WithIgnore(ignore),
		pipeline.WithConcurrency(c.Int("concurrency")),
		pipeline.WithClock(deps.Now),
	}
	if cfg.Repo.Scan.Enabled && !c.Bool("no-scan") {
		scanner, err := newScanner(cfg.Repo.Scan, deps.ScanRunner, stderr)
		if err != nil {
			return err
		}
		popts = append(popts, pipeline.WithScanner(scanner, cfg.Repo.Scan.GetTimeout()))
	}

	p := pipeline.New(cfg, fetcher, reporter, stdout, stderr, popts...)
	next, err := p.Run(c.Context, prev)
	if err != nil {
		return err
	}

	opts := index.EmitOptions{
		HTML:   cfg.Repo.HTML,
		DryRun: c.Bool("dry-run"),
		Logger: stdout,
	}
	if signer != nil {
		opts.Signer = signer
		stdout.Info("signing index documents", "key_fingerprint", signer.Fingerprint())
	}
	result, err := index.Emit(dir, next, opts)
	if err != nil {
		stderr.Error("index not written", "error", err)
		return fmt.Errorf("failed to write index: %w", err)
	}
	reporter.SetIndexResult(result.Written)

	if path := c.String("summary"); path != "" {
		reporter.WriteJSON(path)
	}
	reporter.Publish(deps.Stdout, deps.Getenv)

	summary := reporter.Summary()
	logSummary(stdout, summary, fetcher.BreakerStates())

	if code := summary.ExitCode(); code != report.ExitOK && !c.Bool("allow-partial") {
		return cli.Exit(fmt.Sprintf("%d app(s) failed", summary.Counts[report.KindFailed]), code)
	}
	return nil
}

// loadSigner returns nil when signing is not configured.
func loadSigner(sc config.SigningConfig, getenv func(string) string) (*gpg.Signer, error) {
	if !sc.Enabled() {
		return nil, nil
	}
	var passphrase []byte
	if sc.PassphraseEnv != "" {
		passphrase = []byte(getenv(sc.PassphraseEnv))
	}
	signer, err := gpg.LoadSigner(sc.KeyFile, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return signer, nil
}

func newScanner(sc config.ScanConfig, runner clamav.CommandRunner, logger *slog.Logger) (*clamav.Scanner, error) {
	mode, err := clamav.ParseMode(sc.Mode)
	if err != nil {
		return nil, err
	}
	opts := []clamav.Option{clamav.WithImage(sc.Image), clamav.WithLogger(logger)}
	if runner != nil {
		opts = append(opts, clamav.WithRunner(runner))
	}
	return clamav.New(mode, opts...)
}

func logSummary(logger *slog.Logger, s report.Summary, breakers map[string]string) {
	logger.Info("run summary",
		"run_id", s.RunID,
		"accepted", s.Counts[report.KindAccepted],
		"skipped", s.Counts[report.KindSkipped],
		"failed", s.Counts[report.KindFailed],
		"index_changed", s.IndexChanged,
		"duration_ms", s.Duration.Milliseconds())
	for host, state := range breakers {
		if state == "open" {
			logger.Warn("upstream host unavailable for the rest of the run", "host", host)
		}
	}
}
