package clamav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Mode selects where clamscan runs.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeDocker Mode = "docker"
)

// DefaultImage is the container image used in ModeDocker.
const DefaultImage = "clamav/clamav-debian:latest"

const containerDir = "/scan"

// Sentinel errors
var (
	ErrUnknownMode        = errors.New("unknown scan mode")
	ErrDockerUnavailable  = errors.New("docker command not available")
	ErrScannerUnavailable = errors.New("clamscan command not available")
	ErrScanFailed         = errors.New("malware scan failed")
	ErrInfected           = errors.New("malware detected")
	ErrNoThreatsInOutput  = errors.New("malware detected but no threats found in output")
)

// Engine identifies the ClamAV build and signature database used.
type Engine struct {
	Version  string
	Database string
}

// Result is the outcome of scanning one package.
type Result struct {
	Clean    bool
	Threats  []string
	Engine   Engine
	Duration time.Duration
}

// Err returns a wrapped ErrInfected listing the threats, or nil when the
// package is clean.
func (r Result) Err() error {
	if r.Clean {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInfected, strings.Join(r.Threats, ", "))
}

// ParseMode converts a configuration value into a Mode. The empty string
// selects ModeDocker.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeDocker, nil
	case ModeLocal, ModeDocker:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownMode, s)
	}
}

// Scanner runs clamscan over in-memory packages. It is safe for concurrent
// use; the scanner environment is checked once, on first use.
type Scanner struct {
	runner  CommandRunner
	mode    Mode
	image   string
	tempDir string
	logger  *slog.Logger

	once       sync.Once
	prepareErr error
	engine     Engine
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithRunner replaces the os/exec command runner.
func WithRunner(r CommandRunner) Option {
	return func(s *Scanner) {
		s.runner = r
	}
}

// WithImage overrides DefaultImage.
func WithImage(image string) Option {
	return func(s *Scanner) {
		if image != "" {
			s.image = image
		}
	}
}

// WithTempDir sets the parent directory for staged packages.
func WithTempDir(dir string) Option {
	return func(s *Scanner) {
		s.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// New creates a Scanner for mode.
func New(mode Mode, opts ...Option) (*Scanner, error) {
	if mode != ModeLocal && mode != ModeDocker {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	s := &Scanner{
		runner: ExecRunner{},
		mode:   mode,
		image:  DefaultImage,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan stages data under name in a private temp directory and scans it.
// An infected package is reported through Result, not the error; errors
// mean the scan itself could not complete.
func (s *Scanner) Scan(ctx context.Context, name string, data []byte) (Result, error) {
	start := time.Now()

	s.once.Do(func() { s.prepareErr = s.prepare(ctx) })
	if s.prepareErr != nil {
		return Result{}, s.prepareErr
	}

	dir, err := os.MkdirTemp(s.tempDir, "droidrepo-scan-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create scan directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove scan directory", "dir", dir, "error", err)
		}
	}()

	file := stagedName(name)
	// Readable by the container user.
	if err := os.WriteFile(filepath.Join(dir, file), data, 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to stage %s: %w", file, err)
	}

	cmd, args := s.scanCommand(dir, file)
	output, runErr := s.runner.Run(ctx, cmd, args...)
	code := exitClean
	if runErr != nil {
		if code = exitCode(runErr); code < 0 {
			return Result{}, fmt.Errorf("%w: %v", ErrScanFailed, runErr)
		}
	}

	result := Result{Engine: s.engine, Duration: time.Since(start)}
	switch code {
	case exitClean:
		result.Clean = true
	case exitInfected:
		result.Threats = parseThreats(output)
		if len(result.Threats) == 0 {
			return result, ErrNoThreatsInOutput
		}
	default:
		return Result{}, fmt.Errorf("%w: exit status %d: %s", ErrScanFailed, code, lastLine(output))
	}

	s.logger.Debug("scan finished",
		"file", file,
		"clean", result.Clean,
		"threats", result.Threats,
		"engine", result.Engine.Version,
		"duration", result.Duration)
	return result, nil
}

// prepare checks that clamscan can run and records the engine version.
func (s *Scanner) prepare(ctx context.Context) error {
	var versionOut []byte
	switch s.mode {
	case ModeDocker:
		if _, err := s.runner.Run(ctx, "docker", "--version"); err != nil {
			return fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
		}
		if _, err := s.runner.Run(ctx, "docker", "image", "inspect", s.image); err != nil {
			s.logger.Info("pulling scanner image", "image", s.image)
			if _, err := s.runner.Run(ctx, "docker", "pull", s.image); err != nil {
				return fmt.Errorf("failed to pull image %s: %w", s.image, err)
			}
		}
		out, err := s.runner.Run(ctx, "docker", "run", "--rm", s.image, "clamscan", "--version")
		if err != nil {
			s.logger.Warn("failed to get ClamAV version", "error", err)
		}
		versionOut = out
	case ModeLocal:
		out, err := s.runner.Run(ctx, "clamscan", "--version")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrScannerUnavailable, err)
		}
		versionOut = out
	}
	s.engine = parseEngine(string(versionOut))
	s.logger.Info("malware scanner ready", "mode", s.mode, "engine", s.engine.Version, "database", s.engine.Database)
	return nil
}

func (s *Scanner) scanCommand(dir, file string) (string, []string) {
	if s.mode == ModeLocal {
		return "clamscan", []string{"--stdout", "--no-summary", filepath.Join(dir, file)}
	}
	return "docker", []string{
		"run", "--rm",
		"--network", "none",
		"-v", fmt.Sprintf("%s:%s:ro", dir, containerDir),
		s.image,
		"clamscan", "--stdout", "--no-summary",
		path.Join(containerDir, file),
	}
}

func stagedName(name string) string {
	base := filepath.Base(path.Base(name))
	if base == "." || base == "/" || base == "" {
		return "package.apk"
	}
	return base
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
