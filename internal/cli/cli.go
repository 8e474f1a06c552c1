package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/droidrepo/internal/config"
)

// Version is set at build time.
var Version = "dev"

// NewApp creates the CLI application wired to the real environment.
func NewApp() *cli.App {
	return NewAppWithDependencies(DefaultDependencies())
}

// NewAppWithDependencies creates the CLI application with explicit
// collaborators.
func NewAppWithDependencies(deps Dependencies) *cli.App {
	return &cli.App{
		Name:      "droidrepo",
		Usage:     "Build an F-Droid repository index from upstream GitHub releases",
		Version:   Version,
		Compiled:  time.Now(),
		Writer:    deps.Stdout,
		ErrWriter: deps.Stderr,
		Authors: []*cli.Author{
			{
				Name:  "Clean Dependency Project",
				Email: "info@example.com",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "apps.yaml",
				Usage:   "path to the apps configuration file",
				EnvVars: []string{"DROIDREPO_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"DROIDREPO_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "log format (json, text)",
				EnvVars: []string{"DROIDREPO_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Fetch upstream releases and update the repository index",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "repo-dir",
						Usage: "directory holding index-v2.json (defaults to repo.output_dir)",
					},
					&cli.StringFlag{
						Name:  "ignore-file",
						Usage: "YAML/JSON file of release tags to skip (defaults to repo.ignore_file)",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "number of apps processed in parallel (defaults to repo.concurrency)",
					},
					&cli.StringFlag{
						Name:  "summary",
						Usage: "write the JSON run summary to this file",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "run every stage but write no index files",
					},
					&cli.BoolFlag{
						Name:  "no-scan",
						Usage: "skip the malware scan even when repo.scan.enabled is set",
					},
					&cli.BoolFlag{
						Name:  "allow-partial",
						Usage: "exit 0 even when some apps failed",
					},
					&cli.StringFlag{
						Name:    "github-token",
						Usage:   "GitHub token for API requests",
						EnvVars: []string{"GITHUB_TOKEN"},
					},
				},
				Action: func(c *cli.Context) error {
					return buildCommand(c, deps)
				},
			},
			{
				Name:  "check",
				Usage: "Validate the configuration, probe upstreams and verify index signatures",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "probe",
						Usage: "list each app's releases and show the asset that would be selected",
					},
					&cli.StringFlag{
						Name:  "public-key",
						Usage: "armored public key used to verify the index .asc signatures",
					},
					&cli.StringFlag{
						Name:  "repo-dir",
						Usage: "directory holding the emitted index (defaults to repo.output_dir)",
					},
					&cli.StringFlag{
						Name:    "github-token",
						Usage:   "GitHub token for API requests",
						EnvVars: []string{"GITHUB_TOKEN"},
					},
				},
				Action: func(c *cli.Context) error {
					return checkCommand(c, deps)
				},
			},
			{
				Name:      "inspect",
				Usage:     "Print the metadata extracted from an APK file",
				ArgsUsage: "<file.apk>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "output",
						Value: "text",
						Usage: "output format (text, json)",
					},
				},
				Action: func(c *cli.Context) error {
					return inspectCommand(c, deps)
				},
			},
		},
	}
}

// setup creates the loggers and loads the configuration.
func setup(c *cli.Context, deps Dependencies) (*config.Config, *slog.Logger, *slog.Logger, error) {
	stdout, stderr, err := NewLoggers(c.String("log-level"), c.String("log-format"), deps.Stderr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, stdout, stderr, nil
}

// repoDir returns the --repo-dir flag or the configured output directory.
func repoDir(c *cli.Context, cfg *config.Config) string {
	if dir := c.String("repo-dir"); dir != "" {
		return dir
	}
	if cfg.Repo.OutputDir != "" {
		return cfg.Repo.OutputDir
	}
	return config.DefaultOutputDir
}
