// Package main provides the repopage command, which re-renders the static
// HTML listing of a repository from its index-v2.json.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	appcli "github.com/clean-dependency-project/droidrepo/internal/cli"
	"github.com/clean-dependency-project/droidrepo/internal/index"
)

func main() {
	app := &cli.App{
		Name:  "repopage",
		Usage: "Render the repository HTML listing from index-v2.json",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "index",
				Usage:    "path to index-v2.json",
				Required: true,
				EnvVars:  []string{"REPOPAGE_INDEX"},
			},
			&cli.StringFlag{
				Name:    "out",
				Usage:   "output directory for index.html (defaults to the index directory)",
				EnvVars: []string{"REPOPAGE_OUT"},
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "render without writing files",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"REPOPAGE_LOG_LEVEL"},
			},
		},
		Action: runRepopage,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runRepopage loads the index and writes index.html next to it.
func runRepopage(c *cli.Context) error {
	stdout, _, err := appcli.NewLoggers(c.String("log-level"), "json", os.Stderr)
	if err != nil {
		return err
	}

	path := c.String("index")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("index not found: %w", err)
	}
	idx, err := index.Load(path, nil)
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" {
		out = filepath.Dir(path)
	}
	result, err := index.WriteHTML(out, idx, c.Bool("dry-run"), stdout)
	if err != nil {
		return err
	}

	stdout.Info("listing rendered",
		"apps", len(idx.Entries),
		"written", result.Written,
		"out", out)
	return nil
}
