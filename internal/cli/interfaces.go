// Package cli provides the droidrepo command-line interface.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/clean-dependency-project/droidrepo/internal/clamav"
	gh "github.com/clean-dependency-project/droidrepo/internal/github"
	"github.com/clean-dependency-project/droidrepo/internal/upstream"
)

// SourceFactory creates the upstream source for a run. Tests replace it
// with one pointing at an httptest server.
type SourceFactory func(token string) upstream.Source

// Dependencies are the process-level collaborators of the CLI.
type Dependencies struct {
	NewSource SourceFactory
	// ScanRunner executes clamscan or docker when repo.scan is enabled.
	ScanRunner clamav.CommandRunner
	// Stdout receives annotations and command output; logs go to Stderr.
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time
}

// DefaultDependencies talks to GitHub and the real process environment.
func DefaultDependencies() Dependencies {
	return Dependencies{
		NewSource: func(token string) upstream.Source {
			return gh.NewClient(token, gh.WithHTTPClient(gh.NewHTTPClient(0)))
		},
		ScanRunner: clamav.ExecRunner{},
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Getenv:     os.Getenv,
		Now:        time.Now,
	}
}
