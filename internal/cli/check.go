package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/gpg"
	"github.com/clean-dependency-project/droidrepo/internal/index"
	"github.com/clean-dependency-project/droidrepo/internal/selector"
	"github.com/clean-dependency-project/droidrepo/internal/upstream"
)

// checkCommand validates the configuration and, on request, probes every
// upstream and verifies the emitted index signatures.
func checkCommand(c *cli.Context, deps Dependencies) error {
	cfg, stdout, stderr, err := setup(c, deps)
	if err != nil {
		return err
	}
	ignore, err := config.LoadIgnoreConfig(cfg.Repo.IgnoreFile)
	if err != nil {
		return err
	}
	stdout.Info("configuration valid", "apps", len(cfg.Apps), "repo", cfg.Repo.URL)

	problems := 0
	if c.Bool("probe") {
		fetcher := upstream.NewFetcher(deps.NewSource(c.String("github-token")),
			upstream.WithListTimeout(cfg.Repo.GetFetchTimeout()),
			upstream.WithLogger(stderr),
		)
		w := tabwriter.NewWriter(deps.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "APP\tTAG\tASSET\tABI")
		for i := range cfg.Apps {
			app := &cfg.Apps[i]
			policy, err := upstream.NewPolicy(app.Release)
			if err != nil {
				return err
			}
			releases, err := fetcher.Releases(c.Context, app.GitHub, policy)
			if err != nil {
				problems++
				fmt.Fprintf(w, "%s\t-\t%v\t-\n", app.LogicalID, err)
				continue
			}
			asset, err := selector.SelectLatest(releases, selector.CriteriaFor(app, ignore))
			if err != nil {
				if !errors.Is(err, selector.ErrNoAssetFound) {
					problems++
				}
				fmt.Fprintf(w, "%s\t-\t%v\t-\n", app.LogicalID, err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.LogicalID, asset.Tag, asset.Name, asset.ABI)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if keyPath := c.String("public-key"); keyPath != "" {
		n, err := verifySignatures(repoDir(c, cfg), keyPath)
		if err != nil {
			return err
		}
		stdout.Info("index signatures verified", "files", n)
	}

	if problems > 0 {
		return cli.Exit(fmt.Sprintf("%d app(s) could not be probed", problems), 2)
	}
	return nil
}

// verifySignatures checks the detached signature of every JSON index in
// dir. A document without its .asc file is an error.
func verifySignatures(dir, keyPath string) (int, error) {
	keyRing, err := gpg.LoadKeyRingFromFile(keyPath)
	if err != nil {
		return 0, err
	}
	verified := 0
	for _, name := range []string{index.FileV2, index.FileV1} {
		data := filepath.Join(dir, name)
		if _, err := os.Stat(data); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := gpg.VerifyDetachedSignature(keyRing, data, data+".asc"); err != nil {
			return verified, fmt.Errorf("%s: %w", name, err)
		}
		verified++
	}
	if verified == 0 {
		return 0, fmt.Errorf("no index found in %s", dir)
	}
	return verified, nil
}
