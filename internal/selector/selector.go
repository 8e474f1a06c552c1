// Package selector picks the one APK asset of a release that an app
// publishes, according to its ABI policy and filename filters.
package selector

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/platform"
	"github.com/clean-dependency-project/droidrepo/internal/upstream"
)

// ErrNoAssetFound means no asset of the release qualified. It is a skip,
// not a failure.
var ErrNoAssetFound = errors.New("no suitable asset found")

// Criteria holds the per-app selection rules.
type Criteria struct {
	Policy          platform.Policy
	IncludeKeywords []string
	ExcludeKeywords []string
	AllowUniversal  bool
	// Ignored reports release/ABI combinations that must be skipped.
	Ignored func(tag string, abi platform.ABI) bool
}

// CriteriaFor derives Criteria from an app's configuration and the ignore
// rules loaded for the run.
func CriteriaFor(app *config.AppConfig, ignore config.IgnoreConfig) Criteria {
	c := Criteria{
		Policy:          app.Policy(),
		IncludeKeywords: app.AssetFilter.IncludeKeywords,
		ExcludeKeywords: app.AssetFilter.ExcludeKeywords,
		AllowUniversal:  app.AssetFilter.AllowUniversal,
	}
	if len(ignore) > 0 {
		id := app.LogicalID
		c.Ignored = func(tag string, abi platform.ABI) bool {
			return ignore.IsAssetIgnored(id, tag, string(abi))
		}
	}
	return c
}

// SelectedAsset is the asset chosen for a release.
type SelectedAsset struct {
	upstream.Asset
	ABI         platform.ABI
	Tag         string
	PublishedAt time.Time
	Prerelease  bool
}

// Rejection explains why an asset was not selected.
type Rejection struct {
	Asset  string
	Reason string
}

type candidate struct {
	asset upstream.Asset
	abi   platform.ABI
	rank  int
}

// Select returns the best asset of release. Assets are filtered by
// extension, exclusion and inclusion keywords, x86 ABIs and the ABI
// policy; the remaining ones are ordered by ABI preference, then filename.
func Select(release upstream.ReleaseCandidate, c Criteria) (SelectedAsset, error) {
	candidates, rejections := filter(release, c)
	if len(candidates) == 0 {
		return SelectedAsset{}, noAssetError(release.Tag, rejections)
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if a.rank != b.rank {
			return a.rank - b.rank
		}
		return strings.Compare(a.asset.Name, b.asset.Name)
	})

	best := candidates[0]
	return SelectedAsset{
		Asset:       best.asset,
		ABI:         best.abi,
		Tag:         release.Tag,
		PublishedAt: release.PublishedAt,
		Prerelease:  release.Prerelease,
	}, nil
}

// SelectLatest walks releases newest first (publish time, then tag) and
// returns the selection from the first release that has a qualifying asset.
func SelectLatest(releases []upstream.ReleaseCandidate, c Criteria) (SelectedAsset, error) {
	ordered := slices.Clone(releases)
	upstream.SortNewestFirst(ordered)
	for _, r := range ordered {
		selected, err := Select(r, c)
		if err == nil {
			return selected, nil
		}
	}
	return SelectedAsset{}, ErrNoAssetFound
}

// Explain lists why each asset of release was rejected.
func Explain(release upstream.ReleaseCandidate, c Criteria) []Rejection {
	_, rejections := filter(release, c)
	return rejections
}

func filter(release upstream.ReleaseCandidate, c Criteria) ([]candidate, []Rejection) {
	var candidates []candidate
	var rejections []Rejection
	reject := func(name, reason string) {
		rejections = append(rejections, Rejection{Asset: name, Reason: reason})
	}

	for _, asset := range release.Assets {
		lower := strings.ToLower(asset.Name)
		if !strings.HasSuffix(lower, ".apk") {
			reject(asset.Name, "not an .apk file")
			continue
		}
		if kw, ok := matchKeyword(lower, c.ExcludeKeywords); ok {
			reject(asset.Name, fmt.Sprintf("excluded keyword %q", kw))
			continue
		}
		if len(c.IncludeKeywords) > 0 {
			if _, ok := matchKeyword(lower, c.IncludeKeywords); !ok {
				reject(asset.Name, "no include keyword")
				continue
			}
		}
		abi := platform.DetectABI(asset.Name)
		if abi.IsX86() {
			reject(asset.Name, "x86 build")
			continue
		}
		rank, ok := c.Policy.Rank(abi, c.AllowUniversal)
		if !ok {
			reject(asset.Name, fmt.Sprintf("abi %s not allowed by %s", abi, c.Policy))
			continue
		}
		if c.Ignored != nil && c.Ignored(release.Tag, abi) {
			reject(asset.Name, "ignored by ignore file")
			continue
		}
		candidates = append(candidates, candidate{asset: asset, abi: abi, rank: rank})
	}
	return candidates, rejections
}

func matchKeyword(lowerName string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lowerName, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func noAssetError(tag string, rejections []Rejection) error {
	if len(rejections) == 0 {
		return fmt.Errorf("%w in release %s: no assets", ErrNoAssetFound, tag)
	}
	parts := make([]string, 0, len(rejections))
	for _, r := range rejections {
		parts = append(parts, r.Asset+": "+r.Reason)
	}
	return fmt.Errorf("%w in release %s (%s)", ErrNoAssetFound, tag, strings.Join(parts, "; "))
}
