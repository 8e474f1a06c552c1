package upstream

import (
	"slices"
	"strings"

	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/version"
)

// Policy decides which upstream releases are candidates for an app.
type Policy struct {
	IgnoreDrafts                bool
	PreferPrerelease            bool
	IncludePrereleaseIfNoStable bool
	Tags                        *version.Matcher
}

// NewPolicy builds a Policy from an app's release configuration.
func NewPolicy(rc config.ReleaseConfig) (Policy, error) {
	m, err := version.NewMatcher(rc.TagConstraint)
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		IgnoreDrafts:                rc.ShouldIgnoreDrafts(),
		PreferPrerelease:            rc.PreferPrerelease,
		IncludePrereleaseIfNoStable: rc.ShouldIncludePrereleaseIfNoStable(),
		Tags:                        m,
	}, nil
}

// ApplyPolicy filters releases and returns them newest first. Releases
// without assets never qualify. With PreferPrerelease, prereleases come
// before stable releases; otherwise only stable releases are returned,
// falling back to prereleases when there is no stable release and
// IncludePrereleaseIfNoStable is set.
func ApplyPolicy(releases []ReleaseCandidate, p Policy) []ReleaseCandidate {
	var stable, pre []ReleaseCandidate
	for _, r := range releases {
		if r.Draft && p.IgnoreDrafts {
			continue
		}
		if len(r.Assets) == 0 {
			continue
		}
		if !p.Tags.Matches(r.Tag) {
			continue
		}
		if r.Prerelease {
			pre = append(pre, r)
		} else {
			stable = append(stable, r)
		}
	}
	SortNewestFirst(stable)
	SortNewestFirst(pre)

	switch {
	case p.PreferPrerelease:
		return append(pre, stable...)
	case len(stable) > 0:
		return stable
	case p.IncludePrereleaseIfNoStable:
		return pre
	}
	return nil
}

// SortNewestFirst orders releases by publish time, then by tag version,
// then by tag text, all descending.
func SortNewestFirst(releases []ReleaseCandidate) {
	slices.SortStableFunc(releases, func(a, b ReleaseCandidate) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		if c := version.CompareTags(b.Tag, a.Tag); c != 0 {
			return c
		}
		return strings.Compare(b.Tag, a.Tag)
	})
}
