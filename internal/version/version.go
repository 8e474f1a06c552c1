// Package version interprets upstream release tags as semantic versions.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Operations reported in ErrVersionParseFailed.
const (
	OpParseTag        = "parse_tag"
	OpParseConstraint = "parse_constraint"
)

var (
	ErrInvalidVersion    = errors.New("invalid version format")
	ErrInvalidConstraint = errors.New("invalid version constraint")
)

// ErrVersionParseFailed represents a tag or constraint parsing error.
type ErrVersionParseFailed struct {
	Version string
	Op      string
	Cause   error
}

func (e ErrVersionParseFailed) Error() string {
	return fmt.Sprintf("failed to parse version %s in operation %s: %v", e.Version, e.Op, e.Cause)
}

func (e ErrVersionParseFailed) Unwrap() error {
	return e.Cause
}

func (e ErrVersionParseFailed) Is(target error) bool {
	var parseErr ErrVersionParseFailed
	return errors.As(target, &parseErr)
}

// ParseTag parses a release tag such as "v1.4.2", "release-2.0" or
// "app_3.1.0-beta1". Any prefix before the first digit is dropped.
func ParseTag(tag string) (*semver.Version, error) {
	trimmed := strings.TrimSpace(tag)
	idx := strings.IndexFunc(trimmed, func(r rune) bool { return r >= '0' && r <= '9' })
	if idx < 0 {
		return nil, ErrVersionParseFailed{Version: tag, Op: OpParseTag, Cause: ErrInvalidVersion}
	}
	v, err := semver.NewVersion(trimmed[idx:])
	if err != nil {
		return nil, ErrVersionParseFailed{Version: tag, Op: OpParseTag, Cause: err}
	}
	return v, nil
}

// CompareTags orders two release tags: -1 if a < b, 0 if equal, 1 if a > b.
// Tags that parse as versions sort above tags that do not; two unparseable
// tags compare lexically.
func CompareTags(a, b string) int {
	va, errA := ParseTag(a)
	vb, errB := ParseTag(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// DisplayName returns the tag without its non-numeric prefix, used when a
// manifest's versionName is not a literal string.
func DisplayName(tag string) string {
	v, err := ParseTag(tag)
	if err != nil {
		return strings.TrimSpace(tag)
	}
	return v.Original()
}

// Matcher checks release tags against a semver constraint string such as
// ">= 2.0, < 3". An empty constraint matches everything.
type Matcher struct {
	raw        string
	constraint *semver.Constraints
}

// NewMatcher compiles constraint.
func NewMatcher(constraint string) (*Matcher, error) {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return &Matcher{}, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, ErrVersionParseFailed{
			Version: constraint,
			Op:      OpParseConstraint,
			Cause:   errors.Join(ErrInvalidConstraint, err),
		}
	}
	return &Matcher{raw: constraint, constraint: c}, nil
}

// Matches reports whether tag satisfies the constraint. Tags that do not
// parse never satisfy a non-empty constraint.
func (m *Matcher) Matches(tag string) bool {
	if m == nil || m.constraint == nil {
		return true
	}
	v, err := ParseTag(tag)
	if err != nil {
		return false
	}
	if v.Prerelease() != "" {
		// semver constraints exclude prereleases unless the constraint names
		// one; compare the release part so prerelease policy stays with the
		// release filter.
		base, err := v.SetPrerelease("")
		if err == nil {
			v = &base
		}
	}
	return m.constraint.Check(v)
}

// String returns the original constraint.
func (m *Matcher) String() string {
	if m == nil {
		return ""
	}
	return m.raw
}
