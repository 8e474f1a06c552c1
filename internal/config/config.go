// Package config loads the apps file that drives a repository build: the
// repository's own metadata and defaults, and one entry per published app.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/github/go-spdx/v2/spdxexp"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/clean-dependency-project/droidrepo/internal/platform"
	"github.com/clean-dependency-project/droidrepo/internal/version"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired      = errors.New("version is required")
	ErrRepoURLRequired      = errors.New("repo.url is required")
	ErrRepoNameRequired     = errors.New("repo.name is required")
	ErrNoApps               = errors.New("at least one app must be configured")
	ErrLogicalIDRequired    = errors.New("logical_id is required")
	ErrInvalidLogicalID     = errors.New("logical_id may only contain letters, digits, '.', '_' and '-'")
	ErrDuplicateLogicalID   = errors.New("duplicate logical_id")
	ErrSourceRequired       = errors.New("github source is required")
	ErrInvalidSource        = errors.New("github source must be in owner/repo format")
	ErrAllowedIDsRequired   = errors.New("package.allowed_ids is required unless package.allow_pkg_change is set")
	ErrInvalidPackageID     = errors.New("invalid package identifier")
	ErrInvalidABIPolicy     = errors.New("invalid abi_policy")
	ErrInvalidRetention     = errors.New("retention must be a positive number of versions")
	ErrInvalidLicense       = errors.New("license is not a valid SPDX expression")
	ErrInvalidLocale        = errors.New("invalid locale tag")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInvalidConcurrency   = errors.New("concurrency must not be negative")
	ErrInvalidTagConstraint = errors.New("invalid release.tag_constraint")
	ErrInvalidScanMode      = errors.New("scan.mode must be docker or local")
)

// Defaults applied by ApplyDefaults.
const (
	DefaultMaxVersions     = 2
	DefaultConcurrency     = 4
	DefaultFetchTimeout    = 30 * time.Second
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultMaxAssetSizeMB  = 200
	DefaultOutputDir       = "repo"
	DefaultLocale          = "en-US"
)

var (
	logicalIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	packageIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)
	sourcePattern    = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
)

// Config represents the top-level apps file.
type Config struct {
	Version string      `yaml:"version"`
	Repo    RepoConfig  `yaml:"repo"`
	Apps    []AppConfig `yaml:"apps"`
}

// RepoConfig describes the published repository and run-wide defaults.
type RepoConfig struct {
	Name               LocalizedText `yaml:"name"`
	Description        LocalizedText `yaml:"description"`
	URL                string        `yaml:"url"`
	Icon               string        `yaml:"icon,omitempty"`
	MaxVersionsDefault int           `yaml:"max_versions_default"`
	Concurrency        int           `yaml:"concurrency"`
	FetchTimeout       string        `yaml:"fetch_timeout"`
	DownloadTimeout    string        `yaml:"download_timeout"`
	MaxAssetSizeMB     int64         `yaml:"max_asset_size_mb"`
	OutputDir          string        `yaml:"output_dir"`
	IgnoreFile         string        `yaml:"ignore_file,omitempty"` // Path to YAML/JSON file listing release tags to skip per app
	Signing            SigningConfig `yaml:"signing,omitempty"`
	HTML               bool          `yaml:"html"`
	Scan               ScanConfig    `yaml:"scan,omitempty"`
}

// ScanConfig enables ClamAV scanning of downloaded packages.
type ScanConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode,omitempty"`  // docker (default) or local
	Image   string `yaml:"image,omitempty"` // container image for docker mode
	Timeout string `yaml:"timeout,omitempty"`
}

// DefaultScanTimeout bounds a single package scan.
const DefaultScanTimeout = 2 * time.Minute

// GetTimeout parses and returns the per-package scan timeout.
func (s ScanConfig) GetTimeout() time.Duration {
	return parseDurationOr(s.Timeout, DefaultScanTimeout)
}

// SigningConfig points at the OpenPGP key used to sign emitted documents.
type SigningConfig struct {
	KeyFile       string `yaml:"key_file,omitempty"`
	PassphraseEnv string `yaml:"passphrase_env,omitempty"`
}

// Enabled reports whether index signing is configured.
func (s SigningConfig) Enabled() bool {
	return s.KeyFile != ""
}

// GetFetchTimeout parses and returns the release listing timeout.
func (r *RepoConfig) GetFetchTimeout() time.Duration {
	return parseDurationOr(r.FetchTimeout, DefaultFetchTimeout)
}

// GetDownloadTimeout parses and returns the per-asset download timeout.
func (r *RepoConfig) GetDownloadTimeout() time.Duration {
	return parseDurationOr(r.DownloadTimeout, DefaultDownloadTimeout)
}

// MaxAssetSize returns the download size cap in bytes.
func (r *RepoConfig) MaxAssetSize() int64 {
	if r.MaxAssetSizeMB <= 0 {
		return DefaultMaxAssetSizeMB << 20
	}
	return r.MaxAssetSizeMB << 20
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// AppConfig is the per-app configuration entry.
type AppConfig struct {
	LogicalID   string          `yaml:"logical_id"`
	GitHub      string          `yaml:"github"`
	Release     ReleaseConfig   `yaml:"release"`
	Package     PackageConfig   `yaml:"package"`
	Signature   SignatureConfig `yaml:"signature"`
	ABIPolicy   string          `yaml:"abi_policy"`
	Retention   RetentionConfig `yaml:"retention"`
	AssetFilter AssetFilter     `yaml:"asset_filter"`
	Metadata    AppMetadata     `yaml:"metadata"`
}

// ReleaseConfig controls which upstream releases are candidates.
type ReleaseConfig struct {
	IgnoreDrafts                *bool  `yaml:"ignore_drafts,omitempty"`
	PreferPrerelease            bool   `yaml:"prefer_prerelease"`
	IncludePrereleaseIfNoStable *bool  `yaml:"include_prerelease_if_no_stable,omitempty"`
	TagConstraint               string `yaml:"tag_constraint,omitempty"` // semver constraint, e.g. ">= 2.0"
}

// ShouldIgnoreDrafts defaults to true.
func (r ReleaseConfig) ShouldIgnoreDrafts() bool {
	return r.IgnoreDrafts == nil || *r.IgnoreDrafts
}

// ShouldIncludePrereleaseIfNoStable defaults to true.
func (r ReleaseConfig) ShouldIncludePrereleaseIfNoStable() bool {
	return r.IncludePrereleaseIfNoStable == nil || *r.IncludePrereleaseIfNoStable
}

// PackageConfig constrains the package identifier an app may publish.
type PackageConfig struct {
	AllowedIDs     []string `yaml:"allowed_ids"`
	AllowPkgChange bool     `yaml:"allow_pkg_change"`
}

// SignatureConfig controls signing-certificate pinning.
type SignatureConfig struct {
	AllowSignatureChange bool `yaml:"allow_signature_change"`
}

// RetentionConfig overrides the repository's version retention.
type RetentionConfig struct {
	RetainVersions int `yaml:"retain_versions,omitempty"`
}

// AssetFilter narrows release assets by filename.
type AssetFilter struct {
	IncludeKeywords []string `yaml:"include_keywords,omitempty"`
	ExcludeKeywords []string `yaml:"exclude_keywords,omitempty"`
	AllowUniversal  bool     `yaml:"allow_universal"`
}

// AppMetadata is copied into the index entry for display.
type AppMetadata struct {
	Name         LocalizedText `yaml:"name,omitempty"`
	Summary      LocalizedText `yaml:"summary,omitempty"`
	Description  LocalizedText `yaml:"description,omitempty"`
	Categories   []string      `yaml:"categories,omitempty"`
	License      string        `yaml:"license,omitempty"`
	SourceURL    string        `yaml:"source_url,omitempty"`
	IssueTracker string        `yaml:"issue_tracker,omitempty"`
	Website      string        `yaml:"website,omitempty"`
	AntiFeatures []string      `yaml:"anti_features,omitempty"`
}

// Policy returns the parsed ABI policy.
func (a *AppConfig) Policy() platform.Policy {
	p, err := platform.ParsePolicy(a.ABIPolicy)
	if err != nil {
		return platform.ArmPreferred
	}
	return p
}

// RetainVersions returns the app override or the repository default.
func (c *Config) RetainVersions(app *AppConfig) int {
	if app != nil && app.Retention.RetainVersions > 0 {
		return app.Retention.RetainVersions
	}
	if c.Repo.MaxVersionsDefault > 0 {
		return c.Repo.MaxVersionsDefault
	}
	return DefaultMaxVersions
}

// App returns the app with the given logical id.
func (c *Config) App(logicalID string) (*AppConfig, bool) {
	for i := range c.Apps {
		if c.Apps[i].LogicalID == logicalID {
			return &c.Apps[i], true
		}
	}
	return nil, false
}

// LogicalIDForPackage returns the app whose allowed_ids lists pkg.
func (c *Config) LogicalIDForPackage(pkg string) (string, bool) {
	for _, app := range c.Apps {
		for _, id := range app.Package.AllowedIDs {
			if id == pkg {
				return app.LogicalID, true
			}
		}
	}
	return "", false
}

// LoadConfig loads, defaults and validates the apps file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// ApplyDefaults fills unset repository settings.
func (c *Config) ApplyDefaults() {
	if c.Repo.MaxVersionsDefault == 0 {
		c.Repo.MaxVersionsDefault = DefaultMaxVersions
	}
	if c.Repo.Concurrency == 0 {
		c.Repo.Concurrency = DefaultConcurrency
	}
	if c.Repo.OutputDir == "" {
		c.Repo.OutputDir = DefaultOutputDir
	}
	if c.Repo.Description.IsEmpty() && !c.Repo.Name.IsEmpty() {
		c.Repo.Description = c.Repo.Name
	}
	for i := range c.Apps {
		if c.Apps[i].ABIPolicy == "" {
			c.Apps[i].ABIPolicy = string(platform.ArmPreferred)
		}
	}
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if err := c.Repo.Validate(); err != nil {
		return fmt.Errorf("repo: %w", err)
	}
	if len(c.Apps) == 0 {
		return ErrNoApps
	}
	seen := make(map[string]bool, len(c.Apps))
	for i := range c.Apps {
		app := &c.Apps[i]
		if err := app.Validate(); err != nil {
			if app.LogicalID == "" {
				return fmt.Errorf("app #%d: %w", i+1, err)
			}
			return fmt.Errorf("app %s: %w", app.LogicalID, err)
		}
		if seen[app.LogicalID] {
			return fmt.Errorf("app %s: %w", app.LogicalID, ErrDuplicateLogicalID)
		}
		seen[app.LogicalID] = true
	}
	return nil
}

// Validate validates repository settings.
func (r *RepoConfig) Validate() error {
	if r.URL == "" {
		return ErrRepoURLRequired
	}
	if r.Name.IsEmpty() {
		return ErrRepoNameRequired
	}
	if r.MaxVersionsDefault < 0 {
		return ErrInvalidRetention
	}
	if r.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	switch strings.ToLower(r.Scan.Mode) {
	case "", "docker", "local":
	default:
		return fmt.Errorf("%q: %w", r.Scan.Mode, ErrInvalidScanMode)
	}
	for _, f := range [][2]string{
		{"fetch_timeout", r.FetchTimeout},
		{"download_timeout", r.DownloadTimeout},
		{"scan.timeout", r.Scan.Timeout},
	} {
		if f[1] == "" {
			continue
		}
		if d, err := time.ParseDuration(f[1]); err != nil || d <= 0 {
			return fmt.Errorf("%s %q: %w", f[0], f[1], ErrInvalidDuration)
		}
	}
	return nil
}

// Validate validates a single app entry.
func (a *AppConfig) Validate() error {
	if a.LogicalID == "" {
		return ErrLogicalIDRequired
	}
	if !logicalIDPattern.MatchString(a.LogicalID) {
		return ErrInvalidLogicalID
	}
	if a.GitHub == "" {
		return ErrSourceRequired
	}
	if !sourcePattern.MatchString(strings.TrimSpace(a.GitHub)) {
		return fmt.Errorf("%q: %w", a.GitHub, ErrInvalidSource)
	}
	if len(a.Package.AllowedIDs) == 0 && !a.Package.AllowPkgChange {
		return ErrAllowedIDsRequired
	}
	for _, id := range a.Package.AllowedIDs {
		if !packageIDPattern.MatchString(id) {
			return fmt.Errorf("%q: %w", id, ErrInvalidPackageID)
		}
	}
	if _, err := platform.ParsePolicy(a.ABIPolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidABIPolicy, err)
	}
	if a.Retention.RetainVersions < 0 {
		return ErrInvalidRetention
	}
	if _, err := version.NewMatcher(a.Release.TagConstraint); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTagConstraint, err)
	}
	if a.Metadata.License != "" {
		if ok, invalid := spdxexp.ValidateLicenses([]string{a.Metadata.License}); !ok {
			return fmt.Errorf("%q (%s): %w", a.Metadata.License, strings.Join(invalid, ", "), ErrInvalidLicense)
		}
	}
	return nil
}

// LocalizedText maps BCP 47 locale tags to strings. A plain YAML scalar
// is stored under DefaultLocale.
type LocalizedText map[string]string

// UnmarshalYAML accepts either a scalar or a locale mapping and
// canonicalizes the locale keys.
func (l *LocalizedText) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = LocalizedText{DefaultLocale: s}
		return nil
	}
	var raw map[string]string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	out := make(LocalizedText, len(raw))
	for key, value := range raw {
		tag, err := language.Parse(key)
		if err != nil {
			return fmt.Errorf("%q: %w", key, ErrInvalidLocale)
		}
		out[tag.String()] = value
	}
	*l = out
	return nil
}

// IsEmpty reports whether no locale carries a non-blank value.
func (l LocalizedText) IsEmpty() bool {
	for _, v := range l {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Default returns the DefaultLocale value, falling back to the first
// locale in sorted order.
func (l LocalizedText) Default() string {
	if v, ok := l[DefaultLocale]; ok {
		return v
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return l[keys[0]]
}
