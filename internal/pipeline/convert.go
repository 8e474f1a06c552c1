package pipeline

import (
	"maps"
	"slices"

	"github.com/clean-dependency-project/droidrepo/internal/apk"
	"github.com/clean-dependency-project/droidrepo/internal/config"
	"github.com/clean-dependency-project/droidrepo/internal/index"
	"github.com/clean-dependency-project/droidrepo/internal/selector"
	"github.com/clean-dependency-project/droidrepo/internal/version"
)

// NewVersion converts inspected metadata into an index version whose file
// points at the upstream download URL. A missing versionName falls back
// to the release tag.
func NewVersion(md *apk.Metadata, asset selector.SelectedAsset, added int64) index.Version {
	name := md.VersionName
	if name == "" {
		name = version.DisplayName(asset.Tag)
	}
	v := index.Version{
		Added: added,
		File: index.File{
			Name:   asset.URL,
			SHA256: md.SHA256,
			Size:   md.Size,
		},
		Manifest: index.Manifest{
			VersionName: name,
			VersionCode: md.VersionCode,
			UsesSdk: &index.UsesSdk{
				MinSdkVersion:    md.MinSDK,
				TargetSdkVersion: md.TargetSDK,
			},
			NativeCode: slices.Clone(md.NativeCode),
		},
	}
	if len(md.Signers) > 0 {
		v.Manifest.Signer = &index.Signer{SHA256: slices.Clone(md.Signers)}
	}
	for _, perm := range md.Permissions {
		v.Manifest.UsesPermission = append(v.Manifest.UsesPermission, index.Permission{
			Name:          perm.Name,
			MaxSdkVersion: perm.MaxSDKVersion,
		})
	}
	for _, feature := range md.Features {
		v.Manifest.Features = append(v.Manifest.Features, index.Feature{Name: feature})
	}
	return v
}

// MetadataFromConfig builds the display metadata of an app. The logical id
// stands in for a missing name.
func MetadataFromConfig(app *config.AppConfig) index.Metadata {
	m := app.Metadata
	name := localized(m.Name)
	if name == nil {
		name = map[string]string{config.DefaultLocale: app.LogicalID}
	}
	return index.Metadata{
		Name:         name,
		Summary:      localized(m.Summary),
		Description:  localized(m.Description),
		Categories:   slices.Clone(m.Categories),
		License:      m.License,
		SourceCode:   m.SourceURL,
		IssueTracker: m.IssueTracker,
		WebSite:      m.Website,
		AntiFeatures: slices.Clone(m.AntiFeatures),
	}
}

// RepoFromConfig returns the repository metadata for the index.
func RepoFromConfig(cfg *config.Config) index.Repo {
	return index.Repo{
		Name:        localized(cfg.Repo.Name),
		Description: localized(cfg.Repo.Description),
		Address:     cfg.Repo.URL,
		Icon:        cfg.Repo.Icon,
	}
}

// ResolveLogicalID maps a package name back to the app that publishes it,
// for loading the previous index.
func ResolveLogicalID(cfg *config.Config) func(string) string {
	return func(pkg string) string {
		id, _ := cfg.LogicalIDForPackage(pkg)
		return id
	}
}

func localized(l config.LocalizedText) map[string]string {
	if l.IsEmpty() {
		return nil
	}
	return maps.Clone(map[string]string(l))
}
