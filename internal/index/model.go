// Package index holds the repository index model: merging accepted
// versions into the previous index, retention, the stable index-v2 codec,
// the index-v1 projection and fail-closed emission to disk.
package index

import (
	"maps"
	"slices"
	"strings"
)

// RepositoryIndex is the complete repository state. Entries are keyed by
// logical app id.
type RepositoryIndex struct {
	Repo    Repo
	Entries map[string]*Entry
}

// Repo is the repository-level metadata.
type Repo struct {
	Name        map[string]string
	Description map[string]string
	Address     string
	Icon        string
	// Timestamp is in milliseconds since the epoch.
	Timestamp int64
}

// Entry is one logical app and its retained versions, newest first.
type Entry struct {
	LogicalID       string
	PackageName     string
	Metadata        Metadata
	PreferredSigner string
	Versions        []Version
}

// Metadata is the display metadata of an app.
type Metadata struct {
	Name         map[string]string
	Summary      map[string]string
	Description  map[string]string
	Categories   []string
	License      string
	SourceCode   string
	IssueTracker string
	WebSite      string
	AntiFeatures []string
	Added        int64
	LastUpdated  int64
}

// Version is one published APK.
type Version struct {
	Added    int64    `json:"added"`
	File     File     `json:"file"`
	Manifest Manifest `json:"manifest"`
}

// File locates the APK.
type File struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest is the manifest data of a version.
type Manifest struct {
	VersionName    string       `json:"versionName"`
	VersionCode    int64        `json:"versionCode"`
	UsesSdk        *UsesSdk     `json:"usesSdk,omitempty"`
	Signer         *Signer      `json:"signer,omitempty"`
	NativeCode     []string     `json:"nativecode,omitempty"`
	UsesPermission []Permission `json:"usesPermission,omitempty"`
	Features       []Feature    `json:"features,omitempty"`
}

type UsesSdk struct {
	MinSdkVersion    int `json:"minSdkVersion"`
	TargetSdkVersion int `json:"targetSdkVersion"`
}

type Signer struct {
	SHA256 []string `json:"sha256"`
}

type Permission struct {
	Name          string `json:"name"`
	MaxSdkVersion int    `json:"maxSdkVersion,omitempty"`
}

type Feature struct {
	Name string `json:"name"`
}

// Empty returns an index with no entries.
func Empty() *RepositoryIndex {
	return &RepositoryIndex{Entries: map[string]*Entry{}}
}

// Entry returns the entry for a logical id, or nil.
func (idx *RepositoryIndex) Entry(logicalID string) *Entry {
	if idx == nil {
		return nil
	}
	return idx.Entries[logicalID]
}

// IDs returns the logical ids in sorted order.
func (idx *RepositoryIndex) IDs() []string {
	return slices.Sorted(maps.Keys(idx.Entries))
}

// Clone returns a deep copy of the index.
func (idx *RepositoryIndex) Clone() *RepositoryIndex {
	out := &RepositoryIndex{Repo: idx.Repo, Entries: make(map[string]*Entry, len(idx.Entries))}
	out.Repo.Name = maps.Clone(idx.Repo.Name)
	out.Repo.Description = maps.Clone(idx.Repo.Description)
	for id, e := range idx.Entries {
		out.Entries[id] = e.Clone()
	}
	return out
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Metadata.Name = maps.Clone(e.Metadata.Name)
	out.Metadata.Summary = maps.Clone(e.Metadata.Summary)
	out.Metadata.Description = maps.Clone(e.Metadata.Description)
	out.Metadata.Categories = slices.Clone(e.Metadata.Categories)
	out.Metadata.AntiFeatures = slices.Clone(e.Metadata.AntiFeatures)
	out.Versions = make([]Version, len(e.Versions))
	for i, v := range e.Versions {
		out.Versions[i] = v.clone()
	}
	return &out
}

func (v Version) clone() Version {
	out := v
	if v.Manifest.UsesSdk != nil {
		sdk := *v.Manifest.UsesSdk
		out.Manifest.UsesSdk = &sdk
	}
	if v.Manifest.Signer != nil {
		out.Manifest.Signer = &Signer{SHA256: slices.Clone(v.Manifest.Signer.SHA256)}
	}
	out.Manifest.NativeCode = slices.Clone(v.Manifest.NativeCode)
	out.Manifest.UsesPermission = slices.Clone(v.Manifest.UsesPermission)
	out.Manifest.Features = slices.Clone(v.Manifest.Features)
	return out
}

// PrimarySigner returns the first signer fingerprint of the version.
func (v Version) PrimarySigner() string {
	if v.Manifest.Signer == nil || len(v.Manifest.Signer.SHA256) == 0 {
		return ""
	}
	return v.Manifest.Signer.SHA256[0]
}

// Latest returns the newest retained version.
func (e *Entry) Latest() (Version, bool) {
	if e == nil || len(e.Versions) == 0 {
		return Version{}, false
	}
	return e.Versions[0], true
}

// HighestVersionCode returns the largest retained version code, or 0.
func (e *Entry) HighestVersionCode() int64 {
	var highest int64
	if e == nil {
		return 0
	}
	for _, v := range e.Versions {
		highest = max(highest, v.Manifest.VersionCode)
	}
	return highest
}

// FindVersionCode returns the retained version with the given code.
func (e *Entry) FindVersionCode(code int64) (Version, bool) {
	if e != nil {
		for _, v := range e.Versions {
			if v.Manifest.VersionCode == code {
				return v, true
			}
		}
	}
	return Version{}, false
}

// HasFile reports whether a version with the given download URL is
// retained.
func (e *Entry) HasFile(name string) bool {
	if e == nil {
		return false
	}
	return slices.ContainsFunc(e.Versions, func(v Version) bool {
		return v.File.Name == name
	})
}

// SortVersions orders versions by version code desc, then added desc, then
// sha256 asc.
func SortVersions(versions []Version) {
	slices.SortStableFunc(versions, func(a, b Version) int {
		if a.Manifest.VersionCode != b.Manifest.VersionCode {
			if a.Manifest.VersionCode > b.Manifest.VersionCode {
				return -1
			}
			return 1
		}
		if a.Added != b.Added {
			if a.Added > b.Added {
				return -1
			}
			return 1
		}
		return strings.Compare(a.File.SHA256, b.File.SHA256)
	})
}
