package index

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// repoVersionV1 is the index-v1 format version clients expect.
const repoVersionV1 = 20002

type documentV1 struct {
	Repo     repoV1                 `json:"repo"`
	Requests requestsV1             `json:"requests"`
	Apps     []appV1                `json:"apps"`
	Packages map[string][]packageV1 `json:"packages"`
}

type repoV1 struct {
	Timestamp   int64  `json:"timestamp"`
	Version     int    `json:"version"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

type requestsV1 struct {
	Install   []string `json:"install"`
	Uninstall []string `json:"uninstall"`
}

type appV1 struct {
	PackageName          string   `json:"packageName"`
	Name                 string   `json:"name,omitempty"`
	Summary              string   `json:"summary,omitempty"`
	Description          string   `json:"description,omitempty"`
	License              string   `json:"license,omitempty"`
	Categories           []string `json:"categories,omitempty"`
	SourceCode           string   `json:"sourceCode,omitempty"`
	IssueTracker         string   `json:"issueTracker,omitempty"`
	WebSite              string   `json:"webSite,omitempty"`
	AntiFeatures         []string `json:"antiFeatures,omitempty"`
	Added                int64    `json:"added"`
	LastUpdated          int64    `json:"lastUpdated"`
	SuggestedVersionName string   `json:"suggestedVersionName,omitempty"`
	SuggestedVersionCode string   `json:"suggestedVersionCode,omitempty"`
}

type packageV1 struct {
	PackageName      string   `json:"packageName"`
	VersionName      string   `json:"versionName"`
	VersionCode      int64    `json:"versionCode"`
	Size             int64    `json:"size"`
	Hash             string   `json:"hash"`
	HashType         string   `json:"hashType"`
	ApkName          string   `json:"apkName"`
	Added            int64    `json:"added"`
	MinSdkVersion    int      `json:"minSdkVersion,omitempty"`
	TargetSdkVersion int      `json:"targetSdkVersion,omitempty"`
	NativeCode       []string `json:"nativecode,omitempty"`
	Signer           string   `json:"signer,omitempty"`
	UsesPermission   [][]any  `json:"uses-permission,omitempty"`
	Features         []string `json:"features,omitempty"`
}

// ProjectV1 renders idx in the older index-v1 layout for clients that do
// not read v2. It is a pure projection of the v2 model.
func ProjectV1(idx *RepositoryIndex) ([]byte, error) {
	doc := documentV1{
		Repo: repoV1{
			Timestamp:   idx.Repo.Timestamp,
			Version:     repoVersionV1,
			Name:        localized(idx.Repo.Name),
			Icon:        idx.Repo.Icon,
			Address:     idx.Repo.Address,
			Description: localized(idx.Repo.Description),
		},
		Requests: requestsV1{Install: []string{}, Uninstall: []string{}},
		Apps:     []appV1{},
		Packages: map[string][]packageV1{},
	}

	for _, id := range idx.IDs() {
		e := idx.Entries[id]
		app := appV1{
			PackageName:  e.PackageName,
			Name:         localized(e.Metadata.Name),
			Summary:      localized(e.Metadata.Summary),
			Description:  localized(e.Metadata.Description),
			License:      e.Metadata.License,
			Categories:   e.Metadata.Categories,
			SourceCode:   e.Metadata.SourceCode,
			IssueTracker: e.Metadata.IssueTracker,
			WebSite:      e.Metadata.WebSite,
			AntiFeatures: e.Metadata.AntiFeatures,
			Added:        e.Metadata.Added,
			LastUpdated:  e.Metadata.LastUpdated,
		}
		if latest, ok := e.Latest(); ok {
			app.SuggestedVersionName = latest.Manifest.VersionName
			app.SuggestedVersionCode = strconv.FormatInt(latest.Manifest.VersionCode, 10)
		}
		doc.Apps = append(doc.Apps, app)

		var pkgs []packageV1
		for _, v := range e.Versions {
			pkgs = append(pkgs, projectVersion(e.PackageName, v))
		}
		doc.Packages[e.PackageName] = pkgs
	}

	slices.SortFunc(doc.Apps, func(a, b appV1) int {
		return strings.Compare(a.PackageName, b.PackageName)
	})

	data, _, err := canonicalJSON(doc)
	return data, err
}

func projectVersion(pkg string, v Version) packageV1 {
	p := packageV1{
		PackageName: pkg,
		VersionName: v.Manifest.VersionName,
		VersionCode: v.Manifest.VersionCode,
		Size:        v.File.Size,
		Hash:        v.File.SHA256,
		HashType:    "sha256",
		ApkName:     v.File.Name,
		Added:       v.Added,
		NativeCode:  v.Manifest.NativeCode,
		Signer:      v.PrimarySigner(),
	}
	if sdk := v.Manifest.UsesSdk; sdk != nil {
		p.MinSdkVersion = sdk.MinSdkVersion
		p.TargetSdkVersion = sdk.TargetSdkVersion
	}
	for _, perm := range v.Manifest.UsesPermission {
		var maxSdk any
		if perm.MaxSdkVersion > 0 {
			maxSdk = perm.MaxSdkVersion
		}
		p.UsesPermission = append(p.UsesPermission, []any{perm.Name, maxSdk})
	}
	for _, f := range v.Manifest.Features {
		p.Features = append(p.Features, f.Name)
	}
	return p
}

// localized picks the default locale, else the first locale in sorted
// order.
func localized(m map[string]string) string {
	if s, ok := m[defaultLocale]; ok {
		return s
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		return m[k]
	}
	return ""
}
