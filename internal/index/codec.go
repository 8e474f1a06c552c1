package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

const defaultLocale = "en-US"

type documentV2 struct {
	Repo     repoV2               `json:"repo"`
	Packages map[string]packageV2 `json:"packages"`
}

type repoV2 struct {
	Name        map[string]string `json:"name"`
	Description map[string]string `json:"description,omitempty"`
	Icon        map[string]iconV2 `json:"icon,omitempty"`
	Address     string            `json:"address"`
	Timestamp   int64             `json:"timestamp"`
}

type iconV2 struct {
	Name string `json:"name"`
}

type packageV2 struct {
	Metadata metadataV2         `json:"metadata"`
	Versions map[string]Version `json:"versions"`
}

type metadataV2 struct {
	Added           int64             `json:"added"`
	LastUpdated     int64             `json:"lastUpdated"`
	Name            map[string]string `json:"name,omitempty"`
	Summary         map[string]string `json:"summary,omitempty"`
	Description     map[string]string `json:"description,omitempty"`
	Categories      []string          `json:"categories,omitempty"`
	License         string            `json:"license,omitempty"`
	SourceCode      string            `json:"sourceCode,omitempty"`
	IssueTracker    string            `json:"issueTracker,omitempty"`
	WebSite         string            `json:"webSite,omitempty"`
	AntiFeatures    []string          `json:"antiFeatures,omitempty"`
	PreferredSigner string            `json:"preferredSigner,omitempty"`
	LogicalID       string            `json:"logicalId"`
}

// Marshal encodes idx as an index-v2 document: two-space indentation,
// sorted object keys, no HTML escaping and a trailing newline. Equal
// indexes always produce identical bytes.
func Marshal(idx *RepositoryIndex) ([]byte, error) {
	doc, err := toDocument(idx)
	if err != nil {
		return nil, err
	}
	data, _, err := canonicalJSON(doc)
	return data, err
}

// Unmarshal decodes an index-v2 document. Packages without a logicalId are
// mapped through resolve, or keyed by package name when resolve is nil.
func Unmarshal(data []byte, resolve func(packageName string) string) (*RepositoryIndex, error) {
	var doc documentV2
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	idx := Empty()
	idx.Repo = Repo{
		Name:        doc.Repo.Name,
		Description: doc.Repo.Description,
		Address:     doc.Repo.Address,
		Timestamp:   doc.Repo.Timestamp,
	}
	if icon, ok := doc.Repo.Icon[defaultLocale]; ok {
		idx.Repo.Icon = icon.Name
	}

	for _, pkg := range slices.Sorted(maps.Keys(doc.Packages)) {
		p := doc.Packages[pkg]
		id := p.Metadata.LogicalID
		if id == "" && resolve != nil {
			id = resolve(pkg)
		}
		if id == "" {
			id = pkg
		}
		if existing, ok := idx.Entries[id]; ok {
			return nil, fmt.Errorf("%w: packages %s and %s share logical id %s", ErrCorruptIndex, existing.PackageName, pkg, id)
		}

		entry := &Entry{
			LogicalID:       id,
			PackageName:     pkg,
			PreferredSigner: p.Metadata.PreferredSigner,
			Metadata: Metadata{
				Name:         p.Metadata.Name,
				Summary:      p.Metadata.Summary,
				Description:  p.Metadata.Description,
				Categories:   p.Metadata.Categories,
				License:      p.Metadata.License,
				SourceCode:   p.Metadata.SourceCode,
				IssueTracker: p.Metadata.IssueTracker,
				WebSite:      p.Metadata.WebSite,
				AntiFeatures: p.Metadata.AntiFeatures,
				Added:        p.Metadata.Added,
				LastUpdated:  p.Metadata.LastUpdated,
			},
		}
		for sha, v := range p.Versions {
			if v.File.SHA256 == "" {
				v.File.SHA256 = sha
			}
			entry.Versions = append(entry.Versions, v)
		}
		SortVersions(entry.Versions)
		idx.Entries[id] = entry
	}
	return idx, nil
}

func toDocument(idx *RepositoryIndex) (*documentV2, error) {
	doc := &documentV2{
		Repo: repoV2{
			Name:        idx.Repo.Name,
			Description: idx.Repo.Description,
			Address:     idx.Repo.Address,
			Timestamp:   idx.Repo.Timestamp,
		},
		Packages: make(map[string]packageV2, len(idx.Entries)),
	}
	if doc.Repo.Name == nil {
		doc.Repo.Name = map[string]string{}
	}
	if idx.Repo.Icon != "" {
		doc.Repo.Icon = map[string]iconV2{defaultLocale: {Name: idx.Repo.Icon}}
	}

	for _, id := range idx.IDs() {
		e := idx.Entries[id]
		if _, dup := doc.Packages[e.PackageName]; dup {
			return nil, fmt.Errorf("%w: package %s", ErrDuplicatePackage, e.PackageName)
		}
		p := packageV2{
			Metadata: metadataV2{
				Added:           e.Metadata.Added,
				LastUpdated:     e.Metadata.LastUpdated,
				Name:            e.Metadata.Name,
				Summary:         e.Metadata.Summary,
				Description:     e.Metadata.Description,
				Categories:      e.Metadata.Categories,
				License:         e.Metadata.License,
				SourceCode:      e.Metadata.SourceCode,
				IssueTracker:    e.Metadata.IssueTracker,
				WebSite:         e.Metadata.WebSite,
				AntiFeatures:    e.Metadata.AntiFeatures,
				PreferredSigner: e.PreferredSigner,
				LogicalID:       e.LogicalID,
			},
			Versions: make(map[string]Version, len(e.Versions)),
		}
		for _, v := range e.Versions {
			p.Versions[v.File.SHA256] = v
		}
		doc.Packages[e.PackageName] = p
	}
	return doc, nil
}

// canonicalJSON re-encodes v through a generic value so that every object
// has sorted keys. It also returns the generic value for schema checks.
func canonicalJSON(v any) ([]byte, any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode index: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, nil, fmt.Errorf("failed to decode index: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, nil, fmt.Errorf("failed to encode index: %w", err)
	}
	return buf.Bytes(), generic, nil
}
