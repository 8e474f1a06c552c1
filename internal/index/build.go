package index

import (
	"bytes"
	"time"
)

// Update carries the versions accepted for one app in this run.
type Update struct {
	LogicalID   string
	PackageName string
	// Metadata replaces the display metadata; Added and LastUpdated are
	// derived here.
	Metadata Metadata
	Versions []Version
	// Retain bounds the number of versions kept; 0 keeps all.
	Retain int
}

// Build merges updates into prev and returns the next index; prev is not
// modified. Entries without an update are carried over unchanged. The
// repository timestamp is only moved to now when the content changed.
func Build(prev *RepositoryIndex, repo Repo, updates []Update, now time.Time) *RepositoryIndex {
	if prev == nil {
		prev = Empty()
	}
	next := prev.Clone()
	next.Repo = repo
	next.Repo.Timestamp = prev.Repo.Timestamp

	for _, u := range updates {
		next.Entries[u.LogicalID] = merge(prev.Entries[u.LogicalID], u)
	}

	if !sameContent(prev, next) {
		next.Repo.Timestamp = now.UnixMilli()
	}
	return next
}

func merge(old *Entry, u Update) *Entry {
	entry := &Entry{
		LogicalID:   u.LogicalID,
		PackageName: u.PackageName,
		Metadata:    u.Metadata,
	}

	seen := map[string]bool{}
	var versions []Version
	add := func(v Version) {
		if seen[v.File.SHA256] {
			return
		}
		seen[v.File.SHA256] = true
		versions = append(versions, v.clone())
	}
	for _, v := range u.Versions {
		add(v)
	}
	// Versions of a previous package id are not carried into the new one.
	if old != nil && old.PackageName == u.PackageName {
		for _, v := range old.Versions {
			add(v)
		}
	}
	SortVersions(versions)
	if u.Retain > 0 && len(versions) > u.Retain {
		versions = versions[:u.Retain]
	}
	entry.Versions = versions

	var added, updated int64
	for _, v := range versions {
		if added == 0 || v.Added < added {
			added = v.Added
		}
		updated = max(updated, v.Added)
	}
	if old != nil && old.PackageName == u.PackageName && old.Metadata.Added != 0 {
		if added == 0 || old.Metadata.Added < added {
			added = old.Metadata.Added
		}
	}
	entry.Metadata.Added = added
	entry.Metadata.LastUpdated = updated

	if latest, ok := entry.Latest(); ok && latest.PrimarySigner() != "" {
		entry.PreferredSigner = latest.PrimarySigner()
	} else if old != nil {
		entry.PreferredSigner = old.PreferredSigner
	}
	return entry
}

// sameContent compares the serialized form of both indexes, ignoring the
// repository timestamp.
func sameContent(a, b *RepositoryIndex) bool {
	ac, bc := *a, *b
	ac.Repo.Timestamp, bc.Repo.Timestamp = 0, 0
	ad, err := Marshal(&ac)
	if err != nil {
		return false
	}
	bd, err := Marshal(&bc)
	if err != nil {
		return false
	}
	return bytes.Equal(ad, bd)
}
