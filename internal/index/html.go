package index

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type pageModel struct {
	Name        string
	Description string
	Address     string
	Updated     int64
	Apps        []pageApp
}

type pageApp struct {
	LogicalID   string
	PackageName string
	Name        string
	Summary     string
	License     string
	SourceCode  string
	Signer      string
	Categories  []string
	Versions    []Version
}

var titleCaser = cases.Title(language.English)

// displayCategory turns a category key such as "system_tools" into
// "System Tools".
func displayCategory(c string) string {
	c = strings.NewReplacer("_", " ", "-", " ").Replace(c)
	return titleCaser.String(strings.ToLower(strings.TrimSpace(c)))
}

// RenderHTML writes a static listing of the repository's apps and their
// retained versions.
func RenderHTML(w io.Writer, idx *RepositoryIndex) error {
	tmpl, err := template.New("index.html.tmpl").Funcs(template.FuncMap{
		"formatBytes": formatBytes,
		"formatDate":  formatDate,
		"shortHash":   shortHash,
	}).ParseFS(templateFS, "templates/index.html.tmpl")
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	model := pageModel{
		Name:        localized(idx.Repo.Name),
		Description: localized(idx.Repo.Description),
		Address:     idx.Repo.Address,
		Updated:     idx.Repo.Timestamp,
	}
	for _, id := range idx.IDs() {
		e := idx.Entries[id]
		name := localized(e.Metadata.Name)
		if name == "" {
			name = e.LogicalID
		}
		model.Apps = append(model.Apps, pageApp{
			LogicalID:   e.LogicalID,
			PackageName: e.PackageName,
			Name:        name,
			Summary:     localized(e.Metadata.Summary),
			License:     e.Metadata.License,
			SourceCode:  e.Metadata.SourceCode,
			Signer:      e.PreferredSigner,
			Categories:  categories(e.Metadata.Categories),
			Versions:    e.Versions,
		})
	}

	if err := tmpl.ExecuteTemplate(w, "index.html.tmpl", model); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

func categories(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = displayCategory(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDate(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02")
}

func shortHash(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
