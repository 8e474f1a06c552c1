package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Environment variables set by GitHub Actions.
const (
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvStepSummary   = "GITHUB_STEP_SUMMARY"
)

// WriteJSON writes the summary as indented JSON to path.
func (r *Reporter) WriteJSON(path string) {
	r.safely("json", func() error {
		if path == "" {
			return errNoDestination
		}
		data, err := json.MarshalIndent(r.Summary(), "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, append(data, '\n'), 0o644)
	})
}

// WriteAnnotations emits GitHub Actions workflow commands for failures and
// warnings.
func (r *Reporter) WriteAnnotations(w io.Writer) {
	r.safely("annotations", func() error {
		s := r.Summary()
		var b strings.Builder
		for _, o := range s.Outcomes {
			if o.Kind == KindFailed {
				fmt.Fprintf(&b, "::error title=%s::%s\n",
					escapeProperty(fmt.Sprintf("%s failed at %s", o.App, o.Stage)), escapeData(o.Message))
			}
			for _, warning := range o.Warnings {
				fmt.Fprintf(&b, "::warning title=%s::%s\n", escapeProperty(o.App), escapeData(warning))
			}
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// WriteStepSummary renders a Markdown summary.
func (r *Reporter) WriteStepSummary(w io.Writer) {
	r.safely("step_summary", func() error {
		_, err := io.WriteString(w, markdown(r.Summary()))
		return err
	})
}

// Publish writes annotations to w and appends the Markdown summary to the
// step summary file when running under GitHub Actions.
func (r *Reporter) Publish(w io.Writer, getenv func(string) string) {
	if getenv(EnvGitHubActions) != "true" {
		return
	}
	r.WriteAnnotations(w)
	path := getenv(EnvStepSummary)
	if path == "" {
		return
	}
	r.safely("step_summary_file", func() error {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.WriteString(f, markdown(r.Summary()))
		return err
	})
}

func markdown(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Repository build `%s`\n\n", s.RunID)
	fmt.Fprintf(&b, "| Accepted | Skipped | Failed |\n|---|---|---|\n| %d | %d | %d |\n\n",
		s.Counts[KindAccepted], s.Counts[KindSkipped], s.Counts[KindFailed])

	if len(s.Failures) > 0 {
		b.WriteString("### Failures\n\n| App | Stage | Reason |\n|---|---|---|\n")
		for _, o := range s.Failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(o.App), cell(o.Stage), cell(o.Message))
		}
		b.WriteString("\n")
	}
	if len(s.Skips) > 0 {
		b.WriteString("### Skipped\n\n")
		for _, o := range s.Skips {
			fmt.Fprintf(&b, "- **%s**: %s\n", o.App, o.Reason)
		}
		b.WriteString("\n")
	}
	var accepted []string
	for _, o := range s.Outcomes {
		if o.Kind != KindAccepted {
			continue
		}
		codes := make([]string, len(o.VersionCodes))
		for i, c := range o.VersionCodes {
			codes[i] = fmt.Sprint(c)
		}
		accepted = append(accepted, fmt.Sprintf("- **%s**: %s\n", o.App, strings.Join(codes, ", ")))
	}
	if len(accepted) > 0 {
		b.WriteString("### Published\n\n")
		b.WriteString(strings.Join(accepted, ""))
		b.WriteString("\n")
	}
	if s.IndexChanged {
		fmt.Fprintf(&b, "Index updated: %s\n", strings.Join(s.Written, ", "))
	} else {
		b.WriteString("Index unchanged.\n")
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}

func escapeProperty(s string) string {
	s = escapeData(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	return strings.ReplaceAll(s, ",", "%2C")
}
