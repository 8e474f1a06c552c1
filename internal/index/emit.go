package index

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// Output file names inside the repository directory.
const (
	FileV2   = "index-v2.json"
	FileV1   = "index-v1.json"
	FileHTML = "index.html"
	sigExt   = ".asc"
)

// DocumentSigner produces armored detached signatures over index
// documents and checks existing ones.
type DocumentSigner interface {
	SignDetached(data []byte) ([]byte, error)
	VerifyDetached(data, signature []byte) error
}

// EmitOptions controls which files Emit produces.
type EmitOptions struct {
	// Signer, when set, adds a detached .asc signature per JSON document.
	Signer DocumentSigner
	HTML   bool
	// DryRun renders and validates everything but writes nothing.
	DryRun bool
	Logger *slog.Logger
}

// EmitResult lists the files Emit replaced and the ones it left alone.
type EmitResult struct {
	Written   []string
	Unchanged []string
}

type output struct {
	name string
	data []byte
}

// render produces every unsigned output file for idx in memory, validating
// the v2 document against the schema first.
func render(idx *RepositoryIndex, opts EmitOptions) ([]output, error) {
	doc, err := toDocument(idx)
	if err != nil {
		return nil, &BuildError{Op: "encode", Path: FileV2, Err: err}
	}
	v2, generic, err := canonicalJSON(doc)
	if err != nil {
		return nil, &BuildError{Op: "encode", Path: FileV2, Err: err}
	}
	if err := ValidateDocument(generic); err != nil {
		return nil, &BuildError{Op: "validate", Path: FileV2, Err: err}
	}
	v1, err := ProjectV1(idx)
	if err != nil {
		return nil, &BuildError{Op: "encode", Path: FileV1, Err: err}
	}

	outputs := []output{{FileV2, v2}, {FileV1, v1}}
	if opts.HTML {
		var buf bytes.Buffer
		if err := RenderHTML(&buf, idx); err != nil {
			return nil, &BuildError{Op: "render", Path: FileHTML, Err: err}
		}
		outputs = append(outputs, output{FileHTML, buf.Bytes()})
	}
	return outputs, nil
}

// Emit writes the index files for idx into dir. Every changed file is first
// staged next to its target and only renamed into place once all outputs
// were rendered, validated and staged; on failure the previous files are
// left untouched. Files whose content is unchanged are not rewritten.
func Emit(dir string, idx *RepositoryIndex, opts EmitOptions) (*EmitResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	outputs, err := render(idx, opts)
	if err != nil {
		return nil, err
	}
	if opts.Signer != nil {
		if outputs, err = sign(dir, outputs, opts.Signer, logger); err != nil {
			return nil, err
		}
	}
	return writeOutputs(dir, commitOrder(outputs), opts.DryRun, logger)
}

// sign adds a detached signature for each JSON document. A document whose
// bytes match the file on disk keeps its existing signature when that
// signature still verifies, since a fresh one would differ only in its
// creation time.
func sign(dir string, outputs []output, signer DocumentSigner, logger *slog.Logger) ([]output, error) {
	signed := slices.Clone(outputs)
	for _, o := range outputs {
		if o.name != FileV2 && o.name != FileV1 {
			continue
		}
		if sig, ok := reusableSignature(dir, o, signer); ok {
			logger.Debug("keeping existing signature", "path", o.name+sigExt)
			signed = append(signed, output{o.name + sigExt, sig})
			continue
		}
		sig, err := signer.SignDetached(o.data)
		if err != nil {
			return nil, &BuildError{Op: "sign", Path: o.name, Err: err}
		}
		signed = append(signed, output{o.name + sigExt, sig})
	}
	return signed, nil
}

func reusableSignature(dir string, o output, signer DocumentSigner) ([]byte, bool) {
	existing, err := os.ReadFile(filepath.Join(dir, o.name))
	if err != nil || !bytes.Equal(existing, o.data) {
		return nil, false
	}
	sig, err := os.ReadFile(filepath.Join(dir, o.name+sigExt))
	if err != nil || signer.VerifyDetached(o.data, sig) != nil {
		return nil, false
	}
	return sig, true
}

// commitOrder renames index-v2.json last and its signature just before
// it. Clients discover the repository through the v2 document, so
// everything it refers to is in place before it changes. Renames are not
// atomic across files: a failure part way leaves the earlier files
// replaced and the v2 document at its previous content.
func commitOrder(outputs []output) []output {
	rank := func(name string) int {
		switch name {
		case FileV2:
			return 2
		case FileV2 + sigExt:
			return 1
		}
		return 0
	}
	ordered := slices.Clone(outputs)
	slices.SortStableFunc(ordered, func(a, b output) int {
		return rank(a.name) - rank(b.name)
	})
	return ordered
}

// WriteHTML re-renders only the HTML listing of idx into dir.
func WriteHTML(dir string, idx *RepositoryIndex, dryRun bool, logger *slog.Logger) (*EmitResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var buf bytes.Buffer
	if err := RenderHTML(&buf, idx); err != nil {
		return nil, &BuildError{Op: "render", Path: FileHTML, Err: err}
	}
	return writeOutputs(dir, []output{{FileHTML, buf.Bytes()}}, dryRun, logger)
}

func writeOutputs(dir string, outputs []output, dryRun bool, logger *slog.Logger) (*EmitResult, error) {
	result := &EmitResult{}
	var changed []output
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, o.data) {
			logger.Debug("file unchanged, skipping", "path", path)
			result.Unchanged = append(result.Unchanged, o.name)
			continue
		}
		changed = append(changed, o)
	}
	if dryRun {
		for _, o := range changed {
			result.Written = append(result.Written, o.name)
		}
		logger.Info("dry-run mode: skipping file writes", "would_write", result.Written)
		return result, nil
	}
	if len(changed) == 0 {
		return result, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &BuildError{Op: "mkdir", Path: dir, Err: err}
	}

	staged := make([]string, 0, len(changed))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}
	for _, o := range changed {
		tmp, err := stageFile(dir, o)
		if err != nil {
			cleanup()
			return nil, &BuildError{Op: "stage", Path: o.name, Err: err}
		}
		staged = append(staged, tmp)
	}

	for i, o := range changed {
		target := filepath.Join(dir, o.name)
		if err := os.Rename(staged[i], target); err != nil {
			cleanup()
			return nil, &BuildError{Op: "rename", Path: o.name, Err: err}
		}
		logger.Debug("file written", "path", target)
		result.Written = append(result.Written, o.name)
	}
	return result, nil
}

func stageFile(dir string, o output) (string, error) {
	f, err := os.CreateTemp(dir, "."+o.name+".*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()
	_, werr := f.Write(o.data)
	serr := f.Sync()
	cerr := f.Close()
	if err := errors.Join(werr, serr, cerr); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}
