package index

import (
	"errors"
	"fmt"
)

var (
	ErrCorruptIndex     = errors.New("previous index is corrupt")
	ErrDuplicatePackage = errors.New("package id claimed by more than one app")
	ErrSchema           = errors.New("index does not match schema")
)

// BuildError is fatal for a run: nothing was replaced on disk.
type BuildError struct {
	Op   string
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
