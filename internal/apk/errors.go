package apk

import (
	"errors"
	"fmt"
)

var (
	ErrNotZip          = errors.New("not a zip archive")
	ErrNoManifest      = errors.New("AndroidManifest.xml not found")
	ErrBadManifest     = errors.New("malformed binary manifest")
	ErrNoSigner        = errors.New("no signing certificate found")
	ErrBadSigningBlock = errors.New("malformed APK signing block")
	ErrEntryTooLarge   = errors.New("archive entry exceeds size limit")
)

// Stages reported in ParseError.
const (
	StageContainer = "container"
	StageManifest  = "manifest"
	StageSignature = "signature"
)

// ParseError reports the inspection stage an artifact failed at.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("apk %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseError(stage string, err error) error {
	return &ParseError{Stage: stage, Err: err}
}
