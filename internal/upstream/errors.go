package upstream

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnreachable  = errors.New("upstream unreachable")
	ErrUnauthorized = errors.New("upstream rejected credentials")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrNotFound     = errors.New("upstream resource not found")
	ErrTimeout      = errors.New("upstream request timed out")
	ErrTooLarge     = errors.New("asset exceeds size limit")
	ErrCircuitOpen  = errors.New("circuit breaker open")
)

// Kind classifies a FetchError.
type Kind string

const (
	KindUnreachable  Kind = "unreachable"
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindNotFound     Kind = "not_found"
	KindTimeout      Kind = "timeout"
	KindTooLarge     Kind = "too_large"
)

// Operations reported in FetchError.
const (
	OpList     = "list_releases"
	OpDownload = "download"
)

var kindSentinels = map[Kind]error{
	KindUnreachable:  ErrUnreachable,
	KindUnauthorized: ErrUnauthorized,
	KindRateLimited:  ErrRateLimited,
	KindNotFound:     ErrNotFound,
	KindTimeout:      ErrTimeout,
	KindTooLarge:     ErrTooLarge,
}

// FetchError reports a failed upstream operation for one locator or asset.
type FetchError struct {
	Op      string
	Locator string
	Kind    Kind
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Locator, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind as well as anything in the
// wrapped chain.
func (e *FetchError) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && target == sentinel {
		return true
	}
	return false
}

// NewFetchError wraps err, deriving the Kind from the sentinel it carries.
// Errors carrying no known sentinel are classified as unreachable.
func NewFetchError(op, locator string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return &FetchError{Op: op, Locator: locator, Kind: fe.Kind, Err: fe.Err}
	}
	return &FetchError{Op: op, Locator: locator, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	for _, kind := range []Kind{KindRateLimited, KindUnauthorized, KindNotFound, KindTimeout, KindTooLarge, KindUnreachable} {
		if errors.Is(err, kindSentinels[kind]) {
			return kind
		}
	}
	return KindUnreachable
}

// hostLevel reports whether the error says something about the source host
// rather than the individual request.
func (e *FetchError) hostLevel() bool {
	switch e.Kind {
	case KindUnreachable, KindRateLimited, KindTimeout:
		return true
	}
	return false
}
