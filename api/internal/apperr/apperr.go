// Package apperr defines the failure kinds and policy from spec §7.
// Each kind is a sentinel that callers match with errors.Is; user-facing
// text never leaks internal identifiers or stack traces.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQuotaExhausted   = errors.New("daily quota exhausted")
	ErrRateLimited      = errors.New("rate limited")
	ErrUploadFlagged    = errors.New("upload velocity flagged for review")
	ErrUnsupportedMedia = errors.New("unsupported media")
	ErrDuplicateUpload  = errors.New("duplicate upload")
	ErrStoreTransient   = errors.New("object store transient failure")
	ErrAnalysisTimeout  = errors.New("analysis API timeout")
	ErrAnalysisError    = errors.New("analysis API error")
	ErrPersistence      = errors.New("persistence failure")
	ErrNotification     = errors.New("notification failure")
	ErrFatalBadJob      = errors.New("malformed job")
)

// RateLimitedError carries the wait-hint the rate-limit middleware derives
// from the oldest surviving entry in the sliding window (spec §4.1: "reject
// with wait N seconds").
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, wait %s", e.Wait)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// NewRateLimitedError wraps ErrRateLimited with the wait-hint a caller
// should surface to the user.
func NewRateLimitedError(wait time.Duration) error {
	return &RateLimitedError{Wait: wait}
}

// DuplicateUploadError names the prior analysis a duplicate upload reused
// (spec §8 fixture S4: the user-facing message must reference it).
type DuplicateUploadError struct {
	AnalysisID string
}

func (e *DuplicateUploadError) Error() string {
	return fmt.Sprintf("duplicate of analysis %s", e.AnalysisID)
}

func (e *DuplicateUploadError) Unwrap() error { return ErrDuplicateUpload }

// NewDuplicateUploadError wraps ErrDuplicateUpload with the analysis_id of
// the matched prior upload.
func NewDuplicateUploadError(analysisID string) error {
	return &DuplicateUploadError{AnalysisID: analysisID}
}

// UserMessage returns the short, non-technical explanation shown to the
// user for a given sentinel, or "" if err doesn't map to one.
func UserMessage(err error) string {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Sprintf("Too many requests, please wait %d seconds.", int(rl.Wait.Seconds()))
	}
	var dup *DuplicateUploadError
	if errors.As(err, &dup) {
		return fmt.Sprintf("This image was already analyzed (reference %s).", dup.AnalysisID)
	}

	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return "You've used today's free analyses. Quota resets tomorrow, or upgrade to Pro for more."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests, please slow down."
	case errors.Is(err, ErrUploadFlagged):
		return "🚨 Suspicious activity detected. You've uploaded many similar photos in a short time. Your account has been flagged for review — contact support if this is a mistake."
	case errors.Is(err, ErrUnsupportedMedia):
		return "That file couldn't be used — please send a JPEG, PNG, HEIC, WebP, or MPO image under 20 MB."
	case errors.Is(err, ErrDuplicateUpload):
		return "This image was already analyzed."
	case errors.Is(err, ErrStoreTransient):
		return "We couldn't retrieve your image right now. Please try again."
	case errors.Is(err, ErrAnalysisTimeout), errors.Is(err, ErrAnalysisError):
		return "Analysis is taking longer than expected. Please try again in a moment."
	default:
		return ""
	}
}
