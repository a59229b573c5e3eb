// Package outcome holds the best-effort result type returned by the
// transcription and generation adapters. Upstream failures never surface as
// errors to callers; they come back as an Empty result carrying the reason.
package outcome

import "errors"

// ErrNoOutput is the reason used when the upstream call succeeded but produced no text.
var ErrNoOutput = errors.New("upstream returned no text")

type Result struct {
	Text   string
	Reason error
}

func Ok(text string) Result {
	return Result{Text: text}
}

func Empty(reason error) Result {
	if reason == nil {
		reason = ErrNoOutput
	}
	return Result{Reason: reason}
}

// IsEmpty reports whether the upstream produced no usable text.
func (r Result) IsEmpty() bool {
	return r.Reason != nil
}

// Status is the label exposed to HTTP callers and metrics.
func (r Result) Status() string {
	if r.IsEmpty() {
		return "empty"
	}
	return "ok"
}
