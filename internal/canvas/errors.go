package canvas

import "errors"

// Typed failures surfaced to the sync job. Anything else coming out of
// the client is a transient upstream/network error.
var (
	// ErrAuthInvalid means the Canvas token was revoked or expired.
	ErrAuthInvalid = errors.New("canvas: token invalid or revoked")

	// ErrRateLimited means Canvas returned 429 for this credential.
	ErrRateLimited = errors.New("canvas: rate limited")
)
