package internalerr

import "errors"

// Error kinds surfaced by engine operations. Callers classify failures with
// errors.Is; the concrete message carries the diagnostic context.
var (
	// ErrIndexIO signals a failed file or mapping operation on an index
	// artifact. Never recovered locally.
	ErrIndexIO = errors.New("index i/o failure")

	// ErrIndexFormat signals a violated magic, version, or structural
	// invariant in an on-disk artifact. The affected component refuses to open.
	ErrIndexFormat = errors.New("index format violation")

	// ErrDecode signals a truncated or malformed codec input. Queries skip
	// the offending sentence; builds skip the offending input line.
	ErrDecode = errors.New("decode failure")

	// ErrPatternSyntax signals ill-formed pattern text. The message carries
	// a position indicator.
	ErrPatternSyntax = errors.New("pattern syntax error")

	// ErrPatternUnsupported signals a well-formed pattern for which no
	// selective candidate query can be compiled.
	ErrPatternUnsupported = errors.New("pattern unsupported")

	// ErrInvariant signals a violated precondition. Treated as a bug.
	ErrInvariant = errors.New("invariant violation")

	// ErrCancelled signals that the caller requested cancellation.
	ErrCancelled = errors.New("cancelled")
)
