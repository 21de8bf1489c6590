package localboard

import "errors"

// These are protocol errors: fatal for the trustee that detects them. A
// trustee halts and surfaces the error rather than silently skipping the
// offending message.
var (
	ErrBootstrap               = errors.New("localboard: bootstrap error")
	ErrBoardOverwriteAttempt   = errors.New("localboard: board overwrite attempt")
	ErrMissingArtifact         = errors.New("localboard: missing artifact")
	ErrMismatchedArtifactHash  = errors.New("localboard: mismatched artifact hash")
	ErrConfigurationMismatch   = errors.New("localboard: configuration mismatch")
	ErrInvalidSignature        = errors.New("localboard: invalid message signature")
)
