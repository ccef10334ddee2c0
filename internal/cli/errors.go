package cli

import "errors"

// Sentinel errors returned by the CLI.
var (
	ErrUsage    = errors.New("invalid usage")
	ErrNoResult = errors.New("no model produced a result")
)
