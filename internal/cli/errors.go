package cli

import "errors"

var (
	// ErrAborted signals the user left the wizard (Ctrl+C or Cancel).
	ErrAborted = errors.New("cli: aborted")
)
