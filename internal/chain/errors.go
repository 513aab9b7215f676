package chain

import "errors"

// ErrInvalidChain is returned when a chain is attempted from fewer than two
// emoji, or from text carrying non-emoji characters where emoji-only input is
// required.
var ErrInvalidChain = errors.New("chain requires at least two consecutive emoji")
