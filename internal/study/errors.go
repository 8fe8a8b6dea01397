package study

import "errors"

var (
	// ErrIllegalMove is returned when a move is not legal in the live position.
	ErrIllegalMove = errors.New("illegal move")
	// ErrInvalidFEN is returned for a FEN string the rules library rejects.
	ErrInvalidFEN = errors.New("invalid FEN")
	// ErrUnknownCommand is returned by Dispatch for an unrecognised command.
	ErrUnknownCommand = errors.New("unknown command")
)

// ErrNoEngine is returned by analysis commands when no engine is configured.
var ErrNoEngine = errors.New("no analysis engine configured")
