// Package engine drives an external UCI chess engine such as Stockfish.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrEngineNotRunning is returned when a command is sent to a stopped engine.
	ErrEngineNotRunning = errors.New("engine not running")
	// ErrPingTimeout is returned when isready gets no readyok in time.
	ErrPingTimeout = errors.New("engine did not answer isready")
)

// EngineInterface is a line-oriented UCI engine.
type EngineInterface interface {
	// Start launches the engine and sends the uci handshake.
	Start(ctx context.Context) error

	// Stop terminates the engine.
	Stop() error

	IsRunning() bool

	// Ping sends isready and waits for readyok.
	Ping(ctx context.Context) error

	// Send writes one command line.
	Send(command string) error

	// Messages delivers every line the engine prints, classified. The
	// channel outlives restarts.
	Messages() <-chan Message

	// Name is the engine's "id name", or the binary name before the handshake.
	Name() string
}

var (
	_ EngineInterface = (*Process)(nil)
	_ EngineInterface = (*MockEngine)(nil)
)
