package engine

import (
	"context"
	"sync"
)

// MockEngine is a scripted EngineInterface for tests. Lines returned by the
// responder are delivered on Messages as if the engine printed them.
type MockEngine struct {
	mu        sync.Mutex
	running   bool
	name      string
	startErr  error
	pingErr   error
	sent      []string
	responder func(command string) []string
	messages  chan Message
	onExit    []func(error)

	startCalls int
	stopCalls  int
	pingCalls  int
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		name:     "mockfish",
		messages: make(chan Message, messageBuffer),
	}
}

// StockfishResponder answers like a real engine: uciok, readyok, and an
// immediate bestmove for every go.
func StockfishResponder(bestMove string) func(string) []string {
	return func(command string) []string {
		switch {
		case command == "uci":
			return []string{"id name Mockfish", "uciok"}
		case command == "isready":
			return []string{"readyok"}
		case len(command) >= 2 && command[:2] == "go":
			return []string{"info depth 1 score cp 20 pv " + bestMove, "bestmove " + bestMove}
		}
		return nil
	}
}

// SetResponder installs the function producing replies to each command.
func (m *MockEngine) SetResponder(fn func(command string) []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
}

func (m *MockEngine) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

func (m *MockEngine) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockEngine) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *MockEngine) OnExit(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit = append(m.onExit, fn)
}

// Crash stops the engine as if its process died and runs the OnExit hooks.
func (m *MockEngine) Crash(err error) {
	m.mu.Lock()
	m.running = false
	hooks := append([]func(error){}, m.onExit...)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(err)
	}
}

// Sent returns a copy of every command written so far.
func (m *MockEngine) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *MockEngine) ClearSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// Emit delivers a line as if the engine printed it.
func (m *MockEngine) Emit(line string) {
	m.messages <- ParseLine(line)
}

func (m *MockEngine) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls
}

func (m *MockEngine) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

func (m *MockEngine) PingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCalls
}

func (m *MockEngine) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalls++
	if m.startErr != nil {
		m.mu.Unlock()
		return m.startErr
	}
	m.running = true
	m.mu.Unlock()

	if err := m.Send("uci"); err != nil {
		return err
	}
	return m.Send("isready")
}

func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.running = false
	return nil
}

func (m *MockEngine) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MockEngine) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingCalls++
	if !m.running {
		return ErrEngineNotRunning
	}
	return m.pingErr
}

func (m *MockEngine) Send(command string) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrEngineNotRunning
	}
	m.sent = append(m.sent, command)
	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		for _, line := range responder(command) {
			m.Emit(line)
		}
	}
	return nil
}

func (m *MockEngine) Messages() <-chan Message {
	return m.messages
}

func (m *MockEngine) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}
