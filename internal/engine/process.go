package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/logging"
)

const messageBuffer = 256

// Process runs a UCI engine as a subprocess.
type Process struct {
	config *config.EngineConfig
	logger logging.ContextLogger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	nameMu sync.Mutex
	name   string

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	exited   chan struct{}
	readers  *sync.WaitGroup
	messages chan Message
	readyCh  chan struct{}
	onExit   []func(error)
}

func NewProcess(cfg *config.EngineConfig, logger logging.ContextLogger) *Process {
	return &Process{
		config:   cfg,
		logger:   logger,
		name:     filepath.Base(cfg.BinaryPath),
		messages: make(chan Message, messageBuffer),
		readyCh:  make(chan struct{}, 1),
	}
}

// OnExit registers a hook run when the engine exits without Stop being
// called, e.g. on a crash.
func (p *Process) OnExit(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExit = append(p.onExit, fn)
}

// Start launches the engine binary and performs the UCI handshake. The
// process is not bound to ctx: it runs until Stop or until it exits.
func (p *Process) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("engine already running")
	}

	cmd := exec.Command(p.config.BinaryPath, p.config.Args...) // #nosec G204 -- BinaryPath is validated configuration

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine %s: %w", p.config.BinaryPath, err)
	}
	p.cmd = cmd
	p.exited = make(chan struct{})

	p.logger.Info("Engine started",
		"binary", p.config.BinaryPath,
		"threads", p.config.Threads,
		"hash_mb", p.config.HashMB,
	)

	err = p.attach(stdin, stdout, stderr)
	go p.watch(cmd, p.readers, p.exited, p.stopCh)
	if err != nil {
		p.stopLocked()
		return fmt.Errorf("failed to configure engine: %w", err)
	}
	return nil
}

// watch reaps the process once its output is drained. An exit nobody asked
// for marks the engine stopped and runs the OnExit hooks.
func (p *Process) watch(cmd *exec.Cmd, readers *sync.WaitGroup, exited, stopCh chan struct{}) {
	readers.Wait()
	err := cmd.Wait()
	close(exited)

	p.mu.Lock()
	if p.cmd != cmd || !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cmd = nil
	p.stdin = nil
	close(stopCh)
	hooks := append([]func(error){}, p.onExit...)
	p.mu.Unlock()

	p.logger.Error("Engine exited unexpectedly", "error", err)
	for _, hook := range hooks {
		hook(err)
	}
}

// attach wires the engine pipes and sends the handshake. The caller holds p.mu.
func (p *Process) attach(stdin io.WriteCloser, stdout, stderr io.Reader) error {
	p.stdin = stdin
	p.stopCh = make(chan struct{})
	p.running = true

	// Drop a readyok left over from a previous run
	select {
	case <-p.readyCh:
	default:
	}

	p.readers = &sync.WaitGroup{}
	p.readers.Add(1)
	go p.readStdout(stdout, p.stopCh, p.readers)
	if stderr != nil {
		p.readers.Add(1)
		go p.readStderr(stderr, p.readers)
	}

	return p.handshake()
}

func (p *Process) handshake() error {
	commands := []string{"uci"}
	if p.config.Threads > 0 {
		commands = append(commands, fmt.Sprintf("setoption name Threads value %d", p.config.Threads))
	}
	if p.config.HashMB > 0 {
		commands = append(commands, fmt.Sprintf("setoption name Hash value %d", p.config.HashMB))
	}
	commands = append(commands, "isready")

	for _, c := range commands {
		if err := p.writeLocked(c); err != nil {
			return err
		}
	}
	return nil
}

// Stop sends quit and waits for the process to exit, killing it after a grace period.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Process) stopLocked() {
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)

	if p.stdin != nil {
		_, _ = io.WriteString(p.stdin, "quit\n")
		_ = p.stdin.Close()
	}

	if p.cmd != nil && p.cmd.Process != nil {
		select {
		case <-p.exited:
		case <-time.After(5 * time.Second):
			p.logger.Warn("Engine ignored quit, killing it")
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
		p.cmd = nil
	}

	p.logger.Info("Engine stopped")
}

func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Process) Name() string {
	p.nameMu.Lock()
	defer p.nameMu.Unlock()
	return p.name
}

func (p *Process) Messages() <-chan Message {
	return p.messages
}

// Send writes one command to the engine.
func (p *Process) Send(command string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(command)
}

func (p *Process) writeLocked(command string) error {
	if !p.running || p.stdin == nil {
		return ErrEngineNotRunning
	}
	p.logger.Debug("Engine <<", "command", command)
	if _, err := io.WriteString(p.stdin, command+"\n"); err != nil {
		return fmt.Errorf("failed to write to engine: %w", err)
	}
	return nil
}

// Ping sends isready and waits for readyok or ctx expiry.
func (p *Process) Ping(ctx context.Context) error {
	select {
	case <-p.readyCh:
	default:
	}

	if err := p.Send("isready"); err != nil {
		return err
	}

	select {
	case <-p.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrPingTimeout, ctx.Err())
	}
}

// readStdout classifies engine output and forwards it on the message channel.
func (p *Process) readStdout(r io.Reader, stopCh chan struct{}, done *sync.WaitGroup) {
	defer done.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "readyok":
			select {
			case p.readyCh <- struct{}{}:
			default:
			}
		case strings.HasPrefix(line, "id name "):
			p.nameMu.Lock()
			p.name = strings.TrimPrefix(line, "id name ")
			p.nameMu.Unlock()
		}

		msg := ParseLine(line)
		if msg.Kind != KindInfo {
			p.logger.Debug("Engine >>", "line", line)
		}

		select {
		case p.messages <- msg:
		case <-stopCh:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Error("Failed to read engine output", "error", err)
	}
}

func (p *Process) readStderr(r io.Reader, done *sync.WaitGroup) {
	defer done.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			p.logger.Debug("Engine stderr", "line", line)
		}
	}
}
