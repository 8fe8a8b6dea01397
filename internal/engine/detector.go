package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// DetectedEngine describes a UCI engine binary found on this machine.
type DetectedEngine struct {
	BinaryPath string
	Errors     []string
}

// DetectEngine looks for Stockfish. configured, when not empty, is tried first.
func DetectEngine(configured string) (*DetectedEngine, error) {
	found := &DetectedEngine{}

	candidates := []string{
		configured,
		os.Getenv("CHESS_STUDY_ENGINE_PATH"),
		"stockfish",
		"/usr/games/stockfish",
		"/usr/local/bin/stockfish",
		"/usr/bin/stockfish",
		"/opt/homebrew/bin/stockfish",
		"C:\\Program Files\\Stockfish\\stockfish.exe",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "bin", "stockfish"),
			filepath.Join(home, ".local", "bin", "stockfish"),
		)
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		resolved, err := ResolveBinary(path)
		if err != nil {
			found.Errors = append(found.Errors, err.Error())
			continue
		}
		found.BinaryPath = resolved
		return found, nil
	}

	return found, fmt.Errorf("no UCI engine found:\n%s", strings.Join(found.Errors, "\n"))
}

// ResolveBinary finds path on PATH when it is not absolute and checks that
// it is an executable file.
func ResolveBinary(path string) (string, error) {
	if !filepath.IsAbs(path) {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("%s: not found in PATH", path)
		}
		path = found
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s: is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return "", fmt.Errorf("%s: not executable", path)
	}
	return path, nil
}

// GetInstallationInstructions explains how to install Stockfish on this platform.
func GetInstallationInstructions() string {
	var b strings.Builder

	b.WriteString("Stockfish Installation Instructions\n")
	b.WriteString("===================================\n\n")

	switch runtime.GOOS {
	case "darwin":
		b.WriteString("macOS:\n  brew install stockfish\n\n")
	case "linux":
		b.WriteString("Linux:\n  Ubuntu/Debian: sudo apt install stockfish\n  Fedora: sudo dnf install stockfish\n\n")
	case "windows":
		b.WriteString("Windows:\n  Download from https://stockfishchess.org/download/\n\n")
	}

	b.WriteString("Any UCI engine works. Point the server at it with:\n")
	b.WriteString("  export CHESS_STUDY_ENGINE_PATH=/path/to/engine\n")
	b.WriteString("or set engine.binaryPath in the config file.\n")
	return b.String()
}
