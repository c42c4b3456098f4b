package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"kotonoha/internal/config"
)

// GeminiCLIBackend shells out to a locally installed CLI binary. It is the
// only backend with an explicit cancellation policy: the process is killed
// after a fixed timeout and the call treated as failed.
type GeminiCLIBackend struct {
	command string
	timeout time.Duration
}

// NewGeminiCLIBackend creates the CLI backend. The binary is resolved at
// construction so a missing installation fails fast like a missing key.
func NewGeminiCLIBackend(cfg config.GeminiCLIConfig) (*GeminiCLIBackend, error) {
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("gemini-cli binary %q not found: %w", cfg.Command, err)
	}

	return &GeminiCLIBackend{
		command: path,
		timeout: cfg.Timeout,
	}, nil
}

func (b *GeminiCLIBackend) Name() string { return "gemini-cli" }

// Generate pipes the prompt to the CLI on stdin and returns its stdout
func (b *GeminiCLIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.command)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("gemini-cli timed out after %s", b.timeout)
		}
		return "", fmt.Errorf("gemini-cli failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("gemini-cli produced no output")
	}
	return out, nil
}
