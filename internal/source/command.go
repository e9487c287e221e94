package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	commandSourceName   = "command"
	commandFetchTimeout = 2 * time.Minute

	// commandWaitDelay bounds how long a killed renderer's children may keep
	// its output pipes open.
	commandWaitDelay = 2 * time.Second

	// URLPlaceholder in a renderer argument is replaced with the page URL.
	URLPlaceholder = "{url}"
)

// DefaultRenderCommand dumps the DOM of the page after scripts ran, using a
// headless Chromium.
var DefaultRenderCommand = []string{
	"chromium",
	"--headless",
	"--no-sandbox",
	"--disable-gpu",
	"--disable-dev-shm-usage",
	"--virtual-time-budget=10000",
	"--dump-dom",
	URLPlaceholder,
}

// CommandSource obtains snapshots by running an external renderer (typically
// a headless browser) and reading the rendered markup from its stdout.
type CommandSource struct {
	pageURL string
	argv    []string
	timeout time.Duration
}

// NewCommand creates a command source. An empty argv selects DefaultRenderCommand.
// If no argument carries URLPlaceholder, the page URL is appended.
func NewCommand(pageURL string, argv []string, timeout time.Duration) (*CommandSource, error) {
	if err := validatePageURL(pageURL); err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	if len(argv) == 0 {
		argv = DefaultRenderCommand
	}
	if strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("command: renderer executable is required")
	}
	if timeout <= 0 {
		timeout = commandFetchTimeout
	}
	return &CommandSource{
		pageURL: pageURL,
		argv:    expandArgs(argv, pageURL),
		timeout: timeout,
	}, nil
}

// Name returns "command".
func (cs *CommandSource) Name() string {
	return commandSourceName
}

// Args returns the expanded renderer command line.
func (cs *CommandSource) Args() []string {
	out := make([]string, len(cs.argv))
	copy(out, cs.argv)
	return out
}

// Fetch runs the renderer and returns its stdout. When ctx is canceled the
// renderer is killed and ctx's error is returned.
func (cs *CommandSource) Fetch(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, cs.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, cs.argv[0], cs.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = commandWaitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command: renderer timed out after %s: %w", cs.timeout, runCtx.Err())
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("command: %s not found: install a headless browser or set source.command", cs.argv[0])
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return "", fmt.Errorf("command: renderer failed: %w (stderr: %s)", err, errMsg)
		}
		return "", fmt.Errorf("command: renderer failed: %w", err)
	}

	return stdout.String(), nil
}

func expandArgs(argv []string, pageURL string) []string {
	out := make([]string, 0, len(argv)+1)
	substituted := false
	for _, a := range argv {
		if strings.Contains(a, URLPlaceholder) {
			a = strings.ReplaceAll(a, URLPlaceholder, pageURL)
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, pageURL)
	}
	return out
}
