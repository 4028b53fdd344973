// Package capture takes screenshots by running an external command.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// PathPlaceholder is replaced with the output file in the command line.
const PathPlaceholder = "{path}"

// Capturer produces one evidence image and returns its path.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// CommandCapturer writes timestamped PNG files into dir.
type CommandCapturer struct {
	dir  string
	argv []string
	now  func() time.Time
}

// DefaultCommand returns the platform screenshot command.
func DefaultCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "screencapture -x " + PathPlaceholder
	case "windows":
		return "nircmd savescreenshot " + PathPlaceholder
	default:
		return "import -window root " + PathPlaceholder
	}
}

// NewCommand creates a CommandCapturer writing into dir.
func NewCommand(dir string, opts ...Option) *CommandCapturer {
	c := &CommandCapturer{
		dir:  dir,
		argv: strings.Fields(DefaultCommand()),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the output directory.
func (c *CommandCapturer) Dir() string { return c.dir }

// Capture implements Capturer.
func (c *CommandCapturer) Capture(ctx context.Context) (string, error) {
	bin, err := exec.LookPath(c.argv[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnavailable, c.argv[0], err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}

	path := filepath.Join(c.dir, "screenshot_"+c.now().UTC().Format("20060102T150405.000000000")+".png")
	args := make([]string, 0, len(c.argv)-1)
	hasPath := false
	for _, a := range c.argv[1:] {
		if strings.Contains(a, PathPlaceholder) {
			hasPath = true
			a = strings.ReplaceAll(a, PathPlaceholder, path)
		}
		args = append(args, a)
	}
	if !hasPath {
		args = append(args, path)
	}

	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %w: %s", ErrCapture, err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: command produced no file", ErrCapture)
		}
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}
	return path, nil
}
