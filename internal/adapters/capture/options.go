package capture

import (
	"strings"
	"time"
)

// Option configures a CommandCapturer.
type Option func(*CommandCapturer)

// WithCommand overrides the capture command line. The token {path} is
// replaced with the output file.
func WithCommand(cmd string) Option {
	return func(c *CommandCapturer) {
		if fields := strings.Fields(cmd); len(fields) > 0 {
			c.argv = fields
		}
	}
}

// WithClock sets the time source used to name files.
func WithClock(now func() time.Time) Option {
	return func(c *CommandCapturer) {
		if now != nil {
			c.now = now
		}
	}
}
