// Package ocr extracts text from images with the tesseract command.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/okian/worksight/internal/pipeline"
)

// DefaultCommand is the tesseract binary looked up on PATH.
const DefaultCommand = "tesseract"

// Tesseract runs `tesseract <image> stdout`.
type Tesseract struct {
	command string
}

// NewTesseract creates an extractor. An empty command selects DefaultCommand.
func NewTesseract(command string) *Tesseract {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	return &Tesseract{command: command}
}

// Available reports whether the binary is on PATH.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.command)
	return err == nil
}

// ExtractText implements pipeline.TextExtractor.
func (t *Tesseract) ExtractText(ctx context.Context, ref string) (string, error) {
	bin, err := exec.LookPath(t.command)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", pipeline.ErrOCRUnavailable, t.command, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, ref, "stdout")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w: %s", ErrExtract, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
