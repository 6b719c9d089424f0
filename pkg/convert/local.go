package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const defaultOfficeBinary = "soffice"

// LocalOptions configures the headless office converter
type LocalOptions struct {
	Binary string
}

// LocalConverter shells out to a headless office suite
type LocalConverter struct {
	binary string
	logger *zap.Logger
}

// NewLocalConverter creates a local converter
func NewLocalConverter(opts LocalOptions, logger *zap.Logger) *LocalConverter {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = defaultOfficeBinary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalConverter{binary: binary, logger: logger}
}

// Convert writes the PDF next to srcPath. The office profile lives in the
// source directory so concurrent conversions do not share one.
func (c *LocalConverter) Convert(ctx context.Context, srcPath string) (string, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return "", fmt.Errorf("failed to stat source document: %w", err)
	}

	dir := filepath.Dir(srcPath)
	profile := "file://" + filepath.ToSlash(filepath.Join(dir, ".office-profile"))

	cmd := exec.CommandContext(ctx, c.binary,
		"-env:UserInstallation="+profile,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", dir,
		srcPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("failed to run %s: %w", c.binary, ctx.Err())
		}
		return "", fmt.Errorf("failed to run %s: %w: %s", c.binary, err, strings.TrimSpace(string(out)))
	}

	dstPath := TargetPath(srcPath)
	if _, err := os.Stat(dstPath); err != nil {
		return "", fmt.Errorf("converter produced no output: %w", err)
	}

	c.logger.Info("Document converted locally", zap.String("output", filepath.Base(dstPath)))
	return dstPath, nil
}
