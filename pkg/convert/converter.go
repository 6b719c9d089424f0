// Package convert turns rendered DOCX documents into PDF, either through a
// hosted conversion API or a local headless office suite.
package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Strategy names accepted by New
const (
	StrategyCloud = "cloud"
	StrategyLocal = "local"
	StrategyNone  = "none"
)

// ErrConversionDisabled is returned by the disabled converter
var ErrConversionDisabled = errors.New("document conversion is disabled")

// Converter converts the document at srcPath and returns the converted path
type Converter interface {
	Convert(ctx context.Context, srcPath string) (string, error)
}

// Options selects and configures a conversion strategy
type Options struct {
	Strategy string
	Cloud    CloudOptions
	Local    LocalOptions
}

// New builds the converter named by opts.Strategy
func New(opts Options, logger *zap.Logger) (Converter, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Strategy)) {
	case StrategyCloud:
		return NewCloudConverter(opts.Cloud, logger)
	case StrategyLocal:
		return NewLocalConverter(opts.Local, logger), nil
	case StrategyNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown conversion strategy %q", opts.Strategy)
	}
}

// TargetPath returns srcPath with its extension replaced by .pdf
func TargetPath(srcPath string) string {
	return strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".pdf"
}

// Disabled never converts
type Disabled struct{}

// Convert always fails with ErrConversionDisabled
func (Disabled) Convert(_ context.Context, _ string) (string, error) {
	return "", ErrConversionDisabled
}
