// Package document renders certificate DOCX templates: it embeds the code
// image into the reserved table cell and substitutes {{ field }} placeholders.
package document

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options configures rendering
type Options struct {
	ImageSizeCM float64 `json:"image_size_cm" yaml:"image_size_cm"`
}

// DefaultOptions returns the certificate layout defaults
func DefaultOptions() Options {
	return Options{ImageSizeCM: 3.6}
}

// Renderer holds the template loaded once at startup
type Renderer struct {
	template []byte
	options  Options
}

// NewRenderer validates the template and creates a renderer
func NewRenderer(template []byte, options Options) (*Renderer, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("%w: template is empty", ErrInvalidTemplate)
	}
	if _, err := openPackage(template); err != nil {
		return nil, err
	}
	if options.ImageSizeCM <= 0 {
		options.ImageSizeCM = DefaultOptions().ImageSizeCM
	}
	return &Renderer{
		template: template,
		options:  options,
	}, nil
}

// Template returns the pristine template
func (r *Renderer) Template() []byte {
	return r.template
}

// Render substitutes fields into template and writes the DOCX to outPath
func (r *Renderer) Render(template []byte, fields map[string]string, outPath string) error {
	pkg, err := openPackage(template)
	if err != nil {
		return err
	}

	for _, part := range pkg.textParts() {
		doc, err := pkg.xml(part)
		if err != nil {
			return err
		}
		if substituteTree(doc, fields) == 0 {
			continue
		}
		if err := pkg.setXML(part, doc); err != nil {
			return err
		}
	}

	out, err := pkg.bytes()
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write rendered document: %w", err)
	}
	return nil
}

// LoadTemplate reads the template from a path, or decodes it from base64 when
// no path is configured
func LoadTemplate(path, encoded string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read template: %w", err)
		}
		return data, nil
	}

	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("no template configured")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return data, nil
}
