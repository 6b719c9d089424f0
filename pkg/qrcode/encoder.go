// Package qrcode renders summary strings as QR code PNG files for embedding
// into certificate documents.
package qrcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/disintegration/imaging"
)

var (
	// ErrEmptyContent is returned when there is nothing to encode.
	ErrEmptyContent = errors.New("qr content is empty")
	// ErrInvalidColor is returned for colours that are not #RRGGBB.
	ErrInvalidColor = errors.New("invalid colour, expected #RRGGBB")
)

// Options configures QR rendering
type Options struct {
	ModuleSize      int    `json:"module_size" yaml:"module_size"`           // pixels per module
	Border          int    `json:"border" yaml:"border"`                     // quiet zone, in modules
	FillColor       string `json:"fill_color" yaml:"fill_color"`             // #RRGGBB
	BackgroundColor string `json:"background_color" yaml:"background_color"` // #RRGGBB
	ErrorCorrection string `json:"error_correction" yaml:"error_correction"` // L, M, Q, H
	Trim            bool   `json:"trim" yaml:"trim"`                         // crop blank margin
	SizePx          int    `json:"size_px" yaml:"size_px"`                   // final square size, 0 keeps natural size
}

// DefaultOptions mirrors the certificate layout: 10px modules, no quiet zone,
// black on white.
func DefaultOptions() Options {
	return Options{
		ModuleSize:      10,
		Border:          0,
		FillColor:       "#000000",
		BackgroundColor: "#FFFFFF",
		ErrorCorrection: "M",
	}
}

// Encoder writes QR code images to scratch storage
type Encoder struct {
	options Options
	fill    color.NRGBA
	bg      color.NRGBA
	level   qr.ErrorCorrectionLevel
}

// NewEncoder validates options and creates an encoder
func NewEncoder(options Options) (*Encoder, error) {
	if options.ModuleSize <= 0 {
		options.ModuleSize = 10
	}
	if options.Border < 0 {
		return nil, fmt.Errorf("border must not be negative, got %d", options.Border)
	}

	fill, err := parseHexColor(options.FillColor, color.NRGBA{A: 255})
	if err != nil {
		return nil, fmt.Errorf("fill colour: %w", err)
	}
	bg, err := parseHexColor(options.BackgroundColor, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	if err != nil {
		return nil, fmt.Errorf("background colour: %w", err)
	}

	var level qr.ErrorCorrectionLevel
	switch strings.ToUpper(strings.TrimSpace(options.ErrorCorrection)) {
	case "L":
		level = qr.L
	case "", "M":
		level = qr.M
	case "Q":
		level = qr.Q
	case "H":
		level = qr.H
	default:
		return nil, fmt.Errorf("unknown error correction level %q", options.ErrorCorrection)
	}

	return &Encoder{
		options: options,
		fill:    fill,
		bg:      bg,
		level:   level,
	}, nil
}

// Encode renders content into a randomly named PNG inside dir and returns its path
func (e *Encoder) Encode(ctx context.Context, content, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := e.Image(content)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, "*_qr.png")
	if err != nil {
		return "", fmt.Errorf("failed to create qr file: %w", err)
	}
	if err := savePNG(f, img); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// savePNG encodes img into w and closes it. A failed close means the PNG may
// not be fully on disk.
func savePNG(w io.WriteCloser, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to encode qr png: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close qr file: %w", err)
	}
	return nil
}

// Image renders content into an in-memory image
func (e *Encoder) Image(content string) (image.Image, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	code, err := qr.Encode(content, e.level, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr: %w", err)
	}

	var img image.Image = e.paint(code)

	if e.options.Trim {
		img = trimMargin(img, e.bg)
	}

	if e.options.SizePx > 0 {
		img = imaging.Resize(img, e.options.SizePx, e.options.SizePx, imaging.NearestNeighbor)
	}

	return img, nil
}

// paint draws the module matrix with the configured colours and quiet zone
func (e *Encoder) paint(code barcode.Barcode) *image.NRGBA {
	dim := code.Bounds().Dx()
	module := e.options.ModuleSize
	side := (dim + 2*e.options.Border) * module

	img := imaging.New(side, side, e.bg)
	origin := code.Bounds().Min

	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			if !isDark(code.At(origin.X+x, origin.Y+y)) {
				continue
			}
			px := (x + e.options.Border) * module
			py := (y + e.options.Border) * module
			for dy := 0; dy < module; dy++ {
				for dx := 0; dx < module; dx++ {
					img.SetNRGBA(px+dx, py+dy, e.fill)
				}
			}
		}
	}

	return img
}

// trimMargin crops every row and column that only holds background pixels
func trimMargin(img image.Image, bg color.NRGBA) image.Image {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if sameColor(img.At(x, y), bg) {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return img
	}

	return imaging.Crop(img, image.Rect(minX, minY, maxX+1, maxY+1))
}

func isDark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return (r+g+b)/3 < 0x8000
}

func sameColor(c color.Color, want color.NRGBA) bool {
	got := color.NRGBAModel.Convert(c).(color.NRGBA)
	return got == want
}

func parseHexColor(s string, fallback color.NRGBA) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.NRGBA{}, ErrInvalidColor
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, ErrInvalidColor
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
