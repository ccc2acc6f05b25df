// Package raster turns a heightmap into a grayscale image.
//
// Heights carry no fixed range, so every export rescales the map's own
// [min, max] onto the full gray range of the chosen bit depth.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"

	"heightmap.ai/internal/sim/terrain/gen"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

func (f Format) Ext() string {
	return "." + string(f)
}

type Options struct {
	Format   Format
	BitDepth int // 8 or 16
}

func (o Options) normalized() Options {
	if o.Format == "" {
		o.Format = FormatPNG
	}
	if o.BitDepth == 0 {
		o.BitDepth = 8
	}
	return o
}

func (o Options) validate() error {
	if _, err := ParseFormat(string(o.Format)); err != nil {
		return err
	}
	if o.BitDepth != 8 && o.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 8 or 16 (got %d)", o.BitDepth)
	}
	if o.Format == FormatBMP && o.BitDepth != 8 {
		return fmt.Errorf("bmp supports 8-bit gray only")
	}
	return nil
}

// Range returns the lowest and highest height.
func Range(hm gen.Heightmap) (lo, hi float64) {
	v := hm.Values()
	if len(v) == 0 {
		return 0, 0
	}
	return floats.Min(v), floats.Max(v)
}

// Normalize maps the heightmap onto [0,1] row-major. A flat map maps to 0.
func Normalize(hm gen.Heightmap) (out []float64, lo, hi float64) {
	out = hm.Values()
	if len(out) == 0 {
		return out, 0, 0
	}
	lo, hi = floats.Min(out), floats.Max(out)
	span := hi - lo
	if span == 0 {
		for i := range out {
			out[i] = 0
		}
		return out, lo, hi
	}
	floats.AddConst(-lo, out)
	floats.Scale(1/span, out)
	return out, lo, hi
}

// Image renders the heightmap as *image.Gray (8 bit) or *image.Gray16.
func Image(hm gen.Heightmap, bitDepth int) (image.Image, error) {
	norm, _, _ := Normalize(hm)
	rect := image.Rect(0, 0, hm.Width, hm.Height)
	switch bitDepth {
	case 8:
		img := image.NewGray(rect)
		for y := 0; y < hm.Height; y++ {
			for x := 0; x < hm.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: uint8(norm[y*hm.Width+x]*255 + 0.5)})
			}
		}
		return img, nil
	case 16:
		img := image.NewGray16(rect)
		for y := 0; y < hm.Height; y++ {
			for x := 0; x < hm.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(norm[y*hm.Width+x]*65535 + 0.5)})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("bit depth must be 8 or 16 (got %d)", bitDepth)
	}
}

func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatBMP:
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported image format %q", f)
	}
}

// Write renders and encodes the heightmap to w.
func Write(w io.Writer, hm gen.Heightmap, opts Options) error {
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return err
	}
	img, err := Image(hm, opts.BitDepth)
	if err != nil {
		return err
	}
	if err := Encode(w, img, opts.Format); err != nil {
		return fmt.Errorf("encode %s: %w", opts.Format, err)
	}
	return nil
}

// WriteFile writes the heightmap image to path, creating parent directories.
func WriteFile(path string, hm gen.Heightmap, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file %s: %w", path, err)
	}
	if err := Write(f, hm, opts); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
