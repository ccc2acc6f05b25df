package raster

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"heightmap.ai/internal/sim/terrain/gen"
)

func ramp(t *testing.T) gen.Heightmap {
	t.Helper()
	hm, err := gen.HeightmapFromValues(3, 2, []float64{-10, 0, 10, 20, 30, 40})
	if err != nil {
		t.Fatalf("heightmap: %v", err)
	}
	return hm
}

func TestNormalize(t *testing.T) {
	norm, lo, hi := Normalize(ramp(t))
	if lo != -10 || hi != 40 {
		t.Fatalf("bounds %v..%v", lo, hi)
	}
	if norm[0] != 0 || math.Abs(norm[5]-1) > 1e-12 || math.Abs(norm[1]-0.2) > 1e-12 {
		t.Fatalf("normalized %v", norm)
	}
}

func TestNormalize_Flat(t *testing.T) {
	hm, _ := gen.HeightmapFromValues(2, 2, []float64{7, 7, 7, 7})
	norm, lo, hi := Normalize(hm)
	if lo != 7 || hi != 7 {
		t.Fatalf("bounds %v..%v", lo, hi)
	}
	for i, v := range norm {
		if v != 0 {
			t.Fatalf("cell %d=%v want 0", i, v)
		}
	}
}

func TestWrite_PNG8(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, ramp(t), Options{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("decoded %T want *image.Gray", img)
	}
	if b := g.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("bounds %v", b)
	}
	if g.GrayAt(0, 0).Y != 0 || g.GrayAt(2, 1).Y != 255 || g.GrayAt(1, 0).Y != 51 {
		t.Fatalf("pixels %v %v %v", g.GrayAt(0, 0), g.GrayAt(2, 1), g.GrayAt(1, 0))
	}
}

func TestWrite_TIFF16(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, ramp(t), Options{Format: FormatTIFF, BitDepth: 16}); err != nil {
		t.Fatalf("write: %v", err)
	}
	img, err := tiff.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	g, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("decoded %T want *image.Gray16", img)
	}
	if g.Gray16At(0, 0).Y != 0 || g.Gray16At(2, 1).Y != 65535 {
		t.Fatalf("pixels %v %v", g.Gray16At(0, 0), g.Gray16At(2, 1))
	}
}

func TestWrite_BMP(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, ramp(t), Options{Format: FormatBMP}); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := bmp.DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 3 || cfg.Height != 2 {
		t.Fatalf("size %dx%d", cfg.Width, cfg.Height)
	}
}

func TestWrite_RejectsBadOptions(t *testing.T) {
	var buf bytes.Buffer
	for _, o := range []Options{
		{Format: FormatBMP, BitDepth: 16},
		{Format: "gif"},
		{BitDepth: 12},
	} {
		if err := Write(&buf, ramp(t), o); err == nil {
			t.Fatalf("expected error for %+v", o)
		}
	}
}

func TestWriteFile_CreatesDirs(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "nested", "map.png")
	if err := WriteFile(p, ramp(t), Options{Format: FormatPNG, BitDepth: 16}); err != nil {
		t.Fatalf("write file: %v", err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := img.(*image.Gray16); !ok {
		t.Fatalf("decoded %T want *image.Gray16", img)
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"a.png":         FormatPNG,
		"b/c.TIF":       FormatTIFF,
		"d.tiff":        FormatTIFF,
		"Heightmap.bmp": FormatBMP,
	}
	for p, want := range cases {
		got, err := FormatFromPath(p)
		if err != nil || got != want {
			t.Fatalf("%s: got %q,%v want %q", p, got, err, want)
		}
	}
	if _, err := FormatFromPath("x.jpg"); err == nil {
		t.Fatalf("expected error for jpg")
	}
}
