package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"heightmap.ai/internal/sim/terrain/gen"
)

func generate(t *testing.T, seed int64) (gen.Config, gen.Result) {
	t.Helper()
	cfg := gen.Config{Width: 17, Height: 11, NoiseAmplitude: 32, MaxCornerValue: 64, MaxSizeExponent: 8}
	res, err := gen.Generate(cfg, gen.NewSource(seed))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return cfg, res
}

func TestWriteReadSnapshot_RoundTrip(t *testing.T) {
	cfg, res := generate(t, 5)
	snap := New("run_1", 5, cfg, res)
	path := filepath.Join(t.TempDir(), "snapshots", "run_1"+Ext)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != snap.Header {
		t.Fatalf("header mismatch: got %+v want %+v", got.Header, snap.Header)
	}
	if got.Config != cfg || got.GridSize != 17 || got.Rounds != 4 {
		t.Fatalf("run fields mismatch: %+v size=%d rounds=%d", got.Config, got.GridSize, got.Rounds)
	}
	hm, err := got.Heightmap()
	if err != nil {
		t.Fatalf("heightmap: %v", err)
	}
	if hm.DigestHex() != res.Heightmap.DigestHex() {
		t.Fatalf("digest mismatch after round trip")
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h != snap.Header {
		t.Fatalf("header-only read mismatch: %+v", h)
	}
}

func TestReadSnapshot_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad"+Ext)
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected error for garbage snapshot")
	}
}
