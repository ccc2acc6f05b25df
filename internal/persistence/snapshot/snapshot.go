package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"heightmap.ai/internal/sim/terrain/gen"
)

const Version = 1

// Ext is the file extension of heightmap snapshots.
const Ext = ".hmap.zst"

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Seed    int64  `json:"seed"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Digest  string `json:"digest"`
}

// SnapshotV1 captures everything needed to replay a run and check it.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Config   gen.Config `json:"config"`
	GridSize int        `json:"grid_size"`
	Rounds   int        `json:"rounds"`

	// Values holds the cropped heightmap row-major at full precision.
	Values []float64 `json:"values"`
}

// New builds a snapshot from a finished run.
func New(runID string, seed int64, cfg gen.Config, res gen.Result) SnapshotV1 {
	return SnapshotV1{
		Header: Header{
			Version: Version,
			RunID:   runID,
			Seed:    seed,
			Width:   res.Heightmap.Width,
			Height:  res.Heightmap.Height,
			Digest:  res.Heightmap.DigestHex(),
		},
		Config:   cfg,
		GridSize: res.Sizing.Size,
		Rounds:   res.Rounds,
		Values:   res.Heightmap.Values(),
	}
}

// Heightmap rebuilds the stored heightmap.
func (s SnapshotV1) Heightmap() (gen.Heightmap, error) {
	return gen.HeightmapFromValues(s.Header.Width, s.Header.Height, s.Values)
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header; skip the line.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if len(snap.Values) != snap.Header.Width*snap.Header.Height {
		return snap, fmt.Errorf("snapshot values length mismatch: got %d want %d", len(snap.Values), snap.Header.Width*snap.Header.Height)
	}
	return snap, nil
}
