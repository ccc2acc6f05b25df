package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"heightmap.ai/internal/persistence/archive"
	"heightmap.ai/internal/persistence/indexdb"
	persistlog "heightmap.ai/internal/persistence/log"
	"heightmap.ai/internal/persistence/snapshot"
	"heightmap.ai/internal/sim/logic/mathx"
	"heightmap.ai/internal/sim/terrain/gen"
	"heightmap.ai/internal/sim/tuning"
)

func smallTuning(seed int64) tuning.Tuning {
	t := tuning.Defaults()
	t.Width, t.Height = 20, 12
	t.NoiseAmplitude = 16
	t.MaxCornerValue = 64
	t.Seed = seed
	return t
}

func TestRunner_RunWritesAllSinks(t *testing.T) {
	dir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()
	runLog := persistlog.NewRunLogger(dir)
	defer runLog.Close()

	r := NewRunner(Config{
		DataDir:       dir,
		WriteImage:    true,
		WriteSnapshot: true,
		Archive:       true,
		RunLog:        runLog,
		Index:         idx,
	})

	var reports []gen.RoundReport
	res, err := r.Run(context.Background(), Request{
		Tuning:  smallTuning(7),
		RunID:   "run_test",
		OnRound: func(rep gen.RoundReport) { reports = append(reports, rep) },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Sizing.Size != 33 || res.Rounds != 5 || len(reports) != 5 {
		t.Fatalf("size=%d rounds=%d reports=%d", res.Sizing.Size, res.Rounds, len(reports))
	}
	if res.Heightmap.Width != 20 || res.Heightmap.Height != 12 || res.Min > res.Max {
		t.Fatalf("unexpected heightmap: %dx%d min=%v max=%v", res.Heightmap.Width, res.Heightmap.Height, res.Min, res.Max)
	}

	if res.ImagePath != filepath.Join(dir, "images", "run_test.png") {
		t.Fatalf("image path=%q", res.ImagePath)
	}
	if _, err := os.Stat(res.ImagePath); err != nil {
		t.Fatalf("image missing: %v", err)
	}

	snap, err := snapshot.ReadSnapshot(res.SnapshotPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Header.Digest != res.Digest || snap.Header.Seed != 7 {
		t.Fatalf("snapshot header mismatch: %+v", snap.Header)
	}

	meta, err := archive.ReadMeta(res.ArchiveDir)
	if err != nil {
		t.Fatalf("archive meta: %v", err)
	}
	if meta.RunID != "run_test" || len(meta.Files) != 2 {
		t.Fatalf("archive meta mismatch: %+v", meta)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	rec, err := idx.FindRun(ctx, "run_test")
	if err != nil {
		t.Fatalf("FindRun: %v", err)
	}
	if rec.Digest != res.Digest || rec.GridSize != 33 || rec.SnapshotPath != res.SnapshotPath {
		t.Fatalf("index mismatch: %+v", rec)
	}
	if p, err := idx.ArchivePath(ctx, "run_test"); err != nil || p != res.ArchiveDir {
		t.Fatalf("archive path=%q err=%v", p, err)
	}

	logs, _ := filepath.Glob(filepath.Join(dir, "runs", "runs-*.jsonl.zst"))
	if len(logs) == 0 {
		t.Fatalf("run log not written")
	}

	if st := r.Stats(); st.RunsTotal != 1 || st.RoundsTotal != 5 || st.CellsTotal != 33*33 {
		t.Fatalf("stats mismatch: %+v", st)
	}
}

func TestRunner_SameSeedSameDigest(t *testing.T) {
	r := NewRunner(Config{})
	a, err := r.Run(context.Background(), Request{Tuning: smallTuning(99)})
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	b, err := r.Run(context.Background(), Request{Tuning: smallTuning(99)})
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	if a.Digest != b.Digest {
		t.Fatalf("digest differs for same seed")
	}
	if a.RunID == b.RunID {
		t.Fatalf("run ids collide: %s", a.RunID)
	}
	if a.ImagePath != "" || a.SnapshotPath != "" {
		t.Fatalf("no sinks configured but artifacts written: %+v", a.Artifacts())
	}
}

func TestRunner_SizeExceededWritesNothing(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{DataDir: dir, WriteImage: true, WriteSnapshot: true})
	tun := smallTuning(1)
	tun.Width = 100000
	tun.MaxSizeExponent = 10
	_, err := r.Run(context.Background(), Request{Tuning: tun})
	if !errors.Is(err, gen.ErrSizeExceeded) {
		t.Fatalf("got %v want ErrSizeExceeded", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no artifacts, found %d entries", len(entries))
	}
	if st := r.Stats(); st.FailsTotal != 1 || st.RunsTotal != 0 {
		t.Fatalf("stats mismatch: %+v", st)
	}
}

func TestRunner_RunBatchDerivesSeeds(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{DataDir: dir})
	req := Request{Tuning: smallTuning(5), ImagePath: filepath.Join(dir, "out", "map.bmp")}
	req.Tuning.Export.Format = "bmp"

	res, err := r.RunBatch(context.Background(), req, 3)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("results=%d want 3", len(res))
	}
	seen := map[string]bool{}
	for i, rr := range res {
		if rr.Seed != mathx.DeriveSeed(5, i) {
			t.Fatalf("variant %d seed=%d", i, rr.Seed)
		}
		want := filepath.Join(dir, "out", "map_00"+string(rune('0'+i))+".bmp")
		if rr.ImagePath != want {
			t.Fatalf("variant %d image=%q want %q", i, rr.ImagePath, want)
		}
		seen[rr.Digest] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected distinct digests per variant")
	}

	single, err := r.Run(context.Background(), Request{Tuning: smallTuning(5)})
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if single.Digest != res[0].Digest {
		t.Fatalf("variant 0 should reproduce the base seed")
	}

	if _, err := r.RunBatch(context.Background(), req, 0); !errors.Is(err, gen.ErrInvalidConfig) {
		t.Fatalf("got %v want ErrInvalidConfig", err)
	}
}
