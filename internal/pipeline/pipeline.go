// Package pipeline runs a generation end to end: engine, image export and the
// optional persistence sinks.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"heightmap.ai/internal/persistence/archive"
	"heightmap.ai/internal/persistence/indexdb"
	persistlog "heightmap.ai/internal/persistence/log"
	"heightmap.ai/internal/persistence/r2s3"
	"heightmap.ai/internal/persistence/snapshot"
	"heightmap.ai/internal/raster"
	"heightmap.ai/internal/sim/logic/mathx"
	"heightmap.ai/internal/sim/terrain/gen"
	"heightmap.ai/internal/sim/tuning"
)

// Config selects which artifacts a Runner writes. Nil sinks are skipped.
type Config struct {
	DataDir       string
	WriteImage    bool
	WriteSnapshot bool
	Archive       bool

	RunLog *persistlog.RunLogger
	Index  *indexdb.SQLiteIndex
	Mirror *r2s3.Mirror
	Logger *log.Logger
}

type Request struct {
	Tuning tuning.Tuning

	// RunID is generated when empty.
	RunID string
	// ImagePath overrides images/<run_id>.<ext> under DataDir.
	ImagePath string
	// OnRound is called after every engine round.
	OnRound func(gen.RoundReport)
}

type Result struct {
	RunID     string
	Seed      int64
	Config    gen.Config
	Sizing    gen.Sizing
	Rounds    int
	Heightmap gen.Heightmap
	Digest    string
	Min       float64
	Max       float64
	StartedAt time.Time
	Duration  time.Duration

	ImagePath    string
	SnapshotPath string
	ArchiveDir   string
}

// Artifacts lists the files written for the run.
func (r Result) Artifacts() []string {
	var out []string
	for _, p := range []string{r.ImagePath, r.SnapshotPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type Runner struct {
	cfg Config
	seq atomic.Uint64
	now func() time.Time

	runs   atomic.Uint64
	fails  atomic.Uint64
	rounds atomic.Uint64
	cells  atomic.Uint64
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, now: time.Now}
}

type Stats struct {
	RunsTotal   uint64
	FailsTotal  uint64
	RoundsTotal uint64
	CellsTotal  uint64
}

func (r *Runner) Stats() Stats {
	return Stats{
		RunsTotal:   r.runs.Load(),
		FailsTotal:  r.fails.Load(),
		RoundsTotal: r.rounds.Load(),
		CellsTotal:  r.cells.Load(),
	}
}

func (r *Runner) newRunID(started time.Time) string {
	return fmt.Sprintf("run_%s_%04d", started.UTC().Format("20060102T150405Z"), r.seq.Add(1))
}

// Run generates one heightmap and feeds every configured sink. Generation
// errors leave no artifacts behind; sink errors after a successful
// generation are returned with the partial Result.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	started := r.now()
	res, err := r.run(ctx, req, started)
	if err != nil {
		r.fails.Add(1)
		r.printf("run %s failed: %v", res.RunID, err)
		r.logRun(res, err)
		return res, err
	}
	r.runs.Add(1)
	r.rounds.Add(uint64(res.Rounds))
	r.cells.Add(uint64(res.Sizing.Size) * uint64(res.Sizing.Size))
	r.logRun(res, nil)
	r.printf("run %s seed=%d %dx%d grid=%d rounds=%d digest=%s took=%s",
		res.RunID, res.Seed, res.Config.Width, res.Config.Height, res.Sizing.Size, res.Rounds, res.Digest[:12], res.Duration)
	return res, nil
}

func (r *Runner) run(ctx context.Context, req Request, started time.Time) (Result, error) {
	t := req.Tuning
	t.Normalize()
	res := Result{
		RunID:     req.RunID,
		Seed:      t.Seed,
		Config:    t.GenConfig(),
		StartedAt: started,
	}
	if res.RunID == "" {
		res.RunID = r.newRunID(started)
	}
	if err := t.Validate(); err != nil {
		return res, err
	}

	opts := []gen.Option{gen.WithContext(ctx)}
	if req.OnRound != nil {
		opts = append(opts, gen.WithObserver(req.OnRound))
	}
	out, err := gen.Generate(res.Config, gen.NewSource(t.Seed), opts...)
	if err != nil {
		return res, err
	}
	res.Sizing = out.Sizing
	res.Rounds = out.Rounds
	res.Heightmap = out.Heightmap
	res.Digest = out.Heightmap.DigestHex()
	res.Min, res.Max = raster.Range(out.Heightmap)

	if r.cfg.WriteImage || req.ImagePath != "" {
		format, err := raster.ParseFormat(t.Export.Format)
		if err != nil {
			return res, err
		}
		p := req.ImagePath
		if p == "" {
			p = filepath.Join(r.cfg.DataDir, "images", res.RunID+format.Ext())
		}
		if err := raster.WriteFile(p, out.Heightmap, raster.Options{Format: format, BitDepth: t.Export.BitDepth}); err != nil {
			return res, err
		}
		res.ImagePath = p
	}

	if r.cfg.WriteSnapshot {
		p := filepath.Join(r.cfg.DataDir, "snapshots", res.RunID+snapshot.Ext)
		if err := snapshot.WriteSnapshot(p, snapshot.New(res.RunID, t.Seed, res.Config, out)); err != nil {
			return res, fmt.Errorf("snapshot: %w", err)
		}
		res.SnapshotPath = p
	}

	res.Duration = r.now().Sub(started)

	if r.cfg.Archive && len(res.Artifacts()) > 0 {
		dir, err := archive.ArchiveRun(r.cfg.DataDir, res.RunID, res.Artifacts(), archive.RunArchiveMeta{
			Seed:     res.Seed,
			Width:    res.Config.Width,
			Height:   res.Config.Height,
			GridSize: res.Sizing.Size,
			Digest:   res.Digest,
		})
		if err != nil {
			return res, err
		}
		res.ArchiveDir = dir
		r.cfg.Index.RecordArchive(res.RunID, dir)
	}

	r.cfg.Index.RecordRun(indexdb.RunRecord{
		RunID:        res.RunID,
		StartedAt:    res.StartedAt,
		DurationMS:   res.Duration.Milliseconds(),
		Seed:         res.Seed,
		Config:       res.Config,
		GridSize:     res.Sizing.Size,
		Rounds:       res.Rounds,
		Digest:       res.Digest,
		Min:          res.Min,
		Max:          res.Max,
		ImagePath:    res.ImagePath,
		SnapshotPath: res.SnapshotPath,
	})
	r.cfg.Mirror.EnqueueRun(res.Artifacts()...)
	return res, nil
}

// RunBatch generates count variants of req. Variant i uses
// mathx.DeriveSeed(seed, i), so variant 0 reproduces a single Run.
func (r *Runner) RunBatch(ctx context.Context, req Request, count int) ([]Result, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: batch count must be >= 1 (got %d)", gen.ErrInvalidConfig, count)
	}
	out := make([]Result, 0, count)
	base := req.Tuning.Seed
	for i := 0; i < count; i++ {
		v := req
		v.Tuning.Seed = mathx.DeriveSeed(base, i)
		if req.RunID != "" {
			v.RunID = fmt.Sprintf("%s_%03d", req.RunID, i)
		}
		if req.ImagePath != "" {
			ext := filepath.Ext(req.ImagePath)
			v.ImagePath = fmt.Sprintf("%s_%03d%s", req.ImagePath[:len(req.ImagePath)-len(ext)], i, ext)
		}
		res, err := r.Run(ctx, v)
		if err != nil {
			return out, fmt.Errorf("variant %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Runner) logRun(res Result, runErr error) {
	if r.cfg.RunLog == nil {
		return
	}
	e := persistlog.RunLogEntry{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt.UTC(),
		DurationMS: res.Duration.Milliseconds(),
		Seed:       res.Seed,
		Config:     res.Config,
		GridSize:   res.Sizing.Size,
		Rounds:     res.Rounds,
		Digest:     res.Digest,
		Min:        res.Min,
		Max:        res.Max,
		Artifacts:  res.Artifacts(),
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	if err := r.cfg.RunLog.WriteRun(e); err != nil {
		r.printf("run log write failed: %v", err)
	}
}

func (r *Runner) printf(format string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
