package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"heightmap.ai/internal/persistence/indexdb"
	persistlog "heightmap.ai/internal/persistence/log"
	"heightmap.ai/internal/pipeline"
	"heightmap.ai/internal/raster"
	"heightmap.ai/internal/sim/tuning"
)

type cliFlags struct {
	width, height    int
	noise, corners   float64
	equalCorners     bool
	maxExp           int
	seed             int64
	format, out      string
	bitDepth, count  int
	dataDir          string
	tuningPath       string
	snapshots, index bool
	archive, runLog  bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var f cliFlags
	fs := flag.NewFlagSet("heightmap", flag.ExitOnError)
	fs.StringVar(&f.tuningPath, "tuning", "./configs/tuning.yaml", "path to tuning.yaml (missing file means defaults)")
	fs.IntVar(&f.width, "width", 0, "heightmap width")
	fs.IntVar(&f.height, "height", 0, "heightmap height")
	fs.Float64Var(&f.noise, "noise", 0, "initial noise amplitude")
	fs.Float64Var(&f.corners, "corners", 0, "max corner value")
	fs.BoolVar(&f.equalCorners, "equal_corners", false, "seed all four corners with one draw")
	fs.IntVar(&f.maxExp, "max_exp", 0, "max grid size exponent")
	fs.Int64Var(&f.seed, "seed", 0, "random seed")
	fs.StringVar(&f.format, "format", "", "png|tiff|bmp (default: from -out extension)")
	fs.IntVar(&f.bitDepth, "bit_depth", 0, "8 or 16")
	fs.StringVar(&f.out, "out", "heightmap.png", "output image path")
	fs.IntVar(&f.count, "count", 1, "number of variants (seed derived per variant)")
	fs.StringVar(&f.dataDir, "data", "./data", "runtime data directory")
	fs.BoolVar(&f.snapshots, "snapshot", false, "write a replayable snapshot per run")
	fs.BoolVar(&f.archive, "archive", false, "copy run artifacts to <data>/archives/<run_id>")
	fs.BoolVar(&f.index, "index", false, "record runs in <data>/index/runs.sqlite")
	fs.BoolVar(&f.runLog, "runlog", false, "append runs to <data>/runs/*.jsonl.zst")
	_ = fs.Parse(args)

	logger := log.New(os.Stderr, "[heightmap] ", log.LstdFlags|log.Lmicroseconds)

	t, err := tuning.Load(f.tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("load tuning: %v", err)
			return 1
		}
		t = tuning.Defaults()
	}
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	t, err = applyFlags(t, f, set)
	if err != nil {
		logger.Printf("%v", err)
		return 2
	}

	cfg := pipeline.Config{
		DataDir:       f.dataDir,
		WriteSnapshot: f.snapshots,
		Archive:       f.archive,
		Logger:        logger,
	}
	if f.index {
		idx, err := indexdb.OpenSQLite(filepath.Join(f.dataDir, "index", "runs.sqlite"))
		if err != nil {
			logger.Printf("open run index: %v", err)
			return 1
		}
		defer idx.Close()
		cfg.Index = idx
	}
	if f.runLog {
		rl := persistlog.NewRunLogger(f.dataDir)
		defer rl.Close()
		cfg.RunLog = rl
	}
	runner := pipeline.NewRunner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := pipeline.Request{Tuning: t, ImagePath: f.out}
	var results []pipeline.Result
	if f.count == 1 {
		var res pipeline.Result
		res, err = runner.Run(ctx, req)
		if err == nil {
			results = append(results, res)
		}
	} else {
		results, err = runner.RunBatch(ctx, req, f.count)
	}
	for _, res := range results {
		fmt.Printf("%s seed=%d grid=%d rounds=%d range=[%.3f,%.3f] digest=%s\n",
			res.ImagePath, res.Seed, res.Sizing.Size, res.Rounds, res.Min, res.Max, res.Digest)
	}
	if err != nil {
		logger.Printf("%v", err)
		return 1
	}
	return 0
}

// applyFlags overlays the explicitly set flags on t and validates the result.
func applyFlags(t tuning.Tuning, f cliFlags, set map[string]bool) (tuning.Tuning, error) {
	if set["width"] {
		t.Width = f.width
	}
	if set["height"] {
		t.Height = f.height
	}
	if set["noise"] {
		t.NoiseAmplitude = f.noise
	}
	if set["corners"] {
		t.MaxCornerValue = f.corners
	}
	if set["equal_corners"] {
		t.EqualCorners = f.equalCorners
	}
	if set["max_exp"] {
		t.MaxSizeExponent = f.maxExp
	}
	if set["seed"] {
		t.Seed = f.seed
	}
	if set["bit_depth"] {
		t.Export.BitDepth = f.bitDepth
	}
	switch {
	case set["format"]:
		format, err := raster.ParseFormat(f.format)
		if err != nil {
			return t, fmt.Errorf("-format: %w", err)
		}
		t.Export.Format = string(format)
	case strings.TrimSpace(f.out) != "":
		format, err := raster.FormatFromPath(f.out)
		if err != nil {
			return t, fmt.Errorf("-out: %w", err)
		}
		t.Export.Format = string(format)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}
