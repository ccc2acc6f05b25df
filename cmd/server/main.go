package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "heightmap.ai/internal/persistence/log"
	"heightmap.ai/internal/persistence/r2s3"
	"heightmap.ai/internal/pipeline"
	"heightmap.ai/internal/sim/tuning"
	"heightmap.ai/internal/transport/httpapi"
	"heightmap.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")
		writeImgs  = flag.Bool("write_images", false, "also keep every served image under <data>/images")
		writeSnaps = flag.Bool("write_snapshots", true, "write a replayable snapshot per run")
		archiveRun = flag.Bool("archive", false, "copy run artifacts to <data>/archives/<run_id>")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open run index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	mirror, err := r2s3.NewMirrorFromConfig(r2s3.ConfigFromEnv(os.Getenv), *dataDir, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}
	defer mirror.Close()

	runLog := persistlog.NewRunLogger(*dataDir)
	defer runLog.Close()

	runner := pipeline.NewRunner(pipeline.Config{
		DataDir:       *dataDir,
		WriteImage:    *writeImgs,
		WriteSnapshot: *writeSnaps,
		Archive:       *archiveRun,
		RunLog:        runLog,
		Index:         idx,
		Mirror:        mirror,
		Logger:        logger,
	})
	wsSrv := ws.NewServer(runner, tune, logger)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, metricsSources{
			Runner:  runner.Stats(),
			WSConns: wsSrv.ActiveConns(),
			Index:   idx.Stats(),
			Mirror:  mirror.Stats(),
			Indexed: idx != nil,
			Mirrors: mirror != nil,
		})
	})
	httpapi.NewServer(runner, idx, tune, logger).Register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	if envBool("HM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (HM_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (default %dx%d, max exponent %d)", *addr, tune.Width, tune.Height, tune.MaxSizeExponent)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// ListenAndServe returns as soon as Shutdown starts.
	<-shutdownDone

	// Websocket handlers are hijacked and survive srv.Shutdown; drain them
	// before the deferred sink closes run.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDrain()
	if err := wsSrv.Shutdown(drainCtx); err != nil {
		logger.Printf("ws drain: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
