package main

import (
	"fmt"
	"io"

	"heightmap.ai/internal/persistence/indexdb"
	"heightmap.ai/internal/persistence/r2s3"
	"heightmap.ai/internal/pipeline"
)

type metricsSources struct {
	Runner  pipeline.Stats
	WSConns int64
	Index   indexdb.Stats
	Mirror  r2s3.Stats

	Indexed bool
	Mirrors bool
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(w io.Writer, m metricsSources) {
	fmt.Fprintf(w, "# HELP heightmap_runs_total Completed generations.\n")
	fmt.Fprintf(w, "# TYPE heightmap_runs_total counter\n")
	fmt.Fprintf(w, "heightmap_runs_total %d\n", m.Runner.RunsTotal)

	fmt.Fprintf(w, "# HELP heightmap_run_failures_total Generations that returned an error.\n")
	fmt.Fprintf(w, "# TYPE heightmap_run_failures_total counter\n")
	fmt.Fprintf(w, "heightmap_run_failures_total %d\n", m.Runner.FailsTotal)

	fmt.Fprintf(w, "# HELP heightmap_rounds_total Diamond/square rounds executed.\n")
	fmt.Fprintf(w, "# TYPE heightmap_rounds_total counter\n")
	fmt.Fprintf(w, "heightmap_rounds_total %d\n", m.Runner.RoundsTotal)

	fmt.Fprintf(w, "# HELP heightmap_grid_cells_total Working grid cells filled.\n")
	fmt.Fprintf(w, "# TYPE heightmap_grid_cells_total counter\n")
	fmt.Fprintf(w, "heightmap_grid_cells_total %d\n", m.Runner.CellsTotal)

	fmt.Fprintf(w, "# HELP heightmap_ws_connections Open websocket sessions.\n")
	fmt.Fprintf(w, "# TYPE heightmap_ws_connections gauge\n")
	fmt.Fprintf(w, "heightmap_ws_connections %d\n", m.WSConns)

	if m.Indexed {
		fmt.Fprintf(w, "# HELP heightmap_index_queue_depth Run index writer backlog.\n")
		fmt.Fprintf(w, "# TYPE heightmap_index_queue_depth gauge\n")
		fmt.Fprintf(w, "heightmap_index_queue_depth %d\n", m.Index.QueueDepth)

		fmt.Fprintf(w, "# HELP heightmap_index_records_total Rows committed to the run index.\n")
		fmt.Fprintf(w, "# TYPE heightmap_index_records_total counter\n")
		fmt.Fprintf(w, "heightmap_index_records_total{result=%q} %d\n", "ok", m.Index.RecordedTotal)
		fmt.Fprintf(w, "heightmap_index_records_total{result=%q} %d\n", "dropped", m.Index.DropTotal)
		fmt.Fprintf(w, "heightmap_index_records_total{result=%q} %d\n", "failed", m.Index.FailTotal)
	}

	if !m.Mirrors {
		return
	}
	s := m.Mirror
	fmt.Fprintf(w, "# HELP heightmap_r2_mirror_queue_depth Current R2 mirror queue depth.\n")
	fmt.Fprintf(w, "# TYPE heightmap_r2_mirror_queue_depth gauge\n")
	fmt.Fprintf(w, "heightmap_r2_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(w, "# HELP heightmap_r2_mirror_queue_capacity R2 mirror queue capacity.\n")
	fmt.Fprintf(w, "# TYPE heightmap_r2_mirror_queue_capacity gauge\n")
	fmt.Fprintf(w, "heightmap_r2_mirror_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(w, "# HELP heightmap_r2_mirror_enqueued_total Total mirror enqueue attempts.\n")
	fmt.Fprintf(w, "# TYPE heightmap_r2_mirror_enqueued_total counter\n")
	fmt.Fprintf(w, "heightmap_r2_mirror_enqueued_total %d\n", s.EnqueuedTotal)

	fmt.Fprintf(w, "# HELP heightmap_r2_mirror_dropped_total Files dropped because the queue stayed saturated.\n")
	fmt.Fprintf(w, "# TYPE heightmap_r2_mirror_dropped_total counter\n")
	fmt.Fprintf(w, "heightmap_r2_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(w, "# HELP heightmap_r2_mirror_upload_total Mirror uploads by outcome.\n")
	fmt.Fprintf(w, "# TYPE heightmap_r2_mirror_upload_total counter\n")
	fmt.Fprintf(w, "heightmap_r2_mirror_upload_total{result=%q} %d\n", "success", s.UploadSuccessTotal)
	fmt.Fprintf(w, "heightmap_r2_mirror_upload_total{result=%q} %d\n", "fail", s.UploadFailTotal)

	fmt.Fprintf(w, "# HELP heightmap_r2_mirror_upload_bytes_total Bytes uploaded.\n")
	fmt.Fprintf(w, "# TYPE heightmap_r2_mirror_upload_bytes_total counter\n")
	fmt.Fprintf(w, "heightmap_r2_mirror_upload_bytes_total %d\n", s.UploadBytesTotal)

	fmt.Fprintf(w, "# HELP heightmap_r2_mirror_last_success_unix Unix timestamp of last successful mirror upload.\n")
	fmt.Fprintf(w, "# TYPE heightmap_r2_mirror_last_success_unix gauge\n")
	fmt.Fprintf(w, "heightmap_r2_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}
