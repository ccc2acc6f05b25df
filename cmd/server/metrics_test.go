package main

import (
	"strings"
	"testing"

	"heightmap.ai/internal/persistence/indexdb"
	"heightmap.ai/internal/persistence/r2s3"
	"heightmap.ai/internal/pipeline"
)

func TestWriteMetrics(t *testing.T) {
	var b strings.Builder
	writeMetrics(&b, metricsSources{
		Runner:  pipeline.Stats{RunsTotal: 3, FailsTotal: 1, RoundsTotal: 30, CellsTotal: 3267},
		WSConns: 2,
		Index:   indexdb.Stats{QueueDepth: 4, RecordedTotal: 3},
		Indexed: true,
	})
	out := b.String()
	for _, want := range []string{
		"heightmap_runs_total 3\n",
		"heightmap_run_failures_total 1\n",
		"heightmap_rounds_total 30\n",
		"heightmap_grid_cells_total 3267\n",
		"heightmap_ws_connections 2\n",
		"heightmap_index_queue_depth 4\n",
		`heightmap_index_records_total{result="ok"} 3` + "\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "r2_mirror") {
		t.Fatalf("mirror metrics written while mirror disabled")
	}

	b.Reset()
	writeMetrics(&b, metricsSources{Mirrors: true, Mirror: r2s3.Stats{UploadSuccessTotal: 5, UploadBytesTotal: 1024}})
	out = b.String()
	if !strings.Contains(out, `heightmap_r2_mirror_upload_total{result="success"} 5`) || !strings.Contains(out, "heightmap_r2_mirror_upload_bytes_total 1024") {
		t.Fatalf("mirror metrics missing:\n%s", out)
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	idx, err := openRuntimeIndex(t.TempDir(), true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("HM_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(t.TempDir(), false)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	_ = idx.Close()

	t.Setenv("HM_INDEX_BACKEND", "postgres")
	if _, err := openRuntimeIndex(t.TempDir(), false); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
