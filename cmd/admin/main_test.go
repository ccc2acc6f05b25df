package main

import (
	"path/filepath"
	"testing"

	"heightmap.ai/internal/persistence/archive"
)

func TestListArchives(t *testing.T) {
	dir := t.TempDir()
	for i, id := range []string{"run_a", "run_b"} {
		meta := archive.RunArchiveMeta{Seed: int64(i), CreatedAt: []string{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"}[i]}
		if _, err := archive.ArchiveRun(dir, id, nil, meta); err != nil {
			t.Fatalf("archive %s: %v", id, err)
		}
	}

	metas, err := listArchives(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 2 || metas[0].RunID != "run_b" || metas[1].RunID != "run_a" {
		t.Fatalf("unexpected order: %+v", metas)
	}

	if _, err := listArchives(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing data dir")
	}
}
