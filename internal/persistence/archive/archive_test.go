package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestArchiveRun_CopiesArtifactsAndMeta(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "out")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"run_7.png":      "png-bytes",
		"run_7.hmap.zst": "snapshot-bytes",
	}
	var paths []string
	for name, body := range files {
		p := filepath.Join(src, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, p)
	}

	archiveDir, err := ArchiveRun(dir, "run_7", paths, RunArchiveMeta{Seed: 42, Width: 5, Height: 5, GridSize: 5, Digest: "abc"})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archiveDir != filepath.Join(dir, "archives", "run_7") {
		t.Fatalf("archiveDir=%q", archiveDir)
	}
	for name, body := range files {
		got, err := os.ReadFile(filepath.Join(archiveDir, name))
		if err != nil {
			t.Fatalf("read archived %s: %v", name, err)
		}
		if string(got) != body {
			t.Fatalf("archived %s mismatch: got=%q want=%q", name, got, body)
		}
	}

	meta, err := ReadMeta(archiveDir)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.RunID != "run_7" || meta.Seed != 42 || meta.Digest != "abc" || len(meta.Files) != 2 || meta.CreatedAt == "" {
		t.Fatalf("meta mismatch: %+v", meta)
	}
}

func TestArchiveRun_RejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := ArchiveRun(dir, id, nil, RunArchiveMeta{}); err == nil {
			t.Fatalf("expected error for run id %q", id)
		}
	}
	if _, err := ArchiveRun(dir, "run_1", []string{filepath.Join(dir, "missing.png")}, RunArchiveMeta{}); err == nil {
		t.Fatalf("expected error for missing artifact")
	}
}
