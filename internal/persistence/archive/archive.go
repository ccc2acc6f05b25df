package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunArchiveMeta is written as meta.json next to the archived artifacts.
type RunArchiveMeta struct {
	RunID     string   `json:"run_id"`
	Seed      int64    `json:"seed"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	GridSize  int      `json:"grid_size"`
	Digest    string   `json:"digest"`
	Files     []string `json:"files"`
	CreatedAt string   `json:"created_at"`
}

// ArchiveRun copies a run's artifacts into `dataDir/archives/<runID>/` and
// returns the archive directory.
func ArchiveRun(dataDir, runID string, files []string, meta RunArchiveMeta) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	archiveDir := filepath.Join(dataDir, "archives", runID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	names := make([]string, 0, len(files))
	for _, src := range files {
		if src == "" {
			continue
		}
		dst := filepath.Join(archiveDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("archive %s: %w", filepath.Base(src), err)
		}
		names = append(names, filepath.Base(dst))
	}

	meta.RunID = runID
	meta.Files = names
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return archiveDir, nil
}

// ReadMeta loads meta.json from an archive directory.
func ReadMeta(archiveDir string) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(archiveDir, "meta.json"))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("meta.json: %w", err)
	}
	return m, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
