package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	persistlog "heightmap.ai/internal/persistence/log"
	"heightmap.ai/internal/persistence/snapshot"
	"heightmap.ai/internal/sim/terrain/gen"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .hmap.zst")
		runsDir  = flag.String("runs", "", "run log dir containing runs-*.jsonl.zst (optional)")
	)
	flag.Parse()

	if *snapPath == "" && *runsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -runs")
		os.Exit(2)
	}

	if *snapPath != "" {
		snap, err := verifySnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d run=%s seed=%d %dx%d grid=%d rounds=%d digest=%s ok\n",
			snap.Header.Version, snap.Header.RunID, snap.Header.Seed, snap.Header.Width, snap.Header.Height,
			snap.GridSize, snap.Rounds, snap.Header.Digest)
	}

	if *runsDir == "" {
		return
	}
	files, err := listRunFiles(*runsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list runs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no run log files found in", *runsDir)
		os.Exit(1)
	}
	var checked int
	for _, path := range files {
		n, err := replayFile(path)
		checked += n
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d runs\n", checked)
}

// verifySnapshot regenerates the snapshot's run and checks both the stored
// values and the recorded digest.
func verifySnapshot(path string) (snapshot.SnapshotV1, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	stored, err := snap.Heightmap()
	if err != nil {
		return snap, err
	}
	if got := stored.DigestHex(); got != snap.Header.Digest {
		return snap, fmt.Errorf("stored values digest mismatch: got=%s want=%s", got, snap.Header.Digest)
	}
	res, err := gen.Generate(snap.Config, gen.NewSource(snap.Header.Seed))
	if err != nil {
		return snap, fmt.Errorf("regenerate: %w", err)
	}
	if got := res.Heightmap.DigestHex(); got != snap.Header.Digest {
		return snap, fmt.Errorf("digest mismatch for run %s: got=%s want=%s", snap.Header.RunID, got, snap.Header.Digest)
	}
	if res.Sizing.Size != snap.GridSize || res.Rounds != snap.Rounds {
		return snap, fmt.Errorf("grid mismatch for run %s: got size=%d rounds=%d want size=%d rounds=%d",
			snap.Header.RunID, res.Sizing.Size, res.Rounds, snap.GridSize, snap.Rounds)
	}
	return snap, nil
}

func listRunFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "runs-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// replayFile regenerates every successful run in a run log file and returns
// how many were checked.
func replayFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	checked := 0
	for sc.Scan() {
		var entry persistlog.RunLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return checked, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Error != "" {
			continue
		}
		res, err := gen.Generate(entry.Config, gen.NewSource(entry.Seed))
		if err != nil {
			return checked, fmt.Errorf("run %s: regenerate: %w", entry.RunID, err)
		}
		checked++
		if got := res.Heightmap.DigestHex(); got != entry.Digest {
			return checked, fmt.Errorf("digest mismatch for run %s: got=%s want=%s", entry.RunID, got, entry.Digest)
		}
	}
	return checked, sc.Err()
}
