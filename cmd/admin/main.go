package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"heightmap.ai/internal/persistence/archive"
	"heightmap.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		case "generate":
			generateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints archived runs, one meta.json per line.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	metas, err := listArchives(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, m := range metas {
		printJSON(m)
	}
}

func listArchives(dataDir string) ([]archive.RunArchiveMeta, error) {
	base := filepath.Join(dataDir, "archives")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var out []archive.RunArchiveMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := archive.ReadMeta(filepath.Join(base, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	full := fs.Bool("full", false, "decode the whole snapshot, not just its header")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin inspect [-full] <snapshot.hmap.zst>...")
		os.Exit(2)
	}
	for _, path := range fs.Args() {
		if !*full {
			h, err := snapshot.ReadHeader(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, path+":", err)
				os.Exit(1)
			}
			printJSON(h)
			continue
		}
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, path+":", err)
			os.Exit(1)
		}
		printJSON(struct {
			snapshot.Header
			GridSize int `json:"grid_size"`
			Rounds   int `json:"rounds"`
			Values   int `json:"values"`
		}{snap.Header, snap.GridSize, snap.Rounds, len(snap.Values)})
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
