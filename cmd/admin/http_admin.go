package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"heightmap.ai/internal/protocol"
)

func metricsCmd(args []string) {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/metrics"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Print(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// generateCmd asks a running server for one heightmap and saves the image.
func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	width := fs.Int("width", 512, "heightmap width")
	height := fs.Int("height", 512, "heightmap height")
	seed := fs.Int64("seed", 0, "seed (0 keeps the server default)")
	format := fs.String("format", "png", "png|tiff|bmp")
	out := fs.String("out", "heightmap.png", "output image path")
	_ = fs.Parse(args)

	msg := protocol.GenerateMsg{
		Type:            protocol.TypeGenerate,
		ProtocolVersion: protocol.Version,
		Width:           *width,
		Height:          *height,
		Format:          *format,
	}
	if *seed != 0 {
		msg.Seed = seed
	}
	body, _ := json.Marshal(msg)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/generate"
	cl := &http.Client{Timeout: 5 * time.Minute}
	resp, err := cl.Post(u, "application/json", strings.NewReader(string(body)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintln(os.Stderr, strings.TrimSpace(string(b)))
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create:", err)
		os.Exit(1)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Printf("%s run=%s digest=%s grid=%s\n", *out,
		resp.Header.Get("X-Heightmap-Run-Id"), resp.Header.Get("X-Heightmap-Digest"), resp.Header.Get("X-Heightmap-Grid-Size"))
}
