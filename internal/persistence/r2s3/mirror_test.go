package r2s3

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type putRecord struct {
	path        string
	body        string
	auth        string
	contentType string
	sha         string
	runID       string
	artifact    string
}

func recordingServer(t *testing.T, failFirst int) (*httptest.Server, func() []putRecord) {
	t.Helper()
	var (
		mu    sync.Mutex
		puts  []putRecord
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if r.Method != http.MethodPut {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if n <= failFirst {
			http.Error(w, "temporary failure", http.StatusServiceUnavailable)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, putRecord{
			path:        r.URL.Path,
			body:        string(b),
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			sha:         r.Header.Get("x-amz-content-sha256"),
			runID:       r.Header.Get("x-amz-meta-run-id"),
			artifact:    r.Header.Get("x-amz-meta-artifact"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []putRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]putRecord(nil), puts...)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestClient_PutFileSigned(t *testing.T) {
	srv, puts := recordingServer(t, 0)
	c, err := New(srv.URL, "maps", "AKID", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.signer.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	local := filepath.Join(t.TempDir(), "a.png")
	writeFile(t, local, "pixels")
	if err := c.PutFile(t.Context(), "/images/a.png", local); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	got := puts()
	if len(got) != 1 {
		t.Fatalf("puts=%d want 1", len(got))
	}
	p := got[0]
	if p.path != "/maps/images/a.png" || p.body != "pixels" || p.contentType != "image/png" {
		t.Fatalf("unexpected put: %+v", p)
	}
	if p.sha != "6ec9c2b0eb14010746c8bce8939303b382344b296206612eb8a907a37b2b2f37" {
		t.Fatalf("payload hash=%q", p.sha)
	}
	wantPrefix := "AWS4-HMAC-SHA256 Credential=AKID/20240501/auto/s3/aws4_request, SignedHeaders=content-type;host;x-amz-content-sha256;x-amz-date, Signature="
	if !strings.HasPrefix(p.auth, wantPrefix) {
		t.Fatalf("auth=%q", p.auth)
	}
}

func TestClient_PutFileErrors(t *testing.T) {
	if _, err := New("", "b", "k", "s"); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	srv, _ := recordingServer(t, 100)
	c, err := New(srv.URL, "maps", "AKID", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	local := filepath.Join(t.TempDir(), "a.bmp")
	writeFile(t, local, "x")
	if err := c.PutFile(t.Context(), "a.bmp", local); err == nil || !strings.Contains(err.Error(), "status=503") {
		t.Fatalf("expected 503 error, got %v", err)
	}
	if err := c.PutFile(t.Context(), "  ", local); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestMirror_UploadsRelativeKeysWithRetry(t *testing.T) {
	srv, puts := recordingServer(t, 1)
	c, err := New(srv.URL, "maps", "AKID", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dataDir := t.TempDir()
	img := filepath.Join(dataDir, "images", "run_1.png")
	snap := filepath.Join(dataDir, "snapshots", "run_1.hmap.zst")
	writeFile(t, img, "img")
	writeFile(t, snap, "snap")
	outside := filepath.Join(t.TempDir(), "elsewhere.png")
	writeFile(t, outside, "nope")

	m := NewMirror(c, dataDir, "/hm/", 1, 8, 0, nil)
	m.backoffUnit = time.Millisecond
	m.EnqueueRun(img, "", snap, outside)
	m.Close()
	m.Close()

	got := puts()
	if len(got) != 2 {
		t.Fatalf("puts=%d want 2: %+v", len(got), got)
	}
	paths := map[string]string{}
	for _, p := range got {
		paths[p.path] = p.contentType
	}
	if paths["/maps/hm/images/run_1.png"] != "image/png" {
		t.Fatalf("missing image upload: %+v", paths)
	}
	if paths["/maps/hm/snapshots/run_1.hmap.zst"] != "application/zstd" {
		t.Fatalf("missing snapshot upload: %+v", paths)
	}

	st := m.Stats()
	if st.EnqueuedTotal != 3 || st.UploadSuccessTotal != 2 || st.UploadFailTotal != 1 || st.UploadBytesTotal != 7 {
		t.Fatalf("stats mismatch: %+v", st)
	}
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"HM_R2_MIRROR":   "true",
		"HM_R2_ENDPOINT": "r2.example.com",
		"HM_R2_BUCKET":   "maps",
		"HM_R2_PREFIX":   "prod",
		"HM_R2_WORKERS":  "3",
	}
	cfg := ConfigFromEnv(func(k string) string { return env[k] })
	if !cfg.Enabled || cfg.Endpoint != "r2.example.com" || cfg.Bucket != "maps" || cfg.Prefix != "prod" || cfg.Workers != 3 {
		t.Fatalf("config mismatch: %+v", cfg)
	}

	m, err := NewMirrorFromConfig(Config{}, t.TempDir(), nil)
	if err != nil || m != nil {
		t.Fatalf("disabled config: m=%v err=%v", m, err)
	}
	if _, err := NewMirrorFromConfig(Config{Enabled: true}, t.TempDir(), nil); err == nil {
		t.Fatalf("expected error for enabled config without credentials")
	}
}

func TestMirror_EnqueueAfterCloseDrops(t *testing.T) {
	srv, puts := recordingServer(t, 0)
	c, err := New(srv.URL, "maps", "AKID", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "images", "run_1.png")
	writeFile(t, p, "png")

	m := NewMirror(c, dir, "", 1, 1, 0, nil)
	m.Close()
	m.Enqueue(p)
	m.EnqueueRun(p, "")
	m.Close()

	st := m.Stats()
	if st.DroppedTotal != 2 || st.EnqueuedTotal != 2 {
		t.Fatalf("stats=%+v want 2 enqueued, 2 dropped", st)
	}
	if got := puts(); len(got) != 0 {
		t.Fatalf("uploads after close: %+v", got)
	}
}

func TestMirror_ConcurrentEnqueueAndClose(t *testing.T) {
	srv, _ := recordingServer(t, 0)
	c, err := New(srv.URL, "maps", "AKID", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "run.png")
	writeFile(t, p, "x")

	m := NewMirror(c, dir, "", 2, 4, time.Millisecond, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.Enqueue(p)
			}
		}()
	}
	m.Close()
	wg.Wait()
	if st := m.Stats(); st.EnqueuedTotal != 160 {
		t.Fatalf("enqueued=%d want 160", st.EnqueuedTotal)
	}
}

func TestMirror_TagsRunArtifacts(t *testing.T) {
	srv, puts := recordingServer(t, 0)
	c, err := New(srv.URL, "maps", "AKID", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dataDir := t.TempDir()
	snap := filepath.Join(dataDir, "snapshots", "run_20240501T120000Z_0001.hmap.zst")
	meta := filepath.Join(dataDir, "archives", "run_9", "meta.json")
	writeFile(t, snap, "s")
	writeFile(t, meta, "{}")

	m := NewMirror(c, dataDir, "", 1, 8, 0, nil)
	m.EnqueueRun(snap, meta)
	m.Close()

	got := map[string]putRecord{}
	for _, p := range puts() {
		got[p.path] = p
	}
	if p := got["/maps/snapshots/run_20240501T120000Z_0001.hmap.zst"]; p.runID != "run_20240501T120000Z_0001" || p.artifact != "snapshot" {
		t.Fatalf("snapshot tags: %+v", p)
	}
	if p := got["/maps/archives/run_9/meta.json"]; p.runID != "run_9" || p.artifact != "archive" {
		t.Fatalf("archive tags: %+v", p)
	}
}

func TestArtifactMeta(t *testing.T) {
	cases := []struct {
		rel, kind, runID string
	}{
		{"images/run_1_002.png", "image", "run_1_002"},
		{"snapshots/run_1.hmap.zst", "snapshot", "run_1"},
		{"archives/run_1/run_1.png", "archive", "run_1"},
		{"runs/runs-2024-05-01-12.jsonl.zst", "runlog", ""},
		{"loose.png", "other", ""},
	}
	for _, tc := range cases {
		got := artifactMeta(tc.rel)
		if got["artifact"] != tc.kind || got["run-id"] != tc.runID {
			t.Fatalf("%s: %v want kind=%s run=%s", tc.rel, got, tc.kind, tc.runID)
		}
	}
}
