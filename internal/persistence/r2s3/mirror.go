package r2s3

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of the mirror for /metrics.
type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	UploadBytesTotal    uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

type counters struct {
	enqueued, saturated, dropped atomic.Uint64
	ok, failed, bytes            atomic.Uint64
	lastOK, lastErr              atomic.Int64
}

func (c *counters) uploaded(n int64) {
	c.ok.Add(1)
	c.bytes.Add(uint64(n))
	c.lastOK.Store(time.Now().Unix())
}

func (c *counters) failure(stamp bool) {
	c.failed.Add(1)
	if stamp {
		c.lastErr.Store(time.Now().Unix())
	}
}

// Mirror uploads run artifacts in the background. Object keys are the
// artifact paths relative to dataDir, under an optional prefix.
type Mirror struct {
	client  *Client
	dataDir string
	prefix  string
	logger  *log.Logger

	queue       chan Object
	wait        time.Duration // how long a full queue may block a run
	maxAttempts int
	backoffUnit time.Duration
	workers     sync.WaitGroup
	closeOnce   sync.Once

	// mu guards closed; senders hold it shared while they touch queue.
	mu     sync.RWMutex
	closed bool

	n counters
}

// NewMirrorFromConfig returns nil when cfg is disabled.
func NewMirrorFromConfig(cfg Config, dataDir string, logger *log.Logger) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	c, err := New(cfg.Endpoint, cfg.Bucket, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("r2 mirror: %w", err)
	}
	return NewMirror(c, dataDir, cfg.Prefix, cfg.Workers, cfg.QueueCapacity, 0, logger), nil
}

// NewMirror starts workers upload goroutines behind a queue of
// queueCapacity artifacts. Zero values pick defaults.
func NewMirror(client *Client, dataDir, prefix string, workers, queueCapacity int, enqueueWait time.Duration, logger *log.Logger) *Mirror {
	m := &Mirror{
		client:      client,
		dataDir:     dataDir,
		prefix:      strings.Trim(filepath.ToSlash(prefix), "/"),
		logger:      logger,
		queue:       make(chan Object, cmp.Or(max(queueCapacity, 0), 256)),
		wait:        cmp.Or(max(enqueueWait, 0), 50*time.Millisecond),
		maxAttempts: 4,
		backoffUnit: 200 * time.Millisecond,
	}
	for range cmp.Or(max(workers, 0), 2) {
		m.workers.Add(1)
		go m.work()
	}
	return m
}

func (m *Mirror) work() {
	defer m.workers.Done()
	for obj := range m.queue {
		n, err := m.uploadWithRetry(obj)
		if err != nil {
			m.n.failure(true)
			m.printf("r2 mirror upload failed key=%s local=%s err=%v", obj.Key, obj.Path, err)
			continue
		}
		m.n.uploaded(n)
		m.printf("r2 mirror uploaded key=%s run=%s bytes=%d", obj.Key, obj.Meta["run-id"], n)
	}
}

// EnqueueRun queues every non-empty artifact path of one run.
func (m *Mirror) EnqueueRun(paths ...string) {
	for _, p := range paths {
		if p != "" {
			m.Enqueue(p)
		}
	}
}

// Enqueue resolves localPath to an object and queues it. A run never waits
// more than the enqueue wait on a saturated queue; the artifact is dropped
// instead. After Close every artifact is dropped.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.client == nil {
		return
	}
	m.n.enqueued.Add(1)
	obj, err := m.object(localPath)
	if err != nil {
		m.n.failure(false)
		m.printf("r2 mirror skip local=%s err=%v", localPath, err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		m.drop(localPath, "closed")
		return
	}
	select {
	case m.queue <- obj:
		return
	default:
	}
	m.n.saturated.Add(1)
	timer := time.NewTimer(m.wait)
	defer timer.Stop()
	select {
	case m.queue <- obj:
	case <-timer.C:
		m.drop(localPath, "queue_saturated")
	}
}

func (m *Mirror) drop(localPath, reason string) {
	total := m.n.dropped.Add(1)
	m.printf("r2 mirror drop local=%s reason=%s dropped_total=%d", localPath, reason, total)
}

// Close stops accepting artifacts, drains the queue and waits for the
// uploads in flight.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.queue)
		m.mu.Unlock()
		m.workers.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.queue),
		QueueCapacity:       cap(m.queue),
		EnqueuedTotal:       m.n.enqueued.Load(),
		QueueSaturatedTotal: m.n.saturated.Load(),
		DroppedTotal:        m.n.dropped.Load(),
		UploadSuccessTotal:  m.n.ok.Load(),
		UploadFailTotal:     m.n.failed.Load(),
		UploadBytesTotal:    m.n.bytes.Load(),
		LastSuccessUnix:     m.n.lastOK.Load(),
		LastErrorUnix:       m.n.lastErr.Load(),
	}
}

func (m *Mirror) uploadWithRetry(obj Object) (int64, error) {
	var err error
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		var n int64
		n, err = m.client.Put(ctx, obj)
		cancel()
		if err == nil || attempt >= m.maxAttempts {
			return n, err
		}
		time.Sleep(time.Duration(attempt*attempt) * m.backoffUnit)
	}
}

// object maps an artifact under dataDir to its upload: the key mirrors the
// path relative to dataDir, metadata names the run and the artifact kind.
func (m *Mirror) object(localPath string) (Object, error) {
	if localPath == "" {
		return Object{}, fmt.Errorf("empty local path")
	}
	if _, err := os.Stat(localPath); err != nil {
		return Object{}, err
	}
	absBase, err := filepath.Abs(m.dataDir)
	if err != nil {
		return Object{}, err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return Object{}, err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return Object{}, err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return Object{}, fmt.Errorf("path %s is outside data dir %s", absLocal, absBase)
	}

	return Object{
		Key:  path.Join(m.prefix, rel),
		Path: localPath,
		Meta: artifactMeta(rel),
	}, nil
}

// artifactMeta derives the run id and artifact kind from a data-dir relative
// path such as images/run_x.png or archives/run_x/meta.json.
func artifactMeta(rel string) map[string]string {
	dir, file, _ := strings.Cut(rel, "/")
	kind := map[string]string{
		"images":    "image",
		"snapshots": "snapshot",
		"archives":  "archive",
		"runs":      "runlog",
	}[dir]
	if kind == "" {
		kind = "other"
	}

	runID := file
	if kind == "archive" {
		runID, _, _ = strings.Cut(file, "/")
	} else {
		runID = path.Base(runID)
		for ext := path.Ext(runID); ext != ""; ext = path.Ext(runID) {
			runID = strings.TrimSuffix(runID, ext)
		}
	}
	meta := map[string]string{"artifact": kind}
	if kind != "runlog" && runID != "" {
		meta["run-id"] = runID
	}
	return meta
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
