package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"heightmap.ai/internal/sim/terrain/gen"
)

var ErrNotFound = errors.New("run not found")

// RunRecord is one indexed generation.
type RunRecord struct {
	RunID        string     `json:"run_id"`
	StartedAt    time.Time  `json:"started_at"`
	DurationMS   int64      `json:"duration_ms"`
	Seed         int64      `json:"seed"`
	Config       gen.Config `json:"config"`
	GridSize     int        `json:"grid_size"`
	Rounds       int        `json:"rounds"`
	Digest       string     `json:"digest"`
	Min          float64    `json:"min"`
	Max          float64    `json:"max"`
	ImagePath    string     `json:"image_path,omitempty"`
	SnapshotPath string     `json:"snapshot_path,omitempty"`
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	RecordedTotal uint64
	DropTotal     uint64
	FailTotal     uint64
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu guards closed; senders hold it shared while they touch ch.
	mu     sync.RWMutex
	closed bool

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqArchive
	reqFlush
)

type req struct {
	kind reqKind

	run     RunRecord
	archive archiveRow
	done    chan struct{}
}

type archiveRow struct {
	RunID      string
	Path       string
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only run table; NORMAL is enough for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			noise_amplitude REAL NOT NULL,
			max_corner_value REAL NOT NULL,
			equal_corners INTEGER NOT NULL,
			max_size_exponent INTEGER NOT NULL,
			grid_size INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			digest TEXT NOT NULL,
			min_value REAL NOT NULL,
			max_value REAL NOT NULL,
			image_path TEXT,
			snapshot_path TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_digest ON runs(digest);`,
		`CREATE TABLE IF NOT EXISTS archives (
			run_id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		RecordedTotal: s.recorded.Load(),
		DropTotal:     s.dropped.Load(),
		FailTotal:     s.failed.Load(),
	}
}

// RecordRun queues r for insertion. Runs are dropped when the writer falls
// behind; the JSONL run log remains the source of truth.
func (s *SQLiteIndex) RecordRun(r RunRecord) {
	if s == nil || r.RunID == "" {
		return
	}
	s.enqueue(req{kind: reqRun, run: r})
}

func (s *SQLiteIndex) RecordArchive(runID, path string) {
	if s == nil || runID == "" || path == "" {
		return
	}
	s.enqueue(req{kind: reqArchive, archive: archiveRow{
		RunID:      runID,
		Path:       path,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// Flush blocks until every queued write has been committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const runColumns = `run_id,started_at,duration_ms,seed,width,height,noise_amplitude,max_corner_value,equal_corners,max_size_exponent,grid_size,rounds,digest,min_value,max_value,image_path,snapshot_path`

// ListRuns returns the most recent runs first.
func (s *SQLiteIndex) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) FindRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id=?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return r, err
}

// ArchivePath returns where runID was archived, or "" if it never was.
func (s *SQLiteIndex) ArchivePath(ctx context.Context, runID string) (string, error) {
	var p string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM archives WHERE run_id=?`, runID).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		r         RunRecord
		started   string
		equal     int
		imagePath sql.NullString
		snapPath  sql.NullString
	)
	err := sc.Scan(
		&r.RunID,
		&started,
		&r.DurationMS,
		&r.Seed,
		&r.Config.Width,
		&r.Config.Height,
		&r.Config.NoiseAmplitude,
		&r.Config.MaxCornerValue,
		&equal,
		&r.Config.MaxSizeExponent,
		&r.GridSize,
		&r.Rounds,
		&r.Digest,
		&r.Min,
		&r.Max,
		&imagePath,
		&snapPath,
	)
	if err != nil {
		return RunRecord{}, err
	}
	r.Config.EqualCorners = equal != 0
	r.ImagePath = imagePath.String
	r.SnapshotPath = snapPath.String
	if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
		r.StartedAt = t
	}
	return r, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(` + runColumns + `) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO archives(run_id,path,recorded_at) VALUES(?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
		if insertArchive != nil {
			_ = insertArchive.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		pending       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 250 * time.Millisecond
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.failed.Add(uint64(pending))
		} else {
			s.recorded.Add(uint64(pending))
		}
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.failed.Add(uint64(pending) + 1)
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}

	// Idle transactions are committed on a ticker so readers sharing the
	// single connection are never starved.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var (
			r  req
			ok bool
		)
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			s.failed.Add(1)
			continue
		}
		switch r.kind {
		case reqRun:
			ru := r.run
			if insertRun == nil {
				s.failed.Add(1)
				continue
			}
			equal := 0
			if ru.Config.EqualCorners {
				equal = 1
			}
			if _, err := tx.Stmt(insertRun).Exec(
				ru.RunID,
				ru.StartedAt.UTC().Format(time.RFC3339Nano),
				ru.DurationMS,
				ru.Seed,
				ru.Config.Width,
				ru.Config.Height,
				ru.Config.NoiseAmplitude,
				ru.Config.MaxCornerValue,
				equal,
				ru.Config.MaxSizeExponent,
				ru.GridSize,
				ru.Rounds,
				ru.Digest,
				ru.Min,
				ru.Max,
				ru.ImagePath,
				ru.SnapshotPath,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			pending++

		case reqArchive:
			a := r.archive
			if insertArchive == nil {
				s.failed.Add(1)
				continue
			}
			if _, err := tx.Stmt(insertArchive).Exec(a.RunID, a.Path, a.RecordedAt); err != nil {
				rollback()
				continue
			}
			opCount++
			pending++
		}
		if opCount >= commitEvery {
			commit()
		}
	}
}
