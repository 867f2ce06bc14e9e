package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"postforge/internal/core"
)

// Task statuses recorded in the ledger.
const (
	TaskDone    = "done"
	TaskSkipped = "skipped"
	TaskFailed  = "failed"
)

// Run statuses recorded in the ledger.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Store is the SQLite-backed run ledger
type Store struct {
	db   *sql.DB
	path string
}

// Run is one invocation of the generation pipeline
type Run struct {
	ID           string
	Niche        string
	Backend      string
	ImageBackend string
	Status       string
	Posts        int
	Skipped      int
	Error        string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// TaskRecord is the last recorded state of one planned post
type TaskRecord struct {
	Niche     string
	Slug      string
	RunID     string
	Cluster   string
	Keyword   string
	Status    string
	Stage     string
	Reason    string
	UpdatedAt time.Time
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "postforge.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Tasks finish on many goroutines; a single connection serializes writes.
	db.SetMaxOpenConns(1)

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		niche TEXT NOT NULL,
		backend TEXT,
		image_backend TEXT,
		status TEXT NOT NULL,
		posts INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);`

	plansTable := `
	CREATE TABLE IF NOT EXISTS plans (
		niche TEXT PRIMARY KEY,
		plan_json TEXT NOT NULL,
		fallback INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);`

	tasksTable := `
	CREATE TABLE IF NOT EXISTS tasks (
		niche TEXT NOT NULL,
		slug TEXT NOT NULL,
		run_id TEXT,
		cluster TEXT,
		keyword TEXT,
		status TEXT NOT NULL,
		stage TEXT DEFAULT '',
		reason TEXT DEFAULT '',
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (niche, slug),
		FOREIGN KEY (run_id) REFERENCES runs (id)
	);`

	tables := []string{runsTable, plansTable, tasksTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new running run and returns it
func (s *Store) StartRun(niche, backend, imageBackend string) (*Run, error) {
	run := &Run{
		ID:           uuid.NewString(),
		Niche:        niche,
		Backend:      backend,
		ImageBackend: imageBackend,
		Status:       RunRunning,
		StartedAt:    time.Now().UTC(),
	}

	query := `
	INSERT INTO runs (id, niche, backend, image_backend, status, started_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := s.db.Exec(query, run.ID, run.Niche, run.Backend, run.ImageBackend, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final state of a run
func (s *Store) FinishRun(id, status string, posts, skipped int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	query := `
	UPDATE runs SET status = ?, posts = ?, skipped = ?, error = ?, finished_at = ?
	WHERE id = ?`

	res, err := s.db.Exec(query, status, posts, skipped, msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun retrieves a run by id. A missing run returns nil, nil.
func (s *Store) GetRun(id string) (*Run, error) {
	query := `
	SELECT id, niche, backend, image_backend, status, posts, skipped, error, started_at, finished_at
	FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs of a niche, newest first
func (s *Store) ListRuns(niche string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, niche, backend, image_backend, status, posts, skipped, error, started_at, finished_at
	FROM runs WHERE niche = ?
	ORDER BY started_at DESC
	LIMIT ?`

	rows, err := s.db.Query(query, niche, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var finished sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Niche,
		&run.Backend,
		&run.ImageBackend,
		&run.Status,
		&run.Posts,
		&run.Skipped,
		&run.Error,
		&run.StartedAt,
		&finished,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// SavePlan stores the plan used for a niche, replacing any previous one
func (s *Store) SavePlan(niche string, plan core.Plan, fallback bool) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO plans (niche, plan_json, fallback, created_at)
	VALUES (?, ?, ?, ?)`

	_, err = s.db.Exec(query, niche, string(data), fallback, time.Now().UTC())
	return err
}

// GetPlan returns the stored plan of a niche. A missing plan returns nil, false, nil.
func (s *Store) GetPlan(niche string) (core.Plan, bool, error) {
	var data string
	var fallback bool
	err := s.db.QueryRow(`SELECT plan_json, fallback FROM plans WHERE niche = ?`, niche).Scan(&data, &fallback)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan plan: %w", err)
	}

	var plan core.Plan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return plan, fallback, nil
}

// RecordTask stores the latest state of a task
func (s *Store) RecordTask(rec TaskRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	query := `
	INSERT OR REPLACE INTO tasks
	(niche, slug, run_id, cluster, keyword, status, stage, reason, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		rec.Niche,
		rec.Slug,
		rec.RunID,
		rec.Cluster,
		rec.Keyword,
		rec.Status,
		rec.Stage,
		rec.Reason,
		rec.UpdatedAt,
	)
	return err
}

// CompletedSlugs returns the slugs of a niche recorded as done
func (s *Store) CompletedSlugs(niche string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT slug FROM tasks WHERE niche = ? AND status = ?`, niche, TaskDone)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		done[slug] = true
	}
	return done, rows.Err()
}

// TaskCounts returns the number of tasks of a niche per status
func (s *Store) TaskCounts(niche string) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks WHERE niche = ? GROUP BY status`, niche)
	if err != nil {
		return nil, fmt.Errorf("failed to query task counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ClearNiche removes the plan and task records of a niche
func (s *Store) ClearNiche(niche string) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE niche = ?`, niche); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM plans WHERE niche = ?`, niche); err != nil {
		return fmt.Errorf("failed to clear plan: %w", err)
	}
	return nil
}
