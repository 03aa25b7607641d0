package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-stockmedia-download/internal/models"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a run id is not in the database.
var ErrNotFound = errors.New("run not found")

// Run is one recorded pipeline execution.
type Run struct {
	ID           string
	Query        string
	Sources      []string
	OutputDir    string
	ManifestPath string
	StartedAt    time.Time
	FinishedAt   time.Time
	Found        int
	Total        int
	OK           int
}

// DB wraps the SQLite database instance and provides helper methods.
type DB struct {
	db *sql.DB
	sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", path, err)
	}

	dbWrapper := &DB{db: db}
	if err := dbWrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Debugf("SQLite history opened at %s", path)
	return dbWrapper, nil
}

// initSchema creates the database schema if it doesn't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		sources TEXT NOT NULL, -- JSON array
		output_dir TEXT NOT NULL,
		manifest_path TEXT,
		started_at INTEGER NOT NULL, -- unix nanoseconds
		finished_at INTEGER NOT NULL,
		found INTEGER NOT NULL,
		total INTEGER NOT NULL,
		ok INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		ok BOOLEAN NOT NULL,
		path TEXT,
		sha1 TEXT,
		source TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT,
		page_url TEXT,
		license_hint TEXT,
		bytes INTEGER,
		error TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_sha1 ON outcomes(sha1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.db.Close()
		if d.closeErr != nil {
			log.Errorf("Error during database close operation: %v", d.closeErr)
		}
	})
	return d.closeErr
}

// RecordRun stores a run and all of its outcomes in one transaction.
func (d *DB) RecordRun(run Run, outcomes []models.DownloadOutcome) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	sourcesJSON, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources for run %s: %w", run.ID, err)
	}

	d.Lock()
	defer d.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, query, sources, output_dir, manifest_path, started_at, finished_at, found, total, ok)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Query, string(sourcesJSON), run.OutputDir, run.ManifestPath,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.Found, run.Total, run.OK)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO outcomes (run_id, ok, path, sha1, source, kind, title, page_url, license_hint, bytes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.Exec(run.ID, o.OK, o.Path, o.SHA1, string(o.Source), string(o.Kind),
			o.Title, o.PageURL, o.LicenseHint, o.Bytes, o.Error); err != nil {
			return fmt.Errorf("failed to insert outcome for run %s: %w", run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	log.Debugf("Recorded run %s with %d outcomes", run.ID, len(outcomes))
	return nil
}

const runColumns = `id, query, sources, output_dir, manifest_path, started_at, finished_at, found, total, ok`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run          Run
		sourcesJSON  string
		manifestPath sql.NullString
		started      int64
		finished     int64
	)
	if err := row.Scan(&run.ID, &run.Query, &sourcesJSON, &run.OutputDir, &manifestPath,
		&started, &finished, &run.Found, &run.Total, &run.OK); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &run.Sources); err != nil {
		log.WithError(err).Warnf("Run %s has unreadable sources column", run.ID)
	}
	run.ManifestPath = manifestPath.String
	run.StartedAt = time.Unix(0, started)
	run.FinishedAt = time.Unix(0, finished)
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	d.RLock()
	defer d.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun looks up a run by id.
func (d *DB) GetRun(id string) (Run, error) {
	d.RLock()
	defer d.RUnlock()

	run, err := scanRun(d.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("error querying run %s: %w", id, err)
	}
	return run, nil
}

// RunOutcomes returns the outcomes of a run in insertion order.
func (d *DB) RunOutcomes(id string) ([]models.DownloadOutcome, error) {
	d.RLock()
	defer d.RUnlock()

	rows, err := d.db.Query(`
		SELECT ok, path, sha1, source, kind, title, page_url, license_hint, bytes, error
		FROM outcomes WHERE run_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("error querying outcomes for run %s: %w", id, err)
	}
	defer rows.Close()

	var outcomes []models.DownloadOutcome
	for rows.Next() {
		var (
			o                                              models.DownloadOutcome
			path, sha, title, pageURL, license, errMessage sql.NullString
			source, kind                                   string
			size                                           sql.NullInt64
		)
		if err := rows.Scan(&o.OK, &path, &sha, &source, &kind, &title, &pageURL, &license, &size, &errMessage); err != nil {
			return nil, fmt.Errorf("error scanning outcome for run %s: %w", id, err)
		}
		o.Path, o.SHA1, o.Title = path.String, sha.String, title.String
		o.PageURL, o.LicenseHint, o.Error = pageURL.String, license.String, errMessage.String
		o.Source, o.Kind, o.Bytes = models.Source(source), models.Kind(kind), size.Int64
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// FindBySHA1 returns successful outcomes that stored the given content.
func (d *DB) FindBySHA1(digest string) ([]models.DownloadOutcome, error) {
	d.RLock()
	defer d.RUnlock()

	rows, err := d.db.Query(`
		SELECT path, source, kind, title, page_url FROM outcomes
		WHERE ok = 1 AND sha1 = ? ORDER BY id
	`, digest)
	if err != nil {
		return nil, fmt.Errorf("error querying sha1 %s: %w", digest, err)
	}
	defer rows.Close()

	var outcomes []models.DownloadOutcome
	for rows.Next() {
		o := models.DownloadOutcome{OK: true, SHA1: digest}
		var source, kind string
		var title, pageURL sql.NullString
		if err := rows.Scan(&o.Path, &source, &kind, &title, &pageURL); err != nil {
			return nil, fmt.Errorf("error scanning sha1 match: %w", err)
		}
		o.Source, o.Kind, o.Title, o.PageURL = models.Source(source), models.Kind(kind), title.String, pageURL.String
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// DeleteRun removes a run and, through the foreign key, its outcomes.
func (d *DB) DeleteRun(id string) error {
	d.Lock()
	defer d.Unlock()

	res, err := d.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	log.Infof("Deleted run %s from history", id)
	return nil
}
