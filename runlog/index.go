package runlog

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	file       TEXT NOT NULL,
	algorithm  TEXT NOT NULL,
	objective  TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	checksum   INTEGER NOT NULL,
	saved_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_saved_at ON runs(saved_at);
`

// Record is one row of the run catalog.
type Record struct {
	Name       string    `json:"name"`
	File       string    `json:"file"`
	Algorithm  string    `json:"algorithm"`
	Objective  string    `json:"objective"`
	Iterations int       `json:"iterations"`
	Checksum   uint16    `json:"checksum"`
	SavedAt    time.Time `json:"saved_at"`
}

// Index is a SQLite catalog of saved runs.  It is safe for concurrent use.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenIndex opens (creating if needed) the catalog at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

// Record inserts one run into the catalog.
func (ix *Index) Record(r Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, err := ix.db.Exec(`
		INSERT INTO runs (name, file, algorithm, objective, iterations, checksum, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.File, r.Algorithm, r.Objective, r.Iterations, int(r.Checksum), r.SavedAt.Unix())
	return err
}

// Recent returns the n most recently saved runs, newest first.
func (ix *Index) Recent(n int) ([]Record, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	rows, err := ix.db.Query(`
		SELECT name, file, algorithm, objective, iterations, checksum, saved_at
		FROM runs ORDER BY saved_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var checksum int
		var saved int64
		if err := rows.Scan(&r.Name, &r.File, &r.Algorithm, &r.Objective, &r.Iterations, &checksum, &saved); err != nil {
			return nil, err
		}
		r.Checksum = uint16(checksum)
		r.SavedAt = time.Unix(saved, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.db.Close()
}
