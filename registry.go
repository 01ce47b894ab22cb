package main

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// IndexedRoot is one row of the registry, the catalog of directory trees
// that have a persisted index.
type IndexedRoot struct {
	Path      string
	File      string
	Files     int
	Vectors   int
	IndexedAt int64
}

// registryColumns is additive: new columns are appended here and picked up
// by prepareRegistry on the next start, existing databases included.
var registryColumns = [][2]string{
	{"path", "TEXT NOT NULL DEFAULT ''"},
	{"file", "TEXT NOT NULL DEFAULT ''"},
	{"files", "INTEGER NOT NULL DEFAULT 0"},
	{"vectors", "INTEGER NOT NULL DEFAULT 0"},
	{"indexed_at", "INTEGER NOT NULL DEFAULT 0"},
}

func connectToRegistry() error {
	path, err := RegistryFilePath()
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}

	err = prepareRegistry(db)
	if err != nil {
		return err
	}

	registry = db

	return nil
}

func prepareRegistry(db *sql.DB) error {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS roots (id INTEGER PRIMARY KEY AUTOINCREMENT)")
	if err != nil {
		return err
	}

	existing, err := tableColumns(db, "roots")
	if err != nil {
		return err
	}

	for _, col := range registryColumns {
		if existing[col[0]] {
			continue
		}

		_, err = db.Exec("ALTER TABLE roots ADD COLUMN " + col[0] + " " + col[1])
		if err != nil {
			return err
		}
	}

	_, err = db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS roots_path ON roots (path)")

	return err
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	columns := make(map[string]bool)

	for rows.Next() {
		var (
			ignore any
			name   string
		)

		err = rows.Scan(&ignore, &name, &ignore, &ignore, &ignore, &ignore)
		if err != nil {
			return nil, err
		}

		columns[name] = true
	}

	return columns, rows.Err()
}

func (r *IndexedRoot) Upsert() error {
	if r.IndexedAt == 0 {
		r.IndexedAt = time.Now().Unix()
	}

	_, err := registry.Exec(`INSERT INTO roots (path, file, files, vectors, indexed_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET file = excluded.file, files = excluded.files, vectors = excluded.vectors, indexed_at = excluded.indexed_at`,
		r.Path, r.File, r.Files, r.Vectors, r.IndexedAt)

	return err
}

func (r *IndexedRoot) Delete() error {
	_, err := registry.Exec("DELETE FROM roots WHERE path = ?", r.Path)

	return err
}

func FindIndexedRoot(path string) (*IndexedRoot, error) {
	row := registry.QueryRow("SELECT path, file, files, vectors, indexed_at FROM roots WHERE path = ?", path)

	var root IndexedRoot

	err := row.Scan(&root.Path, &root.File, &root.Files, &root.Vectors, &root.IndexedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return &root, nil
}

func ListIndexedRoots() ([]IndexedRoot, error) {
	rows, err := registry.Query("SELECT path, file, files, vectors, indexed_at FROM roots ORDER BY path")
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var roots []IndexedRoot

	for rows.Next() {
		var root IndexedRoot

		err = rows.Scan(&root.Path, &root.File, &root.Files, &root.Vectors, &root.IndexedAt)
		if err != nil {
			return nil, err
		}

		roots = append(roots, root)
	}

	return roots, rows.Err()
}

// FindContainingRoot returns the registered root that contains path, the
// deepest one when several are nested.
func FindContainingRoot(path string) (*IndexedRoot, error) {
	roots, err := ListIndexedRoots()
	if err != nil {
		return nil, err
	}

	var best *IndexedRoot

	for i := range roots {
		if !containsPath(roots[i].Path, path) {
			continue
		}

		if best == nil || len(roots[i].Path) > len(best.Path) {
			best = &roots[i]
		}
	}

	return best, nil
}

func containsPath(root, path string) bool {
	if root == path {
		return true
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
