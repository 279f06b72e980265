package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNotFound is returned when a named dataset does not exist.
var ErrNotFound = errors.New("dataset: not found")

// ErrExists is returned when creating a dataset whose name is taken.
var ErrExists = errors.New("dataset: already exists")

// Store persists labeled datasets in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the dataset store at path.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dataset: store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_items (
			id TEXT PRIMARY KEY,
			dataset_id TEXT NOT NULL REFERENCES datasets(id),
			ordinal INTEGER NOT NULL,
			input TEXT NOT NULL,
			expected_output TEXT,
			expected_source_ids TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_dataset ON dataset_items(dataset_id, ordinal)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("dataset: init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Create registers a new named dataset.
func (s *Store) Create(ctx context.Context, name, description string, metadata map[string]any) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("dataset: name is required")
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM datasets WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("dataset: check name: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("dataset: encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, name, description, metadata) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), name, description, string(metaJSON))
	if err != nil {
		return fmt.Errorf("dataset: create %s: %w", name, err)
	}
	return nil
}

// Populate appends items to a named dataset, preserving slice order as
// the iteration order. Items with an empty input are rejected before
// anything is written.
func (s *Store) Populate(ctx context.Context, name string, items []Item) error {
	for i, item := range items {
		if strings.TrimSpace(item.Input) == "" {
			return fmt.Errorf("dataset: item %d has empty input", i)
		}
	}

	datasetID, err := s.datasetID(ctx, name)
	if err != nil {
		return err
	}

	var base int
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), -1) + 1 FROM dataset_items WHERE dataset_id = ?`,
		datasetID).Scan(&base)
	if err != nil {
		return fmt.Errorf("dataset: next ordinal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dataset: begin populate: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dataset_items (id, dataset_id, ordinal, input, expected_output, expected_source_ids)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("dataset: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		ids, err := json.Marshal(item.Metadata.ExpectedSourceIDs)
		if err != nil {
			return fmt.Errorf("dataset: encode source ids: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), datasetID, base+i,
			item.Input, item.ExpectedOutput, string(ids)); err != nil {
			return fmt.Errorf("dataset: insert item %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dataset: commit populate: %w", err)
	}
	return nil
}

// Iterate returns all items of a named dataset in insertion order.
func (s *Store) Iterate(ctx context.Context, name string) ([]Item, error) {
	datasetID, err := s.datasetID(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, input, expected_output, expected_source_ids
		FROM dataset_items WHERE dataset_id = ? ORDER BY ordinal
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("dataset: iterate %s: %w", name, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var idsJSON sql.NullString
		if err := rows.Scan(&item.ID, &item.Input, &item.ExpectedOutput, &idsJSON); err != nil {
			return nil, fmt.Errorf("dataset: scan item: %w", err)
		}
		if idsJSON.Valid && idsJSON.String != "" {
			if err := json.Unmarshal([]byte(idsJSON.String), &item.Metadata.ExpectedSourceIDs); err != nil {
				return nil, fmt.Errorf("dataset: decode source ids for %s: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dataset: iterate %s: %w", name, err)
	}
	return items, nil
}

// List returns all stored datasets with their item counts.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, COALESCE(d.description, ''), COUNT(i.id), d.created_at
		FROM datasets d LEFT JOIN dataset_items i ON i.dataset_id = d.id
		GROUP BY d.id ORDER BY d.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("dataset: list: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.ID, &info.Name, &info.Description, &info.Items, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("dataset: scan dataset: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) datasetID(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM datasets WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("dataset: lookup %s: %w", name, err)
	}
	return id, nil
}
