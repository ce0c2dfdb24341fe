package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sigamony/DataViz/internal/dataset"
)

// PutDataset inserts or replaces the metadata record for d.ID.
func (s *Store) PutDataset(ctx context.Context, d Dataset) error {
	profileJSON, err := json.Marshal(d.Profile)
	if err != nil {
		return fmt.Errorf("encoding profile for %s: %w", d.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, filename, path, size_bytes, profile_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			profile_json = excluded.profile_json`,
		d.ID, d.Filename, d.Path, d.SizeBytes, string(profileJSON), formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving dataset %s: %w", d.ID, err)
	}
	return nil
}

// GetDataset returns the metadata record for id or ErrNotFound.
func (s *Store) GetDataset(ctx context.Context, id string) (Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, path, size_bytes, profile_json, created_at
		FROM datasets WHERE id = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNotFound
	}
	return d, err
}

// ListDatasets returns the most recently uploaded datasets first.
func (s *Store) ListDatasets(ctx context.Context, limit int) ([]Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, path, size_bytes, profile_json, created_at
		FROM datasets ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Locate resolves a dataset id to its stored file path.
func (s *Store) Locate(ctx context.Context, id string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM datasets WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", dataset.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("locating dataset %s: %w", id, err)
	}
	return path, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(r rowScanner) (Dataset, error) {
	var (
		d           Dataset
		profileJSON string
		createdAt   string
	)
	if err := r.Scan(&d.ID, &d.Filename, &d.Path, &d.SizeBytes, &profileJSON, &createdAt); err != nil {
		return Dataset{}, err
	}
	if err := json.Unmarshal([]byte(profileJSON), &d.Profile); err != nil {
		return Dataset{}, fmt.Errorf("decoding profile for %s: %w", d.ID, err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Dataset{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}
