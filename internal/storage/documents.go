package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const documentColumns = `id, namespace, type, title, description, content, source, metadata_json, created_at, vector_id`

func (s *Store) SaveDocument(ctx context.Context, d Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.Type == "" {
		d.Type = "text"
	}
	if d.MetadataJSON == "" {
		d.MetadataJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Namespace, d.Type, d.Title, d.Description, d.Content, d.Source, d.MetadataJSON,
		formatTime(d.CreatedAt), d.VectorID,
	)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns the newest documents; an empty namespace lists all.
func (s *Store) ListDocuments(ctx context.Context, namespace string, limit int) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if namespace != "" {
		query += ` WHERE namespace = ?`
		args = append(args, namespace)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDocumentVector records the vector ID produced by the ingest worker.
func (s *Store) SetDocumentVector(ctx context.Context, id, vectorID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET vector_id = ? WHERE id = ?`, vectorID, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	var createdAt string
	err := row.Scan(&d.ID, &d.Namespace, &d.Type, &d.Title, &d.Description, &d.Content, &d.Source, &d.MetadataJSON, &createdAt, &d.VectorID)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return d, nil
}
