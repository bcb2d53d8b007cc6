package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) SaveUpload(ctx context.Context, u Upload) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence_uploads (id, case_id, file_name, storage_path, mime_class, size_bytes, page_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, nullable(u.CaseID), u.FileName, u.StoragePath, u.MimeClass, u.SizeBytes, u.PageCount, formatTime(u.CreatedAt),
	)
	return err
}

func (s *Store) GetUpload(ctx context.Context, id string) (Upload, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, file_name, storage_path, mime_class, size_bytes, page_count, created_at
		FROM evidence_uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Upload{}, ErrNotFound
	}
	return u, err
}

// ListUploads returns uploads newest first. An empty caseID lists all uploads.
func (s *Store) ListUploads(ctx context.Context, caseID string, limit int) ([]Upload, error) {
	query := `SELECT id, case_id, file_name, storage_path, mime_class, size_bytes, page_count, created_at
		FROM evidence_uploads`
	var args []any
	if caseID != "" {
		query += ` WHERE case_id = ?`
		args = append(args, caseID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(sc scanner) (Upload, error) {
	var u Upload
	var caseID sql.NullString
	var createdAt string
	if err := sc.Scan(&u.ID, &caseID, &u.FileName, &u.StoragePath, &u.MimeClass, &u.SizeBytes, &u.PageCount, &createdAt); err != nil {
		return Upload{}, err
	}
	u.CaseID = caseID.String
	t, err := parseTime(createdAt)
	if err != nil {
		return Upload{}, fmt.Errorf("parsing created_at: %w", err)
	}
	u.CreatedAt = t
	return u, nil
}
