package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// --- Analysis jobs ---

// CreateJob inserts a job in the processing state.
func (s *Store) CreateJob(ctx context.Context, j Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_jobs (id, upload_id, case_id, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		j.ID, nullable(j.UploadID), nullable(j.CaseID), JobProcessing, formatTime(j.StartedAt),
	)
	return err
}

// FinishJob moves a processing job to a terminal status. The update only
// matches rows still in processing, so a job is finalized at most once.
func (s *Store) FinishJob(ctx context.Context, id, status string, counts JobCounts, errMsg string, at time.Time) error {
	if status != JobCompleted && status != JobFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET
			status = ?,
			events_extracted = ?,
			entities_extracted = ?,
			discrepancies_extracted = ?,
			claims_extracted = ?,
			compliance_violations_extracted = ?,
			financial_harm_extracted = ?,
			error_message = ?,
			completed_at = ?
		WHERE id = ? AND status = ?`,
		status,
		counts.Events, counts.Entities, counts.Discrepancies, counts.Claims,
		counts.ComplianceViolations, counts.FinancialHarm,
		nullable(errMsg), formatTime(at),
		id, JobProcessing,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_jobs WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrJobNotProcessing
}

const jobColumns = `id, upload_id, case_id, status,
	events_extracted, entities_extracted, discrepancies_extracted, claims_extracted,
	compliance_violations_extracted, financial_harm_extracted,
	error_message, started_at, completed_at`

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE 1=1`
	var args []any
	if f.UploadID != "" {
		query += ` AND upload_id = ?`
		args = append(args, f.UploadID)
	}
	if f.CaseID != "" {
		query += ` AND case_id = ?`
		args = append(args, f.CaseID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	return results, rows.Err()
}

func scanJob(sc scanner) (Job, error) {
	var j Job
	var uploadID, caseID, errMsg, completedAt sql.NullString
	var startedAt string
	err := sc.Scan(&j.ID, &uploadID, &caseID, &j.Status,
		&j.Counts.Events, &j.Counts.Entities, &j.Counts.Discrepancies, &j.Counts.Claims,
		&j.Counts.ComplianceViolations, &j.Counts.FinancialHarm,
		&errMsg, &startedAt, &completedAt)
	if err != nil {
		return Job{}, err
	}
	j.UploadID = uploadID.String
	j.CaseID = caseID.String
	j.ErrorMessage = errMsg.String

	t, err := parseTime(startedAt)
	if err != nil {
		return Job{}, fmt.Errorf("parsing started_at: %w", err)
	}
	j.StartedAt = t
	if completedAt.Valid {
		ct, err := parseTime(completedAt.String)
		if err != nil {
			return Job{}, fmt.Errorf("parsing completed_at: %w", err)
		}
		j.CompletedAt = &ct
	}
	return j, nil
}
