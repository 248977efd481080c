package store

import (
	"context"
	"database/sql"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

const candidateColumns = `id, company_id, job_id, name, email, phone, resume_url, status, score, created_at, updated_at`

func scanCandidate(row rowScanner) (*domain.Candidate, error) {
	var (
		c     domain.Candidate
		score sql.NullFloat64
	)
	if err := row.Scan(&c.ID, &c.CompanyID, &c.JobID, &c.Name, &c.Email, &c.Phone, &c.ResumeURL,
		&c.Status, &score, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Score = floatPtr(score)
	return &c, nil
}

func (s *Store) CreateCandidate(ctx context.Context, c *domain.Candidate) error {
	c.ID = s.id()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO candidates (id, company_id, job_id, name, email, phone, resume_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.CompanyID, c.JobID, c.Name, c.Email, c.Phone, c.ResumeURL, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *Store) GetCandidate(ctx context.Context, companyID, id string) (*domain.Candidate, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE company_id = $1 AND id = $2`, companyID, id)
	c, err := scanCandidate(row)
	if err != nil {
		return nil, notFound(err, "candidate")
	}
	return c, nil
}

func (s *Store) ListCandidates(ctx context.Context, companyID, jobID string) ([]*domain.Candidate, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates
		WHERE company_id = $1 AND job_id = $2 ORDER BY score DESC NULLS LAST, created_at`, companyID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]*domain.Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// UpdateCandidateStatus sets the status and, when score is not nil, the qualification score.
func (s *Store) UpdateCandidateStatus(ctx context.Context, companyID, id string, status domain.CandidateStatus, score *float64) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE candidates SET status = $3, score = COALESCE($4, score), updated_at = $5
		WHERE company_id = $1 AND id = $2`,
		companyID, id, status, nullFloat(score), s.now(),
	)
	if err != nil {
		return err
	}
	return expectOne(res, "candidate")
}

func (s *Store) DeleteCandidate(ctx context.Context, companyID, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM candidates WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return err
	}
	return expectOne(res, "candidate")
}

// HasActiveScreen reports whether the phone number already has a screen for the job
// that did not fail.
func (s *Store) HasActiveScreen(ctx context.Context, jobID, phone string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM phone_screens ps
			JOIN candidates c ON c.id = ps.candidate_id
			WHERE ps.job_id = $1 AND c.phone = $2 AND ps.status NOT IN ('failed', 'no_answer')
		)`, jobID, phone).Scan(&exists)
	return exists, err
}
