package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

const jobColumns = `id, company_id, title, description, location, status, questions,
	qualifying_score, pathway_id, pathway_version, created_at, updated_at`

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j         domain.Job
		questions []byte
	)
	if err := row.Scan(&j.ID, &j.CompanyID, &j.Title, &j.Description, &j.Location, &j.Status, &questions,
		&j.QualifyingScore, &j.PathwayID, &j.PathwayVersion, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &j.Questions); err != nil {
			return nil, fmt.Errorf("decode questions of job %s: %w", j.ID, err)
		}
	}
	return &j, nil
}

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	questions, err := json.Marshal(j.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}

	j.ID = s.id()
	j.CreatedAt = s.now()
	j.UpdatedAt = j.CreatedAt

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, company_id, title, description, location, status, questions, qualifying_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.CompanyID, j.Title, j.Description, j.Location, j.Status, questions, j.QualifyingScore, j.CreatedAt, j.UpdatedAt,
	)
	return err
}

func (s *Store) GetJob(ctx context.Context, companyID, id string) (*domain.Job, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE company_id = $1 AND id = $2`, companyID, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "job")
	}
	return job, nil
}

// GetPublicJob looks a job up without tenant scope, for the public apply endpoint.
func (s *Store) GetPublicJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "job")
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, companyID string) ([]*domain.Job, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE company_id = $1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) UpdateJob(ctx context.Context, j *domain.Job) error {
	questions, err := json.Marshal(j.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}

	j.UpdatedAt = s.now()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET title = $3, description = $4, location = $5, status = $6, questions = $7,
			qualifying_score = $8, updated_at = $9
		WHERE company_id = $1 AND id = $2`,
		j.CompanyID, j.ID, j.Title, j.Description, j.Location, j.Status, questions, j.QualifyingScore, j.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "job")
}

// SetJobPathway records the vendor pathway built for the job and the questions digest it reflects.
func (s *Store) SetJobPathway(ctx context.Context, jobID, pathwayID, version string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET pathway_id = $2, pathway_version = $3 WHERE id = $1`, jobID, pathwayID, version)
	if err != nil {
		return err
	}
	return expectOne(res, "job")
}

func (s *Store) DeleteJob(ctx context.Context, companyID, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM jobs WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return err
	}
	return expectOne(res, "job")
}
