package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

const screenColumns = `id, company_id, job_id, candidate_id, call_id, status, transcript, recording_url,
	duration_seconds, scores, score, summary, qualified, error, created_at, updated_at`

func scanScreen(row rowScanner) (*domain.PhoneScreen, error) {
	var (
		ps        domain.PhoneScreen
		scores    []byte
		score     sql.NullFloat64
		qualified sql.NullBool
	)
	if err := row.Scan(&ps.ID, &ps.CompanyID, &ps.JobID, &ps.CandidateID, &ps.CallID, &ps.Status,
		&ps.Transcript, &ps.RecordingURL, &ps.DurationSeconds, &scores, &score, &ps.Summary,
		&qualified, &ps.Error, &ps.CreatedAt, &ps.UpdatedAt); err != nil {
		return nil, err
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &ps.Scores); err != nil {
			return nil, fmt.Errorf("decode scores of phone screen %s: %w", ps.ID, err)
		}
	}
	ps.Score = floatPtr(score)
	if qualified.Valid {
		q := qualified.Bool
		ps.Qualified = &q
	}
	return &ps, nil
}

func (s *Store) CreatePhoneScreen(ctx context.Context, ps *domain.PhoneScreen) error {
	ps.ID = s.id()
	ps.CreatedAt = s.now()
	ps.UpdatedAt = ps.CreatedAt

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO phone_screens (id, company_id, job_id, candidate_id, call_id, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ps.ID, ps.CompanyID, ps.JobID, ps.CandidateID, ps.CallID, ps.Status, ps.Error, ps.CreatedAt, ps.UpdatedAt,
	)
	return err
}

func (s *Store) GetPhoneScreen(ctx context.Context, companyID, id string) (*domain.PhoneScreen, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+screenColumns+` FROM phone_screens WHERE company_id = $1 AND id = $2`, companyID, id)
	ps, err := scanScreen(row)
	if err != nil {
		return nil, notFound(err, "phone screen")
	}
	return ps, nil
}

// GetPhoneScreenByCallID resolves a vendor call to its screen. Webhooks carry no tenant.
func (s *Store) GetPhoneScreenByCallID(ctx context.Context, callID string) (*domain.PhoneScreen, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+screenColumns+` FROM phone_screens WHERE call_id = $1`, callID)
	ps, err := scanScreen(row)
	if err != nil {
		return nil, notFound(err, "phone screen")
	}
	return ps, nil
}

func (s *Store) UpdatePhoneScreen(ctx context.Context, ps *domain.PhoneScreen) error {
	scores, err := json.Marshal(ps.Scores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	var qualified sql.NullBool
	if ps.Qualified != nil {
		qualified = sql.NullBool{Bool: *ps.Qualified, Valid: true}
	}

	ps.UpdatedAt = s.now()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE phone_screens SET call_id = $3, status = $4, transcript = $5, recording_url = $6,
			duration_seconds = $7, scores = $8, score = $9, summary = $10, qualified = $11, error = $12, updated_at = $13
		WHERE company_id = $1 AND id = $2`,
		ps.CompanyID, ps.ID, ps.CallID, ps.Status, ps.Transcript, ps.RecordingURL,
		ps.DurationSeconds, scores, nullFloat(ps.Score), ps.Summary, qualified, ps.Error, ps.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "phone screen")
}

// SetPhoneScreenCallID stores the vendor call id unless a webhook already did. It reports whether
// the row was written.
func (s *Store) SetPhoneScreenCallID(ctx context.Context, companyID, id, callID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE phone_screens SET call_id = $3, updated_at = $4
		WHERE company_id = $1 AND id = $2 AND call_id = ''`,
		companyID, id, callID, s.now(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
