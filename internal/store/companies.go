package store

import (
	"context"
	"fmt"
	"time"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

// Trial is the subscription every new company starts with.
type Trial struct {
	Plan   string
	Calls  int
	Length time.Duration
}

// CreateCompany inserts the company together with its trial subscription.
func (s *Store) CreateCompany(ctx context.Context, c *domain.Company, trial Trial) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	c.ID = s.id()
	c.CreatedAt = s.now()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO companies (id, name, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.Name, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert company: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (company_id, plan, status, calls_limit, calls_used, period_start, period_end)
		VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		c.ID, trial.Plan, domain.SubscriptionTrialing, trial.Calls, c.CreatedAt, c.CreatedAt.Add(trial.Length),
	); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	var c domain.Company
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "company")
	}
	return &c, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	u.ID = s.id()
	u.CreatedAt = s.now()

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, company_id, email, name, notify, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.CompanyID, u.Email, u.Name, u.Notify, u.CreatedAt,
	)
	if err != nil {
		return conflict(err, "user")
	}
	return nil
}

// ListNotifiedUsers returns the recruiters of a company that opted into screen notifications.
func (s *Store) ListNotifiedUsers(ctx context.Context, companyID string) ([]domain.User, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, company_id, email, name, notify, created_at
		FROM users WHERE company_id = $1 AND notify ORDER BY created_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Email, &u.Name, &u.Notify, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) GetSubscription(ctx context.Context, companyID string) (*domain.Subscription, error) {
	var (
		sub       domain.Subscription
		periodEnd *time.Time
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT company_id, plan, status, calls_limit, calls_used, period_start, period_end
		FROM subscriptions WHERE company_id = $1`, companyID,
	).Scan(&sub.CompanyID, &sub.Plan, &sub.Status, &sub.CallsLimit, &sub.CallsUsed, &sub.PeriodStart, &periodEnd)
	if err != nil {
		return nil, notFound(err, "subscription")
	}
	if periodEnd != nil {
		sub.PeriodEnd = *periodEnd
	}
	return &sub, nil
}

// IncrementCallsUsed consumes one phone screen from the allowance. The update
// only matches while calls_used is below the limit.
func (s *Store) IncrementCallsUsed(ctx context.Context, companyID string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE subscriptions SET calls_used = calls_used + 1
		WHERE company_id = $1 AND calls_used < calls_limit`, companyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// ReleaseCall returns a consumed phone screen to the allowance when the call could not be placed.
func (s *Store) ReleaseCall(ctx context.Context, companyID string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE subscriptions SET calls_used = calls_used - 1
		WHERE company_id = $1 AND calls_used > 0`, companyID)
	return err
}
