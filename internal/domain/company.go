package domain

import (
	"net/mail"
	"strings"
	"time"
)

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Company) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Invalid("name", "is required")
	}
	return nil
}

// User is a recruiter belonging to a company. Recruiters receive screen notifications.
type User struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Notify    bool      `json:"notify"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) Validate() error {
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return Invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return Invalid("email", "is not a valid address")
	}
	if strings.TrimSpace(u.CompanyID) == "" {
		return Invalid("company_id", "is required")
	}
	return nil
}
