package buyer

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("buyer: profile not found")

// Profile is the billing profile an invoice is addressed to. It is owned by
// the profile CRUD outside this core and consumed read-only here.
type Profile struct {
	UserID      string
	CompanyName string
	FirstName   string
	LastName    string
	TaxID       string
	Address     string
}

// DisplayName prefers the company name, falling back to first+last name.
func (p *Profile) DisplayName() string {
	if p.CompanyName != "" {
		return p.CompanyName
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type Repository interface {
	Get(ctx context.Context, userID string) (*Profile, error)
}
