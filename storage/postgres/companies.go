package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aimbuild/siteauth"
)

// CompanyDirectory implements siteauth.CompanyDirectory on the companies and
// company_members tables.
type CompanyDirectory struct {
	db DBTX
}

var _ siteauth.CompanyDirectory = (*CompanyDirectory)(nil)

func NewCompanyDirectory(db DBTX) *CompanyDirectory {
	return &CompanyDirectory{db: db}
}

func (d *CompanyDirectory) CompanyExists(ctx context.Context, companyID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)`, companyID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// LinkAccount records the membership, replacing an earlier link of the same
// account.
func (d *CompanyDirectory) LinkAccount(ctx context.Context, link siteauth.TenancyLink) error {
	query := `INSERT INTO company_members (account_id, company_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET company_id = EXCLUDED.company_id, role = EXCLUDED.role`
	if _, err := d.db.ExecContext(ctx, query, link.AccountID, link.CompanyID, string(link.Role)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UnlinkAccount removes the membership row. Deleting nothing is fine.
func (d *CompanyDirectory) UnlinkAccount(ctx context.Context, accountID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM company_members WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (d *CompanyDirectory) CompanyForAccount(ctx context.Context, accountID string) (string, bool, error) {
	var companyID string
	err := d.db.QueryRowContext(ctx, `SELECT company_id FROM company_members WHERE account_id = $1`, accountID).Scan(&companyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("db error: %w", err)
	}
	return companyID, true, nil
}

// CreateCompany inserts a company. The HTTP surface does not expose it; the
// server uses it to seed a default company.
func (d *CompanyDirectory) CreateCompany(ctx context.Context, id, name string) error {
	query := `INSERT INTO companies (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	if _, err := d.db.ExecContext(ctx, query, id, name); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
