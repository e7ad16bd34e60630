package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aimbuild/siteauth"
)

const accountColumns = `id, email, first_name, last_name, password_hash, role, company_id,
	supervisor_manager_id, flow, email_verified, password_temporary, failed_login_attempts,
	lock_until, deleted, fcm_token, last_password_change, created_at, updated_at`

// AccountStore implements siteauth.AccountStore on the accounts table.
type AccountStore struct {
	db DBTX
}

var _ siteauth.AccountStore = (*AccountStore)(nil)

func NewAccountStore(db DBTX) *AccountStore {
	return &AccountStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (siteauth.Account, error) {
	var (
		a         siteauth.Account
		role      string
		flow      string
		company   sql.NullString
		manager   sql.NullString
		lockUntil sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &role, &company,
		&manager, &flow, &a.EmailVerified, &a.PasswordTemporary, &a.FailedLoginAttempts,
		&lockUntil, &a.Deleted, &a.FCMToken, &a.LastPasswordChange, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return siteauth.Account{}, siteauth.ErrAccountNotFound
		}
		return siteauth.Account{}, fmt.Errorf("db error: %w", err)
	}
	a.Role = siteauth.Role(role)
	a.CompanyID = company.String
	a.SupervisorManagerID = manager.String
	parsed, ok := siteauth.ParseFlowState(flow)
	if !ok {
		return siteauth.Account{}, fmt.Errorf("db error: unknown flow %q for account %s", flow, a.ID)
	}
	a.Flow = parsed
	if lockUntil.Valid {
		t := lockUntil.Time
		a.LockUntil = &t
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (siteauth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, siteauth.NormalizeEmail(email)))
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (siteauth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func (s *AccountStore) Create(ctx context.Context, a siteauth.Account) (siteauth.Account, error) {
	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + accountColumns

	var lockUntil sql.NullTime
	if a.LockUntil != nil {
		lockUntil = sql.NullTime{Time: *a.LockUntil, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, query,
		a.ID, siteauth.NormalizeEmail(a.Email), a.FirstName, a.LastName, a.PasswordHash, string(a.Role),
		nullString(a.CompanyID), nullString(a.SupervisorManagerID), a.Flow.String(), a.EmailVerified,
		a.PasswordTemporary, a.FailedLoginAttempts, lockUntil, a.Deleted, a.FCMToken,
		a.LastPasswordChange, a.CreatedAt, a.UpdatedAt)
	created, err := scanAccount(row)
	if err != nil && isUniqueViolation(err) {
		return siteauth.Account{}, siteauth.ErrEmailTaken
	}
	return created, err
}

// ReplaceUnverified overwrites the profile of an account that has not
// verified its email yet and puts it back in the unverified flow. A verified
// row is left alone and reported as ErrEmailTaken.
func (s *AccountStore) ReplaceUnverified(ctx context.Context, id string, u siteauth.ProfileUpdate) (siteauth.Account, error) {
	query := `UPDATE accounts SET first_name = $2, last_name = $3, role = $4, company_id = $5,
		supervisor_manager_id = $6, password_hash = $7, flow = 'unverified', updated_at = $8
		WHERE id = $1 AND email_verified = FALSE
		RETURNING ` + accountColumns

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, id, u.FirstName, u.LastName, string(u.Role),
		nullString(u.CompanyID), nullString(u.SupervisorManagerID), u.PasswordHash, u.UpdatedAt))
	if errors.Is(err, siteauth.ErrAccountNotFound) {
		if _, getErr := s.GetByID(ctx, id); getErr == nil {
			return siteauth.Account{}, siteauth.ErrEmailTaken
		}
	}
	return a, err
}

// RecordLoginFailure counts a failed login in a single conditional UPDATE.
// Rows under an active lock are not matched, so concurrent failures during
// the lock never extend it.
func (s *AccountStore) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (siteauth.LockoutState, error) {
	query := `UPDATE accounts SET
		failed_login_attempts = failed_login_attempts + 1,
		lock_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $4::timestamptz ELSE lock_until END,
		updated_at = $3
		WHERE id = $1 AND (lock_until IS NULL OR lock_until <= $3)
		RETURNING failed_login_attempts, lock_until`

	var (
		state     siteauth.LockoutState
		lockUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id, maxAttempts, now, now.Add(lockFor)).Scan(&state.FailedAttempts, &lockUntil)
	switch {
	case err == nil:
		if lockUntil.Valid {
			t := lockUntil.Time
			state.LockUntil = &t
		}
		return state, nil
	case !errors.Is(err, sql.ErrNoRows):
		return siteauth.LockoutState{}, fmt.Errorf("db error: %w", err)
	}

	// No row matched: either the account is gone or it is locked.
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return siteauth.LockoutState{}, err
	}
	return siteauth.LockoutState{
		FailedAttempts: current.FailedLoginAttempts,
		LockUntil:      current.LockUntil,
		AlreadyLocked:  true,
	}, nil
}

func (s *AccountStore) ResetLoginFailures(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE accounts SET failed_login_attempts = 0, lock_until = NULL WHERE id = $1`, id)
}

// MarkEmailVerified sets the verified flag and leaves the unverified flow.
func (s *AccountStore) MarkEmailVerified(ctx context.Context, id string, now time.Time) (siteauth.Account, error) {
	query := `UPDATE accounts SET email_verified = TRUE,
		flow = CASE WHEN flow = 'unverified' THEN 'active' ELSE flow END,
		updated_at = $2
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccount(s.db.QueryRowContext(ctx, query, id, now))
}

func (s *AccountStore) SetFlow(ctx context.Context, id string, flow siteauth.FlowState, now time.Time) error {
	return s.execOne(ctx, `UPDATE accounts SET flow = $2, updated_at = $3 WHERE id = $1`, id, flow.String(), now)
}

func (s *AccountStore) UpdatePassword(ctx context.Context, u siteauth.PasswordUpdate) (siteauth.Account, error) {
	query := `UPDATE accounts SET password_hash = $2, flow = $3, password_temporary = $4,
		last_password_change = $5, updated_at = $5
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccount(s.db.QueryRowContext(ctx, query, u.AccountID, u.Hash, u.Flow.String(), u.Temporary, u.ChangedAt))
}

func (s *AccountStore) UpdateFCMToken(ctx context.Context, id, token string) error {
	return s.execOne(ctx, `UPDATE accounts SET fcm_token = $2 WHERE id = $1`, id, token)
}

// Delete removes the row. Company membership goes with it through the
// foreign key cascade.
func (s *AccountStore) Delete(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM accounts WHERE id = $1`, id)
}

func (s *AccountStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return siteauth.ErrAccountNotFound
	}
	return nil
}
