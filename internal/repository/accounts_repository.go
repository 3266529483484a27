package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/pkg/entity"
)

// AccountsRepository backs the auth provider. Its failures use the auth taxonomy:
// anything that isn't a known constraint is reported as ErrNetwork.
type AccountsRepository struct {
	conn PgConnection
}

func NewAccountsRepoWithConn(conn PgConnection) *AccountsRepository {
	return &AccountsRepository{
		conn: conn,
	}
}

func (ar *AccountsRepository) Create(ctx context.Context, account *entity.Account) (*entity.Account, error) {
	if account == nil {
		return nil, errors.New("account is nil")
	}
	created := *account
	created.Email = normalizeEmail(account.Email)
	row := ar.conn.QueryRow(ctx, `INSERT INTO accounts (email, password_hash) VALUES ($1, $2) RETURNING id, created_at;`,
		created.Email, created.PasswordHash)
	if err := row.Scan(&created.ID, &created.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case codeUniqueViolation:
				return nil, errorvalues.ErrEmailInUse
			}
		}
		return nil, fmt.Errorf("creating account: %w: %w", errorvalues.ErrNetwork, err)
	}
	return &created, nil
}

func (ar *AccountsRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	var account entity.Account
	row := ar.conn.QueryRow(ctx, `SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1;`, normalizeEmail(email))
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrUserNotFound
		}
		return nil, fmt.Errorf("searching account by email: %w: %w", errorvalues.ErrNetwork, err)
	}
	return &account, nil
}

func (ar *AccountsRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	var account entity.Account
	row := ar.conn.QueryRow(ctx, `SELECT id, email, password_hash, created_at FROM accounts WHERE id = $1;`, id)
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrUserNotFound
		}
		return nil, fmt.Errorf("searching account by id: %w: %w", errorvalues.ErrNetwork, err)
	}
	return &account, nil
}

func (ar *AccountsRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	ct, err := ar.conn.Exec(ctx, `UPDATE accounts SET password_hash = $1 WHERE id = $2;`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w: %w", errorvalues.ErrNetwork, err)
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrUserNotFound
	}
	return nil
}

func (ar *AccountsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := ar.conn.Exec(ctx, `DELETE FROM accounts WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w: %w", errorvalues.ErrNetwork, err)
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
