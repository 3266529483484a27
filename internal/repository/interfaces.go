package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/limbo/hydrosync/pkg/entity"
)

type AccountsRepositoryI interface {
	// Creates new account, returns it with the generated ID
	Create(ctx context.Context, account *entity.Account) (*entity.Account, error)
	// Looks up account by email. Used for sign in
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	// Looks up account by id. Used to resume a saved session
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error)
	// Replaces password hash of the account
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// Deletes account
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProfilesRepositoryI interface {
	// Inserts or replaces the profile document keyed by its UserID
	UpsertProfile(ctx context.Context, profile entity.Profile) error
	// Returns ErrProfileNotFound if user has no profile yet
	GetProfile(ctx context.Context, userID string) (*entity.Profile, error)
	DeleteProfile(ctx context.Context, userID string) error
}

type DrinkLogsRepositoryI interface {
	// Stores log for userID. The returned log carries the store-assigned ID
	AppendLog(ctx context.Context, userID string, log entity.DrinkLog) (entity.DrinkLog, error)
	// Lists logs of userID. Empty date means all dates
	QueryLogs(ctx context.Context, userID, date string) ([]entity.DrinkLog, error)
	// Deletes log owned by the current identity
	DeleteLog(ctx context.Context, id string) error
	DeleteAllLogsForUser(ctx context.Context, userID string) error
}

// IdentitySource tells the remote store who is signed in.
type IdentitySource interface {
	CurrentUserID() (string, bool)
}

type DBConfig interface {
	ConnString() string
}

type PgConnection interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGCfg struct {
	Address  string
	Username string
	Password string
	DB       string
}

func (pgcfg *PGCfg) ConnString() string {
	return fmt.Sprintf("postgresql://%s:%s@%s/%s", pgcfg.Username, pgcfg.Password, pgcfg.Address, pgcfg.DB)
}
