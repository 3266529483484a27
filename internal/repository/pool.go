package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/pkg/cleanup"
)

const (
	codeUniqueViolation       = "23505"
	codeCheckViolation        = "23514"
	codeInsufficientPrivilege = "42501"
)

// NewPool opens the remote pool. An unreachable server is not an error here: the client keeps
// working offline and every remote call reports ErrTransient until the server comes back.
func NewPool(ctx context.Context, cfg DBConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("creating remote pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("remote store unreachable, working offline", slog.String("error", err.Error()))
	}
	cleanup.Register(&cleanup.Job{
		Name: "closing pgxpool",
		F: func() error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

// remoteError maps a driver error onto the remote store taxonomy.
func remoteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInsufficientPrivilege:
			return fmt.Errorf("%s: %w", op, errorvalues.ErrPermission)
		case codeCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, errorvalues.ErrInvalidLog, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, errorvalues.ErrTransient, err)
}

// authorize fails with ErrPermission unless userID is the signed-in identity.
func authorize(identities IdentitySource, userID string) error {
	if identities == nil {
		return errorvalues.ErrPermission
	}
	current, ok := identities.CurrentUserID()
	if !ok || current == "" || current != userID {
		return errorvalues.ErrPermission
	}
	return nil
}
