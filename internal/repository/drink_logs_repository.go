package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/pkg/entity"
)

type DrinkLogsRepository struct {
	conn       PgConnection
	identities IdentitySource
}

func NewDrinkLogsRepoWithConn(conn PgConnection, identities IdentitySource) *DrinkLogsRepository {
	return &DrinkLogsRepository{
		conn:       conn,
		identities: identities,
	}
}

func (lr *DrinkLogsRepository) AppendLog(ctx context.Context, userID string, log entity.DrinkLog) (entity.DrinkLog, error) {
	if err := authorize(lr.identities, userID); err != nil {
		return entity.DrinkLog{}, fmt.Errorf("appending log: %w", err)
	}
	if log.Volume <= 0 {
		return entity.DrinkLog{}, fmt.Errorf("appending log: %w: volume must be positive", errorvalues.ErrInvalidLog)
	}
	log.UserID = userID
	row := lr.conn.QueryRow(ctx, `INSERT INTO drink_logs (user_id, log_date, log_time, volume, drink_type, default_cup_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id::text;`,
		log.UserID, log.Date, log.Time, log.Volume, log.DrinkType, log.DefaultCupID, log.CreatedAt,
	)
	if err := row.Scan(&log.ID); err != nil {
		return entity.DrinkLog{}, remoteError("appending log", err)
	}
	return log, nil
}

func (lr *DrinkLogsRepository) QueryLogs(ctx context.Context, userID, date string) ([]entity.DrinkLog, error) {
	if err := authorize(lr.identities, userID); err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	query := `SELECT id::text, user_id, log_date, log_time, volume, drink_type, default_cup_id, created_at
		FROM drink_logs WHERE user_id = $1 ORDER BY created_at;`
	args := []any{userID}
	if date != "" {
		query = `SELECT id::text, user_id, log_date, log_time, volume, drink_type, default_cup_id, created_at
		FROM drink_logs WHERE user_id = $1 AND log_date = $2 ORDER BY created_at;`
		args = append(args, date)
	}
	rows, err := lr.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, remoteError("querying logs", err)
	}
	defer rows.Close()
	logs := make([]entity.DrinkLog, 0)
	for rows.Next() {
		l := entity.DrinkLog{}
		err = rows.Scan(&l.ID, &l.UserID, &l.Date, &l.Time, &l.Volume, &l.DrinkType, &l.DefaultCupID, &l.CreatedAt)
		if err != nil {
			return nil, remoteError("scanning log", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteError("iterating logs", err)
	}
	return logs, nil
}

func (lr *DrinkLogsRepository) DeleteLog(ctx context.Context, id string) error {
	if lr.identities == nil {
		return fmt.Errorf("deleting log: %w", errorvalues.ErrPermission)
	}
	uid, ok := lr.identities.CurrentUserID()
	if !ok {
		return fmt.Errorf("deleting log: %w", errorvalues.ErrPermission)
	}
	if _, err := uuid.Parse(id); err != nil {
		return errorvalues.ErrLogNotFound
	}
	ct, err := lr.conn.Exec(ctx, `DELETE FROM drink_logs WHERE id = $1 AND user_id = $2;`, id, uid)
	if err != nil {
		return remoteError("deleting log", err)
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrLogNotFound
	}
	return nil
}

func (lr *DrinkLogsRepository) DeleteAllLogsForUser(ctx context.Context, userID string) error {
	if err := authorize(lr.identities, userID); err != nil {
		return fmt.Errorf("deleting logs: %w", err)
	}
	if _, err := lr.conn.Exec(ctx, `DELETE FROM drink_logs WHERE user_id = $1;`, userID); err != nil {
		return remoteError("deleting logs", err)
	}
	return nil
}

// RemoteStore is the document-style view over the profiles and drink_logs tables.
type RemoteStore struct {
	*ProfilesRepository
	*DrinkLogsRepository
}

func NewRemoteStore(conn PgConnection, identities IdentitySource) *RemoteStore {
	return &RemoteStore{
		ProfilesRepository:  NewProfilesRepoWithConn(conn, identities),
		DrinkLogsRepository: NewDrinkLogsRepoWithConn(conn, identities),
	}
}
