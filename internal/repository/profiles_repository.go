package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/pkg/entity"
)

type ProfilesRepository struct {
	conn       PgConnection
	identities IdentitySource
}

func NewProfilesRepoWithConn(conn PgConnection, identities IdentitySource) *ProfilesRepository {
	return &ProfilesRepository{
		conn:       conn,
		identities: identities,
	}
}

func (pr *ProfilesRepository) UpsertProfile(ctx context.Context, p entity.Profile) error {
	if err := authorize(pr.identities, p.UserID); err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	_, err := pr.conn.Exec(ctx, `INSERT INTO profiles (user_id, name, gender, height, weight, age, wake_up_time, bed_time,
		activity_level, climate, daily_goal, daily_intake, last_reset_date, is_completed, cup_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, gender = EXCLUDED.gender, height = EXCLUDED.height,
		weight = EXCLUDED.weight, age = EXCLUDED.age, wake_up_time = EXCLUDED.wake_up_time, bed_time = EXCLUDED.bed_time,
		activity_level = EXCLUDED.activity_level, climate = EXCLUDED.climate, daily_goal = EXCLUDED.daily_goal,
		daily_intake = EXCLUDED.daily_intake, last_reset_date = EXCLUDED.last_reset_date,
		is_completed = EXCLUDED.is_completed, cup_size = EXCLUDED.cup_size, updated_at = NOW();`,
		p.UserID, p.Name, p.Gender, p.Height, p.Weight, p.Age, p.WakeUpTime, p.BedTime,
		p.ActivityLevel, p.Climate, p.DailyGoal, p.DailyIntake, p.LastResetDate, p.IsCompleted, p.CupSize,
	)
	if err != nil {
		return remoteError("upserting profile", err)
	}
	return nil
}

func (pr *ProfilesRepository) GetProfile(ctx context.Context, userID string) (*entity.Profile, error) {
	if err := authorize(pr.identities, userID); err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	p := entity.Profile{UserID: userID}
	row := pr.conn.QueryRow(ctx, `SELECT name, gender, height, weight, age, wake_up_time, bed_time, activity_level,
		climate, daily_goal, daily_intake, last_reset_date, is_completed, cup_size FROM profiles WHERE user_id = $1;`, userID)
	err := row.Scan(&p.Name, &p.Gender, &p.Height, &p.Weight, &p.Age, &p.WakeUpTime, &p.BedTime, &p.ActivityLevel,
		&p.Climate, &p.DailyGoal, &p.DailyIntake, &p.LastResetDate, &p.IsCompleted, &p.CupSize)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorvalues.ErrProfileNotFound
		}
		return nil, remoteError("getting profile", err)
	}
	return &p, nil
}

func (pr *ProfilesRepository) DeleteProfile(ctx context.Context, userID string) error {
	if err := authorize(pr.identities, userID); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	ct, err := pr.conn.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1;`, userID)
	if err != nil {
		return remoteError("deleting profile", err)
	}
	if ct.RowsAffected() == 0 {
		return errorvalues.ErrProfileNotFound
	}
	return nil
}
