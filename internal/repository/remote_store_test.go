package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/internal/repository"
	"github.com/limbo/hydrosync/pkg/entity"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticIdentity struct {
	uid string
}

func (s *staticIdentity) CurrentUserID() (string, bool) {
	return s.uid, s.uid != ""
}

const (
	testUID = "6a1f6c1e-2b7a-4c55-9a55-2f0e0e4b1c11"
	testLog = "0b7d4f5e-8f9a-4c2b-9d1e-2f3a4b5c6d7e"
)

var testProfile = entity.Profile{
	UserID:        testUID,
	Name:          "Ann",
	Gender:        "female",
	Height:        170,
	Weight:        60,
	Age:           30,
	WakeUpTime:    "07:00",
	BedTime:       "23:00",
	ActivityLevel: "moderate",
	Climate:       "temperate",
	DailyGoal:     2000,
	DailyIntake:   600,
	LastResetDate: "2024-01-02",
	IsCompleted:   true,
	CupSize:       250,
}

var profileColumns = []string{"name", "gender", "height", "weight", "age", "wake_up_time", "bed_time", "activity_level",
	"climate", "daily_goal", "daily_intake", "last_reset_date", "is_completed", "cup_size"}

func profileArgs(p entity.Profile) []any {
	return []any{p.UserID, p.Name, p.Gender, p.Height, p.Weight, p.Age, p.WakeUpTime, p.BedTime,
		p.ActivityLevel, p.Climate, p.DailyGoal, p.DailyIntake, p.LastResetDate, p.IsCompleted, p.CupSize}
}

func newMockStore(t *testing.T, uid string) (pgxmock.PgxPoolIface, *repository.RemoteStore, *staticIdentity) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	ids := &staticIdentity{uid: uid}
	return mock, repository.NewRemoteStore(mock, ids), ids
}

func TestUpsertProfile(t *testing.T) {
	mock, store, ids := newMockStore(t, testUID)
	ctx := context.Background()
	query := regexp.QuoteMeta(`INSERT INTO profiles`)
	t.Run("upserted", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(profileArgs(testProfile)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		assert.NoError(t, store.UpsertProfile(ctx, testProfile))
	})
	t.Run("row level security denied", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(profileArgs(testProfile)...).WillReturnError(&pgconn.PgError{Code: "42501"})
		err := store.UpsertProfile(ctx, testProfile)
		assert.ErrorIs(t, err, errorvalues.ErrPermission)
	})
	t.Run("db error is transient", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(profileArgs(testProfile)...).WillReturnError(errors.New("connection reset"))
		err := store.UpsertProfile(ctx, testProfile)
		assert.ErrorIs(t, err, errorvalues.ErrTransient)
		assert.Contains(t, err.Error(), "connection reset")
	})
	t.Run("other identity is denied without query", func(t *testing.T) {
		other := testProfile
		other.UserID = "someone-else"
		assert.ErrorIs(t, store.UpsertProfile(ctx, other), errorvalues.ErrPermission)
	})
	t.Run("signed out is denied without query", func(t *testing.T) {
		ids.uid = ""
		defer func() { ids.uid = testUID }()
		assert.ErrorIs(t, store.UpsertProfile(ctx, testProfile), errorvalues.ErrPermission)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile(t *testing.T) {
	mock, store, _ := newMockStore(t, testUID)
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM profiles WHERE user_id = $1;`)
	p := testProfile
	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(testUID).
			WillReturnRows(pgxmock.NewRows(profileColumns).AddRow(p.Name, p.Gender, p.Height, p.Weight, p.Age, p.WakeUpTime,
				p.BedTime, p.ActivityLevel, p.Climate, p.DailyGoal, p.DailyIntake, p.LastResetDate, p.IsCompleted, p.CupSize))
		result, err := store.GetProfile(ctx, testUID)
		require.NoError(t, err)
		assert.Equal(t, p, *result)
	})
	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(testUID).WillReturnError(pgx.ErrNoRows)
		_, err := store.GetProfile(ctx, testUID)
		assert.ErrorIs(t, err, errorvalues.ErrProfileNotFound)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(testUID).WillReturnError(errors.New("timeout"))
		_, err := store.GetProfile(ctx, testUID)
		assert.ErrorIs(t, err, errorvalues.ErrTransient)
	})
	t.Run("foreign profile", func(t *testing.T) {
		_, err := store.GetProfile(ctx, "someone-else")
		assert.ErrorIs(t, err, errorvalues.ErrPermission)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProfile(t *testing.T) {
	mock, store, _ := newMockStore(t, testUID)
	ctx := context.Background()
	query := regexp.QuoteMeta(`DELETE FROM profiles WHERE user_id = $1;`)
	t.Run("deleted", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(testUID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		assert.NoError(t, store.DeleteProfile(ctx, testUID))
	})
	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(testUID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.ErrorIs(t, store.DeleteProfile(ctx, testUID), errorvalues.ErrProfileNotFound)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLog(t *testing.T) {
	mock, store, _ := newMockStore(t, testUID)
	ctx := context.Background()
	query := regexp.QuoteMeta(`INSERT INTO drink_logs`)
	in := entity.DrinkLog{
		ID:           "local_1700000000000_abcd1234",
		UserID:       "device_1",
		Date:         "2024-01-01",
		Time:         "08:00:00",
		Volume:       200,
		DrinkType:    "water",
		DefaultCupID: "cup-250",
		CreatedAt:    1700000000000,
	}
	args := []any{testUID, in.Date, in.Time, in.Volume, in.DrinkType, in.DefaultCupID, in.CreatedAt}
	t.Run("store assigns id and owner", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(args...).WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(testLog))
		out, err := store.AppendLog(ctx, testUID, in)
		require.NoError(t, err)
		assert.Equal(t, testLog, out.ID)
		assert.Equal(t, testUID, out.UserID)
		assert.Equal(t, in.Fingerprint(), out.Fingerprint())
	})
	t.Run("check violation", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(args...).WillReturnError(&pgconn.PgError{Code: "23514", Message: "volume_positive"})
		_, err := store.AppendLog(ctx, testUID, in)
		assert.ErrorIs(t, err, errorvalues.ErrInvalidLog)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(args...).WillReturnError(errors.New("network is unreachable"))
		_, err := store.AppendLog(ctx, testUID, in)
		assert.ErrorIs(t, err, errorvalues.ErrTransient)
	})
	t.Run("non positive volume rejected locally", func(t *testing.T) {
		bad := in
		bad.Volume = 0
		_, err := store.AppendLog(ctx, testUID, bad)
		assert.ErrorIs(t, err, errorvalues.ErrInvalidLog)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryLogs(t *testing.T) {
	mock, store, _ := newMockStore(t, testUID)
	ctx := context.Background()
	columns := []string{"id", "user_id", "log_date", "log_time", "volume", "drink_type", "default_cup_id", "created_at"}
	t.Run("all dates", func(t *testing.T) {
		rows := pgxmock.NewRows(columns).
			AddRow(testLog, testUID, "2024-01-01", "08:00:00", 200, "water", "", int64(1)).
			AddRow("1c9e6f0a-3b2d-4e5f-8a7b-6c5d4e3f2a1b", testUID, "2024-01-02", "09:00:00", 300, "tea", "cup-1", int64(2))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM drink_logs WHERE user_id = $1 ORDER BY created_at;`)).
			WithArgs(testUID).
			WillReturnRows(rows)
		logs, err := store.QueryLogs(ctx, testUID, "")
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, entity.DrinkLog{ID: testLog, UserID: testUID, Date: "2024-01-01", Time: "08:00:00", Volume: 200, DrinkType: "water", CreatedAt: 1}, logs[0])
		assert.Equal(t, "cup-1", logs[1].DefaultCupID)
	})
	t.Run("single date", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM drink_logs WHERE user_id = $1 AND log_date = $2 ORDER BY created_at;`)).
			WithArgs(testUID, "2024-01-02").
			WillReturnRows(pgxmock.NewRows(columns))
		logs, err := store.QueryLogs(ctx, testUID, "2024-01-02")
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM drink_logs`)).WithArgs(testUID).WillReturnError(errors.New("db error"))
		_, err := store.QueryLogs(ctx, testUID, "")
		assert.ErrorIs(t, err, errorvalues.ErrTransient)
	})
	t.Run("foreign logs", func(t *testing.T) {
		_, err := store.QueryLogs(ctx, "someone-else", "")
		assert.ErrorIs(t, err, errorvalues.ErrPermission)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLog(t *testing.T) {
	mock, store, ids := newMockStore(t, testUID)
	ctx := context.Background()
	query := regexp.QuoteMeta(`DELETE FROM drink_logs WHERE id = $1 AND user_id = $2;`)
	t.Run("deleted", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(testLog, testUID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		assert.NoError(t, store.DeleteLog(ctx, testLog))
	})
	t.Run("not owned or missing", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(testLog, testUID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.ErrorIs(t, store.DeleteLog(ctx, testLog), errorvalues.ErrLogNotFound)
	})
	t.Run("local surrogate id never reaches the store", func(t *testing.T) {
		assert.ErrorIs(t, store.DeleteLog(ctx, "local_1_abc"), errorvalues.ErrLogNotFound)
	})
	t.Run("signed out", func(t *testing.T) {
		ids.uid = ""
		defer func() { ids.uid = testUID }()
		assert.ErrorIs(t, store.DeleteLog(ctx, testLog), errorvalues.ErrPermission)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAllLogsForUser(t *testing.T) {
	mock, store, _ := newMockStore(t, testUID)
	ctx := context.Background()
	query := regexp.QuoteMeta(`DELETE FROM drink_logs WHERE user_id = $1;`)
	t.Run("deleted", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(testUID).WillReturnResult(pgxmock.NewResult("DELETE", 5))
		assert.NoError(t, store.DeleteAllLogsForUser(ctx, testUID))
	})
	t.Run("nothing to delete is fine", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(testUID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.NoError(t, store.DeleteAllLogsForUser(ctx, testUID))
	})
	t.Run("db error", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(testUID).WillReturnError(errors.New("db error"))
		assert.ErrorIs(t, store.DeleteAllLogsForUser(ctx, testUID), errorvalues.ErrTransient)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
