package entity_test

import (
	"testing"
	"time"

	"github.com/limbo/hydrosync/pkg/entity"
	"github.com/stretchr/testify/assert"
)

func TestSortDrinkLogs(t *testing.T) {
	logs := []entity.DrinkLog{
		{ID: "a", Date: "2024-01-01", Time: "08:00:00", CreatedAt: 1},
		{ID: "b", Date: "2024-01-02", Time: "07:00:00", CreatedAt: 2},
		{ID: "c", Date: "2024-01-02", Time: "09:00:00", CreatedAt: 3},
		{ID: "d", Date: "2024-01-02", Time: "09:00:00", CreatedAt: 4},
	}
	entity.SortDrinkLogs(logs)
	ids := make([]string, 0, len(logs))
	for _, l := range logs {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)
}

func TestFingerprintIgnoresIdentity(t *testing.T) {
	a := entity.DrinkLog{ID: "local_1_x", UserID: "device_1", Date: "2024-01-01", Time: "08:00:00", Volume: 200, DrinkType: "water", CreatedAt: 10}
	b := entity.DrinkLog{ID: "5f0c", UserID: "u1", Date: "2024-01-01", Time: "08:00:00", Volume: 200, DrinkType: "water", CreatedAt: 99}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.Volume = 250
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestLocalIDs(t *testing.T) {
	id := entity.NewLocalLogID(time.UnixMilli(1700000000000))
	assert.True(t, entity.IsLocalID(id))
	assert.Contains(t, id, "1700000000000")
	assert.False(t, entity.IsLocalID("0b7d4f5e-8f9a-4c2b-9d1e-2f3a4b5c6d7e"))

	uid := entity.NewLocalUserID()
	assert.True(t, entity.IsLocalUserID(uid))
	assert.NotEqual(t, uid, entity.NewLocalUserID())
}

func TestDefaultProfile(t *testing.T) {
	p := entity.DefaultProfile("device_1", "2024-01-01")
	assert.Equal(t, entity.DefaultDailyGoal, p.DailyGoal)
	assert.Equal(t, entity.DefaultCupSize, p.CupSize)
	assert.Equal(t, "2024-01-01", p.LastResetDate)
	assert.Zero(t, p.DailyIntake)
	assert.False(t, p.IsCompleted)
}
