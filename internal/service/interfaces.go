package service

import (
	"context"

	"github.com/limbo/hydrosync/internal/localstore"
	"github.com/limbo/hydrosync/internal/repository"
	"github.com/limbo/hydrosync/pkg/entity"
)

// LocalStore is the device copy. Reads never fail: damaged values come back as absent.
type LocalStore interface {
	GetProfile() *entity.Profile
	SaveProfile(p entity.Profile) error
	// Assigns a local surrogate id to the stored log
	AppendLog(l entity.DrinkLog) (entity.DrinkLog, error)
	GetAllLogs() []entity.DrinkLog
	ReplaceAllLogs(logs []entity.DrinkLog) error
	ReplaceLogID(oldID, newID string) error
	DeleteLog(id string) error
	ClearAll() error
	GetFlags() entity.SyncFlags
	SetFlag(flag localstore.Flag, value bool) error
	// Stable identity of this device, used as the owner of anonymous logs
	LocalUserID() string
	GoalNotifiedDate() string
	SetGoalNotifiedDate(date string) error
	// Remote deletions that failed and must be replayed
	PendingDeletes() []entity.PendingDelete
	AddPendingDelete(d entity.PendingDelete) error
	RemovePendingDelete(logID string) error
}

type RemoteStore interface {
	repository.ProfilesRepositoryI
	repository.DrinkLogsRepositoryI
}

type AuthProvider interface {
	SignIn(ctx context.Context, email, password string) (entity.Identity, error)
	SignUp(ctx context.Context, email, password string) (entity.Identity, error)
	SignOut(ctx context.Context) error
	// Verifies password again, returns identity with refreshed IssuedAt
	Reauthenticate(ctx context.Context, identity entity.Identity, password string) (entity.Identity, error)
	ChangePassword(ctx context.Context, identity entity.Identity, newPassword string) error
	DeleteIdentity(ctx context.Context, identity entity.Identity) error
	Current() (entity.Identity, bool)
	OnIdentityChanged(fn func(*entity.Identity)) func()
}

// Notifier is told about changes that affect reminders.
type Notifier interface {
	ProfileChanged(p entity.Profile)
	GoalAchieved(p entity.Profile)
}

type noopNotifier struct{}

func (noopNotifier) ProfileChanged(entity.Profile) {}
func (noopNotifier) GoalAchieved(entity.Profile)   {}
