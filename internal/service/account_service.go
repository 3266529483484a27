package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/internal/localstore"
	"github.com/limbo/hydrosync/pkg/entity"
)

// AccountService runs the account operations that need a fresh password check.
type AccountService struct {
	hs *HydrationService
}

func NewAccountService(hs *HydrationService) *AccountService {
	if hs == nil {
		log.Fatal("provided nil hydration service")
	}
	return &AccountService{
		hs: hs,
	}
}

func (as *AccountService) ChangePassword(ctx context.Context, current, newPassword string) error {
	identity, ok := as.hs.auth.Current()
	if !ok {
		return errorvalues.ErrNotSignedIn
	}
	refreshed, err := as.hs.auth.Reauthenticate(ctx, identity, current)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if err = as.hs.auth.ChangePassword(ctx, refreshed, newPassword); err != nil {
		return fmt.Errorf("changing password: %w", err)
	}
	return nil
}

// DeleteAccount removes the remote logs, the remote profile and the identity, in that order,
// stopping at the first failure. The local log cache is left for ClearLocalData, but nothing
// of the deleted account is owed to the remote store any more.
func (as *AccountService) DeleteAccount(ctx context.Context, password string) error {
	hs := as.hs
	hs.syncMu.Lock()
	defer hs.syncMu.Unlock()
	identity, ok := hs.auth.Current()
	if !ok {
		return errorvalues.ErrNotSignedIn
	}
	refreshed, err := hs.auth.Reauthenticate(ctx, identity, password)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	uid := refreshed.UserID
	if err = hs.remote.DeleteAllLogsForUser(ctx, uid); err != nil {
		hs.metrics.RecordRemoteFailure("delete_logs", err)
		return fmt.Errorf("deleting remote logs: %w", err)
	}
	err = hs.remote.DeleteProfile(ctx, uid)
	if err != nil && !errors.Is(err, errorvalues.ErrProfileNotFound) {
		hs.metrics.RecordRemoteFailure("delete_profile", err)
		return fmt.Errorf("deleting remote profile: %w", err)
	}
	if err = hs.auth.DeleteIdentity(ctx, refreshed); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	hs.logger.Info("account deleted", slog.String("user_id", uid))
	for _, d := range hs.local.PendingDeletes() {
		if d.UserID != uid {
			continue
		}
		if err := hs.local.RemovePendingDelete(d.LogID); err != nil {
			hs.logger.Warn("dropping queued delete", slog.String("error", err.Error()))
		}
	}
	return hs.resetToDevice(uid)
}

// ClearLocalData wipes the device copy and starts over with a default profile.
// The device identity survives.
func (as *AccountService) ClearLocalData(ctx context.Context) error {
	hs := as.hs
	hs.syncMu.Lock()
	defer hs.syncMu.Unlock()
	if err := hs.local.ClearAll(); err != nil {
		return fmt.Errorf("clearing local data: %w", err)
	}
	owner := hs.owner()
	p := entity.DefaultProfile(owner, hs.today())
	if err := hs.saveProfile(p); err != nil {
		return err
	}
	if _, ok := hs.syncedIdentity(); ok {
		if err := hs.local.SetFlag(localstore.FlagIsRegistered, true); err != nil {
			return fmt.Errorf("saving registered flag: %w", err)
		}
	}
	hs.metrics.SetPendingSync(false)
	hs.notifier.ProfileChanged(p)
	hs.publish()
	return nil
}
