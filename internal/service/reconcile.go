package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/internal/localstore"
	"github.com/limbo/hydrosync/pkg/entity"
)

// SignIn authenticates and merges the device copy with the remote data of the account.
// Once the identity is established the service stays synchronized even if the merge fails;
// the data is then marked pending sync and the error is returned.
func (hs *HydrationService) SignIn(ctx context.Context, email, password string) error {
	hs.syncMu.Lock()
	defer hs.syncMu.Unlock()
	previous := hs.enterAuthenticating()
	identity, err := hs.auth.SignIn(ctx, email, password)
	if err != nil {
		hs.restoreState(previous)
		return err
	}
	return hs.reconcileSignIn(ctx, identity, "sign_in")
}

// SignUp creates the account and seeds it with the device copy.
func (hs *HydrationService) SignUp(ctx context.Context, email, password string) error {
	hs.syncMu.Lock()
	defer hs.syncMu.Unlock()
	previous := hs.enterAuthenticating()
	identity, err := hs.auth.SignUp(ctx, email, password)
	if err != nil {
		hs.restoreState(previous)
		return err
	}
	return hs.reconcileSignUp(ctx, identity)
}

// SignOut ends the session and starts over with a default profile for this device.
// Cached logs stay on disk but are no longer visible. Logs the account never got to upload
// keep PendingSync set until that account signs in again.
func (hs *HydrationService) SignOut(ctx context.Context) error {
	hs.syncMu.Lock()
	defer hs.syncMu.Unlock()
	if err := hs.auth.SignOut(ctx); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return hs.resetToDevice("")
}

// SyncToCloud pushes everything the remote store is missing and refreshes the mirror.
func (hs *HydrationService) SyncToCloud(ctx context.Context) error {
	hs.syncMu.Lock()
	defer hs.syncMu.Unlock()
	identity, ok := hs.syncedIdentity()
	if !ok {
		return errorvalues.ErrNotSignedIn
	}
	start := hs.now()
	err := hs.syncToCloud(ctx, identity)
	hs.metrics.RecordReconciliation("sync", hs.now().Sub(start), err)
	if err != nil {
		hs.setPendingSync(true)
		return err
	}
	return nil
}

func (hs *HydrationService) syncToCloud(ctx context.Context, identity entity.Identity) error {
	p, ok := hs.Profile()
	if !ok {
		hs.logger.Error("syncing without a profile")
		return errorvalues.ErrNoProfile
	}
	logs, err := hs.mergeLogs(ctx, identity.UserID)
	if err != nil {
		return err
	}
	p.UserID = identity.UserID
	p.DailyIntake = DailyIntakeFor(logs, p.LastResetDate)
	if err := hs.remote.UpsertProfile(ctx, p); err != nil {
		hs.metrics.RecordRemoteFailure("upsert_profile", err)
		return fmt.Errorf("syncing profile: %w", err)
	}
	if err := hs.saveProfile(p); err != nil {
		return err
	}
	hs.setPendingSync(false)
	hs.checkGoal(p)
	hs.publish()
	return nil
}

// reconcileSignIn runs with syncMu held.
func (hs *HydrationService) reconcileSignIn(ctx context.Context, identity entity.Identity, transition string) error {
	start := hs.now()
	err := hs.mergeSignIn(ctx, identity)
	hs.metrics.RecordReconciliation(transition, hs.now().Sub(start), err)
	if err != nil {
		hs.failReconcile(identity, err)
		return err
	}
	return nil
}

func (hs *HydrationService) mergeSignIn(ctx context.Context, identity entity.Identity) error {
	today := hs.today()
	uid := identity.UserID
	var local *entity.Profile
	if p, ok := hs.Profile(); ok {
		local = &p
	}
	hs.establish(identity)

	var merged entity.Profile
	remote, err := hs.remote.GetProfile(ctx, uid)
	switch {
	case err == nil:
		merged = mergeProfiles(local, *remote, uid, today)
	case errors.Is(err, errorvalues.ErrProfileNotFound):
		if local != nil {
			merged = *local
		} else {
			merged = entity.DefaultProfile(uid, today)
		}
		merged.UserID = uid
		merged = ReconcileDailyCycle(merged, today)
		if err := hs.remote.UpsertProfile(ctx, merged); err != nil {
			hs.metrics.RecordRemoteFailure("upsert_profile", err)
			return fmt.Errorf("seeding remote profile: %w", err)
		}
	default:
		hs.metrics.RecordRemoteFailure("get_profile", err)
		return fmt.Errorf("fetching remote profile: %w", err)
	}

	logs, err := hs.mergeLogs(ctx, uid)
	if err != nil {
		return err
	}
	return hs.finishReconcile(ctx, merged, logs)
}

// reconcileSignUp runs with syncMu held. A new account has nothing remote, so nothing is fetched.
func (hs *HydrationService) reconcileSignUp(ctx context.Context, identity entity.Identity) error {
	start := hs.now()
	err := hs.mergeSignUp(ctx, identity)
	hs.metrics.RecordReconciliation("sign_up", hs.now().Sub(start), err)
	if err != nil {
		hs.failReconcile(identity, err)
		return err
	}
	return nil
}

func (hs *HydrationService) mergeSignUp(ctx context.Context, identity entity.Identity) error {
	today := hs.today()
	uid := identity.UserID
	p, ok := hs.Profile()
	if !ok {
		p = entity.DefaultProfile(uid, today)
	}
	hs.establish(identity)
	p.UserID = uid
	p = ReconcileDailyCycle(p, today)
	if err := hs.remote.UpsertProfile(ctx, p); err != nil {
		hs.metrics.RecordRemoteFailure("upsert_profile", err)
		return fmt.Errorf("creating remote profile: %w", err)
	}

	snapshot := hs.local.GetAllLogs()
	mirror := make([]entity.DrinkLog, 0, len(snapshot))
	for _, l := range snapshot {
		if !hs.eligible(l, uid) {
			continue
		}
		uploaded, err := hs.remote.AppendLog(ctx, uid, l)
		if err != nil {
			hs.metrics.RecordRemoteFailure("append_log", err)
			return fmt.Errorf("uploading log %s: %w", l.Fingerprint(), err)
		}
		hs.metrics.RecordUploads(1)
		mirror = append(mirror, uploaded)
	}
	if err := hs.replaceMirror(uid, snapshot, mirror); err != nil {
		return err
	}
	return hs.finishReconcile(ctx, p, mirror)
}

// finishReconcile recomputes today's intake from the merged logs and stores the profile on both sides.
func (hs *HydrationService) finishReconcile(ctx context.Context, p entity.Profile, logs []entity.DrinkLog) error {
	p = ReconcileDailyCycle(p, hs.today())
	p.DailyIntake = DailyIntakeFor(logs, p.LastResetDate)
	if err := hs.saveProfile(p); err != nil {
		return err
	}
	if err := hs.remote.UpsertProfile(ctx, p); err != nil {
		hs.metrics.RecordRemoteFailure("upsert_profile", err)
		return fmt.Errorf("storing merged profile: %w", err)
	}
	if err := hs.local.SetFlag(localstore.FlagIsRegistered, true); err != nil {
		return fmt.Errorf("saving registered flag: %w", err)
	}
	hs.setPendingSync(false)
	hs.notifier.ProfileChanged(p)
	hs.checkGoal(p)
	hs.publish()
	return nil
}

// mergeLogs uploads the local logs the remote store is missing, then makes the remote set
// the local mirror. It returns the new mirror.
func (hs *HydrationService) mergeLogs(ctx context.Context, uid string) ([]entity.DrinkLog, error) {
	if err := hs.replayDeletes(ctx, uid); err != nil {
		return nil, err
	}
	remoteLogs, err := hs.remote.QueryLogs(ctx, uid, "")
	if err != nil {
		hs.metrics.RecordRemoteFailure("query_logs", err)
		return nil, fmt.Errorf("fetching remote logs: %w", err)
	}
	seen := make(map[entity.Fingerprint]struct{}, len(remoteLogs))
	known := make(map[string]struct{}, len(remoteLogs))
	for _, l := range remoteLogs {
		seen[l.Fingerprint()] = struct{}{}
		known[l.ID] = struct{}{}
	}

	snapshot := hs.local.GetAllLogs()
	uploads := 0
	for _, l := range snapshot {
		if !hs.eligible(l, uid) {
			continue
		}
		if _, ok := seen[l.Fingerprint()]; ok {
			continue
		}
		if _, ok := known[l.ID]; ok && !entity.IsLocalID(l.ID) {
			continue
		}
		// uploaded fingerprints are not added to seen: two equal local drinks are two drinks
		if _, err := hs.remote.AppendLog(ctx, uid, l); err != nil {
			hs.metrics.RecordRemoteFailure("append_log", err)
			return nil, fmt.Errorf("uploading log %s: %w", l.Fingerprint(), err)
		}
		uploads++
	}
	hs.metrics.RecordUploads(uploads)
	if uploads > 0 {
		hs.logger.Info("uploaded local logs", slog.Int("count", uploads), slog.String("user_id", uid))
	}

	mirror, err := hs.remote.QueryLogs(ctx, uid, "")
	if err != nil {
		hs.metrics.RecordRemoteFailure("query_logs", err)
		return nil, fmt.Errorf("refetching remote logs: %w", err)
	}
	if err := hs.replaceMirror(uid, snapshot, mirror); err != nil {
		return nil, err
	}
	return mirror, nil
}

// replayDeletes applies the queued remote deletions of uid. A log the remote store no longer
// has counts as deleted.
func (hs *HydrationService) replayDeletes(ctx context.Context, uid string) error {
	for _, d := range hs.local.PendingDeletes() {
		if d.UserID != uid {
			continue
		}
		err := hs.remote.DeleteLog(ctx, d.LogID)
		if err != nil && !errors.Is(err, errorvalues.ErrLogNotFound) {
			hs.metrics.RecordRemoteFailure("delete_log", err)
			return fmt.Errorf("replaying delete of %s: %w", d.LogID, err)
		}
		if err := hs.local.RemovePendingDelete(d.LogID); err != nil {
			return fmt.Errorf("dequeueing delete of %s: %w", d.LogID, err)
		}
	}
	return nil
}

// replaceMirror stores mirror as the local log set for uid. Local-id logs survive when they
// were written after snapshot was taken (a concurrent AddLog) or belong to another account
// that hasn't uploaded them yet.
func (hs *HydrationService) replaceMirror(uid string, snapshot, mirror []entity.DrinkLog) error {
	taken := make(map[string]struct{}, len(snapshot))
	for _, l := range snapshot {
		taken[l.ID] = struct{}{}
	}
	logs := make([]entity.DrinkLog, 0, len(mirror))
	logs = append(logs, mirror...)
	for _, l := range hs.local.GetAllLogs() {
		if !entity.IsLocalID(l.ID) {
			continue
		}
		if _, ok := taken[l.ID]; !ok || !hs.eligible(l, uid) {
			logs = append(logs, l)
		}
	}
	if err := hs.local.ReplaceAllLogs(logs); err != nil {
		return fmt.Errorf("replacing local logs: %w", err)
	}
	return nil
}

// eligible reports whether a local log may be uploaded for uid: it belongs to uid already or
// was written anonymously on this device.
func (hs *HydrationService) eligible(l entity.DrinkLog, uid string) bool {
	return l.UserID == uid || l.UserID == hs.local.LocalUserID()
}

// mergeProfiles combines the device profile with the remote one. Remote settings win; the
// local intake wins only when it belongs to today.
func mergeProfiles(local *entity.Profile, remote entity.Profile, uid, today string) entity.Profile {
	merged := remote
	merged.UserID = uid
	if local != nil && local.LastResetDate == today {
		merged.DailyIntake = local.DailyIntake
		merged.LastResetDate = today
	}
	return merged
}

func (hs *HydrationService) establish(identity entity.Identity) {
	hs.mu.Lock()
	hs.session = &identity
	hs.state = StateSynchronized
	hs.mu.Unlock()
}

// failReconcile keeps the session but leaves the data for a later SyncToCloud.
func (hs *HydrationService) failReconcile(identity entity.Identity, err error) {
	hs.logger.Warn("reconciliation failed, data pending sync",
		slog.String("user_id", identity.UserID), slog.String("error", err.Error()))
	if p, ok := hs.Profile(); ok && p.UserID != identity.UserID {
		p.UserID = identity.UserID
		if saveErr := hs.saveProfile(p); saveErr != nil {
			hs.logger.Error("saving profile", slog.String("error", saveErr.Error()))
		}
	}
	if flagErr := hs.local.SetFlag(localstore.FlagIsRegistered, true); flagErr != nil {
		hs.logger.Warn("saving registered flag", slog.String("error", flagErr.Error()))
	}
	hs.setPendingSync(true)
	if p, ok := hs.Profile(); ok {
		hs.notifier.ProfileChanged(p)
	}
	hs.publish()
}

// resetToDevice applies sign-out semantics to the local copy. PendingSync stays set while
// some account other than skip still owes a sync.
func (hs *HydrationService) resetToDevice(skip string) error {
	hs.mu.Lock()
	hs.session = nil
	hs.state = StateAnonymous
	hs.mu.Unlock()
	p := entity.DefaultProfile(hs.local.LocalUserID(), hs.today())
	if err := hs.saveProfile(p); err != nil {
		return err
	}
	if err := hs.local.SetFlag(localstore.FlagIsRegistered, false); err != nil {
		return fmt.Errorf("saving registered flag: %w", err)
	}
	hs.setPendingSync(hs.owesSync(skip))
	hs.notifier.ProfileChanged(p)
	hs.publish()
	return nil
}

func (hs *HydrationService) enterAuthenticating() State {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	previous := hs.state
	hs.state = StateAuthenticating
	return previous
}

func (hs *HydrationService) restoreState(previous State) {
	hs.mu.Lock()
	hs.state = previous
	hs.mu.Unlock()
}
