// Package localstore keeps the device copy of the profile, the drink log stream and the sync
// flags in a single SQLite file.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/limbo/hydrosync/pkg/entity"
)

type Flag string

const (
	FlagIsRegistered      Flag = "flag:is_registered"
	FlagPendingSync       Flag = "flag:pending_sync"
	FlagHasSeenOnboarding Flag = "flag:has_seen_onboarding"
)

const (
	keyProfile          = "profile"
	keyLogs             = "logs"
	keyLocalUserID      = "local_user_id"
	keyGoalNotifiedDate = "goal_notified_date"
	keyPendingDeletes   = "pending_deletes"
)

type Store struct {
	path   string
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	// guards read-modify-write sequences on the log list
	mu sync.Mutex
}

func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With(slog.String("component", "localstore")),
		now:    time.Now,
	}
}

// Init creates the database file and its table if needed.
func (s *Store) Init() error {
	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		db.Close()
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) GetProfile() *entity.Profile {
	var p entity.Profile
	if !s.getJSON(keyProfile, &p) {
		return nil
	}
	if p.UserID == "" {
		s.logger.Warn("stored profile has no user id, ignoring it")
		return nil
	}
	return &p
}

func (s *Store) SaveProfile(p entity.Profile) error {
	return s.putJSON(keyProfile, p)
}

// AppendLog stores a new log under a fresh local surrogate id. Any id on the input is ignored.
func (s *Store) AppendLog(l entity.DrinkLog) (entity.DrinkLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = entity.NewLocalLogID(s.now())
	logs := s.readLogs()
	logs = append(logs, l)
	if err := s.putJSON(keyLogs, logs); err != nil {
		return entity.DrinkLog{}, err
	}
	return l, nil
}

// GetAllLogs returns logs in insertion order.
func (s *Store) GetAllLogs() []entity.DrinkLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLogs()
}

func (s *Store) ReplaceAllLogs(logs []entity.DrinkLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logs == nil {
		logs = []entity.DrinkLog{}
	}
	return s.putJSON(keyLogs, logs)
}

// ReplaceLogID swaps a local surrogate id for the id the remote store assigned.
func (s *Store) ReplaceLogID(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.readLogs()
	i := slices.IndexFunc(logs, func(l entity.DrinkLog) bool { return l.ID == oldID })
	if i < 0 {
		return nil
	}
	logs[i].ID = newID
	return s.putJSON(keyLogs, logs)
}

// DeleteLog removes the log with id. Unknown ids are a no-op.
func (s *Store) DeleteLog(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.readLogs()
	kept := slices.DeleteFunc(logs, func(l entity.DrinkLog) bool { return l.ID == id })
	return s.putJSON(keyLogs, kept)
}

// ClearAll wipes every key except the device identity.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key <> ?;`, keyLocalUserID); err != nil {
		return fmt.Errorf("failed to clear local store: %w", err)
	}
	return nil
}

func (s *Store) GetFlags() entity.SyncFlags {
	return entity.SyncFlags{
		IsRegistered:      s.getFlag(FlagIsRegistered),
		PendingSync:       s.getFlag(FlagPendingSync),
		HasSeenOnboarding: s.getFlag(FlagHasSeenOnboarding),
	}
}

func (s *Store) SetFlag(flag Flag, value bool) error {
	v := "false"
	if value {
		v = "true"
	}
	return s.put(string(flag), v)
}

// LocalUserID returns the device identity, creating it on first use.
func (s *Store) LocalUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uid, ok := s.get(keyLocalUserID); ok && uid != "" {
		return uid
	}
	uid := entity.NewLocalUserID()
	if err := s.put(keyLocalUserID, uid); err != nil {
		s.logger.Error("persisting device identity failed", slog.String("error", err.Error()))
	}
	return uid
}

func (s *Store) GoalNotifiedDate() string {
	date, _ := s.get(keyGoalNotifiedDate)
	return date
}

func (s *Store) SetGoalNotifiedDate(date string) error {
	return s.put(keyGoalNotifiedDate, date)
}

// PendingDeletes returns the remote deletions still owed, oldest first.
func (s *Store) PendingDeletes() []entity.PendingDelete {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readPendingDeletes()
}

// AddPendingDelete records a deletion to replay. Recording the same log twice is a no-op.
func (s *Store) AddPendingDelete(d entity.PendingDelete) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.readPendingDeletes()
	if slices.ContainsFunc(pending, func(p entity.PendingDelete) bool { return p.LogID == d.LogID }) {
		return nil
	}
	return s.putJSON(keyPendingDeletes, append(pending, d))
}

func (s *Store) RemovePendingDelete(logID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := slices.DeleteFunc(s.readPendingDeletes(), func(p entity.PendingDelete) bool { return p.LogID == logID })
	return s.putJSON(keyPendingDeletes, pending)
}

func (s *Store) readPendingDeletes() []entity.PendingDelete {
	var pending []entity.PendingDelete
	if !s.getJSON(keyPendingDeletes, &pending) {
		return []entity.PendingDelete{}
	}
	return pending
}

func (s *Store) readLogs() []entity.DrinkLog {
	var logs []entity.DrinkLog
	if !s.getJSON(keyLogs, &logs) {
		return []entity.DrinkLog{}
	}
	return logs
}

func (s *Store) getFlag(flag Flag) bool {
	v, _ := s.get(string(flag))
	return v == "true"
}

func (s *Store) getJSON(key string, dst any) bool {
	raw, ok := s.get(key)
	if !ok {
		return false
	}
	if err := sonic.ConfigStd.UnmarshalFromString(raw, dst); err != nil {
		s.logger.Warn("corrupted value treated as absent", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *Store) putJSON(key string, v any) error {
	raw, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.put(key, raw)
}

func (s *Store) get(key string) (string, bool) {
	if s.db == nil {
		s.logger.Error("read before Init", slog.String("key", key))
		return "", false
	}
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?;`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("reading local value failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return "", false
	}
	return value, true
}

func (s *Store) put(key, value string) error {
	if s.db == nil {
		return errors.New("local store is not initialized")
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?);`, key, value); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
