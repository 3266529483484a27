package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/internal/localstore"
	"github.com/limbo/hydrosync/internal/metrics"
	"github.com/limbo/hydrosync/internal/service"
	"github.com/limbo/hydrosync/pkg/entity"
)

type mockState int

const (
	stateSuccess mockState = iota
	stateTransientError
	statePermissionError
	stateNetworkError
)

// remoteStoreMock is an in-memory remote store that authorizes calls against authMock like the
// real one does. failOn makes single operations fail with ErrTransient.
type remoteStoreMock struct {
	mu       sync.Mutex
	state    mockState
	failOn   map[string]bool
	auth     *authMock
	profiles map[string]entity.Profile
	logs     []entity.DrinkLog
	appends  int
}

func newRemoteStoreMock(auth *authMock) *remoteStoreMock {
	return &remoteStoreMock{
		failOn:   make(map[string]bool),
		auth:     auth,
		profiles: make(map[string]entity.Profile),
	}
}

func (m *remoteStoreMock) setState(state mockState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *remoteStoreMock) fail(op string, fail bool) {
	m.mu.Lock()
	m.failOn[op] = fail
	m.mu.Unlock()
}

// check must be called with m.mu held.
func (m *remoteStoreMock) check(op, uid string) error {
	switch {
	case m.state == statePermissionError:
		return fmt.Errorf("%s: %w", op, errorvalues.ErrPermission)
	case m.state == stateTransientError, m.failOn[op]:
		return fmt.Errorf("%s: %w", op, errorvalues.ErrTransient)
	}
	current, ok := m.auth.CurrentUserID()
	if !ok || current != uid {
		return fmt.Errorf("%s: %w", op, errorvalues.ErrPermission)
	}
	return nil
}

func (m *remoteStoreMock) UpsertProfile(ctx context.Context, p entity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("upsert_profile", p.UserID); err != nil {
		return err
	}
	m.profiles[p.UserID] = p
	return nil
}

func (m *remoteStoreMock) GetProfile(ctx context.Context, userID string) (*entity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get_profile", userID); err != nil {
		return nil, err
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, errorvalues.ErrProfileNotFound
	}
	return &p, nil
}

func (m *remoteStoreMock) DeleteProfile(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete_profile", userID); err != nil {
		return err
	}
	if _, ok := m.profiles[userID]; !ok {
		return errorvalues.ErrProfileNotFound
	}
	delete(m.profiles, userID)
	return nil
}

func (m *remoteStoreMock) AppendLog(ctx context.Context, userID string, l entity.DrinkLog) (entity.DrinkLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("append_log", userID); err != nil {
		return entity.DrinkLog{}, err
	}
	l.ID = uuid.NewString()
	l.UserID = userID
	m.logs = append(m.logs, l)
	m.appends++
	return l, nil
}

func (m *remoteStoreMock) QueryLogs(ctx context.Context, userID, date string) ([]entity.DrinkLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("query_logs", userID); err != nil {
		return nil, err
	}
	logs := make([]entity.DrinkLog, 0)
	for _, l := range m.logs {
		if l.UserID == userID && (date == "" || l.Date == date) {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

func (m *remoteStoreMock) DeleteLog(ctx context.Context, id string) error {
	uid, _ := m.auth.CurrentUserID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete_log", uid); err != nil {
		return err
	}
	for i, l := range m.logs {
		if l.ID == id && l.UserID == uid {
			m.logs = append(m.logs[:i], m.logs[i+1:]...)
			return nil
		}
	}
	return errorvalues.ErrLogNotFound
}

func (m *remoteStoreMock) DeleteAllLogsForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete_logs", userID); err != nil {
		return err
	}
	kept := m.logs[:0]
	for _, l := range m.logs {
		if l.UserID != userID {
			kept = append(kept, l)
		}
	}
	m.logs = kept
	return nil
}

func (m *remoteStoreMock) logsOf(uid string) []entity.DrinkLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	logs := make([]entity.DrinkLog, 0)
	for _, l := range m.logs {
		if l.UserID == uid {
			logs = append(logs, l)
		}
	}
	return logs
}

func (m *remoteStoreMock) seedLog(l entity.DrinkLog) entity.DrinkLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.NewString()
	m.logs = append(m.logs, l)
	return l
}

func (m *remoteStoreMock) profileOf(uid string) (entity.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	return p, ok
}

type mockAccount struct {
	uid      string
	password string
}

type authMock struct {
	mu        sync.Mutex
	state     mockState
	now       func() time.Time
	accounts  map[string]*mockAccount
	current   *entity.Identity
	listeners map[int]func(*entity.Identity)
	next      int
}

func newAuthMock(now func() time.Time) *authMock {
	return &authMock{
		now:       now,
		accounts:  make(map[string]*mockAccount),
		listeners: make(map[int]func(*entity.Identity)),
	}
}

func (a *authMock) addAccount(email, password string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid := uuid.NewString()
	a.accounts[email] = &mockAccount{uid: uid, password: password}
	return uid
}

func (a *authMock) SignIn(ctx context.Context, email, password string) (entity.Identity, error) {
	a.mu.Lock()
	if a.state == stateNetworkError {
		a.mu.Unlock()
		return entity.Identity{}, errorvalues.ErrNetwork
	}
	acc, ok := a.accounts[email]
	if !ok {
		a.mu.Unlock()
		return entity.Identity{}, errorvalues.ErrUserNotFound
	}
	if acc.password != password {
		a.mu.Unlock()
		return entity.Identity{}, errorvalues.ErrInvalidCredential
	}
	identity := entity.Identity{UserID: acc.uid, Email: email, IssuedAt: a.now()}
	a.current = &identity
	a.mu.Unlock()
	a.notify(&identity)
	return identity, nil
}

func (a *authMock) SignUp(ctx context.Context, email, password string) (entity.Identity, error) {
	a.mu.Lock()
	if a.state == stateNetworkError {
		a.mu.Unlock()
		return entity.Identity{}, errorvalues.ErrNetwork
	}
	if _, ok := a.accounts[email]; ok {
		a.mu.Unlock()
		return entity.Identity{}, errorvalues.ErrEmailInUse
	}
	if len(password) < 8 {
		a.mu.Unlock()
		return entity.Identity{}, errorvalues.ErrWeakPassword
	}
	acc := &mockAccount{uid: uuid.NewString(), password: password}
	a.accounts[email] = acc
	identity := entity.Identity{UserID: acc.uid, Email: email, IssuedAt: a.now()}
	a.current = &identity
	a.mu.Unlock()
	a.notify(&identity)
	return identity, nil
}

func (a *authMock) SignOut(ctx context.Context) error {
	a.drop()
	return nil
}

func (a *authMock) Reauthenticate(ctx context.Context, identity entity.Identity, password string) (entity.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || a.current.UserID != identity.UserID {
		return entity.Identity{}, errorvalues.ErrNotSignedIn
	}
	acc, ok := a.accounts[identity.Email]
	if !ok {
		return entity.Identity{}, errorvalues.ErrUserNotFound
	}
	if acc.password != password {
		return entity.Identity{}, errorvalues.ErrInvalidCredential
	}
	identity.IssuedAt = a.now()
	a.current = &identity
	return identity, nil
}

func (a *authMock) ChangePassword(ctx context.Context, identity entity.Identity, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(newPassword) < 8 {
		return errorvalues.ErrWeakPassword
	}
	acc, ok := a.accounts[identity.Email]
	if !ok {
		return errorvalues.ErrUserNotFound
	}
	acc.password = newPassword
	return nil
}

func (a *authMock) DeleteIdentity(ctx context.Context, identity entity.Identity) error {
	a.mu.Lock()
	if a.state == stateNetworkError {
		a.mu.Unlock()
		return errorvalues.ErrNetwork
	}
	delete(a.accounts, identity.Email)
	a.mu.Unlock()
	a.drop()
	return nil
}

func (a *authMock) Current() (entity.Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return entity.Identity{}, false
	}
	return *a.current, true
}

func (a *authMock) CurrentUserID() (string, bool) {
	identity, ok := a.Current()
	return identity.UserID, ok
}

func (a *authMock) OnIdentityChanged(fn func(*entity.Identity)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// drop loses the session the way an expired token would.
func (a *authMock) drop() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	a.notify(nil)
}

func (a *authMock) notify(identity *entity.Identity) {
	a.mu.Lock()
	listeners := make([]func(*entity.Identity), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(identity)
	}
}

type notifierMock struct {
	mu             sync.Mutex
	profileChanges int
	goals          []entity.Profile
}

func (n *notifierMock) ProfileChanged(p entity.Profile) {
	n.mu.Lock()
	n.profileChanges++
	n.mu.Unlock()
}

func (n *notifierMock) GoalAchieved(p entity.Profile) {
	n.mu.Lock()
	n.goals = append(n.goals, p)
	n.mu.Unlock()
}

func (n *notifierMock) goalCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.goals)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

const (
	today     = "2024-03-10"
	yesterday = "2024-03-09"
	email     = "ann@example.com"
	password  = "hydrate123"
)

type testEnv struct {
	hs       *service.HydrationService
	accounts *service.AccountService
	local    *localstore.Store
	remote   *remoteStoreMock
	auth     *authMock
	notifier *notifierMock
	clock    *testClock
	metrics  *metrics.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local)}
	local := localstore.New(filepath.Join(t.TempDir(), "local.db"), nil)
	if err := local.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { local.Close() })
	return newTestEnvWithStore(t, local, clock)
}

func newTestEnvWithStore(t *testing.T, local *localstore.Store, clock *testClock) *testEnv {
	t.Helper()
	auth := newAuthMock(clock.Now)
	remote := newRemoteStoreMock(auth)
	notifier := &notifierMock{}
	collector := metrics.NewCollector("test")
	hs := service.NewHydrationService(local, remote, auth, service.Options{
		Notifier: notifier,
		Metrics:  collector,
		Now:      clock.Now,
	})
	t.Cleanup(hs.Close)
	return &testEnv{
		hs:       hs,
		accounts: service.NewAccountService(hs),
		local:    local,
		remote:   remote,
		auth:     auth,
		notifier: notifier,
		clock:    clock,
		metrics:  collector,
	}
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	if err := e.hs.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) drink(t *testing.T, clock string, volume int) entity.DrinkLog {
	t.Helper()
	l, err := e.hs.AddLog(context.Background(), service.NewDrinkLog{
		Volume:    volume,
		DrinkType: "water",
		Date:      today,
		Time:      clock,
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}
