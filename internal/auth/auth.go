package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	errorvalues "github.com/limbo/hydrosync/internal/error_values"
	"github.com/limbo/hydrosync/internal/repository"
	"github.com/limbo/hydrosync/pkg/entity"
	jwtservice "github.com/limbo/hydrosync/pkg/jwt_service"
	"golang.org/x/crypto/bcrypt"
)

const DefaultRecentLoginWindow = 5 * time.Minute

var hashCost = bcrypt.DefaultCost

type Options struct {
	Logger *slog.Logger
	// How long after the last verification sensitive operations are allowed
	RecentLoginWindow time.Duration
	Now               func() time.Time
}

// Service is the authentication provider. It owns the current identity and
// tells listeners whenever it changes.
type Service struct {
	accounts    repository.AccountsRepositoryI
	tokens      *jwtservice.JWTService
	sessions    SessionStore
	logger      *slog.Logger
	recentLogin time.Duration
	now         func() time.Time

	mu        sync.RWMutex
	current   *entity.Identity
	listeners map[int]func(*entity.Identity)
	nextID    int
}

func New(accounts repository.AccountsRepositoryI, tokens *jwtservice.JWTService, sessions SessionStore, opts Options) *Service {
	if accounts == nil {
		log.Fatal("provided nil accounts repository")
	}
	if tokens == nil {
		log.Fatal("provided nil jwt service")
	}
	InitValidator()
	s := &Service{
		accounts:    accounts,
		tokens:      tokens,
		sessions:    sessions,
		logger:      opts.Logger,
		recentLogin: opts.RecentLoginWindow,
		now:         opts.Now,
		listeners:   make(map[int]func(*entity.Identity)),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.recentLogin <= 0 {
		s.recentLogin = DefaultRecentLoginWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) SignIn(ctx context.Context, email, password string) (entity.Identity, error) {
	if !validateEmail(email) {
		return entity.Identity{}, errorvalues.ErrInvalidEmail
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return entity.Identity{}, fmt.Errorf("signing in: %w", err)
	}
	if err = bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return entity.Identity{}, errorvalues.ErrInvalidCredential
	}
	identity := entity.Identity{
		UserID:   account.ID.String(),
		Email:    account.Email,
		IssuedAt: s.now(),
	}
	s.establish(identity)
	return identity, nil
}

func (s *Service) SignUp(ctx context.Context, email, password string) (entity.Identity, error) {
	if !validateEmail(email) {
		return entity.Identity{}, errorvalues.ErrInvalidEmail
	}
	if !validatePassword(password) {
		return entity.Identity{}, errorvalues.ErrWeakPassword
	}
	passwordHash, err := Hash(password)
	if err != nil {
		return entity.Identity{}, errors.New("hashing password error: " + err.Error())
	}
	account, err := s.accounts.Create(ctx, &entity.Account{
		Email:        email,
		PasswordHash: passwordHash,
	})
	if err != nil {
		return entity.Identity{}, fmt.Errorf("signing up: %w", err)
	}
	identity := entity.Identity{
		UserID:   account.ID.String(),
		Email:    account.Email,
		IssuedAt: s.now(),
	}
	s.establish(identity)
	return identity, nil
}

func (s *Service) SignOut(ctx context.Context) error {
	s.drop()
	return nil
}

// Reauthenticate re-verifies the password of the current identity and refreshes its IssuedAt.
func (s *Service) Reauthenticate(ctx context.Context, identity entity.Identity, password string) (entity.Identity, error) {
	if err := s.requireCurrent(identity); err != nil {
		return entity.Identity{}, err
	}
	account, err := s.findAccount(ctx, identity)
	if err != nil {
		return entity.Identity{}, err
	}
	if err = bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return entity.Identity{}, errorvalues.ErrInvalidCredential
	}
	identity.IssuedAt = s.now()
	s.mu.Lock()
	s.current = &identity
	s.mu.Unlock()
	s.persist(identity)
	return identity, nil
}

func (s *Service) ChangePassword(ctx context.Context, identity entity.Identity, newPassword string) error {
	if !validatePassword(newPassword) {
		return errorvalues.ErrWeakPassword
	}
	if err := s.requireRecent(identity); err != nil {
		return err
	}
	passwordHash, err := Hash(newPassword)
	if err != nil {
		return errors.New("hashing password error: " + err.Error())
	}
	id, err := uuid.Parse(identity.UserID)
	if err != nil {
		return errorvalues.ErrUserNotFound
	}
	if err = s.accounts.UpdatePassword(ctx, id, passwordHash); err != nil {
		return fmt.Errorf("changing password: %w", err)
	}
	return nil
}

// DeleteIdentity removes the account and signs out.
func (s *Service) DeleteIdentity(ctx context.Context, identity entity.Identity) error {
	if err := s.requireRecent(identity); err != nil {
		return err
	}
	id, err := uuid.Parse(identity.UserID)
	if err != nil {
		return errorvalues.ErrUserNotFound
	}
	if err = s.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	s.drop()
	return nil
}

func (s *Service) Current() (entity.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return entity.Identity{}, false
	}
	return *s.current, true
}

func (s *Service) CurrentUserID() (string, bool) {
	identity, ok := s.Current()
	return identity.UserID, ok
}

// OnIdentityChanged registers fn, called with nil on sign-out. The returned func unsubscribes.
func (s *Service) OnIdentityChanged(fn func(*entity.Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Restore resumes the saved session. A token that no longer parses, or whose account is gone,
// is discarded. When the account can't be checked the token is trusted.
func (s *Service) Restore(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	token, err := s.sessions.Load()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	}
	identity, err := s.tokens.ParseToken(token)
	if err != nil {
		s.logger.Info("discarding saved session", slog.String("error", err.Error()))
		s.clearSession()
		return nil
	}
	if _, err := s.findAccount(ctx, *identity); err != nil {
		if errors.Is(err, errorvalues.ErrUserNotFound) {
			s.logger.Info("saved session belongs to a deleted account")
			s.clearSession()
			return nil
		}
		s.logger.Warn("can't verify saved session, resuming offline", slog.String("error", err.Error()))
	}
	s.mu.Lock()
	s.current = identity
	s.mu.Unlock()
	s.notify(identity)
	return nil
}

func (s *Service) findAccount(ctx context.Context, identity entity.Identity) (*entity.Account, error) {
	id, err := uuid.Parse(identity.UserID)
	if err != nil {
		return nil, errorvalues.ErrUserNotFound
	}
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("searching account: %w", err)
	}
	return account, nil
}

func (s *Service) requireCurrent(identity entity.Identity) error {
	current, ok := s.Current()
	if !ok || current.UserID != identity.UserID {
		return errorvalues.ErrNotSignedIn
	}
	return nil
}

func (s *Service) requireRecent(identity entity.Identity) error {
	if err := s.requireCurrent(identity); err != nil {
		return err
	}
	current, _ := s.Current()
	if s.now().Sub(current.IssuedAt) > s.recentLogin {
		return errorvalues.ErrRequiresRecentLogin
	}
	return nil
}

func (s *Service) establish(identity entity.Identity) {
	s.mu.Lock()
	s.current = &identity
	s.mu.Unlock()
	s.persist(identity)
	s.notify(&identity)
}

func (s *Service) drop() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.clearSession()
	s.notify(nil)
}

func (s *Service) persist(identity entity.Identity) {
	if s.sessions == nil {
		return
	}
	token, err := s.tokens.GenerateToken(identity)
	if err != nil {
		s.logger.Error("signing session token", slog.String("error", err.Error()))
		return
	}
	if err = s.sessions.Save(token); err != nil {
		s.logger.Warn("session won't survive restart", slog.String("error", err.Error()))
	}
}

func (s *Service) clearSession() {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Clear(); err != nil {
		s.logger.Warn("clearing saved session", slog.String("error", err.Error()))
	}
}

func (s *Service) notify(identity *entity.Identity) {
	s.mu.RLock()
	listeners := make([]func(*entity.Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()
	for _, fn := range listeners {
		var arg *entity.Identity
		if identity != nil {
			copied := *identity
			arg = &copied
		}
		fn(arg)
	}
}

func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
