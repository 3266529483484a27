package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "hydrosync"
	keyringUser    = "session"
)

var ErrNoSession = errors.New("no saved session")

// SessionStore keeps the signed session token between runs.
type SessionStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// KeyringSessions stores the token in the OS keyring.
type KeyringSessions struct {
	service string
	user    string
}

func NewKeyringSessions(profile string) *KeyringSessions {
	user := keyringUser
	if profile != "" {
		user = keyringUser + ":" + profile
	}
	return &KeyringSessions{
		service: keyringService,
		user:    user,
	}
}

func (ks *KeyringSessions) Load() (string, error) {
	token, err := keyring.Get(ks.service, ks.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("reading session from keyring: %w", err)
	}
	return token, nil
}

func (ks *KeyringSessions) Save(token string) error {
	if err := keyring.Set(ks.service, ks.user, token); err != nil {
		return fmt.Errorf("storing session in keyring: %w", err)
	}
	return nil
}

func (ks *KeyringSessions) Clear() error {
	err := keyring.Delete(ks.service, ks.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting session from keyring: %w", err)
	}
	return nil
}
