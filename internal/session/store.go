// Package session owns the persisted login tokens and the current-user state
// derived from them.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/portal-client/v2/internal/auth"
)

// Storage keys of the persisted tokens.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
)

// ErrMissingAccessToken is returned when a login response carries no access
// token. Nothing is persisted in that case.
var ErrMissingAccessToken = errors.New("session: login response has no access token")

// Storage is the durable key/value storage the tokens live in.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Token is the pair of credentials issued at login.
type Token struct {
	Access  string
	Refresh string
}

// Store persists tokens and hands the access token to the HTTP client
// factory. It loads whatever a previous run persisted when constructed, so
// requests are authorized from process start.
type Store struct {
	storage Storage
	log     logrus.FieldLogger

	mu    sync.RWMutex
	token Token
	ok    bool
}

func NewStore(storage Storage, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{storage: storage, log: log}
	s.load()
	return s
}

func (s *Store) load() {
	access, ok, err := s.storage.Get(KeyAccess)
	if err != nil {
		s.log.WithError(err).Warn("failed to read persisted access token")
		return
	}
	if !ok || access == "" {
		return
	}
	refresh, _, err := s.storage.Get(KeyRefresh)
	if err != nil {
		s.log.WithError(err).Warn("failed to read persisted refresh token")
	}
	s.token = Token{Access: access, Refresh: refresh}
	s.ok = true
	s.log.Debug("restored persisted session")
}

// Store persists the tokens of a successful login. The refresh token is
// optional; a stale one is removed when the new login has none. The access
// token is written last, so a failed Store never leaves a new access token
// on disk.
func (s *Store) Store(data auth.LoginData) error {
	if data.Access == "" {
		return ErrMissingAccessToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeRefresh(data.Refresh); err != nil {
		return err
	}
	if err := s.storage.Set(KeyAccess, data.Access); err != nil {
		if rbErr := s.writeRefresh(s.token.Refresh); rbErr != nil {
			s.log.WithError(rbErr).Warn("failed to restore previous refresh token")
		}
		return fmt.Errorf("session: persist access token: %w", err)
	}
	s.token = Token{Access: data.Access, Refresh: data.Refresh}
	s.ok = true
	return nil
}

func (s *Store) writeRefresh(refresh string) error {
	if refresh == "" {
		if err := s.storage.Remove(KeyRefresh); err != nil {
			return fmt.Errorf("session: remove refresh token: %w", err)
		}
		return nil
	}
	if err := s.storage.Set(KeyRefresh, refresh); err != nil {
		return fmt.Errorf("session: persist refresh token: %w", err)
	}
	return nil
}

// Get returns the current token, if any.
func (s *Store) Get() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.ok
}

// AccessToken returns the bearer value for outgoing requests, or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Access
}

// Subject returns the subject claim of a JWT access token without verifying
// it. Opaque tokens have no subject.
func (s *Store) Subject() string {
	access := s.AccessToken()
	if access == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// Clear removes the persisted tokens.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, key := range []string{KeyAccess, KeyRefresh} {
		if err := s.storage.Remove(key); err != nil {
			errs = append(errs, fmt.Errorf("session: remove %s: %w", key, err))
		}
	}
	s.token = Token{}
	s.ok = false
	return errors.Join(errs...)
}
