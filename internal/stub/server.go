// Package stub serves the backend endpoints the client talks to from memory.
// It backs the service tests and the stubserver command used for local runs.
package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookie = "sessionid"

	accessTTL  = 15 * time.Minute
	refreshTTL = 24 * time.Hour
)

var (
	ErrUserExists  = errors.New("stub: user already exists")
	ErrUnknownUser = errors.New("stub: unknown user")
)

// User is an account known to the stub. A nil RoleID is served as null.
type User struct {
	ID             int
	Username       string
	Email          string
	FirstName      string
	LastName       string
	RoleID         *int
	RoleName       string
	DepartmentName string
	IsAdmin        bool
	HasAddress     bool

	passwordHash []byte
}

type tokenClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type Option func(*Server)

func WithSecret(secret []byte) Option {
	return func(s *Server) {
		if len(secret) > 0 {
			s.secret = secret
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMessages replaces the message tables served by GET /api/messages/.
func WithMessages(tables map[string]any) Option {
	return func(s *Server) { s.messages = tables }
}

type Server struct {
	mu       sync.RWMutex
	users    map[string]*User
	sessions map[string]string
	nextID   int

	secret   []byte
	messages map[string]any
	log      logrus.FieldLogger
	now      func() time.Time
}

func New(opts ...Option) *Server {
	s := &Server{
		users:    make(map[string]*User),
		sessions: make(map[string]string),
		nextID:   1,
		secret:   []byte(uuid.NewString()),
		messages: DefaultMessages(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMessages returns the tables served unless WithMessages is given.
func DefaultMessages() map[string]any {
	return map[string]any{
		"user_error": []map[string]string{
			{"error_code": "EL001", "error_message": "Invalid username or password."},
			{"error_code": "EA010", "error_message": "The server could not process the request. Please try again later."},
		},
		"user_information": []map[string]string{
			{"information_code": "IL001", "information_text": "Login successful."},
		},
		"user_validation": []map[string]string{
			{"validation_code": "VL001", "validation_message": "Username and password are required."},
		},
	}
}

// AddUser registers u with a bcrypt hash of password and assigns an ID.
func (s *Server) AddUser(u User, password string) (User, error) {
	name := strings.TrimSpace(u.Username)
	if name == "" {
		return User{}, errors.New("stub: username is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return User{}, fmt.Errorf("stub: hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[name]; exists {
		return User{}, ErrUserExists
	}
	u.Username = name
	u.ID = s.nextID
	u.passwordHash = hash
	s.nextID++
	s.users[name] = &u
	return u, nil
}

func (s *Server) SetHasAddress(username string, has bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrUnknownUser
	}
	u.HasAddress = has
	return nil
}

// Routes returns the HTTP handler exposing the backend endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login/", s.login)
		r.Get("/me/", s.currentUser)
		r.Get("/addresses/check/", s.checkAddress)
		r.Get("/messages/", s.listMessages)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"request_id": r.Header.Get("X-Request-ID"),
			"duration":   time.Since(start).String(),
		}).Debug("stub request")
	})
}

func (s *Server) lookup(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (s *Server) issueToken(username, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Server) parseAccessToken(raw string) (string, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if claims.TokenType != "access" {
		return "", errors.New("stub: not an access token")
	}
	return claims.Subject, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]string{"code": code}
	if message != "" {
		payload["message"] = message
	}
	writeJSONResponse(w, status, payload)
}
