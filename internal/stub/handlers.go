package stub

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	RoleID   *int   `json:"role_id"`
	IsAdmin  bool   `json:"is_admin"`
	Username string `json:"username"`
}

type profileResponse struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	RoleID         *int   `json:"role_id"`
	Role           *int   `json:"role"`
	RoleName       string `json:"role_name"`
	DepartmentName string `json:"department_name"`
	IsAdmin        bool   `json:"is_admin"`
	IsActive       bool   `json:"is_active"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "EA010", "request body must be JSON")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "EL001", "")
		return
	}

	user, ok := s.lookup(username)
	if !ok || bcrypt.CompareHashAndPassword(user.passwordHash, []byte(req.Password)) != nil {
		s.log.WithField("username", username).Info("stub login rejected")
		writeError(w, http.StatusUnauthorized, "EL001", "")
		return
	}

	access, err := s.issueToken(user.Username, "access", accessTTL)
	if err != nil {
		s.log.WithError(err).Error("failed to sign access token")
		writeError(w, http.StatusInternalServerError, "EA010", "")
		return
	}
	refresh, err := s.issueToken(user.Username, "refresh", refreshTTL)
	if err != nil {
		s.log.WithError(err).Error("failed to sign refresh token")
		writeError(w, http.StatusInternalServerError, "EA010", "")
		return
	}

	sessionID := uuid.NewString()
	s.mu.Lock()
	s.sessions[sessionID] = user.Username
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSONResponse(w, http.StatusOK, loginResponse{
		Access:   access,
		Refresh:  refresh,
		RoleID:   user.RoleID,
		IsAdmin:  user.IsAdmin,
		Username: user.Username,
	})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusUnauthorized, "not_authenticated", "Authentication credentials were not provided.")
		return
	}
	username, err := s.parseAccessToken(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "token_not_valid", "Given token not valid for any token type")
		return
	}
	user, ok := s.lookup(username)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_not_found", "User not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, profileResponse{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		RoleID:         user.RoleID,
		Role:           user.RoleID,
		RoleName:       user.RoleName,
		DepartmentName: user.DepartmentName,
		IsAdmin:        user.IsAdmin,
		IsActive:       true,
	})
}

func (s *Server) checkAddress(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		writeError(w, http.StatusForbidden, "not_authenticated", "Authentication credentials were not provided.")
		return
	}
	s.mu.RLock()
	username, ok := s.sessions[cookie.Value]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusForbidden, "not_authenticated", "Session expired.")
		return
	}
	user, ok := s.lookup(username)
	if !ok {
		writeError(w, http.StatusForbidden, "user_not_found", "")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"has_address": user.HasAddress})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.messages)
}
