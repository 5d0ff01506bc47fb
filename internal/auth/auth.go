package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IdentityProvider performs the login call against the remote identity
// service. A non-nil error means the call itself failed (transport, decode);
// a rejected login is reported through LoginResult.OK.
type IdentityProvider interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
}

// Credentials contains login request data
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the outcome of a login attempt.
type LoginResult struct {
	OK      bool
	Data    *LoginData
	Code    string
	Message string
}

// LoginData is the body of a login response. On success it carries the
// tokens and the role flags; on failure it may carry code and message.
type LoginData struct {
	Access   string `json:"access,omitempty"`
	Refresh  string `json:"refresh,omitempty"`
	RoleID   RoleID `json:"role_id"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	Username string `json:"username,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// UserProfile represents the current user as returned by the profile
// endpoint.
type UserProfile struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	RoleID         RoleID `json:"role_id"`
	Role           RoleID `json:"role"`
	RoleName       string `json:"role_name,omitempty"`
	DepartmentName string `json:"department_name,omitempty"`
	IsAdmin        bool   `json:"is_admin,omitempty"`
	IsActive       bool   `json:"is_active,omitempty"`
	// HasAddress is filled by the address probe, never by the profile call.
	HasAddress bool `json:"-"`
}

// EffectiveRole prefers role_id and falls back to the role primary key.
func (u *UserProfile) EffectiveRole() RoleID {
	if u == nil {
		return RoleID{}
	}
	if _, ok := u.RoleID.Value(); ok {
		return u.RoleID
	}
	return u.Role
}

// RoleUser is the role of an ordinary, non-administrative user.
const RoleUser = 2

// RoleID is a numeric role that the backend sends either as a number or as a
// numeric string. Null, empty and non-numeric values decode as absent.
type RoleID struct {
	value float64
	valid bool
}

func NewRoleID(v float64) RoleID {
	return RoleID{value: v, valid: true}
}

// Value returns the role and whether one is present.
func (r RoleID) Value() (float64, bool) {
	return r.value, r.valid
}

func (r *RoleID) UnmarshalJSON(b []byte) error {
	*r = RoleID{}
	raw := bytes.TrimSpace(b)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*r = RoleID{value: f, valid: true}
	return nil
}

func (r RoleID) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// IsAdministrator applies the routing rule: the admin flag wins, and any
// present role other than 0 and RoleUser is administrative.
func IsAdministrator(role RoleID, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	v, ok := role.Value()
	return ok && v != 0 && v != RoleUser
}
