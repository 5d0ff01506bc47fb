package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/portal-client/v2/internal/auth"
)

// AuthService talks to the login endpoint of the identity service.
type AuthService struct {
	api *ApiClient
}

func NewAuthService(api *ApiClient) *AuthService {
	return &AuthService{api: api}
}

// Login posts the credentials. A 2xx response is a successful login whose
// body must decode; any other status is a rejected login carrying whatever
// code and message the body holds. Only transport and decode failures are
// returned as errors.
func (s *AuthService) Login(ctx context.Context, creds auth.Credentials) (*auth.LoginResult, error) {
	req, err := s.api.newRequest(ctx, http.MethodPost, s.api.endpoints.Login, creds, "")
	if err != nil {
		return nil, err
	}
	resp, err := s.api.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("services: read login response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var data auth.LoginData
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("services: decode login response: %w", err)
		}
		return &auth.LoginResult{OK: true, Data: &data}, nil
	}

	result := &auth.LoginResult{}
	var data auth.LoginData
	if len(body) > 0 && json.Unmarshal(body, &data) == nil {
		result.Data = &data
		result.Code = data.Code
		result.Message = data.Message
	}
	return result, nil
}
