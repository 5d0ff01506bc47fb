package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/portal-client/v2/internal/auth"
)

// ProfileService loads the signed-in user's profile.
type ProfileService struct {
	api *ApiClient
}

func NewProfileService(api *ApiClient) *ProfileService {
	return &ProfileService{api: api}
}

// CurrentUser fetches the profile of the user owning token. The token is sent
// as given, independent of the client's token provider.
func (s *ProfileService) CurrentUser(ctx context.Context, token string) (*auth.UserProfile, error) {
	if token == "" {
		return nil, errors.New("services: current user requires a token")
	}
	var profile auth.UserProfile
	if err := s.api.callAPI(ctx, http.MethodGet, s.api.endpoints.CurrentUser, nil, &profile, token); err != nil {
		return nil, err
	}
	return &profile, nil
}
