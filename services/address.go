package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// AddressService asks the backend whether the user has a saved address.
type AddressService struct {
	api *ApiClient
}

func NewAddressService(api *ApiClient) *AddressService {
	return &AddressService{api: api}
}

// HasAddress uses the session cookie set at login; no bearer token is sent.
// Non-2xx responses are errors. A 2xx response whose body is absent or not
// the expected JSON counts as no address.
func (s *AddressService) HasAddress(ctx context.Context) (bool, error) {
	req, err := s.api.newRequest(ctx, http.MethodGet, s.api.endpoints.AddressCheck, nil, "")
	if err != nil {
		return false, err
	}
	resp, err := s.api.do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, errorFromResponse(resp)
	}

	var payload struct {
		HasAddress bool `json:"has_address"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		s.api.log.WithError(err).Debug("address check returned an unreadable body")
		return false, nil
	}
	return payload.HasAddress, nil
}
