package services

import (
	"context"
	"encoding/json"
	"net/http"
)

// MessageService downloads the message tables the catalog caches.
type MessageService struct {
	api *ApiClient
}

func NewMessageService(api *ApiClient) *MessageService {
	return &MessageService{api: api}
}

// FetchTables returns the raw tables keyed by their storage key
// (user_error, user_information, user_validation).
func (s *MessageService) FetchTables(ctx context.Context) (map[string]json.RawMessage, error) {
	tables := map[string]json.RawMessage{}
	if err := s.api.CallAPI(ctx, http.MethodGet, s.api.endpoints.Messages, nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}
