package collab

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// DefaultBolnaURL — адрес Bolna API.
const DefaultBolnaURL = "https://api.bolna.ai"

// CallRequest — параметры исходящего звонка.
type CallRequest struct {
	AgentID     string
	FromNumber  string
	ToNumber    string
	ContactName string
	Topic       string
	Language    string
}

// CallResult — результат постановки звонка.
type CallResult struct {
	CallID string
}

// Caller ставит исходящий звонок.
type Caller interface {
	PlaceCall(ctx context.Context, req CallRequest) (CallResult, error)
}

// BolnaCaller — клиент Bolna calls API.
//
// POST {BaseURL}/call с Bearer-токеном.
type BolnaCaller struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type bolnaRequest struct {
	AgentID              string         `json:"agent_id"`
	RecipientPhoneNumber string         `json:"recipient_phone_number"`
	FromPhoneNumber      string         `json:"from_phone_number"`
	UserData             map[string]any `json:"user_data"`
}

type bolnaResponse struct {
	ID     string `json:"id"`
	CallID string `json:"call_id"`
}

// PlaceCall ставит звонок. 200, 201 и 202 считаются успехом.
func (c *BolnaCaller) PlaceCall(ctx context.Context, req CallRequest) (CallResult, error) {
	if c.APIKey == "" {
		return CallResult{}, fmt.Errorf("%w: bolna api key is not set", ErrNotConfigured)
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBolnaURL
	}

	userData := map[string]any{
		"topic":    req.Topic,
		"language": req.Language,
	}
	if req.ContactName != "" {
		userData["contact_name"] = req.ContactName
	}

	var resp bolnaResponse
	_, err := doJSON(ctx, c.Client, jsonRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(baseURL, "/") + "/call",
		Headers: map[string]string{"Authorization": "Bearer " + c.APIKey},
		Body: bolnaRequest{
			AgentID:              req.AgentID,
			RecipientPhoneNumber: req.ToNumber,
			FromPhoneNumber:      req.FromNumber,
			UserData:             userData,
		},
	}, &resp)
	if err != nil {
		return CallResult{}, fmt.Errorf("bolna call: %w", err)
	}

	callID := resp.ID
	if callID == "" {
		callID = resp.CallID
	}
	return CallResult{CallID: callID}, nil
}
