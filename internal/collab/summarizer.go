package collab

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Criteria — какие письма собирать для дайджеста.
type Criteria struct {
	Type  string `json:"criteria_type"` // last_24_hours, latest_n, last_n_hours
	Count int    `json:"count"`
	Hours *int   `json:"hours,omitempty"`
}

// Summary — краткое содержание одного письма.
type Summary struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Summary string `json:"summary"`
}

// Summarizer собирает и суммаризирует почту владельца refresh token.
// Пустой результат означает "нет подходящих писем" и ошибкой не является.
type Summarizer interface {
	Summarize(ctx context.Context, refreshToken string, criteria Criteria) ([]Summary, error)
}

// HTTPSummarizer — клиент сервиса суммаризации.
//
// POST {BaseURL}/summaries
//
//	{"refresh_token": "...", "criteria_type": "last_24_hours", "count": 50}
//
// Ответ: {"summaries": [{"sender", "subject", "date", "summary"}]}.
type HTTPSummarizer struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSummarizer создаёт клиент сервиса суммаризации.
func NewHTTPSummarizer(baseURL string, client *http.Client) *HTTPSummarizer {
	return &HTTPSummarizer{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

type summarizeRequest struct {
	RefreshToken string `json:"refresh_token"`
	Criteria
}

type summarizeResponse struct {
	Summaries []Summary `json:"summaries"`
}

// Summarize вызывает сервис суммаризации.
func (s *HTTPSummarizer) Summarize(ctx context.Context, refreshToken string, criteria Criteria) ([]Summary, error) {
	if s.BaseURL == "" {
		return nil, fmt.Errorf("%w: digest service url is not set", ErrNotConfigured)
	}

	var resp summarizeResponse
	_, err := doJSON(ctx, s.Client, jsonRequest{
		Method: http.MethodPost,
		URL:    s.BaseURL + "/summaries",
		Body:   summarizeRequest{RefreshToken: refreshToken, Criteria: criteria},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return resp.Summaries, nil
}
