package domain

import (
	"encoding/json"
	"fmt"
)

// Значения по умолчанию для параметров действий.
const (
	DefaultCriteriaType = "last_24_hours"
	DefaultEmailCount   = 50
	DefaultCallTopic    = "follow_up"
	DefaultCallLanguage = "en-IN"
)

// DigestParams — параметры действия digest.
type DigestParams struct {
	RecipientEmail string `json:"recipient_email"`
	CriteriaType   string `json:"criteria_type,omitempty"`
	EmailCount     int    `json:"email_count,omitempty"`
	EmailHours     *int   `json:"email_hours,omitempty"`
}

// CallParams — параметры действия call.
type CallParams struct {
	ContactID    string `json:"contact_id,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone"`
	Topic        string `json:"topic,omitempty"`
	Language     string `json:"language,omitempty"`
}

// DecodeParams разбирает произвольные параметры schedule в типизированную структуру.
func DecodeParams[T any](params map[string]any) (T, error) {
	var result T

	raw, err := json.Marshal(params)
	if err != nil {
		return result, fmt.Errorf("marshal params: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal params: %w", err)
	}
	return result, nil
}

// ParseDigestParams разбирает и дополняет параметры digest значениями по умолчанию.
func ParseDigestParams(params map[string]any) (DigestParams, error) {
	p, err := DecodeParams[DigestParams](params)
	if err != nil {
		return p, err
	}
	if p.RecipientEmail == "" {
		return p, fmt.Errorf("recipient_email is required")
	}
	if p.CriteriaType == "" {
		p.CriteriaType = DefaultCriteriaType
	}
	if p.EmailCount <= 0 {
		p.EmailCount = DefaultEmailCount
	}
	return p, nil
}

// ParseCallParams разбирает и дополняет параметры call значениями по умолчанию.
func ParseCallParams(params map[string]any) (CallParams, error) {
	p, err := DecodeParams[CallParams](params)
	if err != nil {
		return p, err
	}
	if p.ContactPhone == "" {
		return p, fmt.Errorf("contact_phone is required")
	}
	if p.Topic == "" {
		p.Topic = DefaultCallTopic
	}
	if p.Language == "" {
		p.Language = DefaultCallLanguage
	}
	return p, nil
}
