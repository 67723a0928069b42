package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ключи конфигурации агента, которые читает планировщик.
const (
	AgentConfigGmailRefreshToken = "gmail_refresh_token"
	AgentConfigBolnaAgentID      = "bolna_agent_id"
)

// Agent — агент организации, от имени которого выполняются расписания.
//
// Агентами управляет основное приложение; планировщик их только читает.
type Agent struct {
	ID        uuid.UUID      `json:"id"`
	OrgID     uuid.UUID      `json:"org_id"`
	Name      string         `json:"name"`
	IsActive  bool           `json:"is_active"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ConfigString возвращает строковое значение из конфигурации агента.
// Пустая строка, если ключа нет или значение не строка.
func (a *Agent) ConfigString(key string) string {
	if a.Config == nil {
		return ""
	}
	if s, ok := a.Config[key].(string); ok {
		return s
	}
	return ""
}
