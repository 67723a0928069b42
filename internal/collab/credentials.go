package collab

import (
	"fmt"

	"github.com/shaiso/Herald/internal/domain"
)

// CredentialResolver возвращает учётные данные агента для внешних сервисов.
// Отсутствие данных — ErrNotConfigured.
type CredentialResolver interface {
	GmailRefreshToken(agent *domain.Agent) (string, error)
	BolnaAgentID(agent *domain.Agent) (string, error)
}

// AgentConfigResolver читает учётные данные из конфигурации агента.
// DefaultBolnaAgentID используется, если у агента свой не задан.
type AgentConfigResolver struct {
	DefaultBolnaAgentID string
}

// GmailRefreshToken возвращает OAuth refresh token почты агента.
func (r AgentConfigResolver) GmailRefreshToken(agent *domain.Agent) (string, error) {
	token := agent.ConfigString(domain.AgentConfigGmailRefreshToken)
	if token == "" {
		return "", fmt.Errorf("%w: agent %s has no gmail refresh token", ErrNotConfigured, agent.ID)
	}
	return token, nil
}

// BolnaAgentID возвращает идентификатор голосового агента Bolna.
func (r AgentConfigResolver) BolnaAgentID(agent *domain.Agent) (string, error) {
	if id := agent.ConfigString(domain.AgentConfigBolnaAgentID); id != "" {
		return id, nil
	}
	if r.DefaultBolnaAgentID != "" {
		return r.DefaultBolnaAgentID, nil
	}
	return "", fmt.Errorf("%w: bolna agent id is not set for agent %s", ErrNotConfigured, agent.ID)
}
