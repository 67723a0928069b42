// Package actions содержит реализации действий, которые выполняет планировщик.
//
//   - digest.go — сбор и отправка почтового дайджеста
//   - call.go   — исходящий звонок контакту
//
// Действия переводят ошибки внешних сервисов в ошибки планировщика:
// нет учётных данных → ErrPrerequisiteMissing, сбой сервиса → ErrCollaborator.
package actions

import (
	"errors"
	"fmt"

	"github.com/shaiso/Herald/internal/collab"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/scheduler"
)

// Deps — зависимости действий.
type Deps struct {
	Credentials collab.CredentialResolver
	Summarizer  collab.Summarizer
	Deliverer   collab.Deliverer
	Caller      collab.Caller
	FromNumber  string
}

// NewRegistry регистрирует все действия.
func NewRegistry(deps Deps) *scheduler.Registry {
	registry := scheduler.NewRegistry()
	registry.Register(domain.ActionDigest, &DigestAction{
		Credentials: deps.Credentials,
		Summarizer:  deps.Summarizer,
		Deliverer:   deps.Deliverer,
	})
	registry.Register(domain.ActionCall, &CallAction{
		Credentials: deps.Credentials,
		Caller:      deps.Caller,
		FromNumber:  deps.FromNumber,
	})
	return registry
}

// classify переводит ошибку внешнего сервиса в ошибку планировщика.
func classify(err error) error {
	if errors.Is(err, collab.ErrNotConfigured) {
		return fmt.Errorf("%w: %w", scheduler.ErrPrerequisiteMissing, err)
	}
	return fmt.Errorf("%w: %w", scheduler.ErrCollaborator, err)
}
