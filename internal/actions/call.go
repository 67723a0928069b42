package actions

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shaiso/Herald/internal/collab"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/scheduler"
)

// e164 — номер в формате E.164: "+", затем 8–15 цифр.
var e164 = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// ValidPhone проверяет номер на формат E.164.
func ValidPhone(phone string) bool {
	return e164.MatchString(strings.TrimSpace(phone))
}

// CallAction — действие "call": исходящий звонок контакту через голосового агента.
//
// Params (domain.CallParams):
//   - contact_phone (string): номер контакта в E.164 (обязательно)
//   - contact_name (string): имя контакта
//   - topic (string): тема звонка. Default: follow_up
//   - language (string): язык звонка. Default: en-IN
type CallAction struct {
	Credentials collab.CredentialResolver
	Caller      collab.Caller
	FromNumber  string
}

// Execute ставит звонок.
func (a *CallAction) Execute(ctx context.Context, sched *domain.Schedule, agent *domain.Agent) (scheduler.ActionResult, error) {
	params, err := domain.ParseCallParams(sched.Params)
	if err != nil {
		return scheduler.ActionResult{}, fmt.Errorf("%w: %v", scheduler.ErrConfiguration, err)
	}

	to := strings.TrimSpace(params.ContactPhone)
	if !ValidPhone(to) {
		return scheduler.ActionResult{}, fmt.Errorf("%w: contact_phone %q is not in E.164 format", scheduler.ErrConfiguration, to)
	}

	bolnaAgentID, err := a.Credentials.BolnaAgentID(agent)
	if err != nil {
		return scheduler.ActionResult{}, classify(err)
	}

	if a.FromNumber == "" {
		return scheduler.ActionResult{}, fmt.Errorf("%w: caller from number is not set", scheduler.ErrPrerequisiteMissing)
	}
	if !ValidPhone(a.FromNumber) {
		return scheduler.ActionResult{}, fmt.Errorf("%w: caller from number %q is not in E.164 format", scheduler.ErrConfiguration, a.FromNumber)
	}

	result, err := a.Caller.PlaceCall(ctx, collab.CallRequest{
		AgentID:     bolnaAgentID,
		FromNumber:  a.FromNumber,
		ToNumber:    to,
		ContactName: params.ContactName,
		Topic:       params.Topic,
		Language:    params.Language,
	})
	if err != nil {
		return scheduler.ActionResult{}, classify(err)
	}

	return scheduler.ActionResult{Items: 1, Detail: "call placed " + result.CallID}, nil
}
