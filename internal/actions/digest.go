package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Herald/internal/collab"
	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/scheduler"
)

// DigestAction — действие "digest": собрать письма агента, суммаризировать
// и отправить дайджест получателю.
//
// Params (domain.DigestParams):
//   - recipient_email (string): получатель дайджеста (обязательно)
//   - criteria_type (string): какие письма собирать. Default: last_24_hours
//   - email_count (number): максимум писем. Default: 50
//   - email_hours (number): окно в часах для last_n_hours
type DigestAction struct {
	Credentials collab.CredentialResolver
	Summarizer  collab.Summarizer
	Deliverer   collab.Deliverer
}

// Execute выполняет digest. Если писем нет, дайджест не отправляется,
// и это успешный результат с Items == 0.
func (a *DigestAction) Execute(ctx context.Context, sched *domain.Schedule, agent *domain.Agent) (scheduler.ActionResult, error) {
	params, err := domain.ParseDigestParams(sched.Params)
	if err != nil {
		return scheduler.ActionResult{}, fmt.Errorf("%w: %v", scheduler.ErrConfiguration, err)
	}

	token, err := a.Credentials.GmailRefreshToken(agent)
	if err != nil {
		return scheduler.ActionResult{}, classify(err)
	}

	summaries, err := a.Summarizer.Summarize(ctx, token, collab.Criteria{
		Type:  params.CriteriaType,
		Count: params.EmailCount,
		Hours: params.EmailHours,
	})
	if err != nil {
		return scheduler.ActionResult{}, classify(err)
	}

	if len(summaries) == 0 {
		return scheduler.ActionResult{Items: 0, Detail: "no emails matched criteria"}, nil
	}

	err = a.Deliverer.Deliver(ctx, params.RecipientEmail, collab.Digest{
		AgentName:    agent.Name,
		CriteriaType: params.CriteriaType,
		Summaries:    summaries,
		GeneratedAt:  time.Now(),
	})
	if err != nil {
		return scheduler.ActionResult{}, classify(err)
	}

	return scheduler.ActionResult{
		Items:  len(summaries),
		Detail: "digest sent to " + params.RecipientEmail,
	}, nil
}
