package domain

import (
	"time"

	"github.com/google/uuid"
)

// Surface — точка входа, инициировавшая выполнение.
type Surface string

// Точки входа.
const (
	SurfacePoller  Surface = "poller"
	SurfaceWebhook Surface = "webhook"
	SurfaceManual  Surface = "manual"
	SurfaceCLI     Surface = "cli"
)

// Execution — запись об одной попытке выполнения schedule.
//
// В БД не хранится: публикуется как событие и учитывается в аналитике.
type Execution struct {
	ScheduleID uuid.UUID   `json:"schedule_id"`
	OrgID      uuid.UUID   `json:"org_id"`
	AgentID    uuid.UUID   `json:"agent_id"`
	Action     ActionKind  `json:"action"`
	Surface    Surface     `json:"surface"`
	Outcome    OutcomeKind `json:"outcome"`
	DidWork    bool        `json:"did_work"`
	Error      string      `json:"error,omitempty"`
	NextRunAt  *time.Time  `json:"next_run_at,omitempty"`
	IsActive   bool        `json:"is_active"`
	At         time.Time   `json:"at"`
}
