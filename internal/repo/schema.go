package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements — таблицы, с которыми работает herald.
//
// Таблица agents принадлежит внешней системе управления агентами,
// herald только читает её; CREATE IF NOT EXISTS нужен для локального запуска.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agents (
  id UUID PRIMARY KEY,
  org_id UUID NOT NULL,
  name TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  config JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	`CREATE TABLE IF NOT EXISTS schedules (
  id UUID PRIMARY KEY,
  org_id UUID NOT NULL,
  agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
  name TEXT,
  frequency TEXT NOT NULL CHECK (frequency IN ('once', 'daily', 'weekly', 'monthly')),
  time_of_day TEXT,
  day_of_week SMALLINT CHECK (day_of_week BETWEEN 1 AND 7),
  day_of_month SMALLINT CHECK (day_of_month BETWEEN 1 AND 31),
  one_time_at TIMESTAMPTZ,
  action TEXT NOT NULL,
  params JSONB NOT NULL DEFAULT '{}'::jsonb,
  threshold_days INTEGER,
  last_event_at TIMESTAMPTZ,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  last_run_at TIMESTAMPTZ,
  next_run_at TIMESTAMPTZ,
  last_error TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_active_next ON schedules (next_run_at) WHERE is_active;`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_org ON schedules (org_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_agent ON schedules (agent_id);`,
}

// EnsureSchema создаёт таблицы и индексы, если их ещё нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool not initialized")
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
