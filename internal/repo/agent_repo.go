package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Herald/internal/domain"
)

// AgentRepo — чтение агентов. Агентами управляет внешняя система.
type AgentRepo struct {
	pool *pgxpool.Pool
}

// NewAgentRepo создаёт новый AgentRepo.
func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// GetByID возвращает агента по ID.
func (r *AgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	var a domain.Agent
	var configJSON []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, name, is_active, config, created_at
		FROM agents
		WHERE id = $1
	`, id).Scan(
		&a.ID,
		&a.OrgID,
		&a.Name,
		&a.IsActive,
		&configJSON,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}

	if configJSON != nil {
		if err := json.Unmarshal(configJSON, &a.Config); err != nil {
			return nil, fmt.Errorf("unmarshal agent config: %w", err)
		}
	}
	return &a, nil
}
