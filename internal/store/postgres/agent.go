package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gosuda/chorus/internal/domain"
)

type AgentRepo struct {
	db querier
}

func NewAgentRepo(db querier) *AgentRepo {
	return &AgentRepo{db: db}
}

func (r *AgentRepo) Create(ctx context.Context, a *domain.AgentProfile) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO agent_profiles (name, role, description, model_hint, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		a.Name, a.Role, a.Description, a.ModelHint, a.IsActive, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("agentRepo.Create: %w", mapError(err))
	}

	return nil
}

func (r *AgentRepo) GetByName(ctx context.Context, name string) (*domain.AgentProfile, error) {
	var a domain.AgentProfile

	err := r.db.QueryRow(ctx,
		`SELECT id, name, role, description, model_hint, is_active, created_at, updated_at
		 FROM agent_profiles WHERE name = $1`,
		name,
	).Scan(&a.ID, &a.Name, &a.Role, &a.Description, &a.ModelHint, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("agentRepo.GetByName: %w", mapError(err))
	}

	return &a, nil
}

func (r *AgentRepo) List(ctx context.Context) ([]*domain.AgentProfile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, role, description, model_hint, is_active, created_at, updated_at
		 FROM agent_profiles ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("agentRepo.List: %w", err)
	}
	defer rows.Close()

	var agents []*domain.AgentProfile
	for rows.Next() {
		var a domain.AgentProfile
		if err = rows.Scan(&a.ID, &a.Name, &a.Role, &a.Description, &a.ModelHint, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("agentRepo.List: scan: %w", err)
		}
		agents = append(agents, &a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("agentRepo.List: rows: %w", err)
	}

	return agents, nil
}

func (r *AgentRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM agent_profiles WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return fmt.Errorf("agentRepo.Delete: %w", domain.ErrProtected)
		}
		return fmt.Errorf("agentRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agentRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

type ToolRepo struct {
	db querier
}

func NewToolRepo(db querier) *ToolRepo {
	return &ToolRepo{db: db}
}

func (r *ToolRepo) Create(ctx context.Context, t *domain.ToolDefinition) error {
	schemaJSON, err := marshalJSON(t.InputSchema)
	if err != nil {
		return fmt.Errorf("toolRepo.Create: marshal schema: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO tool_definitions (name, description, schema, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		t.Name, t.Description, schemaJSON, t.IsActive, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("toolRepo.Create: %w", mapError(err))
	}

	return nil
}

func (r *ToolRepo) GetByName(ctx context.Context, name string) (*domain.ToolDefinition, error) {
	var t domain.ToolDefinition
	var schemaJSON []byte

	err := r.db.QueryRow(ctx,
		`SELECT id, name, description, schema, is_active, created_at
		 FROM tool_definitions WHERE name = $1`,
		name,
	).Scan(&t.ID, &t.Name, &t.Description, &schemaJSON, &t.IsActive, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("toolRepo.GetByName: %w", mapError(err))
	}

	if t.InputSchema, err = unmarshalJSON(schemaJSON); err != nil {
		return nil, fmt.Errorf("toolRepo.GetByName: unmarshal schema: %w", err)
	}

	return &t, nil
}
