package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gosuda/chorus/internal/domain"
)

type AgentRepo struct {
	db dbtx
}

func NewAgentRepo(db dbtx) *AgentRepo {
	return &AgentRepo{db: db}
}

func (r *AgentRepo) Create(ctx context.Context, a *domain.AgentProfile) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO agent_profiles (name, role, description, model_hint, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Role, a.Description, a.ModelHint, a.IsActive, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("agentRepo.Create: %w", mapError(err))
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("agentRepo.Create: last insert id: %w", err)
	}

	return nil
}

func (r *AgentRepo) GetByName(ctx context.Context, name string) (*domain.AgentProfile, error) {
	var a domain.AgentProfile

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, role, description, model_hint, is_active, created_at, updated_at
		 FROM agent_profiles WHERE name = ?`,
		name,
	).Scan(&a.ID, &a.Name, &a.Role, &a.Description, &a.ModelHint, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("agentRepo.GetByName: %w", mapError(err))
	}

	return &a, nil
}

func (r *AgentRepo) List(ctx context.Context) ([]*domain.AgentProfile, error) {
	rows, err := r.db.QueryContext(ctx,
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM agent_profiles WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("agentRepo.Delete: %w", domain.ErrProtected)
		}
		return fmt.Errorf("agentRepo.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("agentRepo.Delete: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agentRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

type ToolRepo struct {
	db dbtx
}

func NewToolRepo(db dbtx) *ToolRepo {
	return &ToolRepo{db: db}
}

func (r *ToolRepo) Create(ctx context.Context, t *domain.ToolDefinition) error {
	schemaJSON, err := nullJSON(t.InputSchema)
	if err != nil {
		return fmt.Errorf("toolRepo.Create: marshal schema: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tool_definitions (name, description, schema, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.Name, t.Description, schemaJSON, t.IsActive, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("toolRepo.Create: %w", mapError(err))
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("toolRepo.Create: last insert id: %w", err)
	}

	return nil
}

func (r *ToolRepo) GetByName(ctx context.Context, name string) (*domain.ToolDefinition, error) {
	var t domain.ToolDefinition
	var schemaJSON sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, schema, is_active, created_at
		 FROM tool_definitions WHERE name = ?`,
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
