package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gosuda/chorus/internal/domain"
)

type AssignmentRepo struct {
	db dbtx
}

func NewAssignmentRepo(db dbtx) *AssignmentRepo {
	return &AssignmentRepo{db: db}
}

func (r *AssignmentRepo) Create(ctx context.Context, a *domain.AgentAssignment, toolIDs []int64) error {
	if a.Agent == nil {
		return fmt.Errorf("assignmentRepo.Create: agent is required")
	}

	err := inTx(ctx, r.db, func(q dbtx) error {
		res, err := q.ExecContext(ctx,
			`INSERT INTO chat_agent_assignments (session_pk, agent_id, sort_order, prompt_override, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			a.SessionPK, a.Agent.ID, a.Order, a.PromptOverride, a.CreatedAt.UTC(),
		)
		if err != nil {
			return mapError(err)
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		for _, toolID := range toolIDs {
			if _, err = q.ExecContext(ctx,
				`INSERT INTO chat_agent_assignment_tools (assignment_id, tool_id) VALUES (?, ?)`,
				a.ID, toolID,
			); err != nil {
				return fmt.Errorf("link tool %d: %w", toolID, mapError(err))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("assignmentRepo.Create: %w", err)
	}

	return nil
}

func (r *AssignmentRepo) ListBySession(ctx context.Context, sessionPK int64) ([]*domain.AgentAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.session_pk, s.sort_order, s.prompt_override, s.created_at,
		        a.id, a.name, a.role, a.description, a.model_hint, a.is_active, a.created_at, a.updated_at
		 FROM chat_agent_assignments s
		 JOIN agent_profiles a ON a.id = s.agent_id
		 WHERE s.session_pk = ?
		 ORDER BY s.sort_order ASC, s.id ASC`,
		sessionPK,
	)
	if err != nil {
		return nil, fmt.Errorf("assignmentRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	assignments := []*domain.AgentAssignment{}
	byID := make(map[int64]*domain.AgentAssignment)
	for rows.Next() {
		s := domain.AgentAssignment{Agent: &domain.AgentProfile{}}
		a := s.Agent

		err = rows.Scan(
			&s.ID, &s.SessionPK, &s.Order, &s.PromptOverride, &s.CreatedAt,
			&a.ID, &a.Name, &a.Role, &a.Description, &a.ModelHint, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("assignmentRepo.ListBySession: scan: %w", err)
		}
		assignments = append(assignments, &s)
		byID[s.ID] = &s
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("assignmentRepo.ListBySession: rows: %w", err)
	}
	_ = rows.Close()

	if len(assignments) == 0 {
		return assignments, nil
	}

	if err = r.loadTools(ctx, byID); err != nil {
		return nil, fmt.Errorf("assignmentRepo.ListBySession: %w", err)
	}

	return assignments, nil
}

func (r *AssignmentRepo) loadTools(ctx context.Context, byID map[int64]*domain.AgentAssignment) error {
	args := make([]any, 0, len(byID))
	for id := range byID {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := r.db.QueryContext(ctx,
		`SELECT l.assignment_id, t.id, t.name, t.description, t.schema, t.is_active, t.created_at
		 FROM chat_agent_assignment_tools l
		 JOIN tool_definitions t ON t.id = l.tool_id
		 WHERE l.assignment_id IN (`+placeholders+`)
		 ORDER BY t.name`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("load tools: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var assignmentID int64
		var t domain.ToolDefinition
		var schemaJSON sql.NullString

		if err = rows.Scan(&assignmentID, &t.ID, &t.Name, &t.Description, &schemaJSON, &t.IsActive, &t.CreatedAt); err != nil {
			return fmt.Errorf("load tools: scan: %w", err)
		}
		if t.InputSchema, err = unmarshalJSON(schemaJSON); err != nil {
			return fmt.Errorf("load tools: unmarshal schema: %w", err)
		}
		s := byID[assignmentID]
		s.Tools = append(s.Tools, t)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("load tools: rows: %w", err)
	}

	return nil
}
