package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gosuda/chorus/internal/domain"
)

type MessageRepo struct {
	db querier
}

func NewMessageRepo(db querier) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if !m.Role.Valid() {
		return fmt.Errorf("messageRepo.Create: unknown role %q", m.Role)
	}

	toolInput, err := marshalJSON(m.ToolInput)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: marshal tool input: %w", err)
	}
	toolOutput, err := marshalJSON(m.ToolOutput)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: marshal tool output: %w", err)
	}
	metadata, err := marshalJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: marshal metadata: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO messages (session_pk, role, agent_id, content, tool_name, tool_input, tool_output,
		                       tokens_prompt, tokens_completion, latency_ms, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		m.SessionPK, m.Role, m.AgentID, m.Content, m.ToolName, toolInput, toolOutput,
		m.TokensPrompt, m.TokensCompletion, m.LatencyMS, metadata, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("messageRepo.Create: %w", mapError(err))
	}

	return nil
}

func (r *MessageRepo) ListBySession(ctx context.Context, sessionPK int64) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx,
		selectMessages+` WHERE m.session_pk = $1 ORDER BY m.created_at ASC, m.id ASC`,
		sessionPK,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows, "messageRepo.ListBySession")
}

func (r *MessageRepo) CountBySession(ctx context.Context, sessionPK int64) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_pk = $1`,
		sessionPK,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("messageRepo.CountBySession: %w", err)
	}

	return count, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	rows, err := r.db.Query(ctx, selectMessages+` WHERE m.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.GetByID: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows, "messageRepo.GetByID")
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("messageRepo.GetByID: %w", domain.ErrNotFound)
	}

	return messages[0], nil
}

func (r *MessageRepo) List(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx,
		selectMessages+` ORDER BY m.created_at ASC, m.id ASC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.List: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows, "messageRepo.List")
}

const selectMessages = `SELECT m.id, m.session_pk, m.role, m.agent_id, a.name, m.content, m.tool_name, m.tool_input, m.tool_output,
		        m.tokens_prompt, m.tokens_completion, m.latency_ms, m.metadata, m.created_at
		 FROM messages m
		 LEFT JOIN agent_profiles a ON a.id = m.agent_id`

func scanMessages(rows pgx.Rows, caller string) ([]*domain.Message, error) {
	messages := []*domain.Message{}
	for rows.Next() {
		var m domain.Message
		var agentName *string
		var toolInput, toolOutput, metadata []byte

		if err := rows.Scan(
			&m.ID, &m.SessionPK, &m.Role, &m.AgentID, &agentName, &m.Content, &m.ToolName, &toolInput, &toolOutput,
			&m.TokensPrompt, &m.TokensCompletion, &m.LatencyMS, &metadata, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if agentName != nil {
			m.AgentName = *agentName
		}

		var err error
		if m.ToolInput, err = unmarshalJSON(toolInput); err != nil {
			return nil, fmt.Errorf("%s: unmarshal tool input: %w", caller, err)
		}
		if m.ToolOutput, err = unmarshalJSON(toolOutput); err != nil {
			return nil, fmt.Errorf("%s: unmarshal tool output: %w", caller, err)
		}
		if m.Metadata, err = unmarshalJSON(metadata); err != nil {
			return nil, fmt.Errorf("%s: unmarshal metadata: %w", caller, err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return messages, nil
}
