package v1_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/chorus/internal/domain"
)

// parseErrorBody decodes the RFC 9457 problem detail from the response body.
func parseErrorBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	sessions    *mockSessionRepo
	agents      *mockAgentRepo
	tools       *mockToolRepo
	assignments *mockAssignmentRepo
	messages    *mockMessageRepo
	runLogs     *mockRunLogRepo
}

func newMockDataStore() *mockDataStore {
	return &mockDataStore{
		sessions:    &mockSessionRepo{},
		agents:      &mockAgentRepo{},
		tools:       &mockToolRepo{},
		assignments: &mockAssignmentRepo{},
		messages:    &mockMessageRepo{},
		runLogs:     &mockRunLogRepo{},
	}
}

func (m *mockDataStore) Sessions() domain.SessionRepository       { return m.sessions }
func (m *mockDataStore) Agents() domain.AgentRepository           { return m.agents }
func (m *mockDataStore) Tools() domain.ToolRepository             { return m.tools }
func (m *mockDataStore) Assignments() domain.AssignmentRepository { return m.assignments }
func (m *mockDataStore) Messages() domain.MessageRepository       { return m.messages }
func (m *mockDataStore) RunLogs() domain.RunLogRepository         { return m.runLogs }

// ---------------------------------------------------------------------------
// Mock SessionRepository
// ---------------------------------------------------------------------------

type mockSessionRepo struct {
	createFunc         func(ctx context.Context, s *domain.Session) error
	getBySessionIDFunc func(ctx context.Context, sessionID string) (*domain.Session, error)
	listFunc           func(ctx context.Context) ([]*domain.Session, error)
	updateFunc         func(ctx context.Context, s *domain.Session) error
	deleteFunc         func(ctx context.Context, sessionID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	return m.createFunc(ctx, s)
}

func (m *mockSessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.getBySessionIDFunc(ctx, sessionID)
}

func (m *mockSessionRepo) List(ctx context.Context) ([]*domain.Session, error) {
	return m.listFunc(ctx)
}

func (m *mockSessionRepo) Update(ctx context.Context, s *domain.Session) error {
	return m.updateFunc(ctx, s)
}

func (m *mockSessionRepo) Delete(ctx context.Context, sessionID string) error {
	return m.deleteFunc(ctx, sessionID)
}

// ---------------------------------------------------------------------------
// Mock AgentRepository
// ---------------------------------------------------------------------------

type mockAgentRepo struct {
	createFunc    func(ctx context.Context, a *domain.AgentProfile) error
	getByNameFunc func(ctx context.Context, name string) (*domain.AgentProfile, error)
	listFunc      func(ctx context.Context) ([]*domain.AgentProfile, error)
	deleteFunc    func(ctx context.Context, id int64) error
}

func (m *mockAgentRepo) Create(ctx context.Context, a *domain.AgentProfile) error {
	return m.createFunc(ctx, a)
}

func (m *mockAgentRepo) GetByName(ctx context.Context, name string) (*domain.AgentProfile, error) {
	return m.getByNameFunc(ctx, name)
}

func (m *mockAgentRepo) List(ctx context.Context) ([]*domain.AgentProfile, error) {
	return m.listFunc(ctx)
}

func (m *mockAgentRepo) Delete(ctx context.Context, id int64) error {
	return m.deleteFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock ToolRepository
// ---------------------------------------------------------------------------

type mockToolRepo struct {
	createFunc    func(ctx context.Context, t *domain.ToolDefinition) error
	getByNameFunc func(ctx context.Context, name string) (*domain.ToolDefinition, error)
}

func (m *mockToolRepo) Create(ctx context.Context, t *domain.ToolDefinition) error {
	return m.createFunc(ctx, t)
}

func (m *mockToolRepo) GetByName(ctx context.Context, name string) (*domain.ToolDefinition, error) {
	return m.getByNameFunc(ctx, name)
}

// ---------------------------------------------------------------------------
// Mock AssignmentRepository
// ---------------------------------------------------------------------------

type mockAssignmentRepo struct {
	createFunc        func(ctx context.Context, a *domain.AgentAssignment, toolIDs []int64) error
	listBySessionFunc func(ctx context.Context, sessionPK int64) ([]*domain.AgentAssignment, error)
}

func (m *mockAssignmentRepo) Create(ctx context.Context, a *domain.AgentAssignment, toolIDs []int64) error {
	return m.createFunc(ctx, a, toolIDs)
}

func (m *mockAssignmentRepo) ListBySession(ctx context.Context, sessionPK int64) ([]*domain.AgentAssignment, error) {
	return m.listBySessionFunc(ctx, sessionPK)
}

// ---------------------------------------------------------------------------
// Mock MessageRepository
// ---------------------------------------------------------------------------

type mockMessageRepo struct {
	createFunc         func(ctx context.Context, msg *domain.Message) error
	listBySessionFunc  func(ctx context.Context, sessionPK int64) ([]*domain.Message, error)
	countBySessionFunc func(ctx context.Context, sessionPK int64) (int64, error)
	getByIDFunc        func(ctx context.Context, id int64) (*domain.Message, error)
	listFunc           func(ctx context.Context, limit, offset int) ([]*domain.Message, error)
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	return m.createFunc(ctx, msg)
}

func (m *mockMessageRepo) ListBySession(ctx context.Context, sessionPK int64) ([]*domain.Message, error) {
	return m.listBySessionFunc(ctx, sessionPK)
}

func (m *mockMessageRepo) CountBySession(ctx context.Context, sessionPK int64) (int64, error) {
	return m.countBySessionFunc(ctx, sessionPK)
}

func (m *mockMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockMessageRepo) List(ctx context.Context, limit, offset int) ([]*domain.Message, error) {
	return m.listFunc(ctx, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock RunLogRepository
// ---------------------------------------------------------------------------

type mockRunLogRepo struct {
	createFunc        func(ctx context.Context, r *domain.RunLog) error
	finishFunc        func(ctx context.Context, r *domain.RunLog) error
	getByIDFunc       func(ctx context.Context, id int64) (*domain.RunLog, error)
	listBySessionFunc func(ctx context.Context, sessionPK int64) ([]*domain.RunLog, error)
}

func (m *mockRunLogRepo) Create(ctx context.Context, r *domain.RunLog) error {
	return m.createFunc(ctx, r)
}

func (m *mockRunLogRepo) Finish(ctx context.Context, r *domain.RunLog) error {
	return m.finishFunc(ctx, r)
}

func (m *mockRunLogRepo) GetByID(ctx context.Context, id int64) (*domain.RunLog, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRunLogRepo) ListBySession(ctx context.Context, sessionPK int64) ([]*domain.RunLog, error) {
	return m.listBySessionFunc(ctx, sessionPK)
}

// ---------------------------------------------------------------------------
// Mock Collaborator
// ---------------------------------------------------------------------------

type mockCollaborator struct {
	runCollaborationFunc func(ctx context.Context, session *domain.Session, userText string, metadata map[string]any) ([]*domain.Message, error)
}

func (m *mockCollaborator) RunCollaboration(ctx context.Context, session *domain.Session, userText string, metadata map[string]any) ([]*domain.Message, error) {
	return m.runCollaborationFunc(ctx, session, userText, metadata)
}
