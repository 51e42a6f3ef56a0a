package collab_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gosuda/chorus/internal/agent"
	"github.com/gosuda/chorus/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory conversation store. Writes made inside InTx are staged and only
// become visible outside the transaction when fn returns nil.
// ---------------------------------------------------------------------------

type memStore struct {
	mu          sync.Mutex
	nextID      int64
	sessions    []*domain.Session
	messages    []*domain.Message
	assignments []*domain.AgentAssignment
	runs        map[int64]*domain.RunLog

	lockCalls int

	// Optional failure hooks.
	createMessageFunc func(m *domain.Message) error
	createRunFunc     func(r *domain.RunLog) error
	finishRunFunc     func(r *domain.RunLog) error
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[int64]*domain.RunLog)}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addSession(sessionID string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &domain.Session{ID: s.id(), SessionID: sessionID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.sessions = append(s.sessions, sess)
	return sess
}

func (s *memStore) assign(sess *domain.Session, name, role string, order int, override string) *domain.AgentAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &domain.AgentAssignment{
		ID:             s.id(),
		SessionPK:      sess.ID,
		Agent:          &domain.AgentProfile{ID: s.id(), Name: name, Role: role, IsActive: true},
		Order:          order,
		PromptOverride: override,
		CreatedAt:      time.Now(),
	}
	s.assignments = append(s.assignments, a)
	return a
}

func (s *memStore) committedMessages() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *memStore) run(id int64) domain.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.runs[id]
}

func (s *memStore) onlyRun() domain.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		return *r
	}
	panic("no runs")
}

func (s *memStore) Sessions() domain.SessionRepository       { return memSessions{s} }
func (s *memStore) Messages() domain.MessageRepository       { return &memMessages{store: s} }
func (s *memStore) Assignments() domain.AssignmentRepository { return memAssignments{s} }
func (s *memStore) RunLogs() domain.RunLogRepository         { return memRuns{s} }

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx := &memTx{store: s, messages: &memMessages{store: s, staged: []*domain.Message{}}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, tx.messages.staged...)
	return nil
}

type memTx struct {
	store    *memStore
	messages *memMessages
}

func (t *memTx) LockSession(context.Context, int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.lockCalls++
	return nil
}

func (t *memTx) Messages() domain.MessageRepository       { return t.messages }
func (t *memTx) Assignments() domain.AssignmentRepository { return memAssignments{t.store} }

type memSessions struct{ s *memStore }

func (r memSessions) Create(_ context.Context, sess *domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess.ID = r.s.id()
	r.s.sessions = append(r.s.sessions, sess)
	return nil
}

func (r memSessions) GetBySessionID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.SessionID == sessionID {
			return sess, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memSessions) List(context.Context) ([]*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.sessions), nil
}

func (r memSessions) Update(_ context.Context, sess *domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.sessions {
		if existing.SessionID == sess.SessionID {
			r.s.sessions[i] = sess
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r memSessions) Delete(_ context.Context, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := slices.IndexFunc(r.s.sessions, func(sess *domain.Session) bool { return sess.SessionID == sessionID })
	if i < 0 {
		return domain.ErrNotFound
	}
	pk := r.s.sessions[i].ID
	r.s.sessions = slices.Delete(r.s.sessions, i, i+1)
	r.s.messages = slices.DeleteFunc(r.s.messages, func(m *domain.Message) bool { return m.SessionPK == pk })
	r.s.assignments = slices.DeleteFunc(r.s.assignments, func(a *domain.AgentAssignment) bool { return a.SessionPK == pk })
	return nil
}

// memMessages writes to staged when non-nil (inside a transaction).
type memMessages struct {
	store  *memStore
	staged []*domain.Message
}

func (r *memMessages) Create(_ context.Context, m *domain.Message) error {
	if r.store.createMessageFunc != nil {
		if err := r.store.createMessageFunc(m); err != nil {
			return err
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m.ID = r.store.id()
	if r.staged != nil {
		r.staged = append(r.staged, m)
		return nil
	}
	r.store.messages = append(r.store.messages, m)
	return nil
}

func (r *memMessages) ListBySession(_ context.Context, sessionPK int64) ([]*domain.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*domain.Message
	for _, m := range append(slices.Clone(r.store.messages), r.staged...) {
		if m.SessionPK == sessionPK {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (r *memMessages) CountBySession(ctx context.Context, sessionPK int64) (int64, error) {
	msgs, err := r.ListBySession(ctx, sessionPK)
	return int64(len(msgs)), err
}

func (r *memMessages) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, m := range r.store.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memMessages) List(_ context.Context, limit, offset int) ([]*domain.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if offset >= len(r.store.messages) {
		return []*domain.Message{}, nil
	}
	return slices.Clone(r.store.messages[offset:min(offset+limit, len(r.store.messages))]), nil
}

type memAssignments struct{ s *memStore }

func (r memAssignments) Create(_ context.Context, a *domain.AgentAssignment, _ []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	r.s.assignments = append(r.s.assignments, a)
	return nil
}

func (r memAssignments) ListBySession(_ context.Context, sessionPK int64) ([]*domain.AgentAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.AgentAssignment
	for _, a := range r.s.assignments {
		if a.SessionPK == sessionPK {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.AgentAssignment) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

type memRuns struct{ s *memStore }

func (r memRuns) Create(_ context.Context, run *domain.RunLog) error {
	if r.s.createRunFunc != nil {
		if err := r.s.createRunFunc(run); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run.ID = r.s.id()
	stored := *run
	r.s.runs[run.ID] = &stored
	return nil
}

func (r memRuns) Finish(_ context.Context, run *domain.RunLog) error {
	if r.s.finishRunFunc != nil {
		if err := r.s.finishRunFunc(run); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.runs[run.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.RunStatusRunning {
		return domain.ErrInvalidTransition
	}
	*stored = *run
	return nil
}

func (r memRuns) GetByID(_ context.Context, id int64) (*domain.RunLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

func (r memRuns) ListBySession(_ context.Context, sessionPK int64) ([]*domain.RunLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.RunLog
	for _, run := range r.s.runs {
		if run.SessionPK == sessionPK {
			cp := *run
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.RunLog) int { return int(b.ID - a.ID) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Broadcaster and producer doubles
// ---------------------------------------------------------------------------

type recordedEvent struct {
	sessionID string
	event     string
	payload   map[string]any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ context.Context, sessionID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, _ := payload.(map[string]any)
	r.events = append(r.events, recordedEvent{sessionID: sessionID, event: event, payload: p})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event)
	}
	return out
}

func (r *recorder) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type mockProducer struct {
	mu       sync.Mutex
	requests []agent.TurnRequest

	produceTurnFunc func(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
}

func (m *mockProducer) ProduceTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.produceTurnFunc != nil {
		return m.produceTurnFunc(ctx, req)
	}
	return agent.NewMockProducer(0).ProduceTurn(ctx, req)
}
