package domain

import "context"

// Tx exposes the repositories that participate in one atomic unit of work.
type Tx interface {
	// LockSession serializes concurrent units of work on one session until
	// the transaction ends.
	LockSession(ctx context.Context, sessionPK int64) error
	Messages() MessageRepository
	Assignments() AssignmentRepository
}

// ConversationStore is the narrow persistence contract the collaboration
// core depends on. *postgres.Store and *sqlite.Store satisfy it.
type ConversationStore interface {
	Sessions() SessionRepository
	Messages() MessageRepository
	Assignments() AssignmentRepository
	RunLogs() RunLogRepository
	// InTx runs fn inside one transaction. Every write made through tx is
	// committed when fn returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
