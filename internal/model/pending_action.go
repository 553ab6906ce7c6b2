package model

import "time"

// ActionType identifies the kind of queued offline mutation.
type ActionType string

const (
	ActionUpdateStatus ActionType = "UPDATE_STATUS"
	ActionAddComment   ActionType = "ADD_COMMENT"
)

// PendingAction is a mutation made while offline, queued for replay once
// connectivity returns. Only the payload fields relevant to Type are
// populated. Actions are replayed oldest-first and removed only after the
// server accepts them (or on an explicit cache clear).
type PendingAction struct {
	// ID is the local auto-increment queue id.
	ID int64

	// TaskID is the task the mutation targets.
	TaskID int64

	Type ActionType

	// ActionUID is a client-generated idempotency key sent with the replayed
	// request so the server can drop duplicates if a crash lands between
	// "server accepted" and "queue row deleted".
	ActionUID string

	// NewStatus is set for UPDATE_STATUS actions.
	NewStatus *TaskStatus

	// CommentText carries the comment body (ADD_COMMENT) or the optional
	// annotation accompanying a status change (UPDATE_STATUS).
	CommentText string

	// TempID ties an ADD_COMMENT action to its optimistic local comment.
	TempID string

	// RetryCount and LastError track failed replay attempts. The action is
	// never dropped on failure.
	RetryCount int
	LastError  string

	// CreatedAt is the enqueue time and defines replay order.
	CreatedAt time.Time
}
