package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/fieldworker/internal/model"
)

// ErrNotFound is returned when a requested row does not exist in the cache.
var ErrNotFound = errors.New("not found in local store")

// Table identifies a watched store table.
type Table string

const (
	TableTasks    Table = "tasks"
	TableComments Table = "comments"
	TableActions  Table = "pending_actions"
)

// Store is the persistence contract for the local cache: mirrored tasks,
// their comments, and the pending-action queue. The sync engine is the only
// writer; readers observe changes through Watch.
type Store interface {
	// === Tasks ===

	// UpsertTask and UpsertTasks write server state. They only touch
	// server-owned columns; local shadow fields (pending status, modified
	// flag, last-synced time) survive so a fetch can never silently discard
	// an unsynced edit.
	UpsertTask(ctx context.Context, task model.Task) error
	UpsertTasks(ctx context.Context, tasks []model.Task) error

	GetTask(ctx context.Context, id int64) (*model.Task, error)
	// GetTasks returns all cached tasks ordered by priority (most urgent
	// first), then creation time descending.
	GetTasks(ctx context.Context) ([]model.Task, error)

	DeleteTask(ctx context.Context, id int64) error
	// DeleteTasksNotIn evicts every cached task whose id is absent from ids.
	// An empty set evicts everything.
	DeleteTasksNotIn(ctx context.Context, ids []int64) error
	DeleteAllTasks(ctx context.Context) error

	// SetLocalStatus applies an offline status edit: live status and pending
	// status both become status, and the task is flagged locally modified.
	SetLocalStatus(ctx context.Context, id int64, status model.TaskStatus) error

	// SetLocalPlannedDate applies an offline planned-date edit and flags the
	// task locally modified. Planned-date edits are not queued for replay.
	SetLocalPlannedDate(ctx context.Context, id int64, date *time.Time) error

	// MarkTaskSynced clears the pending status and modified flag and stamps
	// the last-synced time.
	MarkTaskSynced(ctx context.Context, id int64, at time.Time) error

	// === Comments ===

	UpsertComment(ctx context.Context, c model.Comment) error
	UpsertComments(ctx context.Context, cs []model.Comment) error
	// GetComments returns a task's comments ordered by creation time.
	GetComments(ctx context.Context, taskID int64) ([]model.Comment, error)
	DeleteCommentByTempID(ctx context.Context, tempID string) error
	// DeleteLocalStatusComments removes local-only status annotations for a
	// task once its status change has been confirmed by the server.
	DeleteLocalStatusComments(ctx context.Context, taskID int64) error
	DeleteAllComments(ctx context.Context) error

	// === Pending actions ===

	EnqueueAction(ctx context.Context, a model.PendingAction) (int64, error)
	// GetActions returns queued actions oldest-first (replay order).
	GetActions(ctx context.Context) ([]model.PendingAction, error)
	CountActions(ctx context.Context) (int, error)
	DeleteAction(ctx context.Context, id int64) error
	// RecordActionFailure increments the action's retry count and records
	// the error text. The action stays queued.
	RecordActionFailure(ctx context.Context, id int64, errText string) error
	DeleteAllActions(ctx context.Context) error

	// ResolveStatusAction atomically applies the outcome of a successfully
	// replayed UPDATE_STATUS action: upserts the server's canonical task,
	// clears the task's shadow fields, drops its local status annotations,
	// and deletes the queue row.
	ResolveStatusAction(ctx context.Context, actionID int64, task model.Task, syncedAt time.Time) error

	// ResolveCommentAction atomically applies the outcome of a successfully
	// replayed ADD_COMMENT action: deletes the optimistic comment by tempID
	// and inserts the server-confirmed one (nil when the server returned an
	// empty body), then deletes the queue row.
	ResolveCommentAction(ctx context.Context, actionID int64, tempID string, confirmed *model.Comment) error

	// Watch returns a channel that receives a signal after each mutation of
	// the given table. Signals are coalesced; receivers re-query on wake.
	Watch(table Table) <-chan struct{}

	Close() error
}
