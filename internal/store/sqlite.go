package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/fieldworker/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db       *sqlx.DB
	notifier *notifier
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, notifier: newNotifier()}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Watch returns a change-notification channel for the given table.
func (s *SQLiteStore) Watch(table Table) <-chan struct{} {
	return s.notifier.watch(table)
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// upsertTaskSQL writes server-owned columns only. The shadow columns
// (pending_status, locally_modified, last_synced_at) are left untouched on
// conflict so a listing fetch cannot discard an unsynced local edit.
const upsertTaskSQL = `
	INSERT INTO tasks (
		id, task_number, title, description, address, lat, lon,
		status, priority, planned_date, completed_at, created_at, updated_at,
		assigned_user_id, assigned_user_name, customer_name, customer_phone
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		task_number        = excluded.task_number,
		title              = excluded.title,
		description        = excluded.description,
		address            = excluded.address,
		lat                = excluded.lat,
		lon                = excluded.lon,
		status             = excluded.status,
		priority           = excluded.priority,
		planned_date       = excluded.planned_date,
		completed_at       = excluded.completed_at,
		created_at         = excluded.created_at,
		updated_at         = excluded.updated_at,
		assigned_user_id   = excluded.assigned_user_id,
		assigned_user_name = excluded.assigned_user_name,
		customer_name      = excluded.customer_name,
		customer_phone     = excluded.customer_phone`

func taskArgs(t model.Task) []interface{} {
	return []interface{}{
		t.ID, t.Number, t.Title, t.Description, t.Address, t.Lat, t.Lon,
		string(t.Status), int(t.Priority),
		nullableTime(t.PlannedDate), nullableTime(t.CompletedAt),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		t.AssignedUserID, t.AssignedUserName, t.CustomerName, t.CustomerPhone,
	}
}

// UpsertTask inserts or updates a single task's server state.
func (s *SQLiteStore) UpsertTask(ctx context.Context, t model.Task) error {
	if _, err := s.db.ExecContext(ctx, upsertTaskSQL, taskArgs(t)...); err != nil {
		return fmt.Errorf("upserting task %d: %w", t.ID, err)
	}
	s.notifier.notify(TableTasks)
	return nil
}

// UpsertTasks inserts or updates a batch of tasks in one transaction.
func (s *SQLiteStore) UpsertTasks(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertTaskSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, taskArgs(t)...); err != nil {
			return fmt.Errorf("upserting task %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task upserts: %w", err)
	}
	s.notifier.notify(TableTasks)
	return nil
}

// GetTask retrieves a single task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM tasks WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying task %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying task %d: %w", id, err)
		}
		return nil, ErrNotFound
	}

	t, err := scanTask(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTasks retrieves all cached tasks, most urgent first, newest first
// within a priority.
func (s *SQLiteStore) GetTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM tasks ORDER BY priority DESC, created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// DeleteTask removes a task and its comments from the cache.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE task_id = ?", id); err != nil {
		return fmt.Errorf("deleting comments for task %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting task %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task delete: %w", err)
	}
	s.notifier.notify(TableTasks)
	s.notifier.notify(TableComments)
	return nil
}

// DeleteTasksNotIn evicts every cached task absent from ids, together with
// the evicted tasks' comments. An empty set evicts everything.
func (s *SQLiteStore) DeleteTasksNotIn(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if len(ids) == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM comments"); err != nil {
			return fmt.Errorf("deleting comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
			return fmt.Errorf("deleting tasks: %w", err)
		}
	} else {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
		args := make([]interface{}, len(ids))
		for i, id := range ids {
			args[i] = id
		}

		q := "DELETE FROM comments WHERE task_id NOT IN (" + placeholders + ")"
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("evicting stale comments: %w", err)
		}
		q = "DELETE FROM tasks WHERE id NOT IN (" + placeholders + ")"
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("evicting stale tasks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing eviction: %w", err)
	}
	s.notifier.notify(TableTasks)
	s.notifier.notify(TableComments)
	return nil
}

// DeleteAllTasks wipes the task cache.
func (s *SQLiteStore) DeleteAllTasks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("deleting all tasks: %w", err)
	}
	s.notifier.notify(TableTasks)
	return nil
}

// SetLocalStatus applies an offline status edit.
func (s *SQLiteStore) SetLocalStatus(ctx context.Context, id int64, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, pending_status = ?, locally_modified = 1
		WHERE id = ?`,
		string(status), string(status), id,
	)
	if err != nil {
		return fmt.Errorf("setting local status for task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notifier.notify(TableTasks)
	return nil
}

// SetLocalPlannedDate applies an offline planned-date edit.
func (s *SQLiteStore) SetLocalPlannedDate(ctx context.Context, id int64, date *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET planned_date = ?, locally_modified = 1
		WHERE id = ?`,
		nullableTime(date), id,
	)
	if err != nil {
		return fmt.Errorf("setting planned date for task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notifier.notify(TableTasks)
	return nil
}

// MarkTaskSynced clears the task's shadow fields after server confirmation.
func (s *SQLiteStore) MarkTaskSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET pending_status = NULL, locally_modified = 0, last_synced_at = ?
		WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking task %d synced: %w", id, err)
	}
	s.notifier.notify(TableTasks)
	return nil
}

// UpsertComment inserts or replaces a single comment. Confirmed comments
// are keyed by server id, local placeholders by temp id.
func (s *SQLiteStore) UpsertComment(ctx context.Context, c model.Comment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertCommentTx(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing comment upsert: %w", err)
	}
	s.notifier.notify(TableComments)
	return nil
}

// UpsertComments inserts or replaces a batch of comments in one transaction.
func (s *SQLiteStore) UpsertComments(ctx context.Context, cs []model.Comment) error {
	if len(cs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cs {
		if err := upsertCommentTx(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing comment upserts: %w", err)
	}
	s.notifier.notify(TableComments)
	return nil
}

func upsertCommentTx(ctx context.Context, tx *sqlx.Tx, c model.Comment) error {
	if c.ID.IsLocal() {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM comments WHERE temp_id = ?", c.ID.TempID(),
		); err != nil {
			return fmt.Errorf("replacing local comment %s: %w", c.ID, err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM comments WHERE server_id = ?", c.ID.Remote(),
		); err != nil {
			return fmt.Errorf("replacing comment %s: %w", c.ID, err)
		}
	}

	var serverID sql.NullInt64
	var tempID sql.NullString
	if c.ID.IsLocal() {
		tempID = sql.NullString{String: c.ID.TempID(), Valid: true}
	} else {
		serverID = sql.NullInt64{Int64: c.ID.Remote(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO comments (
			server_id, temp_id, task_id, text, author,
			old_status, new_status, created_at, local_only
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		serverID, tempID, c.TaskID, c.Text, c.Author,
		nullableStatus(c.OldStatus), nullableStatus(c.NewStatus),
		c.CreatedAt.UTC(), boolToInt(c.LocalOnly),
	)
	if err != nil {
		return fmt.Errorf("inserting comment %s: %w", c.ID, err)
	}
	return nil
}

// GetComments retrieves a task's comments ordered by creation time.
func (s *SQLiteStore) GetComments(ctx context.Context, taskID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT server_id, temp_id, task_id, text, author,
		       old_status, new_status, created_at, local_only
		FROM comments WHERE task_id = ?
		ORDER BY created_at, pk`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying comments for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

// DeleteCommentByTempID removes a local placeholder comment.
func (s *SQLiteStore) DeleteCommentByTempID(ctx context.Context, tempID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM comments WHERE temp_id = ?", tempID,
	); err != nil {
		return fmt.Errorf("deleting comment temp_id=%s: %w", tempID, err)
	}
	s.notifier.notify(TableComments)
	return nil
}

// DeleteLocalStatusComments removes local-only status annotations for a task.
func (s *SQLiteStore) DeleteLocalStatusComments(ctx context.Context, taskID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM comments
		WHERE task_id = ? AND local_only = 1 AND new_status IS NOT NULL`,
		taskID,
	); err != nil {
		return fmt.Errorf("deleting local status comments for task %d: %w", taskID, err)
	}
	s.notifier.notify(TableComments)
	return nil
}

// DeleteAllComments wipes the comment cache.
func (s *SQLiteStore) DeleteAllComments(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM comments"); err != nil {
		return fmt.Errorf("deleting all comments: %w", err)
	}
	s.notifier.notify(TableComments)
	return nil
}

// EnqueueAction appends a pending action to the replay queue.
func (s *SQLiteStore) EnqueueAction(ctx context.Context, a model.PendingAction) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (
			task_id, action_type, action_uid, new_status,
			comment_text, temp_id, retry_count, last_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TaskID, string(a.Type), a.ActionUID, nullableStatus(a.NewStatus),
		a.CommentText, a.TempID, a.RetryCount, a.LastError, a.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueueing %s action for task %d: %w", a.Type, a.TaskID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading action id: %w", err)
	}
	s.notifier.notify(TableActions)
	return id, nil
}

// GetActions retrieves all queued actions in replay (creation) order.
func (s *SQLiteStore) GetActions(ctx context.Context) ([]model.PendingAction, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, task_id, action_type, action_uid, new_status,
		       comment_text, temp_id, retry_count, last_error, created_at
		FROM pending_actions
		ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending actions: %w", err)
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// CountActions returns the number of queued actions.
func (s *SQLiteStore) CountActions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM pending_actions"); err != nil {
		return 0, fmt.Errorf("counting pending actions: %w", err)
	}
	return n, nil
}

// DeleteAction removes a replayed action from the queue.
func (s *SQLiteStore) DeleteAction(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM pending_actions WHERE id = ?", id,
	); err != nil {
		return fmt.Errorf("deleting action %d: %w", id, err)
	}
	s.notifier.notify(TableActions)
	return nil
}

// RecordActionFailure increments an action's retry count and records the
// failure reason. The action stays queued.
func (s *SQLiteStore) RecordActionFailure(ctx context.Context, id int64, errText string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions
		SET retry_count = retry_count + 1, last_error = ?
		WHERE id = ?`,
		errText, id,
	); err != nil {
		return fmt.Errorf("recording failure for action %d: %w", id, err)
	}
	s.notifier.notify(TableActions)
	return nil
}

// DeleteAllActions wipes the pending-action queue.
func (s *SQLiteStore) DeleteAllActions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_actions"); err != nil {
		return fmt.Errorf("deleting all actions: %w", err)
	}
	s.notifier.notify(TableActions)
	return nil
}

// ResolveStatusAction applies a confirmed UPDATE_STATUS replay atomically.
func (s *SQLiteStore) ResolveStatusAction(ctx context.Context, actionID int64, task model.Task, syncedAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertTaskSQL, taskArgs(task)...); err != nil {
		return fmt.Errorf("upserting confirmed task %d: %w", task.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET pending_status = NULL, locally_modified = 0, last_synced_at = ?
		WHERE id = ?`,
		syncedAt.UTC(), task.ID,
	); err != nil {
		return fmt.Errorf("clearing shadow fields for task %d: %w", task.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM comments
		WHERE task_id = ? AND local_only = 1 AND new_status IS NOT NULL`,
		task.ID,
	); err != nil {
		return fmt.Errorf("dropping local annotations for task %d: %w", task.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pending_actions WHERE id = ?", actionID,
	); err != nil {
		return fmt.Errorf("deleting action %d: %w", actionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing status resolution: %w", err)
	}
	s.notifier.notify(TableTasks)
	s.notifier.notify(TableComments)
	s.notifier.notify(TableActions)
	return nil
}

// ResolveCommentAction applies a confirmed ADD_COMMENT replay atomically.
func (s *SQLiteStore) ResolveCommentAction(ctx context.Context, actionID int64, tempID string, confirmed *model.Comment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if tempID != "" {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM comments WHERE temp_id = ?", tempID,
		); err != nil {
			return fmt.Errorf("deleting temp comment %s: %w", tempID, err)
		}
	}
	if confirmed != nil {
		if err := upsertCommentTx(ctx, tx, *confirmed); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pending_actions WHERE id = ?", actionID,
	); err != nil {
		return fmt.Errorf("deleting action %d: %w", actionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing comment resolution: %w", err)
	}
	s.notifier.notify(TableComments)
	s.notifier.notify(TableActions)
	return nil
}

// scanTask scans a task row from a sqlx.Rows result set.
func scanTask(rows *sqlx.Rows) (model.Task, error) {
	var (
		t               model.Task
		status          string
		priority        int
		plannedDate     sql.NullTime
		completedAt     sql.NullTime
		assignedUserID  sql.NullInt64
		pendingStatus   sql.NullString
		locallyModified int
		lastSyncedAt    sql.NullTime
	)

	err := rows.Scan(
		&t.ID, &t.Number, &t.Title, &t.Description, &t.Address, &t.Lat, &t.Lon,
		&status, &priority, &plannedDate, &completedAt,
		&t.CreatedAt, &t.UpdatedAt,
		&assignedUserID, &t.AssignedUserName, &t.CustomerName, &t.CustomerPhone,
		&pendingStatus, &locallyModified, &lastSyncedAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("scanning task row: %w", err)
	}

	t.Status = model.TaskStatus(status)
	t.Priority = model.TaskPriority(priority)
	if plannedDate.Valid {
		d := plannedDate.Time
		t.PlannedDate = &d
	}
	if completedAt.Valid {
		d := completedAt.Time
		t.CompletedAt = &d
	}
	if assignedUserID.Valid {
		id := assignedUserID.Int64
		t.AssignedUserID = &id
	}
	if pendingStatus.Valid {
		ps := model.TaskStatus(pendingStatus.String)
		t.PendingStatus = &ps
	}
	t.LocallyModified = locallyModified != 0
	if lastSyncedAt.Valid {
		d := lastSyncedAt.Time
		t.LastSyncedAt = &d
	}

	return t, nil
}

// scanComment scans a comment row from a sqlx.Rows result set.
func scanComment(rows *sqlx.Rows) (model.Comment, error) {
	var (
		c         model.Comment
		serverID  sql.NullInt64
		tempID    sql.NullString
		oldStatus sql.NullString
		newStatus sql.NullString
		localOnly int
	)

	err := rows.Scan(
		&serverID, &tempID, &c.TaskID, &c.Text, &c.Author,
		&oldStatus, &newStatus, &c.CreatedAt, &localOnly,
	)
	if err != nil {
		return model.Comment{}, fmt.Errorf("scanning comment row: %w", err)
	}

	if tempID.Valid {
		c.ID = model.LocalCommentID(tempID.String)
	} else {
		c.ID = model.RemoteCommentID(serverID.Int64)
	}
	if oldStatus.Valid {
		st := model.TaskStatus(oldStatus.String)
		c.OldStatus = &st
	}
	if newStatus.Valid {
		st := model.TaskStatus(newStatus.String)
		c.NewStatus = &st
	}
	c.LocalOnly = localOnly != 0

	return c, nil
}

// scanAction scans a pending-action row from a sqlx.Rows result set.
func scanAction(rows *sqlx.Rows) (model.PendingAction, error) {
	var (
		a          model.PendingAction
		actionType string
		newStatus  sql.NullString
	)

	err := rows.Scan(
		&a.ID, &a.TaskID, &actionType, &a.ActionUID, &newStatus,
		&a.CommentText, &a.TempID, &a.RetryCount, &a.LastError, &a.CreatedAt,
	)
	if err != nil {
		return model.PendingAction{}, fmt.Errorf("scanning action row: %w", err)
	}

	a.Type = model.ActionType(actionType)
	if newStatus.Valid {
		st := model.TaskStatus(newStatus.String)
		a.NewStatus = &st
	}

	return a, nil
}

// nullableTime converts an optional time to a driver-friendly value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullableStatus converts an optional status to a driver-friendly value.
func nullableStatus(s *model.TaskStatus) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
