// Package sync implements the offline-first synchronization core: it
// reconciles the local cache with the dispatch server, queues mutations
// made offline, and replays them in order once connectivity returns.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/connectivity"
	"github.com/nhle/fieldworker/internal/model"
	"github.com/nhle/fieldworker/internal/store"
)

// OfflineAuthor is the author label attached to comments created without
// connectivity; no richer identity is available offline.
const OfflineAuthor = "Employee"

// DefaultPageSize is the listing page size used during a full refresh.
const DefaultPageSize = 100

// ErrUnavailable is returned by read operations when there is neither
// connectivity nor cached data to fall back on.
var ErrUnavailable = errors.New("no connection and no cached data")

// Remote is the subset of the dispatch API the engine drives. *api.Client
// satisfies it.
type Remote interface {
	ListTasks(ctx context.Context, page, size int) (*api.TaskPage, error)
	GetTask(ctx context.Context, id int64) (*model.Task, []model.Comment, error)
	UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, comment, actionUID string) (*model.Task, error)
	AddComment(ctx context.Context, taskID int64, text, author, actionUID string) (*model.Comment, error)
	UpdatePlannedDate(ctx context.Context, id int64, date *time.Time) (*model.Task, error)
}

// TaskDetail is a task together with its comment history, composed from the
// server when reachable and from the cache otherwise.
type TaskDetail struct {
	Task     model.Task
	Comments []model.Comment
}

// Engine is the synchronization core. It is the sole writer of the local
// store; the presentation layer reads through the reactive views and
// mutates through the operation methods, which transparently choose online
// or queued-offline execution.
//
// Sync cycles (refresh and replay) are serialized by an internal mutex: a
// cycle starting while another runs waits for it and then operates on the
// updated queue, so a pending action can never be replayed twice.
type Engine struct {
	store   store.Store
	remote  Remote
	monitor connectivity.Monitor
	logger  *log.Logger

	pageSize int

	// cycleMu serializes replay/refresh cycles.
	cycleMu chanMutex

	// Injection points for tests.
	now          func() time.Time
	newTempID    func() string
	newActionUID func() string
}

// chanMutex is a mutex that can be acquired with context cancellation.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	return make(chanMutex, 1)
}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() {
	<-m
}

// New creates a sync engine over the given store, remote service, and
// connectivity monitor. If logger is nil, a default logger writing to
// stderr is used.
func New(s store.Store, remote Remote, monitor connectivity.Monitor, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:        s,
		remote:       remote,
		monitor:      monitor,
		logger:       logger,
		pageSize:     DefaultPageSize,
		cycleMu:      newChanMutex(),
		now:          time.Now,
		newTempID:    func() string { return uuid.New().String() },
		newActionUID: func() string { return uuid.New().String() },
	}
}

// Tasks returns the current unified task view from the local cache.
func (e *Engine) Tasks(ctx context.Context) ([]model.Task, error) {
	return e.store.GetTasks(ctx)
}

// PendingCount returns the number of queued offline mutations.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.CountActions(ctx)
}

// WatchTasks returns a channel that carries the full task view after every
// change. The channel is closed when ctx is cancelled. Intermediate states
// may be skipped under load; the latest state is always delivered.
func (e *Engine) WatchTasks(ctx context.Context) <-chan []model.Task {
	out := make(chan []model.Task, 1)
	changes := e.store.Watch(store.TableTasks)

	go func() {
		defer close(out)

		send := func() {
			tasks, err := e.store.GetTasks(ctx)
			if err != nil {
				return
			}
			// Replace a stale buffered snapshot with the latest one.
			select {
			case <-out:
			default:
			}
			out <- tasks
		}

		send()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				send()
			}
		}
	}()

	return out
}

// WatchPending returns a channel carrying the pending-action count after
// every queue change. The channel is closed when ctx is cancelled.
func (e *Engine) WatchPending(ctx context.Context) <-chan int {
	out := make(chan int, 1)
	changes := e.store.Watch(store.TableActions)

	go func() {
		defer close(out)

		send := func() {
			n, err := e.store.CountActions(ctx)
			if err != nil {
				return
			}
			select {
			case <-out:
			default:
			}
			out <- n
		}

		send()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				send()
			}
		}
	}()

	return out
}

// RefreshTasks reconciles the local cache with the server and returns the
// resulting task view.
//
// When online it first replays the pending-action queue (outgoing edits are
// flushed before the incoming fetch so a fresh snapshot cannot overwrite
// unsynced local status edits with stale data), then walks the complete
// listing page by page, upserts every task, and evicts cached tasks absent
// from the fetched set.
//
// An unauthorized response aborts the fetch, wipes the task and comment
// cache (stale data may belong to a dead session), and surfaces the error.
// Any other server or transport failure degrades to the cached list; an
// error reaches the caller only when the cache is empty too. Offline, the
// cached list is returned directly.
func (e *Engine) RefreshTasks(ctx context.Context) ([]model.Task, error) {
	if err := e.cycleMu.lock(ctx); err != nil {
		return nil, err
	}
	defer e.cycleMu.unlock()

	if !e.monitor.Online() {
		return e.cachedOr(ctx, ErrUnavailable)
	}

	if _, err := e.replayPending(ctx); err != nil {
		if api.IsUnauthorized(err) {
			return nil, err
		}
		// Failed actions stay queued; the fetch still proceeds. Display
		// status remains correct because pending statuses shadow the
		// server values.
		e.logger.Printf("pending-action replay incomplete: %v", err)
	}

	var fetched []model.Task
	page := 1
	for {
		pg, err := e.remote.ListTasks(ctx, page, e.pageSize)
		if err != nil {
			if api.IsUnauthorized(err) {
				if wipeErr := e.wipeTaskCache(ctx); wipeErr != nil {
					e.logger.Printf("wiping cache after auth failure: %v", wipeErr)
				}
				return nil, err
			}
			// Server or transport trouble: a usable cache beats an error.
			return e.cachedOr(ctx, err)
		}

		fetched = append(fetched, pg.Items...)
		if page >= pg.Pages {
			break
		}
		page++
	}

	if err := e.store.UpsertTasks(ctx, fetched); err != nil {
		return nil, fmt.Errorf("caching fetched tasks: %w", err)
	}

	ids := make([]int64, len(fetched))
	for i, t := range fetched {
		ids[i] = t.ID
	}
	if err := e.store.DeleteTasksNotIn(ctx, ids); err != nil {
		return nil, fmt.Errorf("evicting stale tasks: %w", err)
	}

	return e.store.GetTasks(ctx)
}

// TaskDetail returns a task with its comments, live from the server when
// possible and from the cache otherwise. It fails only when the task is
// absent from the cache too.
func (e *Engine) TaskDetail(ctx context.Context, id int64) (*TaskDetail, error) {
	if e.monitor.Online() {
		task, comments, err := e.remote.GetTask(ctx, id)
		if err == nil {
			if err := e.store.UpsertTask(ctx, *task); err != nil {
				return nil, fmt.Errorf("caching task %d: %w", id, err)
			}
			if err := e.store.UpsertComments(ctx, comments); err != nil {
				return nil, fmt.Errorf("caching comments for task %d: %w", id, err)
			}
		} else {
			e.logger.Printf("task %d detail fetch failed, using cache: %v", id, err)
		}
	}

	return e.detailFromStore(ctx, id)
}

func (e *Engine) detailFromStore(ctx context.Context, id int64) (*TaskDetail, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := e.store.GetComments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TaskDetail{Task: *task, Comments: comments}, nil
}

// UpdateStatus changes a task's status with an optional comment.
//
// Online, the mutation goes straight to the server; a rejection leaves the
// local cache untouched. Offline, the edit is applied locally (live and
// pending status both change, the comment becomes a local annotation) and a
// PendingAction is queued; the local write and queue insert are the
// operation's effect, so the offline path always succeeds.
func (e *Engine) UpdateStatus(ctx context.Context, id int64, newStatus model.TaskStatus, comment string) (*model.Task, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("invalid task status %q", newStatus)
	}

	if e.monitor.Online() {
		task, err := e.remote.UpdateStatus(ctx, id, newStatus, comment, "")
		if err != nil {
			return nil, err
		}
		if err := e.store.UpsertTask(ctx, *task); err != nil {
			return nil, fmt.Errorf("caching updated task %d: %w", id, err)
		}
		if err := e.store.MarkTaskSynced(ctx, id, e.now()); err != nil {
			return nil, fmt.Errorf("marking task %d synced: %w", id, err)
		}
		return e.store.GetTask(ctx, id)
	}

	// Offline path.
	current, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := e.store.SetLocalStatus(ctx, id, newStatus); err != nil {
		return nil, fmt.Errorf("applying local status edit: %w", err)
	}

	if comment != "" {
		oldStatus := current.DisplayStatus()
		annotation := model.Comment{
			ID:        model.LocalCommentID(e.newTempID()),
			TaskID:    id,
			Text:      comment,
			Author:    OfflineAuthor,
			OldStatus: &oldStatus,
			NewStatus: &newStatus,
			CreatedAt: e.now(),
			LocalOnly: true,
		}
		if err := e.store.UpsertComment(ctx, annotation); err != nil {
			return nil, fmt.Errorf("storing local annotation: %w", err)
		}
	}

	action := model.PendingAction{
		TaskID:      id,
		Type:        model.ActionUpdateStatus,
		ActionUID:   e.newActionUID(),
		NewStatus:   &newStatus,
		CommentText: comment,
		CreatedAt:   e.now(),
	}
	if _, err := e.store.EnqueueAction(ctx, action); err != nil {
		return nil, fmt.Errorf("queueing status update: %w", err)
	}

	return e.store.GetTask(ctx, id)
}

// AddComment attaches a comment to a task. Offline, an optimistic local
// comment is created under a fresh tempId and an ADD_COMMENT action is
// queued for later reconciliation.
func (e *Engine) AddComment(ctx context.Context, taskID int64, text string) (*model.Comment, error) {
	if text == "" {
		return nil, errors.New("comment text must not be empty")
	}

	if e.monitor.Online() {
		comment, err := e.remote.AddComment(ctx, taskID, text, OfflineAuthor, "")
		if err != nil {
			return nil, err
		}
		if comment != nil {
			if err := e.store.UpsertComment(ctx, *comment); err != nil {
				return nil, fmt.Errorf("caching comment: %w", err)
			}
		}
		return comment, nil
	}

	// Offline path.
	if _, err := e.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	tempID := e.newTempID()
	comment := model.Comment{
		ID:        model.LocalCommentID(tempID),
		TaskID:    taskID,
		Text:      text,
		Author:    OfflineAuthor,
		CreatedAt: e.now(),
		LocalOnly: true,
	}
	if err := e.store.UpsertComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("storing optimistic comment: %w", err)
	}

	action := model.PendingAction{
		TaskID:      taskID,
		Type:        model.ActionAddComment,
		ActionUID:   e.newActionUID(),
		CommentText: text,
		TempID:      tempID,
		CreatedAt:   e.now(),
	}
	if _, err := e.store.EnqueueAction(ctx, action); err != nil {
		return nil, fmt.Errorf("queueing comment: %w", err)
	}

	return &comment, nil
}

// UpdatePlannedDate sets or clears a task's planned date.
//
// Unlike status and comment edits, an offline planned-date edit is not
// queued for replay: the field is written locally with the modified flag
// set and is overwritten wholesale by the next successful online fetch or
// update. This is a deliberately narrower guarantee for a low-stakes field.
func (e *Engine) UpdatePlannedDate(ctx context.Context, id int64, date *time.Time) (*model.Task, error) {
	if e.monitor.Online() {
		task, err := e.remote.UpdatePlannedDate(ctx, id, date)
		if err != nil {
			return nil, err
		}
		if err := e.store.UpsertTask(ctx, *task); err != nil {
			return nil, fmt.Errorf("caching updated task %d: %w", id, err)
		}
		return e.store.GetTask(ctx, id)
	}

	if err := e.store.SetLocalPlannedDate(ctx, id, date); err != nil {
		return nil, err
	}
	return e.store.GetTask(ctx, id)
}

// SyncPendingActions replays the offline mutation queue against the server
// and returns the number of actions successfully synced. It is a no-op when
// offline.
func (e *Engine) SyncPendingActions(ctx context.Context) (int, error) {
	if err := e.cycleMu.lock(ctx); err != nil {
		return 0, err
	}
	defer e.cycleMu.unlock()

	return e.replayPending(ctx)
}

// replayPending is the core replay pass. Callers must hold cycleMu.
//
// Actions replay oldest-first: a later action on the same task may be
// contingent on an earlier one (a status change followed by a comment
// referencing it). A failing action stays queued with its retry count
// incremented and does not abort the pass, except an unauthorized response,
// which would fail every remaining call and therefore aborts immediately.
func (e *Engine) replayPending(ctx context.Context) (int, error) {
	if !e.monitor.Online() {
		return 0, nil
	}

	actions, err := e.store.GetActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading pending actions: %w", err)
	}

	synced := 0
	for _, a := range actions {
		select {
		case <-ctx.Done():
			return synced, ctx.Err()
		default:
		}

		switch a.Type {
		case model.ActionUpdateStatus:
			if a.NewStatus == nil {
				// Should not occur; leave the action queued for inspection.
				e.logger.Printf("action %d: UPDATE_STATUS without status, skipping", a.ID)
				continue
			}
			task, err := e.remote.UpdateStatus(ctx, a.TaskID, *a.NewStatus, a.CommentText, a.ActionUID)
			if err != nil {
				if failErr := e.recordFailure(ctx, a, err); failErr != nil {
					return synced, failErr
				}
				if api.IsUnauthorized(err) {
					return synced, err
				}
				continue
			}
			if err := e.store.ResolveStatusAction(ctx, a.ID, *task, e.now()); err != nil {
				return synced, fmt.Errorf("resolving status action %d: %w", a.ID, err)
			}
			synced++

		case model.ActionAddComment:
			if a.CommentText == "" {
				e.logger.Printf("action %d: ADD_COMMENT without text, skipping", a.ID)
				continue
			}
			comment, err := e.remote.AddComment(ctx, a.TaskID, a.CommentText, OfflineAuthor, a.ActionUID)
			if err != nil {
				if failErr := e.recordFailure(ctx, a, err); failErr != nil {
					return synced, failErr
				}
				if api.IsUnauthorized(err) {
					return synced, err
				}
				continue
			}
			// An empty server body still counts as acceptance; the temp
			// comment goes away either way.
			if err := e.store.ResolveCommentAction(ctx, a.ID, a.TempID, comment); err != nil {
				return synced, fmt.Errorf("resolving comment action %d: %w", a.ID, err)
			}
			synced++

		default:
			if failErr := e.recordFailure(ctx, a, fmt.Errorf("unknown action type %q", a.Type)); failErr != nil {
				return synced, failErr
			}
		}
	}

	return synced, nil
}

func (e *Engine) recordFailure(ctx context.Context, a model.PendingAction, cause error) error {
	e.logger.Printf("action %d (%s, task %d) failed: %v", a.ID, a.Type, a.TaskID, cause)
	if err := e.store.RecordActionFailure(ctx, a.ID, cause.Error()); err != nil {
		return fmt.Errorf("recording failure for action %d: %w", a.ID, err)
	}
	return nil
}

// ClearCache deletes all cached tasks, comments, and pending actions. It is
// a destructive local wipe used on logout and on a confirmed invalid
// session, never as a reaction to a single failed request.
func (e *Engine) ClearCache(ctx context.Context) error {
	if err := e.store.DeleteAllActions(ctx); err != nil {
		return err
	}
	return e.wipeTaskCache(ctx)
}

// wipeTaskCache removes cached tasks and their comments, leaving the
// pending-action queue intact.
func (e *Engine) wipeTaskCache(ctx context.Context) error {
	if err := e.store.DeleteAllComments(ctx); err != nil {
		return err
	}
	return e.store.DeleteAllTasks(ctx)
}

// cachedOr returns the cached task list, or cause when the cache is empty.
func (e *Engine) cachedOr(ctx context.Context, cause error) ([]model.Task, error) {
	tasks, err := e.store.GetTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading task cache: %w", err)
	}
	if len(tasks) == 0 {
		return nil, cause
	}
	return tasks, nil
}
