package sync

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/connectivity"
	"github.com/nhle/fieldworker/internal/model"
	"github.com/nhle/fieldworker/tests/testutil"
)

// fakeRemote is an in-memory Remote double. Failures are injected per
// action id so tests can target individual replays.
type fakeRemote struct {
	mu gosync.Mutex

	tasks         map[int64]model.Task
	comments      map[int64][]model.Comment
	nextCommentID int64

	listErr error
	failUID map[string]error

	listCalls   int
	updateCalls []string
	commentUIDs []string

	updateDelay time.Duration
}

func newFakeRemote(tasks ...model.Task) *fakeRemote {
	f := &fakeRemote{
		tasks:    make(map[int64]model.Task),
		comments: make(map[int64][]model.Comment),
		failUID:  make(map[string]error),
	}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeRemote) ListTasks(ctx context.Context, page, size int) (*api.TaskPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	ids := make([]int64, 0, len(f.tasks))
	for id := range f.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pages := (len(ids) + size - 1) / size
	if pages < 1 {
		pages = 1
	}

	start := (page - 1) * size
	end := start + size
	if start > len(ids) {
		start = len(ids)
	}
	if end > len(ids) {
		end = len(ids)
	}

	pg := &api.TaskPage{Total: len(ids), Page: page, Size: size, Pages: pages}
	for _, id := range ids[start:end] {
		pg.Items = append(pg.Items, f.tasks[id])
	}
	return pg, nil
}

func (f *fakeRemote) GetTask(ctx context.Context, id int64) (*model.Task, []model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id]
	if !ok {
		return nil, nil, &api.ServerError{StatusCode: 404, Message: "task not found"}
	}
	return &t, append([]model.Comment(nil), f.comments[id]...), nil
}

func (f *fakeRemote) UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, comment, actionUID string) (*model.Task, error) {
	if f.updateDelay > 0 {
		time.Sleep(f.updateDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.updateCalls = append(f.updateCalls, actionUID)
	if err := f.failUID[actionUID]; err != nil {
		return nil, err
	}

	t, ok := f.tasks[id]
	if !ok {
		return nil, &api.ServerError{StatusCode: 404, Message: "task not found"}
	}
	t.Status = status
	f.tasks[id] = t
	return &t, nil
}

func (f *fakeRemote) AddComment(ctx context.Context, taskID int64, text, author, actionUID string) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commentUIDs = append(f.commentUIDs, actionUID)
	if err := f.failUID[actionUID]; err != nil {
		return nil, err
	}
	if _, ok := f.tasks[taskID]; !ok {
		return nil, &api.ServerError{StatusCode: 404, Message: "task not found"}
	}

	f.nextCommentID++
	c := model.Comment{
		ID:        model.RemoteCommentID(f.nextCommentID),
		TaskID:    taskID,
		Text:      text,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	f.comments[taskID] = append(f.comments[taskID], c)
	return &c, nil
}

func (f *fakeRemote) UpdatePlannedDate(ctx context.Context, id int64, date *time.Time) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id]
	if !ok {
		return nil, &api.ServerError{StatusCode: 404, Message: "task not found"}
	}
	t.PlannedDate = date
	f.tasks[id] = t
	return &t, nil
}

func serverTask(id int64, status model.TaskStatus) model.Task {
	created := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute)
	return model.Task{
		ID:        id,
		Number:    fmt.Sprintf("FW-%04d", id),
		Title:     fmt.Sprintf("Task %d", id),
		Status:    status,
		Priority:  model.PriorityCurrent,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newTestEngine(t *testing.T, remote Remote, online bool) (*Engine, *connectivity.Manual) {
	t.Helper()

	s := testutil.NewTestStore(t)
	monitor := connectivity.NewManual(online)
	e := New(s, remote, monitor, log.New(io.Discard, "", 0))

	seq := 0
	e.newTempID = func() string { seq++; return fmt.Sprintf("tmp-%d", seq) }
	uidSeq := 0
	e.newActionUID = func() string { uidSeq++; return fmt.Sprintf("uid-%d", uidSeq) }

	return e, monitor
}

func TestRefreshWalksAllPages(t *testing.T) {
	var seed []model.Task
	for i := int64(1); i <= 250; i++ {
		seed = append(seed, serverTask(i, model.StatusNew))
	}
	remote := newFakeRemote(seed...)

	e, _ := newTestEngine(t, remote, true)
	e.pageSize = 100

	tasks, err := e.RefreshTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 250)
	assert.Equal(t, 3, remote.listCalls)
}

func TestRefreshEvictsStaleTasks(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew), serverTask(2, model.StatusNew))
	e, _ := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	// Task 2 is reassigned away before the next refresh.
	remote.mu.Lock()
	delete(remote.tasks, 2)
	remote.mu.Unlock()

	tasks, err := e.RefreshTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(1), tasks[0].ID)
}

func TestRefreshDegradesToCacheOnServerError(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, _ := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	remote.mu.Lock()
	remote.listErr = &api.ServerError{StatusCode: 500, Message: "boom"}
	remote.mu.Unlock()

	tasks, err := e.RefreshTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestRefreshErrorSurfacesWhenCacheEmpty(t *testing.T) {
	remote := newFakeRemote()
	remote.listErr = &api.ServerError{StatusCode: 500, Message: "boom"}
	e, _ := newTestEngine(t, remote, true)

	_, err := e.RefreshTasks(context.Background())
	assert.True(t, api.IsServerError(err))
}

func TestRefreshOffline(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	tasks, err := e.RefreshTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, 1, remote.listCalls)
}

func TestRefreshOfflineEmptyCache(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRemote(), false)

	_, err := e.RefreshTasks(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRefreshUnauthorizedWipesCacheButNotQueue(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	// Queue an offline edit, then let the session die before it syncs. The
	// replay hits a transient failure, so the edit is still queued when the
	// fetch runs into the dead session.
	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	require.NoError(t, err)
	monitor.SetOnline(true)

	remote.mu.Lock()
	remote.listErr = &api.Unauthorized{Message: "token expired"}
	remote.failUID["uid-1"] = &api.ServerError{StatusCode: 503, Message: "maintenance"}
	remote.mu.Unlock()

	_, err = e.RefreshTasks(ctx)
	assert.True(t, api.IsUnauthorized(err))

	tasks, err := e.Tasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// The queued edit survives the wipe and replays after re-login.
	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestOfflineStatusUpdateQueuesAndShadows(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	task, err := e.UpdateStatus(ctx, 1, model.StatusDone, "meter swapped")
	require.NoError(t, err)

	assert.Equal(t, model.StatusDone, task.DisplayStatus())
	assert.True(t, task.LocallyModified)

	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// The annotation shows up locally until the server confirms.
	detail, err := e.TaskDetail(ctx, 1)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 1)
	assert.True(t, detail.Comments[0].LocalOnly)
	assert.True(t, detail.Comments[0].IsStatusChange())
}

func TestOfflineCommentCreatesPlaceholder(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	comment, err := e.AddComment(ctx, 1, "need a ladder")
	require.NoError(t, err)
	assert.True(t, comment.ID.IsLocal())
	assert.True(t, comment.LocalOnly)

	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestOfflineCommentUnknownTask(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRemote(), false)

	_, err := e.AddComment(context.Background(), 99, "hello")
	assert.Error(t, err)
}

func TestReplayOrderIsFIFO(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusInProgress, "")
	require.NoError(t, err)
	_, err = e.AddComment(ctx, 1, "first note")
	require.NoError(t, err)
	_, err = e.AddComment(ctx, 1, "second note")
	require.NoError(t, err)

	monitor.SetOnline(true)
	synced, err := e.SyncPendingActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, synced)

	assert.Equal(t, []string{"uid-1"}, remote.updateCalls)
	assert.Equal(t, []string{"uid-2", "uid-3"}, remote.commentUIDs)

	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestReplayFailureIsolation(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew), serverTask(2, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	require.NoError(t, err)
	_, err = e.AddComment(ctx, 2, "still fine")
	require.NoError(t, err)

	remote.mu.Lock()
	remote.failUID["uid-1"] = &api.ServerError{StatusCode: 409, Message: "illegal transition"}
	remote.mu.Unlock()

	monitor.SetOnline(true)
	synced, err := e.SyncPendingActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	// The failed action stays queued with its failure recorded; the one
	// behind it went through.
	actions, err := e.store.GetActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionUpdateStatus, actions[0].Type)
	assert.Equal(t, 1, actions[0].RetryCount)
	assert.Contains(t, actions[0].LastError, "409")
}

func TestReplayUnauthorizedAbortsPass(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	require.NoError(t, err)
	_, err = e.AddComment(ctx, 1, "note")
	require.NoError(t, err)

	remote.mu.Lock()
	remote.failUID["uid-1"] = &api.Unauthorized{Message: "token expired"}
	remote.mu.Unlock()

	monitor.SetOnline(true)
	_, err = e.SyncPendingActions(ctx)
	assert.True(t, api.IsUnauthorized(err))

	// Nothing behind the auth failure was attempted; both actions remain.
	assert.Empty(t, remote.commentUIDs)
	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	// An auth failure during replay does not wipe the cache.
	tasks, err := e.Tasks(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tasks)
}

func TestReplayReconcilesComment(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.AddComment(ctx, 1, "need a ladder")
	require.NoError(t, err)

	monitor.SetOnline(true)
	synced, err := e.SyncPendingActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	// Exactly one comment survives, and it carries the server id.
	detail, err := e.TaskDetail(ctx, 1)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 1)
	assert.False(t, detail.Comments[0].ID.IsLocal())
	assert.False(t, detail.Comments[0].LocalOnly)
	assert.Equal(t, "need a ladder", detail.Comments[0].Text)
}

func TestRefreshFlushesQueueBeforeFetch(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	require.NoError(t, err)

	// Back online: the refresh replays the edit first, so the listing it
	// then fetches already carries the confirmed status.
	monitor.SetOnline(true)
	tasks, err := e.RefreshTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	assert.Equal(t, model.StatusDone, tasks[0].Status)
	assert.Nil(t, tasks[0].PendingStatus)
	assert.False(t, tasks[0].LocallyModified)

	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRefreshKeepsShadowWhenReplayFails(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	require.NoError(t, err)

	remote.mu.Lock()
	remote.failUID["uid-1"] = &api.ServerError{StatusCode: 503, Message: "maintenance"}
	remote.mu.Unlock()

	// The fetch still runs, but the stale server status must not displace
	// the unsynced local edit.
	monitor.SetOnline(true)
	tasks, err := e.RefreshTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.StatusDone, tasks[0].DisplayStatus())

	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestOnlineStatusUpdateDoesNotQueue(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, _ := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	task, err := e.UpdateStatus(ctx, 1, model.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, task.Status)
	assert.Nil(t, task.PendingStatus)

	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestOnlineStatusUpdateRejectionLeavesCache(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, _ := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	remote.mu.Lock()
	remote.failUID[""] = &api.ServerError{StatusCode: 409, Message: "illegal transition"}
	remote.mu.Unlock()

	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	assert.True(t, api.IsServerError(err))

	got, err := e.store.GetTask(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, got.Status)
}

func TestPlannedDateOfflineIsLocalOnly(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	planned := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	task, err := e.UpdatePlannedDate(ctx, 1, &planned)
	require.NoError(t, err)
	require.NotNil(t, task.PlannedDate)

	// No replay entry; the edit is best-effort local state.
	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	// The next refresh restores the server's value.
	monitor.SetOnline(true)
	tasks, err := e.RefreshTasks(ctx)
	require.NoError(t, err)
	assert.Nil(t, tasks[0].PlannedDate)
}

func TestConcurrentSyncReplaysOnce(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	remote.updateDelay = 50 * time.Millisecond
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	monitor.SetOnline(false)
	_, err = e.UpdateStatus(ctx, 1, model.StatusDone, "")
	require.NoError(t, err)
	monitor.SetOnline(true)

	var wg gosync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.SyncPendingActions(ctx)
		}()
	}
	wg.Wait()

	remote.mu.Lock()
	calls := len(remote.updateCalls)
	remote.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestClearCacheWipesEverything(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, monitor := newTestEngine(t, remote, true)
	ctx := context.Background()

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)
	monitor.SetOnline(false)
	_, err = e.AddComment(ctx, 1, "note")
	require.NoError(t, err)

	require.NoError(t, e.ClearCache(ctx))

	tasks, err := e.Tasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	pending, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWatchTasksDeliversSnapshots(t *testing.T) {
	remote := newFakeRemote(serverTask(1, model.StatusNew))
	e, _ := newTestEngine(t, remote, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.WatchTasks(ctx)

	// Initial snapshot of the empty cache.
	select {
	case tasks := <-ch:
		assert.Empty(t, tasks)
	case <-time.After(time.Second):
		t.Fatal("expected an initial snapshot")
	}

	_, err := e.RefreshTasks(ctx)
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		select {
		case tasks := <-ch:
			if len(tasks) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("expected a snapshot with the fetched task")
		}
	}
}
