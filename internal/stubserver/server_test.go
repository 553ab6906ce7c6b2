package stubserver

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/model"
)

func newStubClient(t *testing.T) *api.Client {
	t.Helper()

	srv := httptest.NewServer(New().Handler())
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL, "", 5*time.Second)
	_, err := client.Login(context.Background(), DefaultUsername, DefaultPassword)
	require.NoError(t, err)
	return client
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	client := api.NewClient(srv.URL, "", 5*time.Second)
	_, err := client.Login(context.Background(), DefaultUsername, "wrong")
	assert.True(t, api.IsUnauthorized(err))
}

func TestRequestsRequireToken(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	client := api.NewClient(srv.URL, "", 5*time.Second)
	_, err := client.ListTasks(context.Background(), 1, 100)
	assert.True(t, api.IsUnauthorized(err))

	// The health endpoint stays open.
	assert.NoError(t, client.Probe(context.Background()))
}

func TestListTasksSeeded(t *testing.T) {
	client := newStubClient(t)

	pg, err := client.ListTasks(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.Equal(t, pg.Total, len(pg.Items))
	assert.NotEmpty(t, pg.Items)
	assert.Equal(t, 1, pg.Pages)

	for _, task := range pg.Items {
		assert.True(t, task.Status.Valid())
		assert.NotEmpty(t, task.Number)
	}
}

func TestUpdateStatusRecordsHistory(t *testing.T) {
	client := newStubClient(t)
	ctx := context.Background()

	task, err := client.UpdateStatus(ctx, 1, model.StatusDone, "meter swapped", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, task.Status)
	assert.NotNil(t, task.CompletedAt)

	_, comments, err := client.GetTask(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, comments)

	last := comments[len(comments)-1]
	assert.Equal(t, "meter swapped", last.Text)
	require.NotNil(t, last.OldStatus)
	require.NotNil(t, last.NewStatus)
	assert.Equal(t, model.StatusDone, *last.NewStatus)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	client := newStubClient(t)

	_, err := client.UpdateStatus(context.Background(), 1, model.TaskStatus("BOGUS"), "", "")
	assert.True(t, api.IsServerError(err))
}

func TestAddCommentAndFetch(t *testing.T) {
	client := newStubClient(t)
	ctx := context.Background()

	comment, err := client.AddComment(ctx, 2, "on my way", "employee", "")
	require.NoError(t, err)
	require.NotNil(t, comment)
	assert.False(t, comment.ID.IsLocal())
	assert.Equal(t, "on my way", comment.Text)

	comments, err := client.GetComments(ctx, 2)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, comment.ID.Remote(), comments[0].ID.Remote())
}

func TestDuplicateActionIsSuppressed(t *testing.T) {
	client := newStubClient(t)
	ctx := context.Background()

	first, err := client.AddComment(ctx, 1, "replayed note", "employee", "uid-dup")
	require.NoError(t, err)
	require.NotNil(t, first)

	// A replay of the same action must not create a second comment.
	second, err := client.AddComment(ctx, 1, "replayed note", "employee", "uid-dup")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID.Remote(), second.ID.Remote())

	comments, err := client.GetComments(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestDuplicateStatusActionIsSuppressed(t *testing.T) {
	client := newStubClient(t)
	ctx := context.Background()

	_, err := client.UpdateStatus(ctx, 1, model.StatusInProgress, "starting", "uid-st")
	require.NoError(t, err)
	_, err = client.UpdateStatus(ctx, 1, model.StatusInProgress, "starting", "uid-st")
	require.NoError(t, err)

	comments, err := client.GetComments(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestPlannedDateRoundTrip(t *testing.T) {
	client := newStubClient(t)
	ctx := context.Background()

	planned := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	task, err := client.UpdatePlannedDate(ctx, 3, &planned)
	require.NoError(t, err)
	require.NotNil(t, task.PlannedDate)
	assert.Equal(t, planned, *task.PlannedDate)

	task, err = client.UpdatePlannedDate(ctx, 3, nil)
	require.NoError(t, err)
	assert.Nil(t, task.PlannedDate)
}

func TestGetTaskNotFound(t *testing.T) {
	client := newStubClient(t)

	_, _, err := client.GetTask(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, api.IsServerError(err))
}
