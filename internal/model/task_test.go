package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusValid(t *testing.T) {
	for _, s := range []TaskStatus{StatusNew, StatusInProgress, StatusDone, StatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, TaskStatus("BOGUS").Valid())
	assert.False(t, TaskStatus("").Valid())
}

func TestDisplayStatusPrefersPending(t *testing.T) {
	task := Task{Status: StatusNew}
	assert.Equal(t, StatusNew, task.DisplayStatus())

	pending := StatusDone
	task.PendingStatus = &pending
	assert.Equal(t, StatusDone, task.DisplayStatus())
}

func TestCommentID(t *testing.T) {
	local := LocalCommentID("tmp-1")
	assert.True(t, local.IsLocal())
	assert.Equal(t, "tmp-1", local.TempID())
	assert.Zero(t, local.Remote())
	assert.Equal(t, "local:tmp-1", local.String())

	remote := RemoteCommentID(42)
	assert.False(t, remote.IsLocal())
	assert.Equal(t, int64(42), remote.Remote())
	assert.Empty(t, remote.TempID())
	assert.Equal(t, "remote:42", remote.String())
}

func TestIsStatusChange(t *testing.T) {
	newStatus := StatusDone
	assert.True(t, Comment{NewStatus: &newStatus}.IsStatusChange())
	assert.False(t, Comment{Text: "plain note"}.IsStatusChange())
}
