package model

import (
	"fmt"
	"time"
)

// CommentID identifies a comment either by its server-assigned id or, for
// comments created offline, by a client-generated temporary token. Exactly
// one of the two is set; placeholder vs. confirmed is a property of the
// type, not a sign convention on a numeric id.
type CommentID struct {
	remote int64
	temp   string
}

// RemoteCommentID builds the id of a server-confirmed comment.
func RemoteCommentID(id int64) CommentID {
	return CommentID{remote: id}
}

// LocalCommentID builds the id of an optimistic local comment from its
// temporary token.
func LocalCommentID(tempID string) CommentID {
	return CommentID{temp: tempID}
}

// IsLocal reports whether the comment is an unconfirmed local placeholder.
func (id CommentID) IsLocal() bool {
	return id.temp != ""
}

// Remote returns the server-assigned id, zero for local placeholders.
func (id CommentID) Remote() int64 {
	return id.remote
}

// TempID returns the temporary token, empty for confirmed comments.
func (id CommentID) TempID() string {
	return id.temp
}

func (id CommentID) String() string {
	if id.IsLocal() {
		return "local:" + id.temp
	}
	return fmt.Sprintf("remote:%d", id.remote)
}

// Comment is a note or status-change record attached to a task.
type Comment struct {
	ID     CommentID `json:"-"`
	TaskID int64     `json:"task_id"`

	Text   string `json:"text"`
	Author string `json:"author"`

	// OldStatus and NewStatus are set on comments that record a status
	// transition.
	OldStatus *TaskStatus `json:"old_status,omitempty"`
	NewStatus *TaskStatus `json:"new_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// LocalOnly marks comments created offline that the server has not
	// confirmed yet. They are removed at replay time in favor of the
	// server's record.
	LocalOnly bool `json:"-"`
}

// IsStatusChange reports whether the comment records a status transition
// rather than free text.
func (c Comment) IsStatusChange() bool {
	return c.NewStatus != nil
}
