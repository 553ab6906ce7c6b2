package model

import "time"

// TaskStatus is the lifecycle state of a task as tracked by the dispatch
// server.
type TaskStatus string

const (
	StatusNew        TaskStatus = "NEW"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
	StatusCancelled  TaskStatus = "CANCELLED"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// TaskPriority orders tasks from routine to emergency work.
// Higher values are more urgent.
type TaskPriority int

const (
	PriorityPlanned   TaskPriority = 1
	PriorityCurrent   TaskPriority = 2
	PriorityUrgent    TaskPriority = 3
	PriorityEmergency TaskPriority = 4
)

// String returns the human-readable priority label.
func (p TaskPriority) String() string {
	switch p {
	case PriorityPlanned:
		return "planned"
	case PriorityCurrent:
		return "current"
	case PriorityUrgent:
		return "urgent"
	case PriorityEmergency:
		return "emergency"
	}
	return "unknown"
}

// Task is a unit of field work assigned by the dispatch server and mirrored
// into the local cache.
type Task struct {
	// ID is the server-assigned identifier, stable once created.
	ID int64 `json:"id"`

	// Number is the dispatcher-facing task number (e.g., "FW-0001").
	Number string `json:"task_number"`

	// Title is the short summary of the work.
	Title string `json:"title"`

	// Description is the full task text.
	Description string `json:"description"`

	// Address is the raw service address.
	Address string `json:"raw_address"`

	// Lat and Lon are the geocoded coordinates, zero when unknown.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Status is the last status confirmed by the server.
	Status TaskStatus `json:"status"`

	// Priority is the urgency class (use Priority* constants).
	Priority TaskPriority `json:"priority"`

	// PlannedDate is the scheduled visit date, if any.
	PlannedDate *time.Time `json:"planned_date,omitempty"`

	// CompletedAt is set once the task reaches DONE.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// AssignedUserID and AssignedUserName describe the current assignee.
	AssignedUserID   *int64 `json:"assigned_user_id,omitempty"`
	AssignedUserName string `json:"assigned_user_name,omitempty"`

	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`

	// PendingStatus is a status change made locally that the server has not
	// confirmed yet. Nil when the task has no unsynced status edit.
	PendingStatus *TaskStatus `json:"-"`

	// LocallyModified marks tasks with unsynced local edits of any kind.
	LocallyModified bool `json:"-"`

	// LastSyncedAt is when the server last confirmed this task's local state.
	LastSyncedAt *time.Time `json:"-"`
}

// DisplayStatus returns the status the presentation layer should show:
// the unconfirmed pending status when one is set, otherwise the server
// status.
func (t Task) DisplayStatus() TaskStatus {
	if t.PendingStatus != nil {
		return *t.PendingStatus
	}
	return t.Status
}
