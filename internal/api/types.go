package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/fieldworker/internal/model"
)

// TimeLayout is the datetime format the dispatch server produces and
// expects: naive ISO 8601 in UTC, no zone suffix.
const TimeLayout = "2006-01-02T15:04:05"

// apiTime wraps time.Time with the server's JSON encoding. The server emits
// naive timestamps, occasionally with fractional seconds or an explicit
// offset depending on the field, so decoding tries the known layouts.
type apiTime struct {
	time.Time
}

var timeLayouts = []string{
	TimeLayout,
	"2006-01-02T15:04:05.999999",
	time.RFC3339,
	"2006-01-02",
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t apiTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(TimeLayout) + `"`), nil
}

// taskPayload mirrors the server's task response schema.
type taskPayload struct {
	ID               int64    `json:"id"`
	TaskNumber       *string  `json:"task_number"`
	Title            string   `json:"title"`
	RawAddress       string   `json:"raw_address"`
	Description      string   `json:"description"`
	Lat              float64  `json:"lat"`
	Lon              float64  `json:"lon"`
	Status           string   `json:"status"`
	Priority         int      `json:"priority"`
	CreatedAt        apiTime  `json:"created_at"`
	UpdatedAt        apiTime  `json:"updated_at"`
	PlannedDate      *apiTime `json:"planned_date"`
	CompletedAt      *apiTime `json:"completed_at"`
	AssignedUserID   *int64   `json:"assigned_user_id"`
	AssignedUserName *string  `json:"assigned_user_name"`
	CustomerName     *string  `json:"customer_name"`
	CustomerPhone    *string  `json:"customer_phone"`

	Comments []commentPayload `json:"comments"`
}

func (p taskPayload) toModel() model.Task {
	t := model.Task{
		ID:          p.ID,
		Title:       p.Title,
		Address:     p.RawAddress,
		Description: p.Description,
		Lat:         p.Lat,
		Lon:         p.Lon,
		Status:      model.TaskStatus(p.Status),
		Priority:    model.TaskPriority(p.Priority),
		CreatedAt:   p.CreatedAt.Time,
		UpdatedAt:   p.UpdatedAt.Time,
	}
	if p.TaskNumber != nil {
		t.Number = *p.TaskNumber
	}
	if p.PlannedDate != nil {
		d := p.PlannedDate.Time
		t.PlannedDate = &d
	}
	if p.CompletedAt != nil {
		d := p.CompletedAt.Time
		t.CompletedAt = &d
	}
	if p.AssignedUserID != nil {
		id := *p.AssignedUserID
		t.AssignedUserID = &id
	}
	if p.AssignedUserName != nil {
		t.AssignedUserName = *p.AssignedUserName
	}
	if p.CustomerName != nil {
		t.CustomerName = *p.CustomerName
	}
	if p.CustomerPhone != nil {
		t.CustomerPhone = *p.CustomerPhone
	}
	return t
}

// commentPayload mirrors the server's comment response schema.
type commentPayload struct {
	ID        int64   `json:"id"`
	TaskID    int64   `json:"task_id"`
	Text      string  `json:"text"`
	Author    string  `json:"author"`
	OldStatus *string `json:"old_status"`
	NewStatus *string `json:"new_status"`
	CreatedAt apiTime `json:"created_at"`
}

func (p commentPayload) toModel() model.Comment {
	c := model.Comment{
		ID:        model.RemoteCommentID(p.ID),
		TaskID:    p.TaskID,
		Text:      p.Text,
		Author:    p.Author,
		CreatedAt: p.CreatedAt.Time,
	}
	if p.OldStatus != nil {
		st := model.TaskStatus(*p.OldStatus)
		c.OldStatus = &st
	}
	if p.NewStatus != nil {
		st := model.TaskStatus(*p.NewStatus)
		c.NewStatus = &st
	}
	return c
}

// listResponse mirrors the server's paginated listing envelope.
type listResponse struct {
	Items []taskPayload `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Pages int           `json:"pages"`
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Items []model.Task
	Total int
	Page  int
	Size  int
	Pages int
}

// statusUpdateRequest is the body of PUT /tasks/{id}/status.
type statusUpdateRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// commentCreateRequest is the body of POST /tasks/{id}/comments.
type commentCreateRequest struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// plannedDateRequest is the body of PUT /tasks/{id}/planned-date.
type plannedDateRequest struct {
	PlannedDate *apiTime `json:"planned_date"`
}

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the server's login response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// errorResponse is the server's structured error body.
type errorResponse struct {
	Detail string `json:"detail"`
}
