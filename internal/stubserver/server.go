// Package stubserver is an in-memory implementation of the dispatch REST
// API. It backs local development and end-to-end tests when the real
// dispatch backend is out of reach, and mirrors its wire contract:
// paginated listings, status-history comments, Bearer auth, and duplicate
// suppression via the client action id header.
package stubserver

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/model"
)

// DefaultUsername and DefaultPassword are the stub's built-in credentials.
const (
	DefaultUsername = "employee"
	DefaultPassword = "fieldworker"
)

type stubComment struct {
	ID        int64
	TaskID    int64
	Text      string
	Author    string
	OldStatus *model.TaskStatus
	NewStatus *model.TaskStatus
	CreatedAt time.Time
}

type stubTask struct {
	ID               int64
	Number           string
	Title            string
	Description      string
	Address          string
	Lat, Lon         float64
	Status           model.TaskStatus
	Priority         model.TaskPriority
	PlannedDate      *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	AssignedUserID   *int64
	AssignedUserName string
	CustomerName     string
	CustomerPhone    string
}

type storedResponse struct {
	status int
	body   interface{}
}

// Server holds the stub's in-memory state. All handlers share one mutex;
// the stub favors simplicity over throughput.
type Server struct {
	username string
	password string

	mu            sync.Mutex
	token         string
	tasks         map[int64]*stubTask
	comments      []*stubComment
	nextTaskID    int64
	nextCommentID int64

	// seenActions maps a client action id to the response it produced, so
	// a replayed request is answered identically without a second effect.
	seenActions map[string]storedResponse

	now func() time.Time
}

// New creates a stub server with the built-in credentials and a seeded
// task set.
func New() *Server {
	s := &Server{
		username:    DefaultUsername,
		password:    DefaultPassword,
		tasks:       make(map[int64]*stubTask),
		seenActions: make(map[string]storedResponse),
		now:         time.Now,
	}
	s.seed()
	return s
}

// Handler builds the echo handler tree for the stub.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", s.health)
	e.POST("/api/auth/login", s.login)

	g := e.Group("/api", s.requireAuth)
	g.GET("/tasks", s.listTasks)
	g.GET("/tasks/:id", s.getTask)
	g.GET("/tasks/:id/comments", s.listComments)
	g.PUT("/tasks/:id/status", s.updateStatus)
	g.POST("/tasks/:id/comments", s.addComment)
	g.PUT("/tasks/:id/planned-date", s.updatePlannedDate)

	return e
}

// Start runs the stub on addr until the process exits.
func (s *Server) Start(addr string) error {
	return s.Handler().Start(addr)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Username != s.username || req.Password != s.password {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
	}

	s.token = uuid.New().String()
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": s.token,
		"token_type":   "bearer",
	})
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")

		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if token == "" || header != "Bearer "+token {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "could not validate credentials"})
		}
		return next(c)
	}
}

func (s *Server) listTasks(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size < 1 || size > 100 {
		size = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := len(ids)
	pages := int(math.Ceil(float64(total) / float64(size)))
	if pages < 1 {
		pages = 1
	}

	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := make([]echo.Map, 0, end-start)
	for _, id := range ids[start:end] {
		items = append(items, s.taskJSON(s.tasks[id], false))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"items": items,
		"total": total,
		"page":  page,
		"size":  size,
		"pages": pages,
	})
}

func (s *Server) getTask(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid task id"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "task not found"})
	}
	return c.JSON(http.StatusOK, s.taskJSON(task, true))
}

func (s *Server) listComments(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid task id"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "task not found"})
	}
	return c.JSON(http.StatusOK, s.commentsJSON(id))
}

func (s *Server) updateStatus(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid task id"})
	}

	var req struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	newStatus := model.TaskStatus(req.Status)
	if !newStatus.Valid() {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": fmt.Sprintf("unknown status %q", req.Status)})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, ok := s.replayedAction(c); ok {
		return c.JSON(resp.status, resp.body)
	}

	task, ok := s.tasks[id]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "task not found"})
	}

	oldStatus := task.Status
	task.Status = newStatus
	task.UpdatedAt = s.now()
	if newStatus == model.StatusDone {
		done := s.now()
		task.CompletedAt = &done
	} else {
		task.CompletedAt = nil
	}

	text := req.Comment
	if text == "" {
		text = fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus)
	}
	s.nextCommentID++
	s.comments = append(s.comments, &stubComment{
		ID:        s.nextCommentID,
		TaskID:    id,
		Text:      text,
		Author:    s.username,
		OldStatus: &oldStatus,
		NewStatus: &newStatus,
		CreatedAt: s.now(),
	})

	body := s.taskJSON(task, true)
	s.rememberAction(c, http.StatusOK, body)
	return c.JSON(http.StatusOK, body)
}

func (s *Server) addComment(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid task id"})
	}

	var req struct {
		Text   string `json:"text"`
		Author string `json:"author"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if req.Text == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "comment text is required"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, ok := s.replayedAction(c); ok {
		return c.JSON(resp.status, resp.body)
	}

	if _, ok := s.tasks[id]; !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "task not found"})
	}

	author := req.Author
	if author == "" {
		author = s.username
	}

	s.nextCommentID++
	cm := &stubComment{
		ID:        s.nextCommentID,
		TaskID:    id,
		Text:      req.Text,
		Author:    author,
		CreatedAt: s.now(),
	}
	s.comments = append(s.comments, cm)

	body := commentJSON(cm)
	s.rememberAction(c, http.StatusCreated, body)
	return c.JSON(http.StatusCreated, body)
}

func (s *Server) updatePlannedDate(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid task id"})
	}

	var req struct {
		PlannedDate *string `json:"planned_date"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	var planned *time.Time
	if req.PlannedDate != nil {
		parsed, err := time.Parse(api.TimeLayout, *req.PlannedDate)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "invalid planned_date"})
		}
		planned = &parsed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "task not found"})
	}

	task.PlannedDate = planned
	task.UpdatedAt = s.now()
	return c.JSON(http.StatusOK, s.taskJSON(task, true))
}

// replayedAction answers duplicate-suppressed requests. Callers must hold
// s.mu.
func (s *Server) replayedAction(c echo.Context) (storedResponse, bool) {
	uid := c.Request().Header.Get("X-Client-Action-Id")
	if uid == "" {
		return storedResponse{}, false
	}
	resp, ok := s.seenActions[uid]
	return resp, ok
}

func (s *Server) rememberAction(c echo.Context, status int, body interface{}) {
	uid := c.Request().Header.Get("X-Client-Action-Id")
	if uid == "" {
		return
	}
	s.seenActions[uid] = storedResponse{status: status, body: body}
}

func (s *Server) taskJSON(t *stubTask, withComments bool) echo.Map {
	m := echo.Map{
		"id":                 t.ID,
		"task_number":        t.Number,
		"title":              t.Title,
		"description":        t.Description,
		"raw_address":        t.Address,
		"lat":                t.Lat,
		"lon":                t.Lon,
		"status":             string(t.Status),
		"priority":           int(t.Priority),
		"planned_date":       wireTime(t.PlannedDate),
		"completed_at":       wireTime(t.CompletedAt),
		"created_at":         t.CreatedAt.UTC().Format(api.TimeLayout),
		"updated_at":         t.UpdatedAt.UTC().Format(api.TimeLayout),
		"assigned_user_id":   t.AssignedUserID,
		"assigned_user_name": t.AssignedUserName,
		"customer_name":      t.CustomerName,
		"customer_phone":     t.CustomerPhone,
	}
	if withComments {
		m["comments"] = s.commentsJSON(t.ID)
	}
	return m
}

func (s *Server) commentsJSON(taskID int64) []echo.Map {
	out := make([]echo.Map, 0)
	for _, cm := range s.comments {
		if cm.TaskID == taskID {
			out = append(out, commentJSON(cm))
		}
	}
	return out
}

func commentJSON(cm *stubComment) echo.Map {
	m := echo.Map{
		"id":         cm.ID,
		"task_id":    cm.TaskID,
		"text":       cm.Text,
		"author":     cm.Author,
		"created_at": cm.CreatedAt.UTC().Format(api.TimeLayout),
	}
	if cm.OldStatus != nil {
		m["old_status"] = string(*cm.OldStatus)
	} else {
		m["old_status"] = nil
	}
	if cm.NewStatus != nil {
		m["new_status"] = string(*cm.NewStatus)
	} else {
		m["new_status"] = nil
	}
	return m
}

func wireTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(api.TimeLayout)
}

func (s *Server) seed() {
	now := s.now()
	userID := int64(7)

	add := func(t stubTask) {
		s.nextTaskID++
		t.ID = s.nextTaskID
		t.Number = fmt.Sprintf("FW-%04d", t.ID)
		t.CreatedAt = now.Add(-time.Duration(t.ID) * 24 * time.Hour)
		t.UpdatedAt = t.CreatedAt
		t.AssignedUserID = &userID
		t.AssignedUserName = "Field Employee"
		s.tasks[t.ID] = &t
	}

	tomorrow := now.Add(24 * time.Hour)
	add(stubTask{
		Title:         "Replace water meter",
		Description:   "Old meter reports implausible readings, bring a DN20 unit.",
		Address:       "14 Riverside Ave",
		Lat:           52.5211, Lon: 13.4094,
		Status:        model.StatusNew,
		Priority:      model.PriorityUrgent,
		PlannedDate:   &tomorrow,
		CustomerName:  "A. Weber",
		CustomerPhone: "+49 30 1234567",
	})
	add(stubTask{
		Title:         "Inspect heating pump",
		Description:   "Customer reports knocking noise under load.",
		Address:       "3 Mill Lane",
		Lat:           52.4981, Lon: 13.3912,
		Status:        model.StatusInProgress,
		Priority:      model.PriorityEmergency,
		CustomerName:  "B. Fischer",
		CustomerPhone: "+49 30 7654321",
	})
	add(stubTask{
		Title:        "Annual boiler maintenance",
		Description:  "Routine service, parts on the van.",
		Address:      "88 Park Street",
		Lat:          52.5330, Lon: 13.4210,
		Status:       model.StatusNew,
		Priority:     model.PriorityCurrent,
		CustomerName: "C. Braun",
	})
}
