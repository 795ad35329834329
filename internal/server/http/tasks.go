package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/service"
)

// taskRequest covers create and partial-update bodies. UserID is decoded only
// to reject it: the owner always comes from the verified token.
type taskRequest struct {
	Title      *string         `json:"title"`
	Body       *string         `json:"body"`
	Completed  *bool           `json:"completed"`
	OriginalID string          `json:"originalId"`
	UserID     json.RawMessage `json:"userId"`
}

func (r *taskRequest) ownerSupplied() bool {
	return len(r.UserID) != 0 && string(r.UserID) != "null"
}

func errOwnerSupplied() error {
	return fmt.Errorf("%w: client-supplied userId is not allowed", errs.ErrValidation)
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func parseTaskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads and clamps paging parameters. Clamping happens here, not
// only in the services, so pagination is computed from the page actually
// served: an oversized limit echoed back raw would yield hasMore=false while
// rows beyond the cap were withheld.
func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = service.DefaultListLimit
	}
	if limit > service.MaxListLimit {
		limit = service.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// handleListTasks returns the owner's tasks, optionally filtered by
// completion, newest first.
func (s *Server) handleListTasks(c *gin.Context) {
	var completed *bool
	if raw, ok := c.GetQuery("completed"); ok {
		v := raw == "true"
		completed = &v
	}
	limit, offset := pageParams(c)

	tasks, total, err := s.tasks.List(c.Request.Context(), ownerID(c), completed, limit, offset)
	if err != nil {
		s.respondError(c, err, "Error listing tasks")
		return
	}
	respondPage(c, tasks, newPagination(total, limit, offset))
}

// handleTaskStats returns the owner's aggregate counts.
func (s *Server) handleTaskStats(c *gin.Context) {
	stats, err := s.tasks.Stats(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err, "Error computing stats")
		return
	}
	respond(c, http.StatusOK, "", stats)
}

// handleGetTask fetches one task with the ownership check.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		s.respondError(c, fmt.Errorf("%w: invalid task id", errs.ErrValidation), "Invalid task id")
		return
	}
	t, err := s.tasks.Get(c.Request.Context(), ownerID(c), id)
	if err != nil {
		s.respondError(c, err, "Task not found")
		return
	}
	respond(c, http.StatusOK, "", t)
}

// handleCreateTask creates one task for the authenticated owner.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err), "Invalid request body")
		return
	}
	if req.ownerSupplied() {
		s.respondError(c, errOwnerSupplied(), "Invalid request body")
		return
	}

	t, err := s.tasks.Create(c.Request.Context(), ownerID(c), service.CreateTaskInput{
		Title:     strVal(req.Title),
		Body:      strVal(req.Body),
		OriginID:  req.OriginalID,
		Completed: req.Completed != nil && *req.Completed,
	})
	if err != nil {
		s.respondError(c, err, "Error creating task")
		return
	}
	respond(c, http.StatusCreated, "Task created successfully", t)
}

// handleBatchCreate creates multiple tasks in one request; items are
// independent and failures are reported next to successes.
func (s *Server) handleBatchCreate(c *gin.Context) {
	var req struct {
		Tasks []taskRequest `json:"tasks"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Tasks) == 0 {
		s.respondError(c, fmt.Errorf("%w: an array of tasks is required", errs.ErrValidation), "Invalid request body")
		return
	}

	items := []service.CreateTaskInput{}
	rejected := []service.BatchError{}
	for _, item := range req.Tasks {
		if item.ownerSupplied() {
			rejected = append(rejected, service.BatchError{OriginalID: item.OriginalID, Error: errOwnerSupplied().Error()})
			continue
		}
		items = append(items, service.CreateTaskInput{
			Title:     strVal(item.Title),
			Body:      strVal(item.Body),
			OriginID:  item.OriginalID,
			Completed: item.Completed != nil && *item.Completed,
		})
	}

	created, batchErrs, err := s.tasks.BatchCreate(c.Request.Context(), ownerID(c), items)
	if err != nil {
		s.respondError(c, err, "Error syncing tasks")
		return
	}
	batchErrs = append(batchErrs, rejected...)
	respond(c, http.StatusOK, fmt.Sprintf("Synced %d tasks", len(created)),
		gin.H{"synced": created, "errors": batchErrs})
}

// handleUpdateTask applies a partial update.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		s.respondError(c, fmt.Errorf("%w: invalid task id", errs.ErrValidation), "Invalid task id")
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err), "Invalid request body")
		return
	}
	if req.ownerSupplied() {
		s.respondError(c, errOwnerSupplied(), "Invalid request body")
		return
	}

	t, err := s.tasks.Update(c.Request.Context(), ownerID(c), id, service.UpdateTaskInput{
		Title:     req.Title,
		Body:      req.Body,
		Completed: req.Completed,
	})
	if err != nil {
		s.respondError(c, err, "Error updating task")
		return
	}
	respond(c, http.StatusOK, "Task updated successfully", t)
}

// handleToggleTask flips the completed flag.
func (s *Server) handleToggleTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		s.respondError(c, fmt.Errorf("%w: invalid task id", errs.ErrValidation), "Invalid task id")
		return
	}
	t, err := s.tasks.ToggleComplete(c.Request.Context(), ownerID(c), id)
	if err != nil {
		s.respondError(c, err, "Error toggling task")
		return
	}
	respond(c, http.StatusOK, "Task status updated", t)
}

// handleDeleteTask removes a task.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		s.respondError(c, fmt.Errorf("%w: invalid task id", errs.ErrValidation), "Invalid task id")
		return
	}
	if err := s.tasks.Delete(c.Request.Context(), ownerID(c), id); err != nil {
		s.respondError(c, err, "Error deleting task")
		return
	}
	respond(c, http.StatusOK, "Task deleted successfully", nil)
}
