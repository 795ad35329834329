package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/service"
)

// handleSubmitBatch accepts a batch of operations recorded while the client
// was offline and replays them in submission order.
func (s *Server) handleSubmitBatch(c *gin.Context) {
	var req struct {
		PendingData []service.Operation `json:"pendingData"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.PendingData) == 0 {
		s.respondError(c, fmt.Errorf("%w: an array of pending operations is required", errs.ErrValidation), "Invalid request body")
		return
	}

	rep, err := s.sync.SubmitBatch(c.Request.Context(), ownerID(c), req.PendingData, service.ClientMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.respondError(c, err, "Error syncing pending operations")
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("Processed %d items", len(rep.Synced)), rep)
}

// handleListOps pages through the owner's ledger entries. Status defaults to
// "pending"; "all" disables the filter.
func (s *Server) handleListOps(c *gin.Context) {
	status := c.DefaultQuery("status", "pending")
	limit, offset := pageParams(c)

	entries, total, err := s.sync.ListOps(c.Request.Context(), ownerID(c), status, limit, offset)
	if err != nil {
		s.respondError(c, err, "Error listing pending operations")
		return
	}
	respondPage(c, entries, newPagination(total, limit, offset))
}

// handleRetry replays the terminal-failure bucket.
func (s *Server) handleRetry(c *gin.Context) {
	rep, err := s.sync.RetryFailed(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err, "Error retrying failed operations")
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("Retried %d items", len(rep.Synced)),
		gin.H{"retried": rep.Synced, "errors": rep.Errors})
}

// handleSyncStats combines task and ledger aggregates.
func (s *Server) handleSyncStats(c *gin.Context) {
	taskStats, err := s.tasks.Stats(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err, "Error computing sync stats")
		return
	}
	opStats, err := s.sync.Stats(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err, "Error computing sync stats")
		return
	}
	respond(c, http.StatusOK, "", gin.H{"tasks": taskStats, "pendingData": opStats})
}

// handleClean purges old synced ledger entries.
func (s *Server) handleClean(c *gin.Context) {
	daysOld, _ := strconv.Atoi(c.DefaultQuery("daysOld", "30"))
	deleted, err := s.sync.Purge(c.Request.Context(), ownerID(c), daysOld)
	if err != nil {
		s.respondError(c, err, "Error cleaning old records")
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("Deleted %d old records", deleted),
		gin.H{"deletedCount": deleted})
}

// handleAutoSync advances the pending ledger; intended to be hit periodically
// by the client's service worker.
func (s *Server) handleAutoSync(c *gin.Context) {
	rep, err := s.sync.AutoSync(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err, "Error in automatic sync")
		return
	}
	respond(c, http.StatusOK, "Automatic sync completed", rep)
}
