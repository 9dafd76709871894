package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"diaguru-scheduler/internal/orchestrator"
	"diaguru-scheduler/internal/store"
)

// handleGetCapture drives GET /capture-entries/:id, returning the
// capture's current persisted state (not a fresh scheduling decision).
func (s *Server) handleGetCapture(c *gin.Context) {
	capture, err := s.orc.GetCaptureForOwner(c.Request.Context(), c.Param("id"), ownerIDFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "capture not found"})
		case errors.Is(err, orchestrator.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "capture not owned by caller"})
		default:
			s.log.Error("capture-entries: unexpected error", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"capture": captureToDTO(capture)})
}
