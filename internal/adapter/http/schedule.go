package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"diaguru-scheduler/internal/orchestrator"
	"diaguru-scheduler/internal/shared"
)

// handleScheduleCapture drives POST /schedule-capture: bind the body,
// build a Request, run the orchestrator, and shape the result into
// the documented 200/409/... contract.
func (s *Server) handleScheduleCapture(c *gin.Context) {
	var body scheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	req := orchestrator.Request{
		CaptureID:          body.CaptureID,
		OwnerID:            ownerIDFromContext(c),
		Action:             body.Action,
		Now:                time.Now().UTC(),
		TimeZone:           resolveTimeZone(body),
		PreferredStart:     body.PreferredStart,
		PreferredEnd:       body.PreferredEnd,
		AllowOverlap:       body.AllowOverlap,
		AllowRebalance:     body.resolveAllowRebalance(),
		AllowLatePlacement: body.resolveAllowLatePlacement(),
	}

	res, err := s.orc.Run(c.Request.Context(), req)
	if err != nil {
		s.writeScheduleError(c, err)
		return
	}

	if res.Commit != nil {
		c.JSON(http.StatusOK, resultToResponse(res.Commit.Capture, res))
		return
	}

	if s.notifier != nil && body.TelegramChatID != nil {
		go s.notifyConflict(*body.TelegramChatID, res.Conflict.Message)
	}
	c.JSON(http.StatusOK, resultToResponse(res.Conflict.Capture, res))
}

// notifyConflict runs on its own goroutine so a slow or failing
// Telegram API call never delays the HTTP response that already
// carries the conflict decision.
func (s *Server) notifyConflict(chatID int64, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.notifier.NotifyConflict(ctx, chatID, message); err != nil {
		s.log.Warn("conflict notify failed", "chat_id", chatID, "error", err)
	}
}

// resolveTimeZone prefers a named IANA zone. timezoneOffsetMinutes is
// accepted on the wire for clients that only know their UTC offset,
// but the scheduling engine's zoned-datetime helpers key off IANA
// names, so an offset with no named zone falls back to UTC rather than
// synthesizing a fixed-offset pseudo-zone.
func resolveTimeZone(body scheduleRequest) string {
	if body.TimeZone != "" {
		return body.TimeZone
	}
	return "UTC"
}

// writeScheduleError maps a *shared.ScheduleError (or any other error)
// onto the documented status/body contract.
func (s *Server) writeScheduleError(c *gin.Context, err error) {
	var se *shared.ScheduleError
	if errors.As(err, &se) {
		body := gin.H{"error": se.Message}
		if se.Reason != "" {
			body["reason"] = se.Reason
		}
		for k, v := range se.Details {
			body[k] = v
		}
		c.JSON(se.Status, body)
		return
	}
	s.log.Error("schedule-capture: unexpected error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected error"})
}
