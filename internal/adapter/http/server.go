package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"diaguru-scheduler/internal/orchestrator"
)

// ConflictNotifier DMs a best-effort conflict notice; the HTTP layer
// depends only on this narrow port so it never imports the concrete
// telegram adapter directly.
type ConflictNotifier interface {
	NotifyConflict(ctx context.Context, chatID int64, message string) error
}

// Server wires the gin router over an Orchestrator.
type Server struct {
	orc      *orchestrator.Orchestrator
	auth     Authenticator
	notifier ConflictNotifier
	log      *slog.Logger
}

// New builds a Server. auth resolves bearer tokens to owner ids.
// notifier may be nil when no Telegram bot token is configured.
func New(orc *orchestrator.Orchestrator, auth Authenticator, notifier ConflictNotifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{orc: orc, auth: auth, notifier: notifier, log: log}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)

	authed := r.Group("/")
	authed.Use(s.requireBearer)
	authed.POST("/schedule-capture", s.handleScheduleCapture)
	authed.GET("/capture-entries/:id", s.handleGetCapture)

	return r
}

// ListenAndServe builds an *http.Server for addr with the router as its
// handler; the caller starts and shuts it down.
func (s *Server) ListenAndServe(addr string) *http.Server {
	return &http.Server{Addr: addr, Handler: s.Router(), ReadTimeout: 10 * time.Second, WriteTimeout: 30 * time.Second}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireBearer resolves the Authorization header into an owner id,
// stashed in the gin context for downstream handlers.
func (s *Server) requireBearer(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	ownerID, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
		return
	}
	c.Set("ownerID", ownerID)
	c.Next()
}

func ownerIDFromContext(c *gin.Context) string {
	v, _ := c.Get("ownerID")
	id, _ := v.(string)
	return id
}
