package transcripts

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/internal/agent"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
)

// Module is the transcripts bounded context module implementing http.Module.
type Module struct {
	svc *Service
}

// NewModule creates the transcripts module and binds its handler on
// the webhook router.
func NewModule(pool *pgxpool.Pool, bus events.Bus, invoker agent.Invoker, retries RetryScheduler, router *webhook.Router, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), bus, invoker, retries, log)
	router.RegisterFunc(webhook.EventTranscriptReady, svc.HandleTranscript)
	return &Module{svc: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "transcripts"
}

// Service returns the transcripts service for the worker.
func (m *Module) Service() *Service {
	return m.svc
}

// RegisterRoutes mounts operator endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/transcripts/:meetingId", m.get)
}

func (m *Module) get(c *gin.Context) {
	rec, err := m.svc.Get(c.Request.Context(), c.Param("meetingId"))
	if err == ErrExtractionNotFound {
		httpkit.HandleError(c, apperr.NotFound("extraction not found"))
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rec)
}

var _ apphttp.Module = (*Module)(nil)
