package replies

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

// Module is the replies bounded context module implementing http.Module.
type Module struct {
	svc *Service
}

// NewModule creates the replies module and binds its handler on the
// webhook router.
func NewModule(pool *pgxpool.Pool, bus events.Bus, invoker agent.Invoker, router *webhook.Router, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), bus, invoker, log)
	router.RegisterFunc(webhook.EventReplyReceived, svc.HandleReply)
	return &Module{svc: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "replies"
}

// Service returns the replies service for the digest aggregator.
func (m *Module) Service() *Service {
	return m.svc
}

// RegisterRoutes mounts operator endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/replies/:messageId", m.get)
}

func (m *Module) get(c *gin.Context) {
	rec, err := m.svc.Get(c.Request.Context(), c.Param("messageId"))
	if err == ErrClassificationNotFound {
		httpkit.HandleError(c, apperr.NotFound("classification not found"))
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rec)
}

var _ apphttp.Module = (*Module)(nil)
