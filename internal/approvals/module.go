package approvals

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
)

// Module is the approvals bounded context module implementing http.Module.
type Module struct {
	svc *Service
}

// NewModule creates the approvals module and binds its interactive
// handler on the webhook router.
func NewModule(pool *pgxpool.Pool, bus events.Bus, cfg config.NotifyConfig, router *webhook.Router, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), bus, cfg.GetAppBaseURL(), log)
	router.RegisterFunc(webhook.EventInteractionAction, svc.HandleInteraction)
	return &Module{svc: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "approvals"
}

// Service returns the approvals service for the send pipeline.
func (m *Module) Service() *Service {
	return m.svc
}

// RegisterRoutes mounts operator endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/approvals")
	group.GET("/pending", m.listPending)
	group.GET("/:outreachId", m.get)
}

func (m *Module) get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("outreachId"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("outreachId must be a uuid"))
		return
	}
	rec, err := m.svc.Get(c.Request.Context(), id)
	if err == ErrApprovalNotFound {
		httpkit.HandleError(c, apperr.NotFound("approval not found"))
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rec)
}

func (m *Module) listPending(c *gin.Context) {
	recs, err := m.svc.ListPending(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	if recs == nil {
		recs = []ApprovalRecord{}
	}
	httpkit.OK(c, recs)
}

var _ apphttp.Module = (*Module)(nil)
