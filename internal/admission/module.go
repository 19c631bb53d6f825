package admission

import (
	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the admission bounded context module implementing http.Module.
type Module struct {
	ctrl    *Controller
	handler *Handler
}

// NewModule creates and initializes the admission module.
func NewModule(pool *pgxpool.Pool, clock Clock, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	ctrl := NewController(repo, clock, log)
	return &Module{
		ctrl:    ctrl,
		handler: NewHandler(ctrl, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "admission"
}

// Controller returns the admission controller for the send pipeline.
func (m *Module) Controller() *Controller {
	return m.ctrl
}

// RegisterRoutes mounts operator endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/channels")
	group.GET("/:channel", m.handler.GetConfig)
	group.PUT("/:channel", m.handler.UpdateConfig)
	group.GET("/:channel/usage", m.handler.GetUsage)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
