package outreach

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/internal/admission"
	"outreach_backend/internal/approvals"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"
)

// Module is the outreach bounded context module implementing http.Module.
type Module struct {
	svc     *Service
	handler *Handler
}

// NewModule wires the send pipeline with both channel senders.
func NewModule(pool *pgxpool.Pool, gate *approvals.Service, ctrl *admission.Controller, emailCfg config.EmailChannelConfig, networkCfg config.NetworkChannelConfig, retries RetryScheduler, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	senders := map[admission.Channel]ChannelSender{
		admission.ChannelEmail:   NewEmailSender(emailCfg),
		admission.ChannelNetwork: NewNetworkSender(networkCfg),
	}
	svc := NewService(NewRepository(pool), gate, ctrl, senders, admission.NewJitterPolicy(), retries, bus, log)
	return &Module{
		svc:     svc,
		handler: NewHandler(svc, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "outreach"
}

// Service returns the pipeline service for the worker.
func (m *Module) Service() *Service {
	return m.svc
}

// RegisterRoutes mounts operator endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/outreach")
	group.POST("", m.handler.Stage)
	group.GET("/:id", m.handler.Get)
	group.POST("/:id/send", m.handler.Send)
}

var _ apphttp.Module = (*Module)(nil)
