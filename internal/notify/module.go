package notify

import (
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/config"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module is the notify bounded context module implementing http.Module.
type Module struct {
	dispatcher *Dispatcher
}

// NewModule creates the dispatcher and subscribes it to the domain
// event bus.
func NewModule(cfg config.NotifyConfig, sources DigestSources, bus events.Bus, log *logger.Logger) *Module {
	dispatcher := NewDispatcher(NewWebhookClient(cfg.GetApprovalWebhookURL()), sources, log)
	dispatcher.SubscribeTo(bus)
	return &Module{dispatcher: dispatcher}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notify"
}

// Dispatcher returns the dispatcher for the worker digest task.
func (m *Module) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// RegisterRoutes mounts operator endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/notifications")
	group.GET("/outstanding", m.outstanding)
	group.POST("/digest", m.sendDigest)
}

func (m *Module) outstanding(c *gin.Context) {
	httpkit.OK(c, gin.H{"outstanding": m.dispatcher.Outstanding()})
}

// sendDigest triggers the daily digest on demand, outside its
// schedule.
func (m *Module) sendDigest(c *gin.Context) {
	if err := m.dispatcher.SendDailyDigest(c.Request.Context()); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"sent": true})
}

var _ apphttp.Module = (*Module)(nil)
