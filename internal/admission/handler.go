package admission

import (
	"net/http"
	"time"

	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the operator API for channel configuration and usage.
type Handler struct {
	ctrl *Controller
	val  *validator.Validator
}

// NewHandler creates an admission handler.
func NewHandler(ctrl *Controller, val *validator.Validator) *Handler {
	return &Handler{ctrl: ctrl, val: val}
}

// ChannelConfigResponse is the API shape of a channel configuration.
type ChannelConfigResponse struct {
	Channel       string `json:"channel"`
	DailyLimit    int    `json:"dailyLimit"`
	WindowStart   string `json:"windowStart"`
	WindowEnd     string `json:"windowEnd"`
	ActionDelay   string `json:"actionDelay"`
	WarmupEnabled bool   `json:"warmupEnabled"`
	Timezone      string `json:"timezone"`
}

// UpdateChannelConfigRequest is the request body for configuration updates.
type UpdateChannelConfigRequest struct {
	DailyLimit    int    `json:"dailyLimit" validate:"required,min=1,max=1000"`
	WindowStart   string `json:"windowStart" validate:"required"`
	WindowEnd     string `json:"windowEnd" validate:"required"`
	ActionDelay   string `json:"actionDelay"`
	WarmupEnabled bool   `json:"warmupEnabled"`
	Timezone      string `json:"timezone"`
}

// UsageResponse reports today's consumption against the effective limit.
type UsageResponse struct {
	Channel        string     `json:"channel"`
	Day            string     `json:"day"`
	SentCount      int        `json:"sentCount"`
	EffectiveLimit int        `json:"effectiveLimit"`
	LastActionAt   *time.Time `json:"lastActionAt,omitempty"`
}

// GetConfig returns the channel configuration.
// GET /api/v1/admin/channels/:channel
func (h *Handler) GetConfig(c *gin.Context) {
	channel := Channel(c.Param("channel"))
	cfg, err := h.ctrl.Config(c.Request.Context(), channel)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toConfigResponse(cfg))
}

// UpdateConfig replaces the channel configuration.
// PUT /api/v1/admin/channels/:channel
func (h *Handler) UpdateConfig(c *gin.Context) {
	channel := Channel(c.Param("channel"))

	var req UpdateChannelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	delay := time.Duration(0)
	if req.ActionDelay != "" {
		parsed, err := time.ParseDuration(req.ActionDelay)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid actionDelay", nil)
			return
		}
		delay = parsed
	}

	cfg := ChannelConfig{
		Channel:       channel,
		DailyLimit:    req.DailyLimit,
		WindowStart:   req.WindowStart,
		WindowEnd:     req.WindowEnd,
		ActionDelay:   delay,
		WarmupEnabled: req.WarmupEnabled,
		Timezone:      req.Timezone,
	}
	if err := h.ctrl.UpdateConfig(c.Request.Context(), cfg); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toConfigResponse(cfg))
}

// GetUsage returns today's consumption for the channel.
// GET /api/v1/admin/channels/:channel/usage
func (h *Handler) GetUsage(c *gin.Context) {
	channel := Channel(c.Param("channel"))
	consumption, limit, err := h.ctrl.Usage(c.Request.Context(), channel)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, UsageResponse{
		Channel:        string(channel),
		Day:            consumption.Day,
		SentCount:      consumption.SentCount,
		EffectiveLimit: limit,
		LastActionAt:   consumption.LastActionAt,
	})
}

func toConfigResponse(cfg ChannelConfig) ChannelConfigResponse {
	return ChannelConfigResponse{
		Channel:       string(cfg.Channel),
		DailyLimit:    cfg.DailyLimit,
		WindowStart:   cfg.WindowStart,
		WindowEnd:     cfg.WindowEnd,
		ActionDelay:   cfg.ActionDelay.String(),
		WarmupEnabled: cfg.WarmupEnabled,
		Timezone:      cfg.Timezone,
	}
}
