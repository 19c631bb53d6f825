package outreach

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/admission"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"
)

// Handler exposes the staging and send endpoints.
type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// StageItemRequest is the payload for staging one outreach item.
type StageItemRequest struct {
	Channel   string `json:"channel" validate:"required,oneof=email professional_network"`
	Kind      string `json:"kind" validate:"required,oneof=email connection_request inmail"`
	Recipient string `json:"recipient" validate:"required"`
	Subject   string `json:"subject"`
	Body      string `json:"body" validate:"required"`
}

// Stage creates a staged item awaiting approval.
func (h *Handler) Stage(c *gin.Context) {
	var req StageItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(err.Error()))
		return
	}

	item, err := h.svc.Stage(c.Request.Context(), StageRequest{
		Channel:   admission.Channel(req.Channel),
		Kind:      admission.ActionKind(req.Kind),
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, 201, item)
}

// Send runs the send pipeline for an approved item.
func (h *Handler) Send(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("id must be a uuid"))
		return
	}
	outcome, err := h.svc.SendApproved(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, outcome)
}

// Get returns one item.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("id must be a uuid"))
		return
	}
	item, err := h.svc.Get(c.Request.Context(), id)
	if err == ErrItemNotFound {
		httpkit.HandleError(c, apperr.NotFound("outreach item not found"))
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, item)
}
