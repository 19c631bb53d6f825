package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"outreach_backend/platform/httpkit"
)

// maxBodyBytes caps inbound payload size before verification.
const maxBodyBytes = 1 << 20

// Handler exposes one ingest endpoint per provider.
type Handler struct {
	router *Router
}

func NewHandler(router *Router) *Handler {
	return &Handler{router: router}
}

// Ingest returns the gin handler for one provider endpoint.
func (h *Handler) Ingest(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "unreadable request body", nil)
			return
		}
		if len(body) > maxBodyBytes {
			httpkit.Error(c, http.StatusRequestEntityTooLarge, "payload too large", nil)
			return
		}

		headers := map[string]string{
			"Content-Type":           c.ContentType(),
			"Authorization":          c.GetHeader("Authorization"),
			HeaderSignature:          c.GetHeader(HeaderSignature),
			HeaderSignatureTimestamp: c.GetHeader(HeaderSignatureTimestamp),
			HeaderSignedSignature:    c.GetHeader(HeaderSignedSignature),
		}

		result, err := h.router.Ingest(c.Request.Context(), provider, body, headers, c.ClientIP())
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, result)
	}
}
