package webhook

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	router  *Router
	handler *Handler
	cfg     config.WebhookSecretsConfig
}

// NewModule wires the router with one provider per ingest endpoint.
// redisClient may be nil; deduplication then falls back to an
// in-process lock.
func NewModule(pool *pgxpool.Pool, redisClient *redis.Client, cfg config.WebhookSecretsConfig, dedupe config.DedupeConfig, log *logger.Logger) *Module {
	var locker Locker
	if redisClient != nil {
		locker = NewRedisLocker(redisClient, dedupe.GetDedupeLockTTL())
	}
	router := NewRouter(NewRepository(pool), locker, log)

	router.AddProvider(Provider{
		Name:       ProviderCalendly,
		Verifier:   NewHMACVerifier(cfg.GetCalendlySigningKey()),
		Normalizer: CalendlyNormalizer{},
	})
	router.AddProvider(Provider{
		Name:       ProviderTranscript,
		Verifier:   NewHMACVerifier(cfg.GetTranscriptSigningKey()),
		Normalizer: TranscriptNormalizer{},
	})
	router.AddProvider(Provider{
		Name:       ProviderInteraction,
		Verifier:   NewSignedTimestampVerifier(cfg.GetInteractionSigningSecret()),
		Normalizer: InteractionNormalizer{},
	})
	router.AddProvider(Provider{
		Name:       ProviderReply,
		Verifier:   NewAPIKeyVerifier(cfg.GetReplyAPIKey()),
		Normalizer: ReplyNormalizer{},
	})

	return &Module{
		router:  router,
		handler: NewHandler(router),
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// Router returns the event router so other modules can register
// handlers for their event types.
func (m *Module) Router() *Router {
	return m.router
}

// RegisterRoutes mounts the public ingest endpoints.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/calendly", m.handler.Ingest(ProviderCalendly))
	ctx.Webhooks.POST("/transcripts", m.handler.Ingest(ProviderTranscript))
	ctx.Webhooks.POST("/interactions", m.handler.Ingest(ProviderInteraction))
	ctx.Webhooks.POST("/replies", m.handler.Ingest(ProviderReply))
}

// ProviderStatuses reports which providers have credentials configured.
func (m *Module) ProviderStatuses() []apphttp.ProviderStatus {
	return []apphttp.ProviderStatus{
		{Provider: ProviderCalendly, Active: m.cfg.GetCalendlySigningKey() != ""},
		{Provider: ProviderTranscript, Active: m.cfg.GetTranscriptSigningKey() != ""},
		{Provider: ProviderInteraction, Active: m.cfg.GetInteractionSigningSecret() != ""},
		{Provider: ProviderReply, Active: m.cfg.GetReplyAPIKey() != ""},
	}
}

var _ apphttp.Module = (*Module)(nil)
var _ apphttp.ProviderStatusReporter = (*Module)(nil)
