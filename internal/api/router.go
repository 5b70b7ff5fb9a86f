package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"factory-status-backend/config"
	"factory-status-backend/internal/ingest"
	"factory-status-backend/internal/mw"
	"factory-status-backend/internal/parse"
	"factory-status-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, ing *ingest.Service, norm *parse.Normalizer, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, ing, norm, webpushOptions)

	limit := rate.Limit(10)
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	rateLimiter := mw.RateLimiter(limit, cfg.RateLimitBurst, cfg.RequestIPHeader)

	cacheTTL := 30 * time.Second
	if cfg.CacheTTLSeconds > 0 {
		cacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Ingestion
		api.POST("/reports", handler.PostReports)

		// Live state
		api.GET("/machines", handler.ListMachines)
		api.GET("/machines/:machine", handler.GetMachine)
		api.DELETE("/machines/:machine/live", handler.ResetMachine)
		api.GET("/machines/:machine/history", handler.GetMachineHistory)

		// Overview
		api.GET("/stats", caching, handler.GetStats)

		// Push subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
