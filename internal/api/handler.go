package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"factory-status-backend/internal/ingest"
	"factory-status-backend/internal/parse"
	"factory-status-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	ingest  *ingest.Service
	norm    *parse.Normalizer
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, ing *ingest.Service, norm *parse.Normalizer, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		ingest:  ing,
		norm:    norm,
		webpush: webpushOptions,
	}
}
