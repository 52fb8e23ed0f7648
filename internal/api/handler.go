package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"gps-fleet-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store       store.Store
	webpush     *webpush.Options
	offsetHours int
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, webpushOptions *webpush.Options, offsetHours int) *Handler {
	return &Handler{
		store:       s,
		webpush:     webpushOptions,
		offsetHours: offsetHours,
	}
}
