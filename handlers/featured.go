package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"curator/models"
	"curator/services/featured"
	"curator/services/scheduler"
	"curator/utils"
)

type featuredService interface {
	GetFeaturedContent(context.Context) *models.FeaturedContent
	GetCategory(context.Context, string) (models.ContentCategory, bool)
	InvalidateCache(context.Context) error
	InvalidateMetadata(context.Context) error
	TriggerRefresh() error
	Status() featured.ServiceStatus
}

var _ featuredService = (*featured.Service)(nil)

type FeaturedHandler struct {
	Service featuredService
}

func NewFeaturedHandler(svc featuredService) *FeaturedHandler {
	return &FeaturedHandler{Service: svc}
}

// Register mounts the public routes on r and the admin routes on a subrouter
// wrapped with adminMW.
func (h *FeaturedHandler) Register(r *mux.Router, adminMW ...mux.MiddlewareFunc) {
	r.HandleFunc("/api/featured", h.GetFeatured).Methods(http.MethodGet)
	r.HandleFunc("/api/featured/categories/{id}", h.GetCategory).Methods(http.MethodGet)
	r.HandleFunc("/api/version", GetVersion).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(adminMW...)
	admin.HandleFunc("/cache/invalidate", h.InvalidateCache).Methods(http.MethodPost)
	admin.HandleFunc("/cache/metadata/invalidate", h.InvalidateMetadata).Methods(http.MethodPost)
	admin.HandleFunc("/refresh", h.TriggerRefresh).Methods(http.MethodPost)
	admin.HandleFunc("/status", h.Status).Methods(http.MethodGet)
}

func (h *FeaturedHandler) GetFeatured(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	utils.WriteJSON(w, http.StatusOK, h.Service.GetFeaturedContent(r.Context()))
}

func (h *FeaturedHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cat, ok := h.Service.GetCategory(r.Context(), id)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown category")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	utils.WriteJSON(w, http.StatusOK, cat)
}

func (h *FeaturedHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.InvalidateCache(r.Context()); err != nil {
		log.Error().Err(err).Msg("[api] cache invalidation failed")
		utils.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *FeaturedHandler) InvalidateMetadata(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.InvalidateMetadata(r.Context()); err != nil {
		log.Warn().Err(err).Msg("[featured] metadata invalidation failed")
		utils.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *FeaturedHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.TriggerRefresh(); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrRefreshInProgress):
			utils.WriteError(w, http.StatusConflict, "refresh already in progress")
		case errors.Is(err, featured.ErrRefreshUnavailable):
			utils.WriteError(w, http.StatusServiceUnavailable, "refresh scheduler not available")
		default:
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	utils.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (h *FeaturedHandler) Status(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.Service.Status())
}
