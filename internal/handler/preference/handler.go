package preference

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quhan/chatdeck/internal/cache"
	"github.com/quhan/chatdeck/pkg/utils"
)

const (
	modelKey        = "last-model"
	sidebarWidthKey = "sidebar-width"

	modelVersion        = 1
	sidebarWidthVersion = 1

	modelExpiry        = 30 * 24 * time.Hour
	sidebarWidthExpiry = 365 * 24 * time.Hour
)

// cacheKeys enumerates every preference key for bulk reset.
var cacheKeys = []string{modelKey, sidebarWidthKey}

// Handler serves durable UI preferences from the local cache directory.
type Handler struct {
	dir     string
	model   *cache.Store
	sidebar *cache.Store
}

// New creates the preference handler rooted at dir. An empty dir degrades
// every preference to absent.
func New(dir string) *Handler {
	return &Handler{
		dir:     dir,
		model:   cache.New(dir, modelKey, modelVersion, modelExpiry),
		sidebar: cache.New(dir, sidebarWidthKey, sidebarWidthVersion, sidebarWidthExpiry),
	}
}

// RegisterRoutes registers preference routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/preferences/model", h.handleGetModel)
	r.Put("/preferences/model", h.handleSetModel)
	r.Get("/preferences/sidebar", h.handleGetSidebar)
	r.Put("/preferences/sidebar", h.handleSetSidebar)
	r.Delete("/preferences", h.handleReset)
}

func (h *Handler) handleGetModel(w http.ResponseWriter, r *http.Request) {
	var model string
	if !h.model.Get(&model) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"model": nil})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"model": model})
}

func (h *Handler) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Model == "" {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.model.Set(payload.Model)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) handleGetSidebar(w http.ResponseWriter, r *http.Request) {
	var width int
	if !h.sidebar.Get(&width) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"width": nil})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"width": width})
}

func (h *Handler) handleSetSidebar(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Width *int `json:"width"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Width == nil || *payload.Width <= 0 {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.sidebar.Set(*payload.Width)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	cache.ClearAll(h.dir, cacheKeys)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
