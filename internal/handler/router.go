package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/quhan/chatdeck/internal/handler/chat"
	personaHandler "github.com/quhan/chatdeck/internal/handler/persona"
	preferenceHandler "github.com/quhan/chatdeck/internal/handler/preference"
	streamHandler "github.com/quhan/chatdeck/internal/handler/stream"
	"github.com/quhan/chatdeck/internal/input"
	middlewarePkg "github.com/quhan/chatdeck/internal/middleware"
	personaModel "github.com/quhan/chatdeck/internal/model/persona"
	chatService "github.com/quhan/chatdeck/internal/service/chat"
	"github.com/quhan/chatdeck/internal/session"
	"github.com/quhan/chatdeck/pkg/utils"
)

// NewRouter wires HTTP routes to core services. coord may lack a provider;
// streaming routes then report unavailability while the rest of the API
// keeps working.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, staged *input.Store, coord *session.Coordinator, cacheDir string, aiEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		personaHandler.New(personas).RegisterRoutes(api)
		chatHandler.New(chatSvc, staged, personas).RegisterRoutes(api)
		preferenceHandler.New(cacheDir).RegisterRoutes(api)

		if aiEnabled {
			sh := streamHandler.New(coord)
			sh.RegisterRoutes(api)
			streamHandler.NewWebSocketHandler(coord).RegisterWebSocketRoutes(api)
		} else {
			api.Get("/stream/{key}", handleStreamingUnavailable)
			api.Post("/stream/{key}/stop", handleStreamingUnavailable)
			api.Get("/stream/{key}/state", handleStreamingUnavailable)
			api.Get("/ws/{key}", handleStreamingUnavailable)
		}
	})

	return r
}

func handleStreamingUnavailable(w http.ResponseWriter, r *http.Request) {
	utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
}
