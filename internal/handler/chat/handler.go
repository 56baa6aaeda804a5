package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quhan/chatdeck/internal/input"
	"github.com/quhan/chatdeck/internal/model/chat"
	"github.com/quhan/chatdeck/internal/model/persona"
	chatService "github.com/quhan/chatdeck/internal/service/chat"
	"github.com/quhan/chatdeck/pkg/utils"
)

// Handler exposes conversations and their staged input over HTTP.
type Handler struct {
	chatSvc      *chatService.Service
	staged       *input.Store
	personaStore persona.Store
}

// New creates the chat handler.
func New(chatSvc *chatService.Service, staged *input.Store, personaStore persona.Store) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		staged:       staged,
		personaStore: personaStore,
	}
}

// RegisterRoutes registers conversation and staging routes. The staging
// routes accept the reserved draft key so an unsaved conversation can stage
// input before it exists.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreateConversation)
	r.Get("/conversations/{key}/transcript", h.handleTranscript)
	r.Get("/conversations/{key}/staged", h.handleGetStaged)
	r.Post("/conversations/{key}/attachments", h.handleAppendAttachments)
	r.Delete("/conversations/{key}/attachments/{index}", h.handleRemoveAttachment)
	r.Put("/conversations/{key}/persona", h.handleSetPersona)
	r.Put("/conversations/{key}/sampling", h.handleSetSampling)
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.PersonaID != "" {
		if _, ok := h.personaStore.FindByID(payload.PersonaID); !ok {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
	}

	conversation, err := h.chatSvc.CreateConversation(r.Context(), payload.PersonaID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Staged input recorded while the chat was an unsaved draft carries
	// over to the freshly created conversation.
	h.adoptDraft(conversation.ID)

	utils.RespondJSON(w, http.StatusCreated, conversation)
}

// adoptDraft moves draft-key staging onto a newly created conversation key.
func (h *Handler) adoptDraft(conversationID string) {
	draft := h.staged.Snapshot(chat.DraftKey)
	empty := len(draft.Attachments) == 0 && draft.PersonaID == "" &&
		draft.Temperature == nil && draft.ReasoningConfig == nil
	if empty {
		return
	}

	key := chat.Key(conversationID)
	if len(draft.Attachments) > 0 {
		h.staged.Append(key, draft.Attachments...)
	}
	if draft.PersonaID != "" {
		h.staged.SetPersona(key, draft.PersonaID)
	}
	if draft.Temperature != nil {
		h.staged.SetTemperature(key, *draft.Temperature)
	}
	if draft.ReasoningConfig != nil {
		h.staged.SetReasoningConfig(key, draft.ReasoningConfig)
	}
	h.staged.Clear(chat.DraftKey)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	transcript, err := h.chatSvc.LoadTranscript(r.Context(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, transcript)
}

func (h *Handler) handleGetStaged(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	utils.RespondJSON(w, http.StatusOK, h.staged.Snapshot(key))
}

func (h *Handler) handleAppendAttachments(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var payload struct {
		Attachments []chat.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	length := h.staged.Append(key, payload.Attachments...)
	utils.RespondJSON(w, http.StatusOK, map[string]int{"length": length})
}

func (h *Handler) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid index")
		return
	}

	// Out-of-range indexes are expected UI races, absorbed silently.
	h.staged.RemoveAt(key, index)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) handleSetPersona(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.PersonaID != "" {
		if _, ok := h.personaStore.FindByID(payload.PersonaID); !ok {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
	}

	h.staged.SetPersona(key, payload.PersonaID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "staged"})
}

func (h *Handler) handleSetSampling(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var payload struct {
		Temperature     *float64       `json:"temperature"`
		ReasoningConfig map[string]any `json:"reasoningConfig"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Temperature != nil {
		h.staged.SetTemperature(key, *payload.Temperature)
	}
	if payload.ReasoningConfig != nil {
		h.staged.SetReasoningConfig(key, payload.ReasoningConfig)
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "staged"})
}
