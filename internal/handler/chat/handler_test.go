package chat_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	handler "github.com/quhan/chatdeck/internal/handler/chat"
	"github.com/quhan/chatdeck/internal/input"
	model "github.com/quhan/chatdeck/internal/model/chat"
	"github.com/quhan/chatdeck/internal/model/persona"
	chatService "github.com/quhan/chatdeck/internal/service/chat"
)

func newTestRouter(t *testing.T) (*chi.Mux, *input.Store, *chatService.Service) {
	t.Helper()

	staged := input.NewStore()
	svc := chatService.NewService()
	h := handler.New(svc, staged, persona.NewMemoryStore(persona.Seed()))

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, staged, svc
}

func TestCreateConversation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	body := bytes.NewBufferString(`{"personaId":"socratic-tutor"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var conversation model.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conversation); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if conversation.ID == "" {
		t.Fatal("expected a generated conversation id")
	}
	if conversation.PersonaID != "socratic-tutor" {
		t.Fatalf("expected persona socratic-tutor, got %q", conversation.PersonaID)
	}
}

func TestCreateConversationUnknownPersona(t *testing.T) {
	r, _, _ := newTestRouter(t)

	body := bytes.NewBufferString(`{"personaId":"no-such-persona"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestCreateConversationAdoptsDraft(t *testing.T) {
	r, staged, _ := newTestRouter(t)

	staged.Append(model.DraftKey, model.Attachment{Type: "image", Name: "a.png"})
	staged.SetTemperature(model.DraftKey, 0.4)

	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var conversation model.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conversation); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	adopted := staged.Snapshot(model.Key(conversation.ID))
	if len(adopted.Attachments) != 1 || adopted.Attachments[0].Name != "a.png" {
		t.Fatalf("expected draft attachment to carry over, got %+v", adopted.Attachments)
	}
	if adopted.Temperature == nil || *adopted.Temperature != 0.4 {
		t.Fatalf("expected draft temperature to carry over, got %v", adopted.Temperature)
	}

	draft := staged.Snapshot(model.DraftKey)
	if len(draft.Attachments) != 0 || draft.Temperature != nil {
		t.Fatal("expected draft staging to be cleared after adoption")
	}
}

func TestAppendAttachmentsReturnsLength(t *testing.T) {
	r, _, _ := newTestRouter(t)

	payload := `{"attachments":[{"type":"image","name":"a.png"},{"type":"file","name":"b.txt"}]}`
	req := httptest.NewRequest(http.MethodPost, "/conversations/c1/attachments", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["length"] != 2 {
		t.Fatalf("expected length 2, got %d", result["length"])
	}
}

func TestRemoveAttachmentOutOfRange(t *testing.T) {
	r, staged, _ := newTestRouter(t)

	staged.Append("c1", model.Attachment{Type: "image", Name: "a.png"})

	req := httptest.NewRequest(http.MethodDelete, "/conversations/c1/attachments/5", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 for out-of-range index, got %d", rec.Code)
	}
	if got := len(staged.Snapshot("c1").Attachments); got != 1 {
		t.Fatalf("expected staged attachments untouched, got %d", got)
	}
}

func TestRemoveAttachment(t *testing.T) {
	r, staged, _ := newTestRouter(t)

	staged.Append("c1",
		model.Attachment{Type: "image", Name: "a.png"},
		model.Attachment{Type: "file", Name: "b.txt"},
	)

	req := httptest.NewRequest(http.MethodDelete, "/conversations/c1/attachments/0", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}

	remaining := staged.Snapshot("c1").Attachments
	if len(remaining) != 1 || remaining[0].Name != "b.txt" {
		t.Fatalf("expected only b.txt to remain, got %+v", remaining)
	}
}

func TestSetPersonaUnknown(t *testing.T) {
	r, staged, _ := newTestRouter(t)

	body := bytes.NewBufferString(`{"personaId":"ghost"}`)
	req := httptest.NewRequest(http.MethodPut, "/conversations/c1/persona", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if staged.Snapshot("c1").PersonaID != "" {
		t.Fatal("expected persona to stay unset after rejected update")
	}
}

func TestSetSampling(t *testing.T) {
	r, staged, _ := newTestRouter(t)

	body := bytes.NewBufferString(`{"temperature":0.9,"reasoningConfig":{"effort":"high"}}`)
	req := httptest.NewRequest(http.MethodPut, "/conversations/c1/sampling", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	snap := staged.Snapshot("c1")
	if snap.Temperature == nil || *snap.Temperature != 0.9 {
		t.Fatalf("expected temperature 0.9, got %v", snap.Temperature)
	}
	if snap.ReasoningConfig["effort"] != "high" {
		t.Fatalf("expected reasoning config to be staged, got %v", snap.ReasoningConfig)
	}
}

func TestTranscriptNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/conversations/missing/transcript", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}
