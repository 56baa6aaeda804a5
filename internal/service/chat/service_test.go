package chat_test

import (
	"context"
	"errors"
	"testing"

	model "github.com/quhan/chatdeck/internal/model/chat"
	chat "github.com/quhan/chatdeck/internal/service/chat"
)

func TestServiceGetConversation(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	conversation, err := svc.CreateConversation(ctx, "research-scout")
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	got, err := svc.GetConversation(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}

	if got.ID != conversation.ID {
		t.Fatalf("unexpected conversation ID: got %s want %s", got.ID, conversation.ID)
	}
	if got.PersonaID != "research-scout" {
		t.Fatalf("unexpected persona ID: got %s", got.PersonaID)
	}
}

func TestServiceGetConversationNotFound(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	if _, err := svc.GetConversation(ctx, "missing"); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestServiceTranscriptRoundTrip(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	conversation, err := svc.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	turns := []model.Message{
		{ConversationID: conversation.ID, Sender: "user", Content: "hello"},
		{ConversationID: conversation.ID, Sender: "assistant", Content: "hi there"},
	}
	for _, turn := range turns {
		if err := svc.SaveMessage(ctx, turn); err != nil {
			t.Fatalf("SaveMessage err: %v", err)
		}
	}

	transcript, err := svc.LoadTranscript(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(transcript))
	}
	if transcript[0].Sender != "user" || transcript[1].Sender != "assistant" {
		t.Fatalf("unexpected transcript order: %+v", transcript)
	}
	if transcript[0].ID == "" || transcript[0].CreatedAt.IsZero() {
		t.Fatal("saved messages must be stamped with id and time")
	}
}

func TestServiceSaveMessageUnknownConversation(t *testing.T) {
	svc := chat.NewService()

	err := svc.SaveMessage(context.Background(), model.Message{ConversationID: "missing", Sender: "user"})
	if !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
