package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quhan/chatdeck/internal/model/chat"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Service encapsulates conversation and transcript state. Conversations are
// in-memory; the durable history backend is a collaborator behind this
// boundary.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
}

// NewService bootstraps the in-memory conversation service.
func NewService() *Service {
	return &Service{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

// CreateConversation provisions a conversation, optionally bound to a
// persona.
func (s *Service) CreateConversation(_ context.Context, personaID string) (chat.Conversation, error) {
	conversation := chat.Conversation{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.conversations[conversation.ID] = conversation
	s.messages[conversation.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return conversation, nil
}

// SaveMessage appends a message to the conversation transcript.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) error {
	if message.ConversationID == "" {
		return ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[message.ConversationID]; !ok {
		return ErrConversationNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)
	return nil
}

// GetConversation retrieves a conversation by identifier.
func (s *Service) GetConversation(_ context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversation, ok := s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conversation, nil
}

// LoadTranscript returns stored messages for the provided conversation.
func (s *Service) LoadTranscript(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
