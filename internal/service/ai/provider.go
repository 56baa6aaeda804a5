// Package ai adapts the eino/ark streaming chat chain to the coordination
// core's provider contract.
package ai

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/quhan/chatdeck/internal/config"
	"github.com/quhan/chatdeck/internal/model/chat"
	"github.com/quhan/chatdeck/internal/model/persona"
	"github.com/quhan/chatdeck/internal/session"
)

// historyLimit caps how many prior turns travel with each request.
const historyLimit = 10

// maxChains bounds the compiled chains memoized per staged temperature;
// past it the least recently used one is evicted. The default chain is
// pinned.
const maxChains = 8

const defaultChainKey = "default"

// HistoryLoader supplies prior turns for a conversation. A nil loader (or a
// draft key) means the request goes out without history.
type HistoryLoader interface {
	LoadTranscript(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// chainEntry is one memoized compiled chain with its recency stamp.
type chainEntry struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
	touched  time.Time
}

// Service drives persona-conditioned streaming completions through a
// compiled eino chain. It implements session.Provider.
type Service struct {
	personas persona.Store
	history  HistoryLoader
	cfg      config.AIConfig

	// Temperature is fixed at model construction, so staged per-conversation
	// temperatures each get their own compiled chain, built lazily and
	// bounded by maxChains.
	mu      sync.Mutex
	chains  map[string]*chainEntry
	compile func(ctx context.Context, temperature *float64) (compose.Runnable[map[string]any, *schema.Message], error)
}

// NewService compiles the default chain up front so a misconfigured
// provider fails at startup, not on the first send.
func NewService(ctx context.Context, personas persona.Store, history HistoryLoader, cfg config.AIConfig) (*Service, error) {
	s := &Service{
		personas: personas,
		history:  history,
		cfg:      cfg,
		chains:   make(map[string]*chainEntry),
	}
	s.compile = s.buildRunnable

	if _, err := s.runnableFor(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return s, nil
}

// Stream starts a model stream for the send request and adapts it to the
// coordinator's chunk contract.
func (s *Service) Stream(ctx context.Context, req chat.SendRequest) (session.ProviderStream, error) {
	runnable, err := s.runnableFor(ctx, req.Temperature)
	if err != nil {
		return nil, err
	}

	input, err := s.buildChainInput(ctx, req)
	if err != nil {
		return nil, err
	}

	stream, err := runnable.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain output: %w", err)
	}

	log.Printf("[ai] stream opened for key=%s, persona=%s", req.ConversationKey, req.PersonaID)
	return &providerStream{inner: stream}, nil
}

// runnableFor returns the compiled chain for the given temperature
// override, building and memoizing it on first use.
func (s *Service) runnableFor(ctx context.Context, temperature *float64) (compose.Runnable[map[string]any, *schema.Message], error) {
	key := defaultChainKey
	if temperature != nil {
		key = fmt.Sprintf("t=%.3f", *temperature)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.chains[key]; ok {
		entry.touched = time.Now()
		return entry.runnable, nil
	}

	runnable, err := s.compile(ctx, temperature)
	if err != nil {
		return nil, err
	}

	if len(s.chains) >= maxChains {
		s.evictOldestChainLocked()
	}
	s.chains[key] = &chainEntry{runnable: runnable, touched: time.Now()}
	return runnable, nil
}

// buildRunnable compiles the template+model chain for one temperature.
func (s *Service) buildRunnable(ctx context.Context, temperature *float64) (compose.Runnable[map[string]any, *schema.Message], error) {
	chatModel, err := s.cfg.NewChatModel(ctx, temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	return chain.Compile(ctx)
}

// evictOldestChainLocked drops the least recently used temperature chain.
// Callers must hold s.mu.
func (s *Service) evictOldestChainLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range s.chains {
		if key == defaultChainKey {
			continue
		}
		if oldestKey == "" || entry.touched.Before(oldest) {
			oldestKey = key
			oldest = entry.touched
		}
	}
	if oldestKey != "" {
		delete(s.chains, oldestKey)
	}
}

func (s *Service) buildChainInput(ctx context.Context, req chat.SendRequest) (map[string]any, error) {
	var selected *persona.Persona
	if req.PersonaID != "" && s.personas != nil {
		if p, ok := s.personas.FindByID(req.PersonaID); ok {
			selected = &p
		} else {
			return nil, fmt.Errorf("persona %s not found", req.PersonaID)
		}
	}

	history, err := s.loadHistory(ctx, req.ConversationKey)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"system":  buildSystemPrompt(selected, req),
		"history": history,
		"query":   req.Content,
	}, nil
}

func (s *Service) loadHistory(ctx context.Context, conversationKey string) ([]*schema.Message, error) {
	if s.history == nil || conversationKey == chat.DraftKey {
		return nil, nil
	}

	messages, err := s.history.LoadTranscript(ctx, conversationKey)
	if err != nil {
		// A conversation unknown to the transcript store just streams
		// without history.
		return nil, nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case "user":
			history = append(history, schema.UserMessage(msg.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history, nil
}

// providerStream adapts eino's stream reader to session.ProviderStream.
// Chunk Extra payloads travel through as provider metadata so the citation
// normalizer can inspect them.
type providerStream struct {
	inner *schema.StreamReader[*schema.Message]
}

func (p *providerStream) Recv() (session.ProviderChunk, error) {
	for {
		msg, err := p.inner.Recv()
		if err != nil {
			return session.ProviderChunk{}, err
		}
		if msg == nil {
			continue
		}

		chunk := session.ProviderChunk{Text: msg.Content}
		if len(msg.Extra) > 0 {
			chunk.Metadata = msg.Extra
		}
		return chunk, nil
	}
}

func (p *providerStream) Close() {
	p.inner.Close()
}
