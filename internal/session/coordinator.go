package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quhan/chatdeck/internal/analysis/citation"
	"github.com/quhan/chatdeck/internal/input"
	"github.com/quhan/chatdeck/internal/model/chat"
	"github.com/quhan/chatdeck/internal/model/persona"
)

var (
	ErrAttemptInFlight     = errors.New("an attempt is already in flight for this conversation")
	ErrProviderUnavailable = errors.New("model provider is not configured")
	ErrUnknownPersona      = errors.New("staged persona does not exist")
)

// maxSessions bounds tracked conversation keys; terminal entries are pruned
// oldest-first past it.
const maxSessions = 256

// StreamEvent is the rendering-facing event shape emitted over SSE and
// websocket bridges.
type StreamEvent struct {
	Type            string           `json:"type"`
	ConversationKey string           `json:"conversationKey,omitempty"`
	MessageID       string           `json:"messageId,omitempty"`
	Text            string           `json:"text,omitempty"`
	Citations       []citation.Entry `json:"citations,omitempty"`
	Error           string           `json:"error,omitempty"`
	Retryable       bool             `json:"retryable,omitempty"`
	Finished        bool             `json:"finished,omitempty"`
}

// Outward event types. "stopped" confirms a user cancellation so sinks
// always observe a terminal event; it is not an error.
const (
	StreamEventStart     = "start"
	StreamEventChunk     = "chunk"
	StreamEventCitations = "citations"
	StreamEventEnd       = "end"
	StreamEventStopped   = "stopped"
	StreamEventError     = "error"
)

// ProviderChunk is one streamed fragment from the model backend. Metadata
// carries whatever citation-bearing payload the provider attached.
type ProviderChunk struct {
	Text     string
	Metadata map[string]any
}

// ProviderStream yields chunks in delivery order until io.EOF.
type ProviderStream interface {
	Recv() (ProviderChunk, error)
	Close()
}

// Provider starts a model stream for a send request.
type Provider interface {
	Stream(ctx context.Context, req chat.SendRequest) (ProviderStream, error)
}

// Transcripts persists completed turns. A nil Transcripts skips persistence.
type Transcripts interface {
	SaveMessage(ctx context.Context, message chat.Message) error
}

// Sink receives the outward events of one attempt.
type Sink func(StreamEvent)

type sessionEntry struct {
	state     State
	citations []citation.Entry
	cited     bool
	cancel    context.CancelFunc
	touched   time.Time
}

// Coordinator owns the per-key machines. All asynchronous stream callbacks
// funnel through it and are checked against the active message ID before
// they may mutate anything, so callbacks outliving their attempt are inert.
type Coordinator struct {
	mu          sync.Mutex
	provider    Provider
	staged      *input.Store
	transcripts Transcripts
	personas    persona.Store
	sessions    map[string]*sessionEntry
}

// NewCoordinator wires the coordinator. transcripts and personas may be nil
// to disable persistence and persona validation respectively.
func NewCoordinator(provider Provider, staged *input.Store, transcripts Transcripts, personas persona.Store) *Coordinator {
	return &Coordinator{
		provider:    provider,
		staged:      staged,
		transcripts: transcripts,
		personas:    personas,
		sessions:    make(map[string]*sessionEntry),
	}
}

// StateOf returns the current machine state for key.
func (c *Coordinator) StateOf(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.sessions[key]; ok {
		return e.state
	}
	return State{Phase: PhaseIdle}
}

// Citations returns the citations recorded so far for key's active or most
// recent message. The boolean distinguishes "none yet" from a recorded
// (possibly deduplicated) list, mirroring the normalizer's absent state.
func (c *Coordinator) Citations(key string) ([]citation.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.sessions[key]
	if !ok || !e.cited {
		return nil, false
	}
	return append([]citation.Entry(nil), e.citations...), true
}

// Send snapshots the staged input for key, mints a message ID, and launches
// the provider stream. It refuses while an attempt is active. The returned
// ID identifies the attempt in subsequent events.
func (c *Coordinator) Send(ctx context.Context, key, content string, sink Sink) (string, error) {
	if c.provider == nil {
		return "", ErrProviderUnavailable
	}

	snapshot := c.staged.Snapshot(key)

	c.mu.Lock()
	e := c.ensureLocked(key)
	if !e.state.CanSend() {
		c.mu.Unlock()
		return "", ErrAttemptInFlight
	}

	if snapshot.PersonaID != "" && c.personas != nil {
		if _, ok := c.personas.FindByID(snapshot.PersonaID); !ok {
			e.state = Reduce(e.state, Event{Type: EventError, Err: ErrUnknownPersona, Retryable: false})
			state := e.state
			c.mu.Unlock()
			emit(sink, StreamEvent{
				Type:            StreamEventError,
				ConversationKey: key,
				Error:           state.Err.Error(),
				Retryable:       false,
			})
			return "", ErrUnknownPersona
		}
	}

	messageID := uuid.NewString()
	e.state = Reduce(e.state, Event{Type: EventSend, MessageID: messageID})
	e.citations = nil
	e.cited = false

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	c.mu.Unlock()

	req := chat.SendRequest{
		ConversationKey: key,
		Content:         content,
		Attachments:     snapshot.Attachments,
		PersonaID:       snapshot.PersonaID,
		Temperature:     snapshot.Temperature,
		ReasoningConfig: snapshot.ReasoningConfig,
	}

	go c.run(runCtx, key, messageID, req, sink)
	return messageID, nil
}

// Stop cancels the in-flight stream for key. It only acts while streaming;
// anywhere else it is a no-op, and repeating it is harmless.
func (c *Coordinator) Stop(key string) {
	c.mu.Lock()
	e, ok := c.sessions[key]
	if !ok || e.state.Phase != PhaseStreaming {
		c.mu.Unlock()
		return
	}
	e.state = Reduce(e.state, Event{Type: EventStop})
	cancel := e.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reset unconditionally returns key's machine to idle, cancelling any
// in-flight attempt.
func (c *Coordinator) Reset(key string) {
	c.mu.Lock()
	e, ok := c.sessions[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.cancel = nil
	e.state = Reduce(e.state, Event{Type: EventReset})
	e.citations = nil
	e.cited = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// run consumes one provider stream. Every mutation re-checks that messageID
// is still the active attempt for key, so callbacks delivered after stop,
// reset, or a newer send fall through silently.
func (c *Coordinator) run(ctx context.Context, key, messageID string, req chat.SendRequest, sink Sink) {
	stream, err := c.provider.Stream(ctx, req)
	if err != nil {
		c.fail(key, messageID, err, sink)
		return
	}
	defer stream.Close()

	if !c.apply(key, Event{Type: EventStart, MessageID: messageID}) {
		return
	}
	emit(sink, StreamEvent{Type: StreamEventStart, ConversationKey: key, MessageID: messageID})

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			c.finish(ctx, key, messageID, req, sink)
			return
		}
		if recvErr != nil {
			if ctx.Err() != nil {
				c.confirmStopped(key, messageID, sink)
				return
			}
			c.fail(key, messageID, recvErr, sink)
			return
		}

		c.applyChunk(key, messageID, chunk, sink)
	}
}

// applyChunk appends streamed text and merges any citation metadata the
// chunk carried. Stale chunks are dropped whole: neither content nor
// citations may change once the attempt is no longer active.
func (c *Coordinator) applyChunk(key, messageID string, chunk ProviderChunk, sink Sink) {
	c.mu.Lock()
	e, ok := c.sessions[key]
	if !ok || e.state.Phase != PhaseStreaming || e.state.MessageID != messageID {
		c.mu.Unlock()
		return
	}

	e.state = Reduce(e.state, Event{Type: EventChunk, MessageID: messageID, Text: chunk.Text})

	var citationsEvent *StreamEvent
	if entries, present := citation.FromMetadata(chunk.Metadata); present {
		e.citations = citation.Merge(e.citations, entries)
		e.cited = true
		citationsEvent = &StreamEvent{
			Type:            StreamEventCitations,
			ConversationKey: key,
			MessageID:       messageID,
			Citations:       append([]citation.Entry(nil), e.citations...),
		}
	}
	c.mu.Unlock()

	if chunk.Text != "" {
		emit(sink, StreamEvent{
			Type:            StreamEventChunk,
			ConversationKey: key,
			MessageID:       messageID,
			Text:            chunk.Text,
		})
	}
	if citationsEvent != nil {
		emit(sink, *citationsEvent)
	}
}

// finish settles a completed stream: inline markdown links are folded into
// the citation list, the machine returns to idle, staged input is cleared,
// and both turns are persisted.
func (c *Coordinator) finish(ctx context.Context, key, messageID string, req chat.SendRequest, sink Sink) {
	c.mu.Lock()
	e, ok := c.sessions[key]
	if !ok || e.state.Phase != PhaseStreaming || e.state.MessageID != messageID {
		c.mu.Unlock()
		return
	}
	content := e.state.Content
	e.state = Reduce(e.state, Event{Type: EventEnd, MessageID: messageID})

	// Providers without citation metadata still cite through inline links
	// in the streamed text. Merging keeps metadata entries first and
	// deduplicates by URL.
	var citationsEvent *StreamEvent
	if entries := citation.FromMarkdown(content); len(entries) > 0 {
		e.citations = citation.Merge(e.citations, entries)
		e.cited = true
		citationsEvent = &StreamEvent{
			Type:            StreamEventCitations,
			ConversationKey: key,
			MessageID:       messageID,
			Citations:       append([]citation.Entry(nil), e.citations...),
		}
	}

	cancel := e.cancel
	e.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.staged.Clear(key)
	c.persistTurns(ctx, key, req.Content, content)

	if citationsEvent != nil {
		emit(sink, *citationsEvent)
	}
	emit(sink, StreamEvent{
		Type:            StreamEventEnd,
		ConversationKey: key,
		MessageID:       messageID,
		Finished:        true,
	})
}

// fail moves the attempt to the error state unless a newer attempt has
// already taken over the key.
func (c *Coordinator) fail(key, messageID string, cause error, sink Sink) {
	c.mu.Lock()
	e, ok := c.sessions[key]
	if !ok || e.state.MessageID != messageID || e.state.Terminal() {
		c.mu.Unlock()
		return
	}
	e.state = Reduce(e.state, ErrorEvent(cause))
	cancel := e.cancel
	e.cancel = nil
	retryable := e.state.Retryable
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("[session] attempt %s failed for key=%s: %v", messageID, key, cause)
	emit(sink, StreamEvent{
		Type:            StreamEventError,
		ConversationKey: key,
		MessageID:       messageID,
		Error:           cause.Error(),
		Retryable:       retryable,
	})
}

// confirmStopped reports the terminal stopped event after the cancelled
// stream winds down, but only if this attempt is the one that was stopped.
func (c *Coordinator) confirmStopped(key, messageID string, sink Sink) {
	c.mu.Lock()
	e, ok := c.sessions[key]
	stopped := ok && e.state.Phase == PhaseStopped && e.state.MessageID == messageID
	if stopped {
		e.cancel = nil
	}
	c.mu.Unlock()

	if stopped {
		emit(sink, StreamEvent{Type: StreamEventStopped, ConversationKey: key, MessageID: messageID})
	}
}

func (c *Coordinator) persistTurns(ctx context.Context, key, userContent, assistantContent string) {
	if c.transcripts == nil || key == chat.DraftKey {
		return
	}
	turns := []chat.Message{
		{ConversationID: key, Sender: "user", Content: userContent},
		{ConversationID: key, Sender: "assistant", Content: assistantContent},
	}
	for _, turn := range turns {
		if err := c.transcripts.SaveMessage(ctx, turn); err != nil {
			log.Printf("[session] failed to save %s turn for key=%s: %v", turn.Sender, key, err)
		}
	}
}

// apply runs one reducer event for key and reports whether it changed the
// state.
func (c *Coordinator) apply(key string, ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.sessions[key]
	if !ok {
		return false
	}
	next := Reduce(e.state, ev)
	changed := next != e.state
	e.state = next
	return changed
}

func (c *Coordinator) ensureLocked(key string) *sessionEntry {
	e, ok := c.sessions[key]
	if !ok {
		if len(c.sessions) >= maxSessions {
			c.pruneLocked()
		}
		e = &sessionEntry{state: State{Phase: PhaseIdle}}
		c.sessions[key] = e
	}
	e.touched = time.Now()
	return e
}

// pruneLocked evicts the oldest terminal entries. Active attempts are never
// evicted.
func (c *Coordinator) pruneLocked() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.sessions {
		if !e.state.Terminal() {
			continue
		}
		if oldestKey == "" || e.touched.Before(oldest) {
			oldestKey = key
			oldest = e.touched
		}
	}
	if oldestKey != "" {
		delete(c.sessions, oldestKey)
	}
}

func emit(sink Sink, ev StreamEvent) {
	if sink != nil {
		sink(ev)
	}
}
