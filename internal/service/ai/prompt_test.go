package ai

import (
	"strings"
	"testing"

	"github.com/quhan/chatdeck/internal/model/chat"
	"github.com/quhan/chatdeck/internal/model/persona"
)

func TestBuildSystemPromptDefault(t *testing.T) {
	prompt := buildSystemPrompt(nil, chat.SendRequest{Content: "hi"})

	if !strings.Contains(prompt, "helpful assistant") {
		t.Fatalf("expected default assistant prompt, got %q", prompt)
	}
}

func TestBuildSystemPromptPersona(t *testing.T) {
	p := &persona.Persona{
		Name:      "Ada",
		Title:     "a rigorous code reviewer",
		Tone:      "direct",
		Traits:    []string{"thorough"},
		Expertise: []string{"Go"},
	}

	prompt := buildSystemPrompt(p, chat.SendRequest{Content: "review this"})

	for _, want := range []string{"You are Ada", "Tone: direct", "Traits: thorough", "Expertise: Go", "Ada's voice"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q, got %q", want, prompt)
		}
	}
}

func TestBuildSystemPromptAttachments(t *testing.T) {
	req := chat.SendRequest{
		Content: "summarize",
		Attachments: []chat.Attachment{
			{Type: "file", Name: "notes.txt", URL: "https://example.com/notes.txt"},
		},
	}

	prompt := buildSystemPrompt(nil, req)

	if !strings.Contains(prompt, "notes.txt (file): https://example.com/notes.txt") {
		t.Fatalf("expected attachment manifest in prompt, got %q", prompt)
	}
}
