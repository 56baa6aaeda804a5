package ai

import (
	"fmt"
	"strings"

	"github.com/quhan/chatdeck/internal/model/chat"
	"github.com/quhan/chatdeck/internal/model/persona"
)

// buildSystemPrompt assembles the system message for a request: the persona
// framing when one is staged, plus a manifest of staged attachments so the
// model knows what the user uploaded. Reasoning config is deliberately not
// interpreted here; it rides the request untouched.
func buildSystemPrompt(p *persona.Persona, req chat.SendRequest) string {
	var builder strings.Builder

	if p == nil {
		builder.WriteString("You are a helpful assistant. Answer directly and cite sources when you rely on them.")
	} else {
		builder.WriteString(fmt.Sprintf("You are %s, %s.\n\n", p.Name, p.Title))
		builder.WriteString("Character:\n")
		builder.WriteString(fmt.Sprintf("- Name: %s\n", p.Name))
		builder.WriteString(fmt.Sprintf("- Tone: %s\n", p.Tone))
		if p.PromptHint != "" {
			builder.WriteString(fmt.Sprintf("- Guidance: %s\n", p.PromptHint))
		}
		if len(p.Traits) > 0 {
			builder.WriteString(fmt.Sprintf("- Traits: %s\n", strings.Join(p.Traits, ", ")))
		}
		if len(p.Expertise) > 0 {
			builder.WriteString(fmt.Sprintf("- Expertise: %s\n", strings.Join(p.Expertise, ", ")))
		}
		builder.WriteString(fmt.Sprintf("\nStay in character and respond in %s's voice.", p.Name))
	}

	if len(req.Attachments) > 0 {
		builder.WriteString("\n\nThe user attached:\n")
		for _, attachment := range req.Attachments {
			builder.WriteString(fmt.Sprintf("- %s (%s): %s\n", attachment.Name, attachment.Type, attachment.URL))
		}
	}

	return builder.String()
}
