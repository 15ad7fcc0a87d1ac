package session

import "strings"

const (
	DefaultGreeting = "Hello! How can I help you today?"
	DefaultFarewell = "Thank you for chatting. Goodbye!"

	DefaultInstructions = `You are a helpful and conversational AI assistant.

Your behavior:
- Speak naturally and conversationally, like a real person
- Keep answers concise but informative (2-3 sentences typically)
- Be friendly, warm, and engaging
- Listen carefully to what the user asks
- Provide accurate, relevant, and useful responses
- Ask clarifying questions if needed
- Maintain context across the conversation

Communication style:
- Use natural language, not robotic responses
- Show personality and warmth
- Be patient and helpful
- Adapt your tone to the user's needs

Your replies are spoken aloud. Do not use markdown, lists, code or emoji.`
)

// Persona is the system instructions plus the scripted entry and exit lines.
// An empty Greeting or Farewell skips that utterance.
type Persona struct {
	Instructions string
	Greeting     string
	Farewell     string
}

// DefaultPersona returns the stock assistant persona.
func DefaultPersona() Persona {
	return Persona{
		Instructions: DefaultInstructions,
		Greeting:     DefaultGreeting,
		Farewell:     DefaultFarewell,
	}
}

// WithOverrides replaces each non-blank field of the default persona.
func WithOverrides(instructions, greeting, farewell string) Persona {
	p := DefaultPersona()
	if s := strings.TrimSpace(instructions); s != "" {
		p.Instructions = s
	}
	if s := strings.TrimSpace(greeting); s != "" {
		p.Greeting = s
	}
	if s := strings.TrimSpace(farewell); s != "" {
		p.Farewell = s
	}
	return p
}
