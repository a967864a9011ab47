// Package language normalizes user messages to English before the turn
// engine sees them and restores the user's language afterwards. The current
// implementation is a pass-through; the contract that matters is the
// ordering: Inbound runs before every turn, Outbound after.
package language

import "context"

// Middleware translates turn input and output.
type Middleware struct{}

// New builds the middleware.
func New() *Middleware { return &Middleware{} }

// Detect returns the language code of text.
func (m *Middleware) Detect(ctx context.Context, text string) string {
	return "en"
}

// Inbound translates a user message to English.
func (m *Middleware) Inbound(ctx context.Context, text, lang string) string {
	return text
}

// Outbound translates the agent response back to the user's language.
func (m *Middleware) Outbound(ctx context.Context, text, lang string) string {
	return text
}
