package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/retrieval"
)

// Canned responses. The escalation text is part of the external contract:
// tenant-side integrations may match on it.
const escalationResponse = "I don't have enough information to answer that confidently. Let me connect you with a human agent who can help."

func staticGreeting(cfg domain.TenantConfig) string {
	return fmt.Sprintf("Hi there! I'm %s. How can I help you today?", cfg.PersonaName)
}

func staticOutOfScope(cfg domain.TenantConfig) string {
	return fmt.Sprintf("That's outside what I can help with. I can assist with: %s", strings.Join(cfg.AllowedTopics, ", "))
}

func systemPrompt(cfg domain.TenantConfig, now time.Time) string {
	return fmt.Sprintf(`You are %s, a customer support agent for %s. %s
Today's date is %s. You support customers in the %s vertical.

Rules:
1. Answer only from the retrieved context provided to you.
2. If you do not have enough information, say so and escalate to a human agent.
3. Decline to discuss these topics: %s.
4. Keep answers to 2-4 sentences for simple questions; use structured lists for multi-part questions.
5. Never mention being an AI unless directly asked.
6. A wrong answer is worse than an escalation.
7. When you answer from context, cite the document and section.`,
		cfg.PersonaName, cfg.CompanyName, cfg.PersonaDescription,
		now.Format("2006-01-02"), cfg.Vertical, strings.Join(cfg.BlockedTopics, ", "))
}

// combinedPrompt drives the single hot-path classify-and-respond call.
func combinedPrompt(cfg domain.TenantConfig, history []Entry, message string) string {
	return fmt.Sprintf(`You handle the first pass of every customer message for a %s support agent.
Allowed topics: %s.

Classify the message and, when you can, answer it directly. Emit exactly:
INTENT: <conversational|domain_query|out_of_scope>
RESPONSE: <your reply, OR the literal "%s" when the intent is domain_query>

Use conversational for greetings and chit-chat, domain_query for anything
that needs the knowledge base, out_of_scope for topics outside the allowed
list.

Chat History:
%sUser: %s`,
		cfg.Vertical, strings.Join(cfg.AllowedTopics, ", "), needsRetrieval,
		historyBlock(history), message)
}

// groundedPrompt composes the RAG answer prompt from the ranked results.
func groundedPrompt(results []retrieval.RankedResult, history []Entry, message string) string {
	return fmt.Sprintf("Context:\n%s\n\nChat History:\n%sUser: %s\nAssistant:",
		contextBlock(results), historyBlock(history), message)
}

// contextBlock renders the retrieved chunks in rank order.
func contextBlock(results []retrieval.RankedResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[%s — %s]\n%s", r.Payload.Filename, r.Payload.SectionHeading, r.Text)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func historyBlock(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		switch e.Role {
		case "user":
			sb.WriteString("User: ")
		case "assistant":
			sb.WriteString("Assistant: ")
		default:
			continue
		}
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
