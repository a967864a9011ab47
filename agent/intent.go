package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/model"
)

// reply is the parsed outcome of the combined classify-and-respond call. For
// domain queries Response is empty: the answer comes from retrieval.
type reply struct {
	Intent   domain.IntentType
	Response string
}

// needsRetrieval is the literal the model emits in place of a response when
// it classifies the message as a domain query.
const needsRetrieval = "needs_retrieval"

// parseCombinedReply parses the two-line INTENT:/RESPONSE: output leniently:
// intent labels match case-insensitively, prefixes of length >= 4 are
// accepted, and the response is everything after the RESPONSE: marker. Any
// unparseable output defaults to a conversational intent with an empty
// response so the branch can supply its static fallback.
func parseCombinedReply(raw string) reply {
	out := reply{Intent: domain.IntentConversational}

	lower := strings.ToLower(raw)
	if i := strings.Index(lower, "intent:"); i >= 0 {
		label := raw[i+len("intent:"):]
		if j := strings.IndexByte(label, '\n'); j >= 0 {
			label = label[:j]
		}
		if intent, ok := matchIntent(label); ok {
			out.Intent = intent
		}
	}
	if i := strings.Index(lower, "response:"); i >= 0 {
		out.Response = strings.TrimSpace(raw[i+len("response:"):])
	}
	if strings.EqualFold(out.Response, needsRetrieval) {
		out.Response = ""
	}
	if out.Intent == domain.IntentDomainQuery {
		out.Response = ""
	}
	return out
}

func matchIntent(label string) (domain.IntentType, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "", false
	}
	for _, intent := range []domain.IntentType{
		domain.IntentConversational,
		domain.IntentDomainQuery,
		domain.IntentOutOfScope,
	} {
		name := string(intent)
		if label == name {
			return intent, true
		}
		// The model often truncates the label.
		if len(label) >= 4 && strings.HasPrefix(name, label) {
			return intent, true
		}
	}
	return "", false
}

// Classify is the standalone intent classifier. The turn engine uses the
// combined classify-and-respond call instead; this remains available for
// offline evaluation and as a fallback utility. Any failure classifies as
// conversational.
func Classify(ctx context.Context, llm model.Client, message, vertical string, allowedTopics []string) domain.IntentType {
	prompt := fmt.Sprintf(`Classify the customer message for a %s support agent.
Allowed topics: %s.
Reply with exactly one word: conversational, domain_query, or out_of_scope.

Message: %s`, vertical, strings.Join(allowedTopics, ", "), message)
	resp, err := llm.Generate(ctx, model.Request{Prompt: prompt, MaxTokens: 10, Temperature: 0})
	if err != nil {
		return domain.IntentConversational
	}
	if intent, ok := matchIntent(resp.Text); ok {
		return intent
	}
	return domain.IntentConversational
}
