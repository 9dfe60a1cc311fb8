package gen

import (
	"fmt"

	"github.com/linnemanlabs/intake/internal/message"
)

// systemPrompt instructs the model to classify the message and answer
// with a single JSON object matching the Result schema.
const systemPrompt = `You are an IT service desk analyst. You classify inbound support
messages into structured incident records, using the provided knowledge-base
excerpts when they apply.

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "short_description": "one-line summary of the problem",
  "description": "detailed description including relevant context",
  "category": "incident category, e.g. Network, Access, Hardware, Software",
  "urgency": 1-5 (1 = most urgent),
  "impact": 1-5 (1 = widest impact),
  "recommended_actions": ["concrete next steps for the assignee"],
  "kb_references": ["titles of provided knowledge-base sources you used"]
}

Only cite knowledge-base sources that were actually provided. If none of the
provided sources are relevant, return an empty kb_references list.`

// buildPrompt renders the user turn: knowledge-base context first, then
// the message to classify.
func buildPrompt(msg *message.Message, kbContext string) string {
	if kbContext == "" {
		kbContext = "(no relevant knowledge-base articles found)"
	}
	return fmt.Sprintf(`Knowledge base context:
%s

Support message:
From: %s
Received: %s
Subject: %s

%s`, kbContext, msg.From, msg.ReceivedAt.Format("2006-01-02 15:04:05 MST"), msg.Subject, msg.Body)
}
