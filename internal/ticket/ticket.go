// Package ticket assembles ServiceNow incident payloads from generation
// results and holds the urgency/impact priority matrix.
package ticket

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/intake/internal/gen"
	"github.com/linnemanlabs/intake/internal/kb"
	"github.com/linnemanlabs/intake/internal/message"
)

// ShortDescriptionMax is ServiceNow's effective limit for the
// short_description field.
const ShortDescriptionMax = 160

// Ticket is the incident payload sent to the ServiceNow Table API.
type Ticket struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	Urgency          int    `json:"urgency"`
	Impact           int    `json:"impact"`
	Priority         int    `json:"priority"`
	CallerID         string `json:"caller_id"`
	ContactType      string `json:"contact_type"`
	WorkNotes        string `json:"work_notes"`
}

// Record identifies a created incident.
type Record struct {
	Number string `json:"number"`
	SysID  string `json:"sys_id"`
	URL    string `json:"url,omitempty"`
}

// Build assembles the incident payload. Urgency and impact are clamped
// to 1..5 before the priority lookup; the short description is capped
// at ServiceNow's field limit.
func Build(msg *message.Message, r *gen.Result, sources []kb.Source) *Ticket {
	urgency := clamp(r.Urgency)
	impact := clamp(r.Impact)

	return &Ticket{
		ShortDescription: truncate(r.ShortDescription, ShortDescriptionMax),
		Description:      buildDescription(msg, r),
		Category:         r.Category,
		Urgency:          urgency,
		Impact:           impact,
		Priority:         Priority(urgency, impact),
		CallerID:         msg.From,
		ContactType:      "email",
		WorkNotes:        buildWorkNotes(r, sources),
	}
}

func buildDescription(msg *message.Message, r *gen.Result) string {
	var b strings.Builder
	b.WriteString(r.Description)
	b.WriteString("\n\n--- Original message ---\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "Received: %s\n", msg.ReceivedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	// On the fallback path the generated description already is the raw
	// body; echoing it again under the header would duplicate it.
	if !r.Fallback {
		b.WriteString("\n")
		b.WriteString(msg.Body)
	}
	return b.String()
}

// buildWorkNotes records how the classification was produced: the model
// (or the fallback and its cause), the recommended actions, and the
// knowledge-base articles the model cited, with URL and similarity
// score joined from the retrieved sources.
func buildWorkNotes(r *gen.Result, sources []kb.Source) string {
	var b strings.Builder

	if r.Fallback {
		fmt.Fprintf(&b, "Automated intake classification (degraded fallback: %s).", r.FallbackReason)
	} else if r.Model != "" {
		fmt.Fprintf(&b, "Automated intake classification (model %s).", r.Model)
	} else {
		b.WriteString("Automated intake classification.")
	}

	if len(r.RecommendedActions) > 0 {
		b.WriteString("\n\nRecommended actions:")
		for _, a := range r.RecommendedActions {
			fmt.Fprintf(&b, "\n- %s", a)
		}
	}

	if len(r.KBReferences) > 0 {
		byTitle := make(map[string]kb.Source, len(sources))
		for _, s := range sources {
			byTitle[strings.ToLower(strings.TrimSpace(s.Title))] = s
		}
		b.WriteString("\n\nKnowledge base references:")
		for _, ref := range r.KBReferences {
			fmt.Fprintf(&b, "\n- %s", ref)
			if s, ok := byTitle[strings.ToLower(strings.TrimSpace(ref))]; ok {
				if s.URL != "" {
					fmt.Fprintf(&b, " (%s)", s.URL)
				}
				fmt.Fprintf(&b, " [similarity %.2f]", s.Score)
			}
		}
	}

	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
