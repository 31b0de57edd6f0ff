// Package render builds the chat projection of an issue. The output is
// platform-neutral; each chat gateway translates it into its own markup
// and control widgets.
package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/qvnt33/agromat-it-desk-bot/internal/models"
)

// AcceptAction is the action payload attached to the accept control,
// answered back by the chat platform as "accept|<issue_id>".
const AcceptAction = "accept"

// Fallback literals for messages missing data.
const (
	noSummary  = "(no summary)"
	noAssignee = "(not assigned)"
)

// statusIndicator maps well-known status labels to a colored marker.
// Unknown statuses fall back to the brown dot.
var statusIndicator = map[string]string{
	"new":         "🟡",
	"in progress": "🔵",
	"done":        "🟢",
	"resolved":    "🟢",
	"archived":    "⚪",
}

const defaultIndicator = "🟤"

// Message is a rendered issue ready for sending or editing. Text uses a
// minimal HTML subset (<b>, <a>); gateways that cannot render HTML strip
// it. ShowAccept tells the gateway to attach the accept control.
type Message struct {
	IssueID    string
	Text       string
	ShowAccept bool
}

// Renderer turns mapping rows into chat messages.
type Renderer struct {
	// DescriptionMaxLen caps the description; longer text is cut with an
	// ellipsis. Zero means no cap.
	DescriptionMaxLen int
}

// Issue renders the current projection of a mapping row. The accept
// control is present exactly while the row is pending; afterwards the
// assignee and status lines replace it.
func (r Renderer) Issue(row *models.IssueMessage) Message {
	summary := strings.TrimSpace(row.Summary)
	if summary == "" {
		summary = noSummary
	}

	parts := []string{fmt.Sprintf("<b>%s</b> — %s", html.EscapeString(row.IssueID), html.EscapeString(summary))}
	if row.Link != "" {
		parts = append(parts, row.Link)
	}
	if desc := r.capDescription(row.Description); desc != "" {
		parts = append(parts, html.EscapeString(desc))
	}
	if row.ClaimState != models.ClaimPending || row.AssigneeRef != "" || row.StatusLabel != "" {
		assignee := row.AssigneeRef
		if assignee == "" {
			assignee = noAssignee
		}
		parts = append(parts, "Assignee: "+html.EscapeString(assignee))
	}
	if row.StatusLabel != "" {
		parts = append(parts, "Status: "+html.EscapeString(row.StatusLabel))
	}

	text := strings.Join(parts, "\n")
	if row.StatusLabel != "" {
		text = indicator(row.StatusLabel) + " " + text
	}

	return Message{
		IssueID:    row.IssueID,
		Text:       text,
		ShowAccept: row.ClaimState == models.ClaimPending,
	}
}

func (r Renderer) capDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if r.DescriptionMaxLen <= 0 {
		return desc
	}
	runes := []rune(desc)
	if len(runes) <= r.DescriptionMaxLen {
		return desc
	}
	return string(runes[:r.DescriptionMaxLen]) + "…"
}

func indicator(status string) string {
	if marker, ok := statusIndicator[strings.ToLower(strings.TrimSpace(status))]; ok {
		return marker
	}
	return defaultIndicator
}
