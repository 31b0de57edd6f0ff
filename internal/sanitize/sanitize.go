// Package sanitize cleans issue descriptions before they are rendered
// into chat messages. Tracker webhooks deliver raw HTML, frequently
// email-generated, full of styling attributes and tracking markup.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()

	lineBreakRe      = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</tr>`)
	attrStyleRe      = regexp.MustCompile(`(?i)\sstyle=("[^"]*"|'[^']*')`)
	attrClassRe      = regexp.MustCompile(`(?i)\sclass=("[^"]*"|'[^']*')`)
	attrDirRe        = regexp.MustCompile(`(?i)\sdir=("[^"]*"|'[^']*')`)
	attrMiscRe       = regexp.MustCompile(`(?i)\s(?:data|aria|background|color|lang|width|height|align|valign|border|cellpadding|cellspacing)[^=\s>]*=("[^"]*"|'[^']*')`)
	spanTagRe        = regexp.MustCompile(`(?i)</?span\b[^>]*>`)
	fontTagRe        = regexp.MustCompile(`(?i)</?font\b[^>]*>`)
	imgTagRe         = regexp.MustCompile(`(?i)<img\b[^>]*?>`)
	emptyParagraphRe = regexp.MustCompile(`(?i)<p>\s*</p>`)
	interTagSpaceRe  = regexp.MustCompile(`>\s+<`)
	multiSpaceRe     = regexp.MustCompile(`[ \t]{2,}`)
	multiNewlineRe   = regexp.MustCompile(`\n{3,}`)
)

// emailMarkers are substrings that identify email-generated HTML. "gmail"
// or "cid:" alone is conclusive; otherwise two markers are required.
var emailMarkers = []string{"gmail", "cid:", "scrollbar-width", "object-fit", "border-image"}

// StripHTML reduces an HTML description to plain text, keeping paragraph
// and line-break structure as newlines.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = strict.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, " ", " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiNewlineRe.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// LooksLikeEmail reports whether an HTML description appears to come from
// an email-to-issue gateway.
func LooksLikeEmail(description string) bool {
	normalized := strings.ToLower(description)
	if strings.Contains(normalized, "gmail") || strings.Contains(normalized, "cid:") {
		return true
	}
	score := 0
	for _, marker := range emailMarkers {
		if strings.Contains(normalized, marker) {
			score++
		}
	}
	return score >= 2
}

// NormalizeEmailHTML strips service attributes and decorative tags from
// email-generated HTML without flattening it to plain text.
func NormalizeEmailHTML(description string) string {
	cleaned := strings.ReplaceAll(description, " ", " ")
	cleaned = attrStyleRe.ReplaceAllString(cleaned, "")
	cleaned = attrClassRe.ReplaceAllString(cleaned, "")
	cleaned = attrDirRe.ReplaceAllString(cleaned, "")
	cleaned = attrMiscRe.ReplaceAllString(cleaned, "")
	cleaned = spanTagRe.ReplaceAllString(cleaned, "")
	cleaned = fontTagRe.ReplaceAllString(cleaned, "")
	cleaned = imgTagRe.ReplaceAllString(cleaned, "")
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = interTagSpaceRe.ReplaceAllString(cleaned, ">\n<")
	cleaned = emptyParagraphRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// Description prepares a raw webhook description for rendering: email HTML
// is normalized first, then everything is stripped to plain text.
func Description(raw string) string {
	if LooksLikeEmail(raw) {
		raw = NormalizeEmailHTML(raw)
	}
	return StripHTML(raw)
}
