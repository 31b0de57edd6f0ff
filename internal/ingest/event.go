package ingest

import (
	"fmt"
	"strings"
)

// IssueEvent is a normalized tracker webhook event. Empty fields were not
// present in the payload.
type IssueEvent struct {
	IssueID     string
	Summary     string
	Description string
	Link        string
	Assignee    string
	Status      string
}

// statusFieldNames and assigneeFieldNames match custom-field entries that
// carry status or assignee values, including the localized names the
// tracker instances in production actually use.
var (
	statusFieldNames   = map[string]bool{"state": true, "status": true, "статус": true}
	assigneeFieldNames = map[string]bool{"assignee": true, "assignees": true, "виконавець": true, "виконавці": true}
)

// ParseEvent normalizes a decoded webhook payload. The tracker sometimes
// wraps the issue in an "issue" field and sometimes posts it flat; status
// and assignee may arrive top-level or buried in customFields.
func ParseEvent(payload map[string]interface{}, linkBase string) (*IssueEvent, error) {
	issue := payload
	if wrapped, ok := payload["issue"].(map[string]interface{}); ok {
		issue = wrapped
	}

	ev := &IssueEvent{
		IssueID:     extractIssueID(issue),
		Summary:     normalizeSummary(getString(issue, "summary")),
		Description: getString(issue, "description"),
		Link:        getString(issue, "url"),
		Status:      getString(issue, "status"),
		Assignee:    extractName(issue["assignee"]),
	}
	if ev.IssueID == "" {
		return nil, fmt.Errorf("ingest: payload has no issue id")
	}
	if ev.Status == "" {
		ev.Status = extractName(issue["state"])
	}
	fillFromCustomFields(ev, issue)

	if ev.Link == "" && linkBase != "" {
		ev.Link = strings.TrimRight(linkBase, "/") + "/issue/" + ev.IssueID
	}
	return ev, nil
}

// extractIssueID prefers the readable id, falls back to the internal id,
// then composes one from the project short name and issue number.
func extractIssueID(issue map[string]interface{}) string {
	if id := getString(issue, "idReadable"); id != "" {
		return id
	}
	if id := getString(issue, "id"); id != "" {
		return id
	}

	number := getString(issue, "numberInProject")
	project, ok := issue["project"].(map[string]interface{})
	if !ok || number == "" {
		return ""
	}
	short := getString(project, "shortName")
	if short == "" {
		short = getString(project, "name")
	}
	if short == "" {
		return ""
	}
	return short + "-" + number
}

// fillFromCustomFields scans the customFields list for status and
// assignee when the top-level fields were empty.
func fillFromCustomFields(ev *IssueEvent, issue map[string]interface{}) {
	fields, ok := issue["customFields"].([]interface{})
	if !ok {
		return
	}
	for _, raw := range fields {
		field, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name := strings.ToLower(getString(field, "name"))
		switch {
		case statusFieldNames[name] && ev.Status == "":
			ev.Status = extractName(field["value"])
		case assigneeFieldNames[name] && ev.Assignee == "":
			ev.Assignee = extractNames(field["value"])
		}
	}
}

// extractName pulls a display name out of a value that may be a string or
// a user/value object with fullName/login/name.
func extractName(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		for _, key := range []string{"fullName", "login", "name"} {
			if name := getString(v, key); name != "" {
				return name
			}
		}
	}
	return ""
}

// extractNames handles multi-value assignee fields, joining all names.
func extractNames(value interface{}) string {
	if list, ok := value.([]interface{}); ok {
		var names []string
		for _, item := range list {
			if name := extractName(item); name != "" {
				names = append(names, name)
			}
		}
		return strings.Join(names, ", ")
	}
	return extractName(value)
}

// normalizeSummary collapses whitespace runs and trims the summary.
func normalizeSummary(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func getString(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
