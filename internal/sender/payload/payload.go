// Package payload builds channel-specific message bodies from notifications.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
)

// maxSMSLength keeps SMS text within a single concatenated message.
const maxSMSLength = 320

// EmailPayload represents email message content.
type EmailPayload struct {
	Subject string
	Body    string
	HTML    string
}

// BuildEmailPayload builds email subject and bodies from a notification.
func BuildEmailPayload(n *events.Notification) EmailPayload {
	return EmailPayload{
		Subject: n.DisplayTitle,
		Body:    buildEmailBody(n),
		HTML:    buildEmailHTML(n),
	}
}

func buildEmailBody(n *events.Notification) string {
	var sb strings.Builder
	sb.WriteString(n.DisplayTitle + "\n")
	sb.WriteString(strings.Repeat("=", len(n.DisplayTitle)) + "\n\n")
	sb.WriteString(fmt.Sprintf("Project: %s\n", n.ProjectName))
	sb.WriteString(fmt.Sprintf("Area of interest: %s\n", n.AOIName))
	sb.WriteString(fmt.Sprintf("Channel: %s\n", n.ChannelName))
	sb.WriteString(fmt.Sprintf("Alert ID: %d\n", n.AlertID))
	sb.WriteString(fmt.Sprintf("Raised at: %s\n", n.CreatedAt.UTC().Format(time.RFC1123)))

	if details := FormatContent(n.Content); details != "" {
		sb.WriteString("\nDetails:\n")
		sb.WriteString(details)
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildEmailHTML(n *events.Notification) string {
	var sb strings.Builder
	sb.WriteString("<h2>" + html.EscapeString(n.DisplayTitle) + "</h2>")
	sb.WriteString("<table>")
	rows := [][2]string{
		{"Project", n.ProjectName},
		{"Area of interest", n.AOIName},
		{"Channel", n.ChannelName},
		{"Alert ID", fmt.Sprintf("%d", n.AlertID)},
		{"Raised at", n.CreatedAt.UTC().Format(time.RFC1123)},
	}
	for _, r := range rows {
		sb.WriteString("<tr><th align=\"left\">" + html.EscapeString(r[0]) + "</th><td>" + html.EscapeString(r[1]) + "</td></tr>")
	}
	sb.WriteString("</table>")
	if details := FormatContent(n.Content); details != "" {
		sb.WriteString("<pre>" + html.EscapeString(details) + "</pre>")
	}
	return sb.String()
}

// BuildSMSText builds a short SMS message for a notification.
func BuildSMSText(n *events.Notification) string {
	text := fmt.Sprintf("%s (alert #%d)", n.DisplayTitle, n.AlertID)
	if len(text) > maxSMSLength {
		text = text[:maxSMSLength-3] + "..."
	}
	return text
}

// FormatContent renders the opaque alert content for humans: JSON strings are
// unquoted, objects are indented, null renders as empty.
func FormatContent(content json.RawMessage) string {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}

	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return out.String()
}
