package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"bandwatch/internal/model"
)

type Style int

const (
	StylePlain Style = iota
	StyleMarkdown
	StyleHTML
)

func (s Style) String() string {
	switch s {
	case StyleMarkdown:
		return "markdown"
	case StyleHTML:
		return "html"
	}
	return "plain"
}

const timeLayout = "2006-01-02 15:04:05 MST"

type severityLook struct {
	Label string
	Color string
}

var severityLooks = map[model.Severity]severityLook{
	model.SeverityCritical: {Label: "Critical", Color: "#dc3545"},
	model.SeverityWarning:  {Label: "Warning", Color: "#ffc107"},
	model.SeverityInfo:     {Label: "Info", Color: "#17a2b8"},
}

// SeverityLook maps a severity to its label and color. Anything outside the
// three known levels is shown as info.
func SeverityLook(s model.Severity) (label, color string) {
	look, ok := severityLooks[s]
	if !ok {
		look = severityLooks[model.SeverityInfo]
	}
	return look.Label, look.Color
}

func KindTitle(k model.RuleKind) string {
	switch k {
	case model.KindTrafficThreshold:
		return "Traffic threshold exceeded"
	case model.KindDeviceOffline:
		return "Device offline"
	case model.KindTest:
		return "Test notification"
	}
	return string(k)
}

func Subject(ev model.AlertEvent) string {
	return "Bandwatch alert - " + KindTitle(ev.Kind)
}

// Compose renders ev for a channel style.
func Compose(ev model.AlertEvent, style Style) Message {
	return Message{Subject: Subject(ev), Body: Format(ev, style), Event: ev}
}

func Format(ev model.AlertEvent, style Style) string {
	switch style {
	case StyleHTML:
		return formatHTML(ev)
	case StyleMarkdown:
		return formatMarkdown(ev)
	}
	return formatPlain(ev)
}

func formatPlain(ev model.AlertEvent) string {
	label, _ := SeverityLook(ev.Severity)
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", label, KindTitle(ev.Kind))
	sb.WriteString(ev.Message)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Time: %s\n", ev.TriggeredAt.UTC().Format(timeLayout))
	if ev.EntityID != "" {
		fmt.Fprintf(&sb, "Device: %s\n", ev.EntityID)
	}
	if ev.ID > 0 {
		fmt.Fprintf(&sb, "Event: #%d\n", ev.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatMarkdown(ev model.AlertEvent) string {
	label, color := SeverityLook(ev.Severity)
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Severity:** <font color=\"%s\">%s</font>\n\n", color, label)
	fmt.Fprintf(&sb, "**Type:** %s\n\n", KindTitle(ev.Kind))
	fmt.Fprintf(&sb, "**Time:** %s\n\n", ev.TriggeredAt.UTC().Format(timeLayout))
	if ev.EntityID != "" {
		fmt.Fprintf(&sb, "**Device:** %s\n\n", ev.EntityID)
	}
	fmt.Fprintf(&sb, "> %s", ev.Message)
	return sb.String()
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
<div style="border-left: 4px solid {{.Color}}; padding: 12px 16px;">
<h2 style="margin: 0 0 8px 0; color: {{.Color}};">{{.Title}}</h2>
<p style="margin: 0 0 12px 0;">{{.Message}}</p>
<table style="border-collapse: collapse;">
<tr><td style="padding: 2px 12px 2px 0;"><strong>Severity</strong></td><td><span style="color: {{.Color}};">{{.Label}}</span></td></tr>
<tr><td style="padding: 2px 12px 2px 0;"><strong>Time</strong></td><td>{{.Time}}</td></tr>
{{- if .Entity}}
<tr><td style="padding: 2px 12px 2px 0;"><strong>Device</strong></td><td>{{.Entity}}</td></tr>
{{- end}}
{{- if .ID}}
<tr><td style="padding: 2px 12px 2px 0;"><strong>Event</strong></td><td>#{{.ID}}</td></tr>
{{- end}}
</table>
</div>
</body>
</html>
`))

func formatHTML(ev model.AlertEvent) string {
	label, color := SeverityLook(ev.Severity)
	data := struct {
		Title, Message, Label, Time, Entity string
		Color                               template.CSS
		ID                                  int64
	}{
		Title:   KindTitle(ev.Kind),
		Message: ev.Message,
		Label:   label,
		Color:   template.CSS(color),
		Time:    ev.TriggeredAt.UTC().Format(timeLayout),
		Entity:  ev.EntityID,
		ID:      ev.ID,
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return template.HTMLEscapeString(formatPlain(ev))
	}
	return buf.String()
}

// SyntheticEvent builds the event used to verify channel configuration.
func SyntheticEvent(now time.Time) model.AlertEvent {
	return model.AlertEvent{
		Kind:        model.KindTest,
		Message:     "This is a test notification from Bandwatch. If you received it, the channel is configured correctly.",
		Severity:    model.SeverityInfo,
		TriggeredAt: now.UTC(),
		Status:      model.StatusTriggered,
	}
}
