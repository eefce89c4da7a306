package notify

import (
	"fmt"
	"html"
	"strings"

	"agrismart-monitor/internal/models"
)

const brand = "AgriSmart CI"

func severityLabel(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "CRITIQUE"
	case models.SeverityWarning:
		return "ATTENTION"
	default:
		return "INFO"
	}
}

// ShortText renders an alert for SMS.
func ShortText(a *models.Alert) string {
	return fmt.Sprintf("%s [%s] %s: %s", brand, severityLabel(a.Severity), a.Title, a.Message)
}

// ChatText renders an alert for WhatsApp and Telegram.
func ChatText(a *models.Alert) string {
	return fmt.Sprintf("🌱 %s - %s\n\n%s", brand, a.Title, a.Message)
}

// EmailSubject and EmailBody render an alert for e-mail.
func EmailSubject(a *models.Alert) string {
	return fmt.Sprintf("[%s] %s - %s", severityLabel(a.Severity), brand, a.Title)
}

func EmailBody(firstName string, a *models.Alert) string {
	var b strings.Builder
	name := strings.TrimSpace(firstName)
	if name == "" {
		b.WriteString("<p>Bonjour,</p>")
	} else {
		fmt.Fprintf(&b, "<p>Bonjour %s,</p>", html.EscapeString(name))
	}
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(a.Title))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(a.Message))
	fmt.Fprintf(&b, "<p>Niveau: %s<br>Date: %s</p>", severityLabel(a.Severity), a.CreatedAt.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "<p>L'équipe %s</p>", brand)
	return b.String()
}
