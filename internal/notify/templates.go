package notify

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

// EmailTemplate names an embedded email body.
type EmailTemplate string

const (
	TemplateStatusChanged EmailTemplate = "ticket_status_changed"
	TemplateForwarded     EmailTemplate = "ticket_forwarded"
	TemplateAssigned      EmailTemplate = "ticket_assigned"
	TemplateBreached      EmailTemplate = "ticket_breached"
)

// TicketEmail is the data every ticket email template renders.
type TicketEmail struct {
	RecipientName string
	TicketKey     string
	TicketTitle   string
	Status        string
	HandlerName   string
	AgentName     string
}

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.gohtml"))

// RenderEmail executes the named template with data.
func RenderEmail(name EmailTemplate, data TicketEmail) (string, error) {
	if data.RecipientName == "" {
		data.RecipientName = "there"
	}
	body := &strings.Builder{}
	if err := templates.ExecuteTemplate(body, string(name), data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return body.String(), nil
}
