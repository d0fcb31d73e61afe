package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Render executes a named template and derives its subject.
func Render(templateName string, data map[string]any) (string, string, error) {
	tmpl := templates.Lookup(templateName + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("email template %q not found", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to execute template: %w", err)
	}
	return subjectFor(templateName, data), body.String(), nil
}

func subjectFor(templateName string, data map[string]any) string {
	if subj, ok := data["subject"].(string); ok && subj != "" {
		return subj
	}
	switch templateName {
	case TemplateSponsorInvite:
		if name, ok := data["practitioner_name"].(string); ok && name != "" {
			return fmt.Sprintf("%s invited you to be their sponsor", name)
		}
		return "You're invited to be a sponsor"
	case TemplatePasswordReset:
		return "Reset your VirtuePath password"
	}
	return "Notification from VirtuePath"
}
