package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const certificateBody = `Dear {{.Name}},

Congratulations on successfully completing your internship with **{{.Organization}}**.
We appreciate your dedication and the work you contributed during the program.

- **Domain:** {{.Domain}}
- **Duration:** {{.Months}} month(s), {{.StartDate}} to {{.EndDate}}
- **Grade:** {{.Grade}}
- **Certificate ID:** {{.CertificateID}}

Your completion certificate is attached to this email.

Best regards,
{{.Organization}} Team
`

const htmlLayout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.5; color: #222;">
{{.Content}}
</body>
</html>
`

// BodyData are the values shown in the message body
type BodyData struct {
	Name          string
	Organization  string
	Domain        string
	Months        int
	StartDate     string
	EndDate       string
	Grade         string
	CertificateID string
}

// BodyRenderer renders the markdown body to sanitized HTML and plain text
type BodyRenderer struct {
	body   *texttemplate.Template
	layout *template.Template
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewBodyRenderer parses the built-in templates
func NewBodyRenderer() *BodyRenderer {
	return &BodyRenderer{
		body:   texttemplate.Must(texttemplate.New("certificate").Parse(certificateBody)),
		layout: template.Must(template.New("layout").Parse(htmlLayout)),
		md:     goldmark.New(),
		policy: bluemonday.UGCPolicy(),
	}
}

// Render returns the HTML document and the plain text body
func (r *BodyRenderer) Render(subject string, data BodyData) (string, string, error) {
	var markdown bytes.Buffer
	if err := r.body.Execute(&markdown, data); err != nil {
		return "", "", fmt.Errorf("failed to execute body template: %w", err)
	}

	var converted bytes.Buffer
	if err := r.md.Convert(markdown.Bytes(), &converted); err != nil {
		return "", "", fmt.Errorf("failed to convert markdown: %w", err)
	}

	// Values come from the form, so the rendered fragment is sanitized
	// before it goes into the layout.
	content := r.policy.SanitizeBytes(converted.Bytes())

	var page bytes.Buffer
	err := r.layout.Execute(&page, map[string]any{
		"Subject": subject,
		"Content": template.HTML(content),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to execute layout: %w", err)
	}

	return page.String(), markdown.String(), nil
}
