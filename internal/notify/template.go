package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Incident {{.EventLabel}}]
Number: {{.Number}}
Title: {{.Title}}
Priority: {{.Priority}}
Status: {{.Status}}
Location: {{.Location}}
Reported: {{.ReportedAt}}
Recipients: {{.RecipientCount}}
{{ if .Notes }}Notes: {{.Notes}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Number         string
	Title          string
	Priority       string
	Status         string
	Location       string
	ReportedAt     string
	Notes          string
	RecipientCount int
	Event          string
	EventLabel     string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("incident-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("incident template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
