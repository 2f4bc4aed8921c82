package mailservice

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
)

//go:embed templates/*
var templateFS embed.FS

func NewTemplate() *Template {
	return &Template{}
}

// ParseTemplate renders the subject, plainBody and htmlBody blocks of the named template with data.
// The subject and plain body are text and must not be HTML escaped; only htmlBody is.
func (tp *Template) ParseTemplate(name string, data any) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer, error) {
	path := "templates/" + name

	text, err := template.New("email").ParseFS(templateFS, path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not parse template: %w", err)
	}

	html, err := htmltemplate.New("email").ParseFS(templateFS, path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not parse template: %w", err)
	}

	subject := new(bytes.Buffer)
	if err := text.ExecuteTemplate(subject, "subject", data); err != nil {
		return nil, nil, nil, fmt.Errorf("could not execute subject of %s: %w", name, err)
	}

	plainBody := new(bytes.Buffer)
	if err := text.ExecuteTemplate(plainBody, "plainBody", data); err != nil {
		return nil, nil, nil, fmt.Errorf("could not execute plainBody of %s: %w", name, err)
	}

	htmlBody := new(bytes.Buffer)
	if err := html.ExecuteTemplate(htmlBody, "htmlBody", data); err != nil {
		return nil, nil, nil, fmt.Errorf("could not execute htmlBody of %s: %w", name, err)
	}

	// header values must be single line
	subject = bytes.NewBufferString(strings.TrimSpace(subject.String()))

	return subject, plainBody, htmlBody, nil
}
