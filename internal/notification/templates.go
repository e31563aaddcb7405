package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/smallbiznis/domainpay/internal/notification/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type kindTemplates struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

// Renderer turns a kind and payload into a message. Every kind has its own
// template file defining "subject", "text" and "html".
type Renderer struct {
	templates map[domain.Kind]kindTemplates
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: map[domain.Kind]kindTemplates{}}
	for _, kind := range []domain.Kind{
		domain.KindDomainRegistered,
		domain.KindRegistrationFailed,
		domain.KindUnderpaidCredited,
		domain.KindDepositCredited,
	} {
		file := "templates/" + string(kind) + ".tmpl"
		text, err := texttemplate.New(string(kind)).Option("missingkey=zero").ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		html, err := htmltemplate.New(string(kind)).Option("missingkey=zero").ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		r.templates[kind] = kindTemplates{text: text, html: html}
	}
	return r, nil
}

func (r *Renderer) Render(kind domain.Kind, payload domain.Payload) (domain.Message, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return domain.Message{}, domain.ErrUnknownKind
	}
	if payload == nil {
		payload = domain.Payload{}
	}

	var subject, text, html bytes.Buffer
	if err := tmpl.text.ExecuteTemplate(&subject, "subject", payload); err != nil {
		return domain.Message{}, err
	}
	if err := tmpl.text.ExecuteTemplate(&text, "text", payload); err != nil {
		return domain.Message{}, err
	}
	if err := tmpl.html.ExecuteTemplate(&html, "html", payload); err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		Subject: strings.TrimSpace(subject.String()),
		Text:    strings.TrimSpace(text.String()),
		HTML:    strings.TrimSpace(html.String()),
	}, nil
}
