package service

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

type ticketView struct {
	AppName    string
	EventName  string
	ClassName  string
	HolderName string
	StartsAt   string
	Location   string
	QRCode     string
}

type welcomeView struct {
	AppName string
	Name    string
	Email   string
}

// renderBodies executes the html and text variants of one template.
func renderBodies(name string, data any) (string, string, error) {
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return "", "", err
	}
	if err := textTemplates.ExecuteTemplate(&text, name+".txt.tmpl", data); err != nil {
		return "", "", err
	}
	return html.String(), text.String(), nil
}
