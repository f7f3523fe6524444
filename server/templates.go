package server

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFiles embed.FS

const loginTemplateFile = "templates/login.html"

// parseLoginTemplate parses the embedded login page. It is called once by New.
func parseLoginTemplate() (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFiles, loginTemplateFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", loginTemplateFile, err)
	}
	return tmpl, nil
}
