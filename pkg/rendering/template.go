// Package rendering resolves table locations from layout templates with
// Sprig functions
package rendering

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// ErrEmptyLocation is returned when a layout renders to an empty location
var ErrEmptyLocation = errors.New("layout rendered an empty location")

// Default layouts
const (
	// PathLayout places each table in a directory under its layer base path
	PathLayout = `{{ .base | trimSuffix "/" }}/{{ .table }}`
	// DatabaseLayout names each table database.table with the layer as database
	DatabaseLayout = `{{ .layer }}.{{ .table }}`
)

// TemplateEngine provides template rendering with Sprig functions
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates a new template engine with Sprig functions
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		funcMap: sprig.TxtFuncMap(),
	}
}

// Render renders a template with the given variables
func (t *TemplateEngine) Render(content string, variables map[string]any) (string, error) {
	tmpl, err := template.New("layout").Funcs(t.funcMap).Option("missingkey=error").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// Location renders a layout for one table
func (t *TemplateEngine) Location(layout string, variables map[string]any) (string, error) {
	location, err := t.Render(layout, variables)
	if err != nil {
		return "", err
	}

	location = strings.TrimSpace(location)
	if location == "" {
		return "", ErrEmptyLocation
	}

	return location, nil
}

// BuildVariables builds template variables for a table in a layer
func BuildVariables(layer, base, tableName string, runDate time.Time) map[string]any {
	return map[string]any{
		"layer": layer,
		"base":  base,
		"table": tableName,
		"date":  runDate.UTC().Format(time.DateOnly),
		"run": map[string]any{
			"start": runDate.Unix(),
		},
	}
}
