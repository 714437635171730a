// Package view renders HTML pages and exposes queued alerts to templates.
package view

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"

	"flashbox/internal/alert"
	"flashbox/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// FuncName is the template function returning pending alerts.
const FuncName = "alerts"

// Funcs binds the alerts template function to st. Each call hands out the
// matching alerts and clears them, all types when called without arguments.
func Funcs(ctx context.Context, st *alert.Store) template.FuncMap {
	return template.FuncMap{
		FuncName: func(types ...string) ([]model.Alert, error) {
			tags := make([]model.Type, len(types))
			for i, t := range types {
				tags[i] = model.Type(t)
			}
			return st.GetOnce(ctx, tags...)
		},
	}
}

// placeholder lets the templates parse before a request binds the real store.
var placeholder = template.FuncMap{
	FuncName: func(...string) ([]model.Alert, error) { return nil, nil },
}

type Renderer struct {
	base *template.Template
}

// NewRenderer parses the embedded templates once.
func NewRenderer() (*Renderer, error) {
	base, err := template.New("").Funcs(placeholder).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{base: base}, nil
}

// Render executes the named template with the alerts function bound to st.
func (r *Renderer) Render(ctx context.Context, w io.Writer, st *alert.Store, name string, data any) error {
	tmpl, err := r.base.Clone()
	if err != nil {
		return fmt.Errorf("clone templates: %w", err)
	}
	tmpl.Funcs(Funcs(ctx, st))
	return tmpl.ExecuteTemplate(w, name, data)
}
