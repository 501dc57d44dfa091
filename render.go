package tourguard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer renders a named page.
type Renderer interface {
	Render(w io.Writer, view string, data any) error
}

// viewData is what every page template receives.
type viewData struct {
	Title string
	User  *User
	Msg   string
	Token string
}

var viewNames = []string{
	"overview",
	"login",
	"signup",
	"forgotPassword",
	"resetPassword",
	"account",
	"success",
	"error",
}

// TemplateRenderer renders the embedded page templates, each wrapped in the
// shared layout.
type TemplateRenderer struct {
	views map[string]*template.Template
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	funcs := template.FuncMap{"firstName": firstName}

	views := make(map[string]*template.Template, len(viewNames))
	for _, name := range viewNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse view %s: %w", name, err)
		}
		views[name] = t
	}
	return &TemplateRenderer{views: views}, nil
}

func (t *TemplateRenderer) Render(w io.Writer, view string, data any) error {
	tmpl, ok := t.views[view]
	if !ok {
		return fmt.Errorf("unknown view %q", view)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// renderStatus renders into a buffer first so a template error still leaves
// room for a proper error response.
func (a *Auth) renderStatus(w http.ResponseWriter, status int, view string, data viewData) error {
	var buf bytes.Buffer
	if err := a.views.Render(&buf, view, data); err != nil {
		return fmt.Errorf("render %s: %w", view, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		a.log.Debug("write page", zap.String("view", view), zap.Error(err))
	}
	return nil
}

func (a *Auth) render(w http.ResponseWriter, view string, data viewData) error {
	return a.renderStatus(w, http.StatusOK, view, data)
}
