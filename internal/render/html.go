package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dailyform/internal/form"
)

// DailyHTMLTemplate is the stock daily report as an HTML page.
const DailyHTMLTemplate = `<!DOCTYPE html>
<html>
<head><title>{{.form_type}} for {{.form_id}}</title></head>
<body>
<h1>{{.form_type}} for {{.form_id}}</h1>
<p class="date">{{.form_date}}</p>
<h2>Weather</h2>
<p class="weather">{{.weather}}</p>
<h2>To-do</h2>
<ul class="todo">
{{- range lines .todo}}
<li>{{.}}</li>
{{- end}}
</ul>
</body>
</html>
`

// HTML renders a view through an html/template. Dot is the view as a map of
// display strings; missing keys render empty.
//
// Template funcs:
//   - field KEY: the display string for a key that is not a valid identifier
//   - lines S: S split on newlines, empty lines dropped
type HTML struct {
	tmpl *template.Template
}

// NewHTML parses an HTML template. Parse errors wrap ErrTemplateSyntax.
func NewHTML(name, text string) (*HTML, error) {
	// field is rebound per render.
	funcs := template.FuncMap{
		"field": func(string) string { return "" },
		"lines": splitLines,
	}
	t, err := template.New(name).Option("missingkey=zero").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, eris.Wrapf(ErrTemplateSyntax, "html template %s: %v", name, err)
	}
	return &HTML{tmpl: t}, nil
}

// DailyHTML returns the stock HTML report renderer.
func DailyHTML() *HTML {
	h, err := NewHTML("daily", DailyHTMLTemplate)
	if err != nil {
		panic(err)
	}
	return h
}

// Render implements form.Renderer.
func (h *HTML) Render(view form.View) (string, error) {
	data := make(map[string]string, view.Len())
	for _, k := range view.Keys() {
		data[k] = view.String(k)
	}

	// Clone so field resolves against this view without sharing state across
	// concurrent renders.
	t, err := h.tmpl.Clone()
	if err != nil {
		return "", eris.Wrap(err, "render: clone html template")
	}
	t.Funcs(template.FuncMap{"field": func(key string) string { return data[key] }})

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", eris.Wrap(err, "render: execute html template")
	}
	return buf.String(), nil
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
