// Package render turns a form's composed view into report text.
package render

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dailyform/internal/form"
)

// ErrTemplateSyntax marks a template that cannot be parsed.
var ErrTemplateSyntax = eris.New("render: template syntax")

// DailyTemplate is the stock daily report.
const DailyTemplate = "{form_type} for {form_id}\n=====\n{weather}\n{todo}"

type segment struct {
	literal string
	key     string
}

// Text substitutes {key} placeholders with values from the view. "{{" and
// "}}" produce literal braces. Keys the view lacks render as empty.
type Text struct {
	segments []segment
}

// NewText parses a placeholder template.
func NewText(tmpl string) (*Text, error) {
	var (
		segs []segment
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(tmpl[i+1:], "{}")
			if end < 0 || tmpl[i+1+end] != '}' {
				return nil, eris.Wrapf(ErrTemplateSyntax, "unclosed '{' at offset %d", i)
			}
			key := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if key == "" {
				return nil, eris.Wrapf(ErrTemplateSyntax, "empty placeholder at offset %d", i)
			}
			flush()
			segs = append(segs, segment{key: key})
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, eris.Wrapf(ErrTemplateSyntax, "unmatched '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return &Text{segments: segs}, nil
}

// MustText is NewText for templates known at compile time.
func MustText(tmpl string) *Text {
	t, err := NewText(tmpl)
	if err != nil {
		panic(err)
	}
	return t
}

// Daily returns the stock daily report renderer.
func Daily() *Text { return MustText(DailyTemplate) }

// Keys lists the placeholders in template order.
func (t *Text) Keys() []string {
	var keys []string
	for _, s := range t.segments {
		if s.key != "" {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// Render implements form.Renderer.
func (t *Text) Render(view form.View) (string, error) {
	var b strings.Builder
	for _, s := range t.segments {
		if s.key == "" {
			b.WriteString(s.literal)
			continue
		}
		b.WriteString(view.String(s.key))
	}
	return b.String(), nil
}
