package ai

import (
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// Prompts holds one text template per flow, named `<flow>.tmpl`.
type Prompts struct {
	tmpl *template.Template
}

// NewPrompts parses the prompt templates found in dir and checks every flow has one.
func NewPrompts(fsys fs.FS, dir string) (*Prompts, error) {
	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(fsys, path.Join(dir, "*.tmpl"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing prompt templates")
	}
	for _, flow := range Flows {
		if tmpl.Lookup(templateName(flow)) == nil {
			return nil, errors.Errorf("missing prompt template for flow %q", flow)
		}
	}
	return &Prompts{tmpl: tmpl}, nil
}

func templateName(flow Flow) string { return string(flow) + ".tmpl" }

// Render executes the flow's template with data.
func (p *Prompts) Render(flow Flow, data interface{}) (string, error) {
	var buf strings.Builder
	if err := p.tmpl.ExecuteTemplate(&buf, templateName(flow), data); err != nil {
		return "", errors.Wrapf(err, "rendering %s prompt", flow)
	}
	return buf.String(), nil
}
