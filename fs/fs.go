// Package appfs embeds the static assets shipped with the binary: database migrations,
// seed collections, email templates and AI prompt templates.
package appfs

import (
	"embed"
	"path"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed migrations/*.sql seed/*.yaml all:templates assets
var FS embed.FS

const (
	EmailTemplatesDir  = "templates/email"
	PromptTemplatesDir = "templates/prompts"
)

// LoadSeed decodes the YAML seed file `seed/<name>.yaml` into v.
func LoadSeed(name string, v interface{}) error {
	data, err := FS.ReadFile(path.Join("seed", name+".yaml"))
	if err != nil {
		return errors.Wrapf(err, "reading seed %q", name)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decoding seed %q", name)
	}
	return nil
}
