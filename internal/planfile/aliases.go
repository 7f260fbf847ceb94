package planfile

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Aliases maps normalized header names found in customer files to the
// canonical column names the parser understands.
type Aliases map[string]string

// LoadAliases reads a header alias file. The YAML has a top-level "aliases"
// key mapping canonical column names to lists of alternative headers:
//
//	aliases:
//	  delivery_postcode: [postcode, post_code, zip]
//	  delivery_contact: [recipient, recipient_name]
func LoadAliases(path string) (Aliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "planfile: read aliases %s", path)
	}

	var wrapper struct {
		Aliases map[string][]string `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "planfile: parse aliases")
	}

	out := make(Aliases)
	for canonical, alts := range wrapper.Aliases {
		canonical = NormalizeHeader(canonical)
		for _, alt := range alts {
			alt = NormalizeHeader(alt)
			if prev, ok := out[alt]; ok && prev != canonical {
				return nil, eris.Errorf("planfile: alias %q maps to both %q and %q", alt, prev, canonical)
			}
			out[alt] = canonical
		}
	}
	return out, nil
}

// Resolve returns the canonical name for a normalized header.
func (a Aliases) Resolve(header string) string {
	if canonical, ok := a[header]; ok {
		return canonical
	}
	return header
}

// NormalizeHeader lower-snake-cases a header cell: trimmed, lower-cased,
// internal whitespace runs collapsed to a single underscore.
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}
