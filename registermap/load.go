package registermap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// document is the shape of the descriptor document served by bootstrap at GET /edge/init - a list of
// register descriptors under a single top level key.
type document struct {
	Registers []Descriptor `json:"registers" yaml:"registers"`
}

// Parse builds a Map from a bootstrap-supplied descriptor document. JSON is tried first; if that fails
// to unmarshal (bootstrap may instead serve YAML) the content is re-parsed as YAML before giving up.
func Parse(content []byte) (*Map, error) {
	var doc document

	jsonErr := json.Unmarshal(content, &doc)
	if jsonErr != nil {
		trimmed := bytes.TrimSpace(content)
		yamlErr := yaml.Unmarshal(trimmed, &doc)
		if yamlErr != nil {
			return nil, fmt.Errorf("parse register map: not valid JSON (%v) or YAML (%v)", jsonErr, yamlErr)
		}
	}

	m, err := New(doc.Registers)
	if err != nil {
		return nil, fmt.Errorf("build register map: %w", err)
	}

	return m, nil
}
