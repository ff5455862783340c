package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// ParseTOML builds a tree from a TOML document. TOML decoding does not expose
// positions, so nodes carry no source line. name is only used in error messages.
func ParseTOML(data []byte, name string) (*Node, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return FromValue(doc), nil
}
