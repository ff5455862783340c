package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse builds a tree from a YAML document. Every node keeps its source line.
// name is only used in error messages.
func Parse(data []byte, name string) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if doc.Kind == 0 {
		return newMapping("", 0), nil
	}
	return fromYAML("", &doc)
}

func fromYAML(path string, y *yaml.Node) (*Node, error) {
	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return newMapping(path, y.Line), nil
		}
		return fromYAML(path, y.Content[0])
	case yaml.AliasNode:
		return fromYAML(path, y.Alias)
	case yaml.MappingNode:
		m := newMapping(path, y.Line)
		for i := 0; i+1 < len(y.Content); i += 2 {
			k, v := y.Content[i], y.Content[i+1]
			if k.Kind == yaml.ScalarNode && k.Tag == "!!merge" {
				merged, err := fromYAML(path, v)
				if err != nil {
					return nil, err
				}
				for _, mk := range merged.Keys() {
					m.set(mk, merged.fields[mk])
				}
				continue
			}
			child, err := fromYAML(joinPath(path, k.Value), v)
			if err != nil {
				return nil, err
			}
			// positions point at the key, where a reader looks for the setting
			child.line = k.Line
			m.set(k.Value, child)
		}
		return m, nil
	case yaml.SequenceNode:
		s := &Node{kind: Sequence, path: path, line: y.Line}
		for i, it := range y.Content {
			child, err := fromYAML(fmt.Sprintf("%s[%d]", path, i), it)
			if err != nil {
				return nil, err
			}
			s.items = append(s.items, child)
		}
		return s, nil
	case yaml.ScalarNode:
		numeric := false
		var num float64
		switch y.Tag {
		case "!!int", "!!float":
			num, numeric = parseNumber(y.Value)
		case "!!str":
			// bare "inf" is a string tag in YAML 1.2 but a number to the model
			if y.Style == 0 {
				if v, ok := infinities[lower(y.Value)]; ok {
					num, numeric = v, true
				}
			}
		}
		return newScalar(path, y.Line, y.Value, numeric, num), nil
	}
	return nil, &Error{Path: path, Line: y.Line, Msg: "unsupported YAML node"}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
