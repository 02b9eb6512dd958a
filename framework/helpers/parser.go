package helpers

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	yaml "gopkg.in/yaml.v3"
)

var jsonNumberRegex = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// ParseJSONOrYAML is used in the same way as json.Unmarshal, but if the data is YAML and not
// JSON, it will convert the YAML to JSON and then parse it as JSON.
//
// Numbers are carried over in the form they were written, so a json.RawMessage target sees
// "quality: 0.10" as 0.10 just as it would from a JSON file. Anchors, aliases and "<<" merge keys
// are resolved.
func ParseJSONOrYAML(data []byte, target interface{}) error {
	if err := json.Unmarshal(data, target); err == nil {
		return nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	w := jwriter.NewWriter()
	if err := writeYAMLNodeAsJSON(&w, &doc); err != nil {
		return err
	}
	if err := w.Error(); err != nil {
		return err
	}
	return json.Unmarshal(w.Bytes(), target)
}

func writeYAMLNodeAsJSON(w *jwriter.Writer, node *yaml.Node) error {
	node = resolveAlias(node)
	switch node.Kind {
	case 0:
		w.Null() // empty document
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			w.Null()
			return nil
		}
		return writeYAMLNodeAsJSON(w, node.Content[0])
	case yaml.SequenceNode:
		arr := w.Array()
		for _, item := range node.Content {
			if err := writeYAMLNodeAsJSON(w, item); err != nil {
				return err
			}
		}
		arr.End()
	case yaml.MappingNode:
		members, err := mappingMembers(node)
		if err != nil {
			return err
		}
		obj := w.Object()
		for _, m := range members {
			if err := writeYAMLNodeAsJSON(obj.Name(m.name), m.value); err != nil {
				return err
			}
		}
		obj.End()
	case yaml.ScalarNode:
		return writeYAMLScalarAsJSON(w, node)
	default:
		return fmt.Errorf("unsupported YAML node at line %d", node.Line)
	}
	return nil
}

func writeYAMLScalarAsJSON(w *jwriter.Writer, node *yaml.Node) error {
	switch node.ShortTag() {
	case "!!null":
		w.Null()
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		w.Bool(b)
	case "!!int", "!!float":
		if jsonNumberRegex.MatchString(node.Value) {
			w.Raw(json.RawMessage(node.Value))
			return nil
		}
		// forms like 0x1F or 1_000 that JSON has no spelling for
		var v interface{}
		if err := node.Decode(&v); err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("YAML value %q at line %d has no JSON equivalent: %w", node.Value, node.Line, err)
		}
		w.Raw(data)
	default:
		w.String(node.Value)
	}
	return nil
}

type yamlMember struct {
	name  string
	value *yaml.Node
}

// mappingMembers lists the keys of a mapping in order, with "<<" merges expanded. Keys written in
// the mapping itself take precedence over merged ones, and earlier merge sources over later ones.
func mappingMembers(node *yaml.Node) ([]yamlMember, error) {
	var own, merged []yamlMember
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge" {
			sources := []*yaml.Node{value}
			if v := resolveAlias(value); v.Kind == yaml.SequenceNode {
				sources = v.Content
			}
			for _, source := range sources {
				source = resolveAlias(source)
				if source.Kind != yaml.MappingNode {
					return nil, fmt.Errorf("YAML merge at line %d does not refer to a mapping", value.Line)
				}
				members, err := mappingMembers(source)
				if err != nil {
					return nil, err
				}
				merged = append(merged, members...)
			}
			continue
		}
		if key.Kind != yaml.ScalarNode || key.ShortTag() != "!!str" {
			return nil, fmt.Errorf(
				"YAML data contained a map key of type %s at line %d; only string keys are allowed",
				key.ShortTag(), key.Line)
		}
		own = append(own, yamlMember{name: key.Value, value: value})
	}

	seen := make(map[string]bool, len(own))
	for _, m := range own {
		seen[m.name] = true
	}
	ret := own
	for _, m := range merged {
		if !seen[m.name] {
			ret = append(ret, m)
			seen[m.name] = true
		}
	}
	return ret, nil
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}
