package component

import (
	"fmt"
	"sort"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var topicsKeys = map[string]bool{
	"script": true, "skipif": true, "doif": true, "timeout": true,
}

// UnmarshalYAML builds a Node from a raw YAML node, distinguishing the
// three lifecycle-block shapes described in §3. yaml.Node is used instead
// of decoding straight into a map so that platform-tagged children keep
// their declaration order — §4.A's rank-tie-break depends on it.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		n.Kind = NodeScript
		return value.Decode(&n.Script)

	case yaml.MappingNode:
		if isTopicsMapping(value) {
			n.Kind = NodeTopics
			return value.Decode(&n.Topics)
		}

		n.Kind = NodePlatformMap
		n.Children = make([]TaggedChild, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			keyNode := value.Content[i]
			valNode := value.Content[i+1]
			var child Node
			if err := valNode.Decode(&child); err != nil {
				return fmt.Errorf("lifecycle node %q: %w", keyNode.Value, err)
			}
			n.Children = append(n.Children, TaggedChild{Tag: keyNode.Value, Node: child})
		}
		return nil

	default:
		return fmt.Errorf("unsupported lifecycle node kind %v", value.Kind)
	}
}

// isTopicsMapping reports whether every key of a YAML mapping is a
// recognized Topics field, in which case it's a structured step rather
// than a platform-tagged map of nested blocks.
func isTopicsMapping(value *yaml.Node) bool {
	if len(value.Content) == 0 {
		return false
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if !topicsKeys[value.Content[i].Value] {
			return false
		}
	}
	return true
}

// UnmarshalTOML mirrors UnmarshalYAML for the TOML recipe format. go-toml/v2
// doesn't expose raw key order on decode, so platform-tagged maps fall back
// to lexical tag order for rank ties instead of declaration order; YAML
// recipes remain the format of record when tie-break order matters.
func (n *Node) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		n.Kind = NodeScript
		n.Script = v
		return nil

	case map[string]any:
		if isTopicsTOMLMap(v) {
			n.Kind = NodeTopics
			return decodeTopicsTOML(v, &n.Topics)
		}

		n.Kind = NodePlatformMap
		tags := make([]string, 0, len(v))
		for tag := range v {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			raw, err := toml.Marshal(v[tag])
			if err != nil {
				return fmt.Errorf("lifecycle node %q: %w", tag, err)
			}
			var child Node
			if err := toml.Unmarshal(raw, &child); err != nil {
				return fmt.Errorf("lifecycle node %q: %w", tag, err)
			}
			n.Children = append(n.Children, TaggedChild{Tag: tag, Node: child})
		}
		return nil

	default:
		return fmt.Errorf("unsupported lifecycle node value %T", data)
	}
}

// UnmarshalYAML splits the lifecycle mapping into its named steps and the
// special `timer` entry (§4.C), which is shaped like (period, fuzz) rather
// than a Node and would otherwise be misread as a platform map.
func (lb *LifecycleBlock) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("lifecycle block must be a mapping")
	}
	lb.Steps = make(map[string]Node, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		valNode := value.Content[i+1]
		if key == "timer" {
			var spec TimerSpec
			if err := valNode.Decode(&spec); err != nil {
				return fmt.Errorf("lifecycle.timer: %w", err)
			}
			lb.Timer = &spec
			continue
		}
		var n Node
		if err := valNode.Decode(&n); err != nil {
			return fmt.Errorf("lifecycle.%s: %w", key, err)
		}
		lb.Steps[key] = n
	}
	return nil
}

// UnmarshalTOML mirrors UnmarshalYAML for the TOML format.
func (lb *LifecycleBlock) UnmarshalTOML(data any) error {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("lifecycle block must be a table, got %T", data)
	}
	lb.Steps = make(map[string]Node, len(m))
	for key, raw := range m {
		if key == "timer" {
			var spec TimerSpec
			if err := spec.UnmarshalTOML(raw); err != nil {
				return fmt.Errorf("lifecycle.timer: %w", err)
			}
			lb.Timer = &spec
			continue
		}
		encoded, err := toml.Marshal(raw)
		if err != nil {
			return fmt.Errorf("lifecycle.%s: %w", key, err)
		}
		var n Node
		if err := toml.Unmarshal(encoded, &n); err != nil {
			return fmt.Errorf("lifecycle.%s: %w", key, err)
		}
		lb.Steps[key] = n
	}
	return nil
}

// UnmarshalYAML decodes (period, fuzz) from their string/float form.
func (ts *TimerSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Period string  `yaml:"period"`
		Fuzz   float64 `yaml:"fuzz"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d, err := time.ParseDuration(raw.Period)
	if err != nil {
		return fmt.Errorf("period: %w", err)
	}
	ts.Period = d
	ts.Fuzz = raw.Fuzz
	return nil
}

// UnmarshalTOML mirrors UnmarshalYAML for the TOML format.
func (ts *TimerSpec) UnmarshalTOML(data any) error {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("lifecycle.timer must be a table, got %T", data)
	}
	period, _ := m["period"].(string)
	d, err := time.ParseDuration(period)
	if err != nil {
		return fmt.Errorf("period: %w", err)
	}
	ts.Period = d
	switch f := m["fuzz"].(type) {
	case float64:
		ts.Fuzz = f
	case int64:
		ts.Fuzz = float64(f)
	}
	return nil
}

func isTopicsTOMLMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !topicsKeys[k] {
			return false
		}
	}
	return true
}

func decodeTopicsTOML(m map[string]any, t *Topics) error {
	if s, ok := m["script"].(string); ok {
		t.Script = s
	}
	if s, ok := m["skipif"].(string); ok {
		t.SkipIf = s
	}
	if s, ok := m["doif"].(string); ok {
		t.DoIf = s
	}
	switch v := m["timeout"].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		t.Timeout = d
	case int64:
		t.Timeout = time.Duration(v) * time.Second
	}
	return nil
}
