package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// List is a string list that also accepts a single ";" or "," delimited
// string, which is how recipient and endpoint lists are usually written.
type List []string

func SplitList(s string) List {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	out := make(List, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Clean splits any delimited items and drops blanks.
func (l List) Clean() List {
	var out List
	for _, v := range l {
		out = append(out, SplitList(v)...)
	}
	return out
}

func (l *List) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = SplitList(value.Value)
		return nil
	}
	var items []string
	if err := value.Decode(&items); err != nil {
		return err
	}
	*l = List(items).Clean()
	return nil
}

func (l *List) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = SplitList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = List(items).Clean()
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (l *List) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		*l = SplitList(v)
	case []any:
		items := make(List, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("list item %v is not a string", item)
			}
			items = append(items, s)
		}
		*l = items.Clean()
	default:
		return fmt.Errorf("unsupported list value %T", value)
	}
	return nil
}
