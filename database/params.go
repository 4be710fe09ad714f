package database

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Params is the parameter set bound to a statement: either positional values
// or values keyed by placeholder name. The zero value binds nothing.
type Params struct {
	Positional []any
	Named      map[string]any
}

// IsEmpty reports whether no parameters are set.
func (p Params) IsEmpty() bool {
	return len(p.Positional) == 0 && len(p.Named) == 0
}

// Args returns the driver arguments for the parameter set. Named keys may
// carry the placeholder prefix (":id", "@id", "$id"); the prefix is dropped
// because the driver matches names against all three forms.
func (p Params) Args() []any {
	if p.IsEmpty() {
		return nil
	}
	if len(p.Named) > 0 {
		keys := make([]string, 0, len(p.Named))
		for k := range p.Named {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		args := make([]any, 0, len(keys))
		for _, k := range keys {
			args = append(args, sql.Named(strings.TrimLeft(k, ":@$"), p.Named[k]))
		}
		return args
	}
	return p.Positional
}

// ParseParams decodes the raw JSON "params" member of a request. Arrays bind
// positionally, objects bind by name, a lone scalar binds as the single
// positional argument, and null or empty input binds nothing.
func ParseParams(raw json.RawMessage) (Params, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Params{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return Params{}, fmt.Errorf("invalid params: %w", err)
	}

	switch v := value.(type) {
	case []any:
		args := make([]any, len(v))
		for i, item := range v {
			arg, err := bindValue(item)
			if err != nil {
				return Params{}, fmt.Errorf("params[%d]: %w", i, err)
			}
			args[i] = arg
		}
		return Params{Positional: args}, nil
	case map[string]any:
		named := make(map[string]any, len(v))
		for k, item := range v {
			arg, err := bindValue(item)
			if err != nil {
				return Params{}, fmt.Errorf("params[%q]: %w", k, err)
			}
			named[k] = arg
		}
		return Params{Named: named}, nil
	default:
		arg, err := bindValue(v)
		if err != nil {
			return Params{}, fmt.Errorf("params: %w", err)
		}
		return Params{Positional: []any{arg}}, nil
	}
}

func bindValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", val)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}
