package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Substitute recursively replaces {name}-style placeholders in a value using
// the variable scope. Strings are scanned for placeholders; maps and lists
// are walked and their elements substituted; other values pass through.
//
// Substitution is non-strict by contract: a placeholder with no matching
// variable is left verbatim rather than raising, so downstream steps can rely
// on literal passthrough for optional parameters.
func Substitute(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		return substituteString(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = Substitute(elem, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Substitute(elem, vars)
		}
		return out
	default:
		return value
	}
}

// SubstituteMap substitutes placeholders in every value of a config map.
func SubstituteMap(config map[string]any, vars map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = Substitute(v, vars)
	}
	return out
}

// substituteString scans a string for {name} tokens. When the whole string is
// a single placeholder the resolved value keeps its type; embedded
// placeholders are stringified inline.
func substituteString(s string, vars map[string]any) any {
	if !strings.Contains(s, "{") {
		return s
	}

	// Whole-string reference: a single placeholder spanning the entire
	// string resolves with the variable's type preserved. The first closing
	// brace must be the final character, otherwise the string has trailing
	// text and gets the inline scan below.
	if strings.HasPrefix(s, "{") && strings.IndexByte(s, '}') == len(s)-1 {
		if val, ok := lookup(vars, s[1:len(s)-1]); ok {
			return val
		}
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '{')
		if open == -1 {
			result.WriteString(s[i:])
			break
		}
		result.WriteString(s[i : i+open])
		start := i + open

		end := strings.IndexByte(s[start:], '}')
		if end == -1 {
			// Unterminated brace: literal passthrough.
			result.WriteString(s[start:])
			break
		}
		end += start

		name := s[start+1 : end]
		if val, ok := lookup(vars, name); ok {
			result.WriteString(stringify(val))
		} else {
			// Unknown placeholder stays verbatim.
			result.WriteString(s[start : end+1])
		}
		i = end + 1
	}

	return result.String()
}

// lookup resolves a placeholder name against the scope. Direct keys win
// (supporting keys that contain dots); otherwise the name is traversed as a
// dot-delimited path into nested maps.
func lookup(vars map[string]any, name string) (any, bool) {
	name = strings.TrimSpace(name)
	if name == "" || vars == nil {
		return nil, false
	}

	if val, ok := vars[name]; ok {
		return val, true
	}

	segments := strings.Split(name, ".")
	if len(segments) < 2 {
		return nil, false
	}

	var current any = vars
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringify converts a resolved value into its inline string representation.
// Complex types are JSON-encoded inline.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
