// Package typename maps CLR type tokens found in migration files to the short
// names used for display.
package typename

import (
	"regexp"
	"strings"
)

// NullableMarker is appended to the display name of a Nullable<T> wrapper
const NullableMarker = "?"

var nullableRegex = regexp.MustCompile(`^(?:System\.)?Nullable<(.+)>$`)

var displayNames = map[string]string{
	"Int16":    "short",
	"Int32":    "int",
	"Int64":    "long",
	"Boolean":  "bool",
	"String":   "string",
	"DateTime": "DateTime",
	"Decimal":  "decimal",
	"Double":   "double",
	"Single":   "float",
	"Byte[]":   "byte[]",
	"Guid":     "Guid",
}

// Normalize returns the display name for raw. Unknown tokens are returned
// unchanged apart from surrounding whitespace.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	if m := nullableRegex.FindStringSubmatch(raw); m != nil {
		return Normalize(m[1]) + NullableMarker
	}

	if name, ok := lookup(raw); ok {
		return name
	}

	return raw
}

func lookup(raw string) (string, bool) {
	if name, ok := displayNames[raw]; ok {
		return name, true
	}

	if short, ok := strings.CutPrefix(raw, "System."); ok {
		name, ok := displayNames[short]
		return name, ok
	}

	return "", false
}
