package ui

import (
	"net/url"
	"strconv"
	"strings"
)

func formString(values url.Values, key string) string {
	return strings.TrimSpace(values.Get(key))
}

// formStrings returns the trimmed non-empty values of a repeated field
// (checkbox groups).
func formStrings(values url.Values, key string) []string {
	raw := values[key]
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func formBool(values url.Values, key string) bool {
	v := strings.ToLower(formString(values, key))
	return v == "true" || v == "1" || v == "on" || v == "yes"
}

// formInt parses an optional integer field; empty means 0.
func formInt(values url.Values, key string) (int, error) {
	v := formString(values, key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
