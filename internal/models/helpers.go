// Package models defines the data exchanged with the live-chat backend.
package models

import (
	"fmt"
	"strings"
)

// MetaString safely extracts a string value from a metadata map.
// Non-string values are formatted; nil maps and missing keys yield "".
func MetaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// ParseStatuses converts status names to ConversationStatus values, upper-casing
// them and skipping blanks. Unknown names are rejected.
func ParseStatuses(names []string) ([]ConversationStatus, error) {
	out := make([]ConversationStatus, 0, len(names))
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		switch s := ConversationStatus(name); s {
		case StatusOpen, StatusQueued, StatusAssigned, StatusClosed:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unsupported status filter: %s", name)
		}
	}
	return out, nil
}
