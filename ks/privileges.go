package ks

import "strings"

// PrivilegeAll is the directive key produced for the "*" privilege.
const PrivilegeAll = "all"

// Privilege is one key/value directive embedded in a token.
type Privilege struct {
	Key   string
	Value string
}

// String renders p in the comma-separated privilege syntax.
func (p Privilege) String() string {
	switch {
	case p.Key == PrivilegeAll && p.Value == "*":
		return "*"
	case p.Value == "":
		return p.Key
	default:
		return p.Key + ":" + p.Value
	}
}

// ParsePrivileges splits a comma-separated privilege string into directives.
//
// Segments are trimmed and empty segments skipped. "*" becomes {all, *}, "k:v" splits on
// the first colon, anything else becomes {segment, ""}. Order and duplicate keys are kept.
func ParsePrivileges(raw string) []Privilege {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	segments := strings.Split(raw, ",")
	out := make([]Privilege, 0, len(segments))
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if segment == "*" {
			out = append(out, Privilege{Key: PrivilegeAll, Value: "*"})
			continue
		}
		if key, value, ok := strings.Cut(segment, ":"); ok {
			out = append(out, Privilege{Key: key, Value: value})
			continue
		}
		out = append(out, Privilege{Key: segment})
	}
	return out
}

// FormatPrivileges is the inverse of ParsePrivileges.
func FormatPrivileges(privileges []Privilege) string {
	parts := make([]string, len(privileges))
	for i, p := range privileges {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}
