package ks

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Reserved v2 field keys.
const (
	FieldExpiry = "_e"
	FieldUser   = "_u"
	FieldType   = "_t"
)

// Field is one ordered key/value pair of a v2 token body.
type Field struct {
	Key   string
	Value string
}

func isReserved(key string) bool {
	return key == FieldExpiry || key == FieldUser || key == FieldType
}

// sessionFields returns the ordered v2 field set. Privilege directives that collide
// with a reserved key are dropped.
func sessionFields(p Params) []Field {
	privileges := ParsePrivileges(p.Privileges)
	fields := make([]Field, 0, 3+len(privileges))
	fields = append(fields,
		Field{Key: FieldExpiry, Value: strconv.Itoa(NormalizeExpiry(p.ExpirySeconds))},
		Field{Key: FieldUser, Value: p.UserID},
		Field{Key: FieldType, Value: "0"},
	)
	for _, priv := range privileges {
		if isReserved(priv.Key) {
			continue
		}
		fields = append(fields, Field{Key: priv.Key, Value: priv.Value})
	}
	return fields
}

func encodeFields(fields []Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}

func parseFields(s string) ([]Field, error) {
	if s == "" {
		return nil, nil
	}
	pairs := strings.Split(s, "&")
	out := make([]Field, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: field key %q: %v", ErrMalformed, rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q value: %v", ErrMalformed, key, err)
		}
		out = append(out, Field{Key: key, Value: value})
	}
	return out, nil
}
