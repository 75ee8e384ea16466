package chunk

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	attrDelimiter = ','
	attrEscape    = '\\'
)

// Attributes is a set of string tags. It decodes from either a JSON list or a single
// delimited string produced by EncodeAttributes.
type Attributes []string

func (a Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

func (a *Attributes) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*a = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("attributes must be a list of strings or a delimited string: %w", err)
	}
	*a = DecodeAttributes(s)
	return nil
}

// EncodeAttributes flattens attributes into one string. Delimiters and escape characters
// inside values are escaped, so DecodeAttributes restores the exact list.
func EncodeAttributes(attrs []string) string {
	var b strings.Builder
	for i, attr := range attrs {
		if i > 0 {
			b.WriteRune(attrDelimiter)
		}
		for _, r := range attr {
			if r == attrDelimiter || r == attrEscape {
				b.WriteRune(attrEscape)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodeAttributes splits a string produced by EncodeAttributes. A plain comma-joined
// string without escapes decodes the same way a bare split would.
func DecodeAttributes(s string) []string {
	if s == "" {
		return nil
	}
	var (
		out     []string
		cur     strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == attrEscape:
			escaped = true
		case r == attrDelimiter:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		cur.WriteRune(attrEscape)
	}
	return append(out, cur.String())
}
