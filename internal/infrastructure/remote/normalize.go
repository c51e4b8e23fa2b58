package remote

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// decodeNormalized decodes server data into out after rewriting camelCase
// object keys to snake_case. Numbers stay json.Number so money amounts keep
// their exact decimal text.
func decodeNormalized(data json.RawMessage, out any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	raw, err := json.Marshal(normalizeKeys(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// normalizeKeys rewrites object keys recursively. When both spellings of a
// key are present the snake_case one wins.
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if snakeCase(k) == k {
				out[k] = normalizeKeys(val)
			}
		}
		for k, val := range t {
			sk := snakeCase(k)
			if sk == k {
				continue
			}
			if _, taken := out[sk]; !taken {
				out[sk] = normalizeKeys(val)
			}
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeKeys(t[i])
		}
		return t
	}
	return v
}

// snakeCase converts updatedAt, cartID and menuItemId style keys
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
