package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidScope = errors.New("invalid scope")

const (
	scopeNullToken  = "scope:null"
	scopeEmptyToken = "scope:empty"
)

// ScopeFilter narrows which relations are aggregated. A nil filter (absent)
// and an empty filter are distinct and hash differently.
type ScopeFilter map[string]any

// ParseScope decodes the caller supplied scope JSON. An empty string or the
// literal null yields a nil filter.
func ParseScope(raw string) (ScopeFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidScope, err)
	}

	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return ScopeFilter(t), nil
	default:
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", ErrInvalidScope, jsonKind(v))
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return "unknown"
}

// ScopeHash returns the stable content address of (entity, scope filter):
// the lowercase hex SHA-256 of "entity:{id}|{scope tokens}".
func ScopeHash(entityID uuid.UUID, filter ScopeFilter) string {
	var b strings.Builder
	b.WriteString("entity:")
	b.WriteString(entityID.String())
	b.WriteString("|")
	b.WriteString(scopeTokens(filter))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func scopeTokens(filter ScopeFilter) string {
	if filter == nil {
		return scopeNullToken
	}
	if len(filter) == 0 {
		return scopeEmptyToken
	}

	keys := filter.Keys()
	tokens := make([]string, 0, len(keys))
	for _, k := range keys {
		tokens = append(tokens, k+":"+string(canonicalJSON(filter[k])))
	}
	return strings.Join(tokens, "|")
}

// Keys returns the filter keys in lexicographic order.
func (f ScopeFilter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether a relation scope satisfies the filter: every filter
// key must be present with an equal value. Extra keys in scope are allowed and
// a nil filter matches everything.
func (f ScopeFilter) Matches(scope ScopeFilter) bool {
	if f == nil {
		return true
	}
	for k, want := range f {
		got, ok := scope[k]
		if !ok {
			return false
		}
		if !bytes.Equal(canonicalJSON(want), canonicalJSON(got)) {
			return false
		}
	}
	return true
}

// JSON returns the canonical encoding of the filter, or nil for a nil filter.
func (f ScopeFilter) JSON() []byte {
	if f == nil {
		return nil
	}
	return canonicalJSON(map[string]any(f))
}

// canonicalJSON encodes v with sorted object keys (encoding/json sorts map
// keys) and without HTML escaping. Unencodable values fall back to their
// printed form so hashing never fails.
func canonicalJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return []byte(fmt.Sprintf("%q", fmt.Sprint(v)))
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
