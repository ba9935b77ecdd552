package domain

import (
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestScopeHash_Deterministic(t *testing.T) {
	entityID := uuid.New()
	a := ScopeFilter{"population": "adults", "condition": "hypertension", "dose": 10.0}
	b := ScopeFilter{"dose": 10.0, "condition": "hypertension", "population": "adults"}

	h1 := ScopeHash(entityID, a)
	h2 := ScopeHash(entityID, a)
	h3 := ScopeHash(entityID, b)

	if h1 != h2 {
		t.Errorf("repeated hash differs: %s vs %s", h1, h2)
	}
	if h1 != h3 {
		t.Errorf("key order changed hash: %s vs %s", h1, h3)
	}
	if !hexDigest.MatchString(h1) {
		t.Errorf("hash %q is not a 64 char lowercase hex digest", h1)
	}
}

func TestScopeHash_NestedKeyOrder(t *testing.T) {
	entityID := uuid.New()
	a := ScopeFilter{"population": map[string]any{"age": "adult", "sex": "f"}}
	b := ScopeFilter{"population": map[string]any{"sex": "f", "age": "adult"}}

	if ScopeHash(entityID, a) != ScopeHash(entityID, b) {
		t.Error("nested key order should not change the hash")
	}
}

func TestScopeHash_NullAndEmptyDiffer(t *testing.T) {
	for i := 0; i < 5; i++ {
		entityID := uuid.New()
		if ScopeHash(entityID, nil) == ScopeHash(entityID, ScopeFilter{}) {
			t.Fatalf("null and empty scope hash the same for %s", entityID)
		}
	}
}

func TestScopeHash_DistinguishesInputs(t *testing.T) {
	e1, e2 := uuid.New(), uuid.New()
	scope := ScopeFilter{"population": "adults"}

	if ScopeHash(e1, scope) == ScopeHash(e2, scope) {
		t.Error("different entities should hash differently")
	}
	if ScopeHash(e1, scope) == ScopeHash(e1, ScopeFilter{"population": "children"}) {
		t.Error("different values should hash differently")
	}
	if ScopeHash(e1, ScopeFilter{"n": 1}) != ScopeHash(e1, ScopeFilter{"n": 1.0}) {
		t.Error("numerically equal values should hash the same")
	}
}

func TestScopeTokens(t *testing.T) {
	tests := []struct {
		name   string
		filter ScopeFilter
		want   string
	}{
		{"null", nil, "scope:null"},
		{"empty", ScopeFilter{}, "scope:empty"},
		{"single", ScopeFilter{"population": "adults"}, `population:"adults"`},
		{"sorted", ScopeFilter{"b": true, "a": 1}, `a:1|b:true`},
		{"nested", ScopeFilter{"p": map[string]any{"z": 1, "a": "<x>"}}, `p:{"a":"<x>","z":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeTokens(tt.filter); got != tt.want {
				t.Errorf("scopeTokens() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantNil bool
		wantLen int
		wantErr bool
	}{
		{"absent", "", true, 0, false},
		{"null literal", "null", true, 0, false},
		{"empty object", "{}", false, 0, false},
		{"object", `{"population":"adults","n":2}`, false, 2, false},
		{"malformed", `{"population":`, false, 0, true},
		{"array", `["adults"]`, false, 0, true},
		{"string", `"adults"`, false, 0, true},
		{"number", `42`, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScope(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidScope) {
					t.Fatalf("expected ErrInvalidScope, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("nil = %v, want %v", got == nil, tt.wantNil)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestScopeFilter_Matches(t *testing.T) {
	relationScope := ScopeFilter{
		"population": "adults",
		"condition":  "hypertension",
		"design":     map[string]any{"type": "rct", "blinded": true},
	}

	tests := []struct {
		name   string
		filter ScopeFilter
		want   bool
	}{
		{"nil filter matches all", nil, true},
		{"empty filter matches all", ScopeFilter{}, true},
		{"subset matches", ScopeFilter{"population": "adults"}, true},
		{"all keys match", ScopeFilter{"population": "adults", "condition": "hypertension"}, true},
		{"value differs", ScopeFilter{"population": "children"}, false},
		{"missing key", ScopeFilter{"region": "eu"}, false},
		{"nested equal", ScopeFilter{"design": map[string]any{"blinded": true, "type": "rct"}}, true},
		{"nested subset is not equal", ScopeFilter{"design": map[string]any{"type": "rct"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(relationScope); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopeFilter_JSON(t *testing.T) {
	var nilFilter ScopeFilter
	if nilFilter.JSON() != nil {
		t.Error("nil filter should encode to nil")
	}
	if got := string(ScopeFilter{}.JSON()); got != "{}" {
		t.Errorf("empty filter = %s, want {}", got)
	}
	if got := string(ScopeFilter{"b": 1, "a": "x"}.JSON()); got != `{"a":"x","b":1}` {
		t.Errorf("filter JSON = %s", got)
	}
}
