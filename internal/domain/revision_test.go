package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestChain_AppendMovesCurrent(t *testing.T) {
	c := NewChain(EntityRevision{Slug: "aspirin"})
	c.Append(EntityRevision{Slug: "acetylsalicylic-acid"})

	head, err := c.Head()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head.Slug != "acetylsalicylic-acid" {
		t.Errorf("head slug = %q", head.Slug)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if c.Revisions[0].Slug != "aspirin" {
		t.Error("earlier revision must be preserved")
	}
}

func TestChain_Validate(t *testing.T) {
	var empty Chain[SourceRevision]
	if !errors.Is(empty.Validate(), ErrNoCurrentRevision) {
		t.Error("empty chain should have no current revision")
	}

	c := NewChain(SourceRevision{Title: "a"})
	c.Current = 3
	if !errors.Is(c.Validate(), ErrCurrentOutOfRange) {
		t.Error("out of range index should fail validation")
	}
	if _, err := c.Head(); err == nil {
		t.Error("Head should fail on invalid chain")
	}
}

func TestCopyRoles_IsDeep(t *testing.T) {
	w := 0.5
	roles := []Role{{EntityID: uuid.New(), RoleType: "drug", Weight: &w}}

	cp := CopyRoles(roles)
	*cp[0].Weight = 0.9

	if *roles[0].Weight != 0.5 {
		t.Error("copied roles must not alias the original weight")
	}
	if CopyRoles(nil) != nil {
		t.Error("nil roles should copy to nil")
	}
}

func TestDirection_Sign(t *testing.T) {
	tests := []struct {
		d    Direction
		want float64
	}{
		{DirectionSupports, 1},
		{DirectionContradicts, -1},
		{DirectionUncertain, 0},
		{Direction("bogus"), 0},
	}
	for _, tt := range tests {
		if got := tt.d.Sign(); got != tt.want {
			t.Errorf("%s.Sign() = %v, want %v", tt.d, got, tt.want)
		}
	}
	if ValidDirection("bogus") {
		t.Error("bogus should not be a valid direction")
	}
}

func TestMatch_Less(t *testing.T) {
	now := time.Now()
	a := Match{RelationID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), RelationCreatedAt: now}
	b := Match{RelationID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), RelationCreatedAt: now}
	c := Match{RelationID: uuid.MustParse("00000000-0000-0000-0000-000000000000"), RelationCreatedAt: now.Add(time.Second)}

	if !a.Less(b) || b.Less(a) {
		t.Error("equal timestamps should order by relation id")
	}
	if !b.Less(c) {
		t.Error("earlier relation should sort first regardless of id")
	}
}

func TestEntityInference_Uncertainty(t *testing.T) {
	var e EntityInference
	if e.Uncertainty() != nil {
		t.Error("no roles should yield nil uncertainty")
	}

	e.RoleInferences = []RoleInference{{Confidence: 0.4}, {Confidence: 0.8}}
	u := e.Uncertainty()
	if u == nil || *u < 0.399 || *u > 0.401 {
		t.Errorf("uncertainty = %v, want ~0.4", u)
	}
}
