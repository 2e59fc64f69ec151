package ident

import (
	"testing"

	"github.com/google/uuid"

	"github.com/vormdb/vorm/internal/engine"
)

func TestEngineID_Deterministic(t *testing.T) {
	a := EngineID("user-42")
	b := EngineID("user-42")
	if a != b {
		t.Fatalf("same input derived different ids: %s vs %s", a, b)
	}
	c := EngineID("user-43")
	if a == c {
		t.Fatal("different inputs derived the same id")
	}
}

func TestEngineID_UUIDPassthrough(t *testing.T) {
	u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	t.Run("uuid value", func(t *testing.T) {
		id := EngineID(u)
		if id.String() != u.String() {
			t.Errorf("id = %s, want %s", id, u)
		}
	})

	t.Run("canonical string", func(t *testing.T) {
		id := EngineID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		if id.String() != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
			t.Errorf("canonical uuid string was rewritten to %s", id)
		}
	})

	t.Run("uppercase canonical string", func(t *testing.T) {
		id := EngineID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
		if id.String() != "6BA7B810-9DAD-11D1-80B4-00C04FD430C8" {
			t.Errorf("canonical uuid string was rewritten to %s", id)
		}
	})

	t.Run("non-canonical uuid-ish string derives", func(t *testing.T) {
		id := EngineID("6ba7b8109dad11d180b400c04fd430c8")
		if id.String() == "6ba7b8109dad11d180b400c04fd430c8" {
			t.Error("undashed uuid string should be derived, not passed through")
		}
	})
}

func TestEngineID_Integers(t *testing.T) {
	t.Run("non-negative passes through", func(t *testing.T) {
		id := EngineID(42)
		if !id.IsNum() || id.Num() != 42 {
			t.Errorf("id = %v, want numeric 42", id)
		}
	})

	t.Run("zero passes through", func(t *testing.T) {
		id := EngineID(int64(0))
		if !id.IsNum() || id.Num() != 0 {
			t.Errorf("id = %v, want numeric 0", id)
		}
	})

	t.Run("negative derives", func(t *testing.T) {
		id := EngineID(-7)
		if id.IsNum() {
			t.Errorf("negative int should derive a uuid, got numeric %d", id.Num())
		}
		if id != EngineID(-7) {
			t.Error("negative int derivation is not deterministic")
		}
	})
}

func TestEngineID_DerivedIsUUID(t *testing.T) {
	id := EngineID("some-slug")
	if _, err := uuid.Parse(id.String()); err != nil {
		t.Fatalf("derived id %q is not a uuid: %v", id, err)
	}
}

func TestNewDomainID(t *testing.T) {
	a := NewDomainID()
	b := NewDomainID()
	if a == b {
		t.Fatal("generated ids must be unique")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", a, err)
	}
}

func TestCache(t *testing.T) {
	c := NewCache(2)

	want := engine.TextID("explicit-mapping")
	c.Remember("books", "id-1", want)

	if got := c.Resolve("books", "id-1"); got != want {
		t.Errorf("Resolve = %v, want remembered %v", got, want)
	}

	// Unremembered ids re-derive.
	if got := c.Resolve("books", "id-2"); got != EngineID("id-2") {
		t.Errorf("Resolve = %v, want derived id", got)
	}

	// Same domain id in a different collection is a separate entry.
	other := engine.TextID("other-mapping")
	c.Remember("authors", "id-1", other)
	if got := c.Resolve("books", "id-1"); got != want {
		t.Errorf("collection separation broken: got %v", got)
	}

	// Bounded: the oldest entry is evicted once the size is exceeded.
	c.Remember("films", "id-9", engine.TextID("evictor"))
	if c.Len() > 2 {
		t.Errorf("cache grew to %d entries, want at most 2", c.Len())
	}
}

func TestCache_DistinguishesValueTypes(t *testing.T) {
	c := NewCache(4)
	c.Remember("books", 42, EngineID(42))

	// A string that prints like a cached int must not hit its entry.
	if got := c.Resolve("books", "42"); got != EngineID("42") {
		t.Errorf("Resolve(%q) = %v, want derived %v", "42", got, EngineID("42"))
	}
	if got := c.Resolve("books", 42); got != EngineID(42) {
		t.Errorf("Resolve(42) = %v, want %v", got, EngineID(42))
	}
}

func TestCache_ResolveAgreesWithEngineID(t *testing.T) {
	c := NewCache(4)
	for _, id := range []any{42, "42", "user-7", int64(0), uuid.NewString()} {
		if got := c.Resolve("books", id); got != EngineID(id) {
			t.Errorf("Resolve(%v %T) = %v, want %v", id, id, got, EngineID(id))
		}
	}
}
