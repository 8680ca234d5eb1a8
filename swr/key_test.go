package swr

import (
	"errors"
	"strings"
	"testing"
)

// Structural identity: equal namespace + parameter tuple means equal keys,
// no matter where they were constructed.
func TestKey_StructuralEquality(t *testing.T) {
	t.Parallel()

	a := NewKey("users", 7, "active")
	b := NewKey("users", 7, "active")
	if !a.Equal(b) {
		t.Fatalf("%v must equal %v", a, b)
	}
	if a.Hash() != b.Hash() {
		t.Fatal("equal keys must hash equal")
	}

	if a.Equal(NewKey("users", 7)) {
		t.Fatal("different arity must differ")
	}
	if a.Equal(NewKey("users", "active", 7)) {
		t.Fatal("parameter order is significant")
	}
	if a.Equal(NewKey("posts", 7, "active")) {
		t.Fatal("namespace is significant")
	}
	if !NewKey("plain").Equal(NewKey("plain")) {
		t.Fatal("parameterless keys must compare by namespace")
	}
}

// Map parameters canonicalize by sorted keys: insertion order is identity-
// irrelevant.
func TestKey_MapParamsCanonical(t *testing.T) {
	t.Parallel()

	m1 := map[string]int{}
	m1["a"] = 1
	m1["b"] = 2
	m2 := map[string]int{}
	m2["b"] = 2
	m2["a"] = 1

	if !NewKey("filter", m1).Equal(NewKey("filter", m2)) {
		t.Fatal("map insertion order must not affect identity")
	}
}

// The separator byte keeps namespace/parameter boundaries collision-free.
func TestKey_NoBoundaryCollisions(t *testing.T) {
	t.Parallel()

	if NewKey("ab", "c").Equal(NewKey("a", "bc")) {
		t.Fatal("shifting the namespace boundary must change identity")
	}
	if NewKey("ns", "ab").Equal(NewKey("ns", "a", "b")) {
		t.Fatal("joining parameters must change identity")
	}
}

// Invalid keys are inert values that fail fast at the first operation.
func TestKey_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]Key{
		"zero":            {},
		"empty namespace": NewKey(""),
		"reserved byte":   NewKey("a\x1fb"),
		"chan param":      NewKey("ns", make(chan int)),
		"func param":      NewKey("ns", func() {}),
	}
	for name, k := range cases {
		if err := k.validate(); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%s: validate = %v, want ErrInvalidKey", name, err)
		}
		if k.Equal(k) {
			t.Errorf("%s: invalid key must equal nothing, not even itself", name)
		}
	}
}

func TestKey_Accessors(t *testing.T) {
	t.Parallel()

	k := NewKey("users", 7)
	if k.Namespace() != "users" {
		t.Fatalf("Namespace = %q", k.Namespace())
	}
	if k.IsZero() {
		t.Fatal("constructed key must not be zero")
	}
	if !(Key{}).IsZero() {
		t.Fatal("zero value must report IsZero")
	}
	if !strings.HasPrefix(k.ID(), "users") {
		t.Fatalf("ID = %q", k.ID())
	}

	p := k.Params()
	if len(p) != 1 || p[0] != 7 {
		t.Fatalf("Params = %v", p)
	}
	p[0] = 99 // mutating the copy must not leak into the key
	if k.Params()[0] != 7 {
		t.Fatal("Params must return a copy")
	}
}

// Fuzz the canonicalization invariants under arbitrary string inputs.
func FuzzKey_Canonical(f *testing.F) {
	f.Add("users", "a", "b")
	f.Add("k", "", "")
	f.Add("αβγ", "δ", "🙂")
	f.Add("n", strings.Repeat("x", 1024), "y")

	f.Fuzz(func(t *testing.T, ns, a, b string) {
		k1 := NewKey(ns, a, b)
		k2 := NewKey(ns, a, b)
		if err := k1.validate(); err != nil {
			// Invalid namespaces (empty / reserved byte) are equal to nothing.
			if k1.Equal(k2) {
				t.Fatal("invalid keys must not compare equal")
			}
			return
		}
		if !k1.Equal(k2) || k1.Hash() != k2.Hash() {
			t.Fatalf("identical inputs produced unequal keys: %v vs %v", k1, k2)
		}
		// Two parameters never collide with their concatenation.
		if k1.Equal(NewKey(ns, a+b)) {
			t.Fatalf("parameter boundary collision: (%q,%q)", a, b)
		}
		if a != b && k1.Equal(NewKey(ns, b, a)) {
			t.Fatalf("order-insensitive collision: (%q,%q)", a, b)
		}
	})
}
