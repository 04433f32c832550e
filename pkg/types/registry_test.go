package types

import "testing"

func TestInternPrimitives(t *testing.T) {
	r := New()
	tests := []struct {
		name string
		want bool
	}{
		{"i32", true},
		{"u64", true},
		{"f32", true},
		{"bool", true},
		{"void", true},
		{"nope", false},
	}
	for _, tt := range tests {
		id := r.Primitive(tt.name)
		got := id != 0
		if got != tt.want {
			t.Errorf("Primitive(%q) found=%v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInternFunctionTypeDeterministic(t *testing.T) {
	r := New()
	i32 := r.Primitive("i32")
	sig := Function{Return: i32, Args: []TypeID{i32, i32}}

	id1 := r.InternFunctionType(sig)
	id2 := r.InternFunctionType(sig)
	if id1 != id2 {
		t.Fatalf("equal signatures got different ids: %d vs %d", id1, id2)
	}

	other := Function{Return: i32, Args: []TypeID{i32}}
	id3 := r.InternFunctionType(other)
	if id3 == id1 {
		t.Fatalf("different signatures shared an id: %d", id3)
	}
}

func TestInternAnonymousIdempotent(t *testing.T) {
	r := New()
	i32 := r.Primitive("i32")
	f32 := r.Primitive("f32")
	props := []Property{
		{Name: "a", Type: i32},
		{Name: "b", Type: f32},
	}
	id1 := r.InternAnonymous(props, Meta{})
	id2 := r.InternAnonymous(append([]Property(nil), props...), Meta{})
	if id1 != id2 {
		t.Fatalf("identical anonymous property lists got different ids: %d vs %d", id1, id2)
	}

	reordered := []Property{
		{Name: "b", Type: f32},
		{Name: "a", Type: i32},
	}
	id3 := r.InternAnonymous(reordered, Meta{})
	if id3 == id1 {
		t.Fatalf("reordered property list should not intern to the same id")
	}
}

func TestSpecializeIdempotent(t *testing.T) {
	r := New()
	i32 := r.Primitive("i32")
	f32 := r.Primitive("f32")

	template := TypeID(9999) // stand-in template id for this unit test
	calls := 0
	compile := func() (Type, Meta, string, error) {
		calls++
		return Object{Name: "Pair<i32, f32>"}, Meta{}, "Pair<i32, f32>", nil
	}

	id1, err := r.Specialize(template, []TypeID{i32, f32}, compile)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := r.Specialize(template, []TypeID{i32, f32}, compile)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("Specialize not idempotent: %d vs %d", id1, id2)
	}
	if calls != 1 {
		t.Fatalf("compile callback invoked %d times, want 1", calls)
	}
}

func TestRegisterNamedDuplicateFails(t *testing.T) {
	r := New()
	if _, err := r.RegisterNamed("Foo", Object{Name: "Foo"}, Meta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RegisterNamed("Foo", Object{Name: "Foo"}, Meta{}); err == nil {
		t.Fatal("expected error registering duplicate name")
	}
}

func TestFindFiltersByNameArityAccess(t *testing.T) {
	r := New()
	i32 := r.Primitive("i32")
	sig := r.InternFunctionType(Function{Return: i32, Args: []TypeID{i32}})
	if _, err := r.RegisterFunction(FuncEntry{Name: "f", Qualified: "mod.f", Sig: sig, Access: AccessPrivate}); err != nil {
		t.Fatal(err)
	}

	found := r.Find(FindFilter{Name: "f", ArgTypes: []TypeID{i32}, Strict: true})
	if len(found) != 1 {
		t.Fatalf("got %d matches, want 1", len(found))
	}

	excluded := r.Find(FindFilter{Name: "f", ArgTypes: []TypeID{i32}, Strict: true, ExcludePrivate: true})
	if len(excluded) != 0 {
		t.Fatalf("got %d matches after excluding private, want 0", len(excluded))
	}
}
