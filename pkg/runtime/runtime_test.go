package runtime

import (
	"testing"

	"scriptc/pkg/ir"
	"scriptc/pkg/types"
)

func TestHeapAllocRetainRelease(t *testing.T) {
	h := NewHeap()
	addr := h.Alloc(16)
	h.Write(addr, []byte("0123456789abcdef"))
	if got := string(h.Read(addr, 16)); got != "0123456789abcdef" {
		t.Fatalf("got %q", got)
	}
	h.Retain(addr)
	if freed := h.Release(addr); freed {
		t.Fatal("expected block to survive one of two releases")
	}
	if freed := h.Release(addr); !freed {
		t.Fatal("expected block to free on the matching release")
	}
}

func TestHeapAllocReusesFreedRange(t *testing.T) {
	h := NewHeap()
	a := h.Alloc(32)
	h.Release(a)
	before := len(h.Bytes)
	b := h.Alloc(32)
	if len(h.Bytes) != before {
		t.Fatalf("expected the freed range to be reused without growing, grew from %d to %d", before, len(h.Bytes))
	}
	if b != a {
		t.Fatalf("expected reused address %d, got %d", a, b)
	}
}

func TestCaptureDataRetainReleaseChainsToParent(t *testing.T) {
	h := NewHeap()
	parent := NewCaptureData(h, 1, 0, 0)
	child := NewCaptureData(h, 2, parent, 0)

	if got := TargetFunction(h, child); got != 2 {
		t.Fatalf("target function = %d, want 2", got)
	}
	if got := Parent(h, child); got != parent {
		t.Fatalf("parent = %d, want %d", got, parent)
	}

	if got := getI64(h, parent+captureRefCountOff); got != 2 {
		t.Fatalf("parent ref-count after child's creation = %d, want 2 (1 from creation + 1 held by child)", got)
	}

	RetainCapture(h, child)
	ReleaseCapture(h, child) // still one ref left
	ReleaseCapture(h, child) // last drop: releases parent too and frees child's block

	if got := getI64(h, parent+captureRefCountOff); got != 1 {
		t.Fatalf("parent ref-count after child's last drop = %d, want 1 (back to its own creator's reference)", got)
	}
}

func TestRegisterStringType(t *testing.T) {
	reg := types.New()
	id, err := RegisterStringType(reg)
	if err != nil {
		t.Fatalf("RegisterStringType: %v", err)
	}
	entry, ok := reg.Lookup(id)
	if !ok {
		t.Fatal("expected String type to be registered")
	}
	obj, ok := entry.Type.(types.Object)
	if !ok || obj.Name != "String" {
		t.Fatalf("expected Object named String, got %#v", entry.Type)
	}
	if len(obj.Properties) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(obj.Properties))
	}
}

func TestRegisterArrayTypeIsIdempotent(t *testing.T) {
	reg := types.New()
	i32 := reg.Primitive("i32")
	a, err := RegisterArrayType(reg, i32)
	if err != nil {
		t.Fatalf("RegisterArrayType: %v", err)
	}
	b, err := RegisterArrayType(reg, i32)
	if err != nil {
		t.Fatalf("RegisterArrayType (second call): %v", err)
	}
	if a != b {
		t.Fatalf("expected idempotent specialization, got %d and %d", a, b)
	}
}

func TestNewArrayStorageZeroCount(t *testing.T) {
	h := NewHeap()
	if addr := NewArrayStorage(h, 0, 4); addr != 0 {
		t.Fatalf("expected a zero-count array to allocate nothing, got addr %d", addr)
	}
	addr := NewArrayStorage(h, 4, 4)
	if ElementAddr(addr, 2, 4) != addr+8 {
		t.Fatalf("element address miscalculated")
	}
}

func TestGenerateDefaultConstructorZeroInitsPrimitivesAndCallsMemberCtors(t *testing.T) {
	reg := types.New()
	i32 := reg.Primitive("i32")

	memberObj := types.Object{Name: "Inner", Properties: []types.Property{
		{Name: "x", Type: i32, Offset: 0},
	}}
	memberID, err := reg.RegisterNamed("Inner", memberObj, types.Meta{Size: 4, Align: 4})
	if err != nil {
		t.Fatalf("RegisterNamed: %v", err)
	}
	memberCtorSig := reg.InternFunctionType(types.Function{This: memberID, Args: []types.TypeID{reg.PointerTo(memberID)}})
	memberCtorID, err := reg.RegisterFunction(types.FuncEntry{Name: "Inner", Qualified: "Inner::Inner", Sig: memberCtorSig, Class: memberID})
	if err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}

	outerObj := types.Object{Name: "Outer", Properties: []types.Property{
		{Name: "n", Type: i32, Offset: 0},
		{Name: "inner", Type: memberID, Offset: 8},
	}}
	outerID, err := reg.RegisterNamed("Outer", outerObj, types.Meta{Size: 16, Align: 8})
	if err != nil {
		t.Fatalf("RegisterNamed: %v", err)
	}

	ctorOf := func(t types.TypeID) (types.FunctionID, types.TypeID, bool) {
		if t == memberID {
			return memberCtorID, memberCtorSig, true
		}
		return 0, 0, false
	}

	f := GenerateDefaultConstructor(reg, "Outer::Outer", outerID, outerObj, ctorOf)

	var sawZeroStore, sawCall bool
	for _, instr := range f.Code().Instructions {
		switch instr.Op {
		case ir.OpStore:
			sawZeroStore = true
		case ir.OpCall:
			sawCall = true
		}
	}
	if !sawZeroStore {
		t.Error("expected a zero-init store for the primitive field")
	}
	if !sawCall {
		t.Error("expected a call to the member's default constructor")
	}
}
