package module

import (
	"bytes"
	"testing"

	"scriptc/pkg/bytecode"
	"scriptc/pkg/types"
)

func newTestRegistry(t *testing.T) *types.Registry {
	t.Helper()
	reg := types.New()
	i32 := reg.Primitive("i32")
	f32 := reg.Primitive("f32")
	pointID, err := reg.RegisterNamed("Point", types.Object{
		Name: "Point",
		Properties: []types.Property{
			{Name: "x", Type: i32, Offset: 0},
			{Name: "y", Type: i32, Offset: 4},
		},
	}, types.Meta{Size: 8, Align: 4})
	if err != nil {
		t.Fatalf("RegisterNamed: %v", err)
	}
	sig := reg.InternFunctionType(types.Function{This: pointID, Return: f32, Args: []types.TypeID{reg.PointerTo(pointID)}})
	if _, err := reg.RegisterFunction(types.FuncEntry{Name: "mag", Qualified: "Point::mag", Sig: sig, Class: pointID}); err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	return reg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	m := FromRegistry(reg, "geometry", "geometry.scm", false, nil)

	first, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip not idempotent:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("magic: nope\nversion: 1\nname: x\n"))
	if err == nil {
		t.Fatalf("expected an error for bad magic")
	}
}

func TestDecodeRejectsFutureVersion(t *testing.T) {
	reg := newTestRegistry(t)
	m := FromRegistry(reg, "geometry", "", false, nil)
	m.Version = Version + 1
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(data); err == nil {
		t.Fatalf("expected an error for a future version")
	}
}

func TestEncodeDecodePreservesCode(t *testing.T) {
	reg := newTestRegistry(t)
	m := FromRegistry(reg, "geometry", "geometry.scm", false, nil)
	m.AttachCode([]bytecode.Instr{
		{Op: bytecode.OpAddI, Rd: bytecode.RA0, Rs1: bytecode.RA0, Imm: 4},
		{Op: bytecode.OpJmpR, Rs1: bytecode.RRA},
	})

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Code) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(decoded.Code))
	}
	if decoded.Code[0].Op != bytecode.OpAddI || decoded.Code[0].Imm != 4 {
		t.Fatalf("instruction 0 not preserved: %+v", decoded.Code[0])
	}
}

func TestLoadIntoReconstitutesTypesAndFunctions(t *testing.T) {
	src := newTestRegistry(t)
	m := FromRegistry(src, "geometry", "", false, nil)

	dst := types.New()
	if err := LoadInto(dst, m); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	pointID, ok := dst.ByQualifiedName("Point")
	if !ok {
		t.Fatalf("Point not loaded")
	}
	entry, ok := dst.Lookup(pointID)
	if !ok {
		t.Fatalf("Point lookup failed")
	}
	obj, ok := entry.Type.(types.Object)
	if !ok || len(obj.Properties) != 2 {
		t.Fatalf("Point properties not reconstituted: %+v", entry.Type)
	}
	found := dst.Find(types.FindFilter{Name: "mag", SkipImplicitArgs: true, ArgTypes: nil})
	if len(found) != 1 {
		t.Fatalf("expected 1 candidate for mag, got %d", len(found))
	}
}
