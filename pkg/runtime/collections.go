package runtime

import (
	"fmt"

	"scriptc/pkg/types"
)

// String and Array<T> are the two template instantiations spec.md §4.7
// calls out by name: "interned template instantiations available via
// the Type Registry under fixed names; compiled the same as any user
// type with special-case recognition for string literals... and array
// literals". Their runtime representation is a small fixed header
// (pointer, length[, capacity]) pointing at heap-allocated payload,
// grounded on the teacher's csharpminor string-literal-as-read-only-
// global pattern (cshmgen/program.go) generalized from static globals
// to heap-backed, ref-counted objects since strings/arrays in this
// language are constructed and destroyed at runtime, not just emitted
// once as module data.

// String header layout: Data (pointer to the heap-allocated byte
// payload), Length (byte count, not including a terminator — scripts
// never see one).
const (
	StringDataOff   = 0
	StringLengthOff = 8
	StringHeaderSize = 16
)

// Array<T> header layout: Data (pointer to the heap-allocated element
// payload), Count (live elements), Capacity (allocated element slots).
const (
	ArrayDataOff     = 0
	ArrayCountOff    = 8
	ArrayCapacityOff = 16
	ArrayHeaderSize  = 24
)

// RegisterStringType interns the String object type: two fields, Data
// (u8 pointer) and Length (i64), non-trivially-destructible since its
// payload is a heap reference.
func RegisterStringType(reg *types.Registry) (types.TypeID, error) {
	u8 := reg.Primitive("u8")
	i64 := reg.Primitive("i64")
	ptrU8 := reg.PointerTo(u8)
	props := []types.Property{
		{Name: "data", Type: ptrU8, Offset: StringDataOff, Access: types.AccessPrivate},
		{Name: "length", Type: i64, Offset: StringLengthOff, Access: types.AccessPublic},
	}
	meta := types.Meta{
		Size:  StringHeaderSize,
		Align: 8,
		IsPOD: false,
	}
	return reg.RegisterNamed("String", types.Object{Name: "String", Properties: props}, meta)
}

// NewStringFromData allocates String backing storage on h, copies len
// bytes from a module-data or stack source the caller has already read
// into data, and returns the heap address of the payload (the caller
// writes this into the String object's Data field at construction
// time, per spec.md §4.7's "allocate module data, then call the String
// constructor with pointer+length").
func NewStringFromData(h *Heap, data []byte) int64 {
	addr := h.Alloc(len(data))
	h.Write(addr, data)
	return addr
}

// ReleaseString drops the heap-allocated payload backing a String once
// its own ref-count (tracked by the owning Object's lifetime, not by
// Heap directly — String payload is not itself ref-counted; it is
// exclusively owned by one String object) is no longer needed.
func ReleaseString(h *Heap, dataAddr int64) {
	if dataAddr != 0 {
		h.Release(dataAddr)
	}
}

// RegisterArrayType interns Array<elem> via the Registry's template
// specialization cache, so repeated requests for the same element type
// return the same TypeID (spec.md §4.1/§8 "specialize is idempotent").
func RegisterArrayType(reg *types.Registry, elem types.TypeID) (types.TypeID, error) {
	elemEntry, ok := reg.Lookup(elem)
	if !ok {
		return 0, fmt.Errorf("runtime: unknown element type %d for Array<T>", elem)
	}
	return reg.Specialize(0, []types.TypeID{elem}, func() (types.Type, types.Meta, string, error) {
		name := types.MangledName("Array", []string{elemEntry.Type.String()})
		meta := types.Meta{Size: ArrayHeaderSize, Align: 8, IsPOD: false}
		return types.Array{Elem: elem}, meta, name, nil
	})
}

// NewArrayStorage allocates count*elemSize bytes of element payload on
// h for an Array<T>(count) constructor call (spec.md §4.7 "call
// Array<T>(count) constructor then initialize elements").
func NewArrayStorage(h *Heap, count int, elemSize int) int64 {
	if count == 0 {
		return 0
	}
	return h.Alloc(count * elemSize)
}

// ElementAddr returns the address of element i within an Array<T>'s
// payload, given the payload's base address and element size.
func ElementAddr(base int64, i int, elemSize int) int64 {
	return base + int64(i*elemSize)
}
