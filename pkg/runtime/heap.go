// Package runtime implements the Runtime Services spec.md §4.7
// requires alongside the compiled bytecode: capture-data lifecycle for
// closures, the interned String and Array<T> template instantiations,
// and the default-constructor generator for non-trivially-constructible
// user types.
//
// Module data slots (spec.md §3 "Module") are static, compile-time-sized
// storage the teacher's csharpminor.VarDecl models; capture data and
// String/Array backing storage are not — they are allocated at runtime,
// live across calls, and are reference-counted. Heap gives them a home:
// a byte arena with a refcounted-block header in front of every
// allocation, addressed the same way module data and stack slots are
// (a plain byte offset a VM load/store can dereference).
package runtime

import "fmt"

// blockHeader precedes every Heap allocation. RefCount reaching zero
// frees the block back onto the free list.
type blockHeader struct {
	RefCount int32
	Size     int32
}

const headerSize = 8

// Heap is a reference-counted byte arena, separate from a VM's call
// stack, that backs capture data and String/Array storage. Heap
// addresses are absolute offsets into Bytes and are disjoint from stack
// addresses; a host embedder maps them into a distinct region of the
// address space a NativeFunc can tell apart from a stack address (spec.md
// §5 "module data slots are heap-allocated... pointed to directly by VM
// instructions").
type Heap struct {
	Bytes []byte
	free  []freeRange
}

type freeRange struct {
	offset int
	size   int
}

// NewHeap creates an empty heap that grows its backing slice on demand.
func NewHeap() *Heap {
	return &Heap{Bytes: make([]byte, 0, 4096)}
}

// Alloc reserves size payload bytes plus a refcount header, initialized
// to RefCount=1, and returns the address of the payload (not the
// header). First-fit over the free list, matching the StackManager
// packing spec.md §5 specifies for stack slots.
func (h *Heap) Alloc(size int) int64 {
	total := headerSize + size
	for i, fr := range h.free {
		if fr.size >= total {
			h.free[i].offset += total
			h.free[i].size -= total
			if h.free[i].size == 0 {
				h.free = append(h.free[:i], h.free[i+1:]...)
			}
			h.putHeader(fr.offset, blockHeader{RefCount: 1, Size: int32(size)})
			return int64(fr.offset + headerSize)
		}
	}
	offset := len(h.Bytes)
	h.Bytes = append(h.Bytes, make([]byte, total)...)
	h.putHeader(offset, blockHeader{RefCount: 1, Size: int32(size)})
	return int64(offset + headerSize)
}

// Retain increments the refcount of the block at addr.
func (h *Heap) Retain(addr int64) {
	hdr := h.header(addr)
	hdr.RefCount++
	h.putHeader(h.headerOffset(addr), hdr)
}

// Release decrements the refcount of the block at addr and frees it
// when it reaches zero, returning true if this call freed it.
func (h *Heap) Release(addr int64) bool {
	off := h.headerOffset(addr)
	hdr := h.header(addr)
	hdr.RefCount--
	if hdr.RefCount > 0 {
		h.putHeader(off, hdr)
		return false
	}
	h.free = append(h.free, freeRange{offset: off, size: headerSize + int(hdr.Size)})
	return true
}

// Size returns the payload size of the block at addr.
func (h *Heap) Size(addr int64) int { return int(h.header(addr).Size) }

// Read returns a view of n bytes of payload starting at addr.
func (h *Heap) Read(addr int64, n int) []byte {
	a := int(addr)
	if a < 0 || a+n > len(h.Bytes) {
		panic(fmt.Sprintf("runtime: heap read out of range at %d+%d", addr, n))
	}
	return h.Bytes[a : a+n]
}

// Write copies data into the heap's payload region starting at addr.
func (h *Heap) Write(addr int64, data []byte) {
	a := int(addr)
	if a < 0 || a+len(data) > len(h.Bytes) {
		panic(fmt.Sprintf("runtime: heap write out of range at %d+%d", addr, len(data)))
	}
	copy(h.Bytes[a:], data)
}

func (h *Heap) headerOffset(addr int64) int { return int(addr) - headerSize }

func (h *Heap) header(addr int64) blockHeader {
	off := h.headerOffset(addr)
	return blockHeader{
		RefCount: int32(le32(h.Bytes[off : off+4])),
		Size:     int32(le32(h.Bytes[off+4 : off+8])),
	}
}

func (h *Heap) putHeader(offset int, hdr blockHeader) {
	put32(h.Bytes[offset:offset+4], uint32(hdr.RefCount))
	put32(h.Bytes[offset+4:offset+8], uint32(hdr.Size))
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func put32(b []byte, x uint32) {
	b[0], b[1], b[2], b[3] = byte(x), byte(x>>8), byte(x>>16), byte(x>>24)
}
