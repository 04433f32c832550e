package runtime

// Capture data layout (spec.md §3 "Capture data" / §4.7
// newCaptureData): ref-count, owning function id, self pointer (0 if
// the closure isn't a bound method), parent capture (0 if the
// enclosing function captured nothing), then the packed payload of
// captured variables at offsets the Semantic Compiler computed at
// compile time.
const (
	captureRefCountOff = 0
	captureTargetOff   = 8
	captureSelfOff     = 16
	captureParentOff   = 24
	// CapturePayloadOffset is where a captured variable's own
	// compile-time-computed offset begins counting from.
	CapturePayloadOffset = 32
)

// NewCaptureData allocates a ref_count=1 capture-data block sized to
// hold CapturePayloadOffset+payloadSize bytes, recording target and
// parent, and retaining parent (capture data outlives the frame that
// created it, so it must hold its own reference).
func NewCaptureData(h *Heap, target int64, parent int64, payloadSize int) int64 {
	addr := h.Alloc(CapturePayloadOffset + payloadSize)
	putI64(h, addr+captureRefCountOff, 1)
	putI64(h, addr+captureTargetOff, target)
	putI64(h, addr+captureSelfOff, 0)
	putI64(h, addr+captureParentOff, parent)
	if parent != 0 {
		RetainCapture(h, parent)
	}
	return addr
}

// SetSelf records the bound-method `this` pointer on capture data
// created for a method closure.
func SetSelf(h *Heap, capture int64, self int64) {
	putI64(h, capture+captureSelfOff, self)
}

// TargetFunction returns the function_id the closure over capture
// dispatches to.
func TargetFunction(h *Heap, capture int64) int64 { return getI64(h, capture+captureTargetOff) }

// Self returns the bound `this` pointer, or 0 if capture is a free
// function's closure.
func Self(h *Heap, capture int64) int64 { return getI64(h, capture+captureSelfOff) }

// Parent returns the enclosing function's capture data, or 0 at the
// outermost nesting level.
func Parent(h *Heap, capture int64) int64 { return getI64(h, capture+captureParentOff) }

// RetainCapture increments capture's script-visible ref-count.
func RetainCapture(h *Heap, capture int64) {
	putI64(h, capture+captureRefCountOff, getI64(h, capture+captureRefCountOff)+1)
}

// ReleaseCapture decrements capture's ref-count; on the last drop it
// releases the parent chain and frees the block (spec.md §3 "Closure":
// "last drop decrements the capture-data ref-count").
func ReleaseCapture(h *Heap, capture int64) {
	n := getI64(h, capture+captureRefCountOff) - 1
	putI64(h, capture+captureRefCountOff, n)
	if n > 0 {
		return
	}
	if parent := Parent(h, capture); parent != 0 {
		ReleaseCapture(h, parent)
	}
	h.Release(capture)
}

func putI64(h *Heap, addr int64, v int64) {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	h.Write(addr, b)
}

func getI64(h *Heap, addr int64) int64 {
	b := h.Read(addr, 8)
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return int64(v)
}
