package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrinterLabelsFunctionEntries(t *testing.T) {
	code := []Instr{
		{Op: OpAddI, Rd: RA0, Rs1: RA0, Imm: 1},
		{Op: OpJmpR, Rs1: RRA},
	}
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProgram(code, []FuncEntry{{Name: "inc", Entry: 0}})

	out := buf.String()
	if !strings.Contains(out, "inc:\n") {
		t.Fatalf("expected an inc: label, got:\n%s", out)
	}
	if !strings.Contains(out, "addi") || !strings.Contains(out, "jmpr") {
		t.Fatalf("expected addi and jmpr mnemonics, got:\n%s", out)
	}
}

func TestOpStringUnknownFallsBack(t *testing.T) {
	var o Op = -1
	if !strings.HasPrefix(o.String(), "op?") {
		t.Fatalf("expected fallback format for unknown opcode, got %q", o.String())
	}
}
