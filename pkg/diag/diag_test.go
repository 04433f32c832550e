package diag

import (
	"testing"

	"scriptc/pkg/source"
)

func TestPoisonSuppressesCascade(t *testing.T) {
	l := NewLogger()
	loc := source.Location{Line: 1, Col: 1}

	l.Errorf(CodeIdentNotFound, loc, "x", "identifier %q not found", "x")
	l.Errorf(CodeTypeNotConvertible, loc, "x", "cannot convert poisoned value")

	if len(l.Entries()) != 1 {
		t.Fatalf("got %d diagnostics, want 1 (second should be suppressed by poison)", len(l.Entries()))
	}
	if !l.HasErrors() {
		t.Fatal("expected HasErrors to be true")
	}
}

func TestDistinctKeysNotSuppressed(t *testing.T) {
	l := NewLogger()
	loc := source.Location{}
	l.Errorf(CodeIdentNotFound, loc, "x", "not found")
	l.Errorf(CodeIdentNotFound, loc, "y", "not found")
	if len(l.Entries()) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(l.Entries()))
	}
}

func TestNoErrorsOnWarningsOnly(t *testing.T) {
	l := NewLogger()
	l.Report(Warning, CodeNotYetImplemented, source.Location{}, "", "switch is reserved")
	if l.HasErrors() {
		t.Fatal("warnings alone should not count as errors")
	}
}
