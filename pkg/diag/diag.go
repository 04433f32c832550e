// Package diag implements the diagnostics logger and poison-type error
// strategy of spec.md §4.3.7/§7. Grounded on the teacher's
// parser.Errors() pattern (cmd/ralph-cc/main.go's parseFile: "if
// len(p.Errors()) > 0 { for _, e := range p.Errors() { ... } }") —
// compilation accumulates diagnostics in a slice rather than aborting
// on the first error, and the caller decides what to do with them.
package diag

import (
	"fmt"

	"scriptc/pkg/source"
)

// Severity classifies a diagnostic.
type Severity int

const (
	Informational Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Code is a stable numeric diagnostic code, namespaced by the
// `pm_*` (parse) / `cm_*` (compile) taxonomy of spec.md §7.
type Code string

const (
	// Compile errors.
	CodeIdentNotFound          Code = "cm_ident_not_found"
	CodeTypeNotConvertible     Code = "cm_type_not_convertible"
	CodeNoMatchingFunction     Code = "cm_no_matching_function"
	CodeNoMatchingConstructor  Code = "cm_no_matching_constructor"
	CodeAmbiguousFunction      Code = "cm_ambiguous_function"
	CodeAmbiguousConstructor   Code = "cm_ambiguous_constructor"
	CodePrivateAccess          Code = "cm_private_access"
	CodeTrustedOnlyAccess      Code = "cm_trusted_only_access"
	CodeReturnValueMismatch    Code = "cm_return_value_mismatch"
	CodePropertyAlreadyDefined Code = "cm_property_already_defined"
	CodeAccessorShapeMismatch  Code = "cm_accessor_shape_mismatch"
	CodeBreakOutsideLoop       Code = "cm_break_outside_loop"
	CodeContinueOutsideLoop    Code = "cm_continue_outside_loop"
	CodeThisOutsideClass       Code = "cm_this_outside_class"
	CodeSignatureIndeterminate Code = "cm_signature_indeterminate"
	CodeInternalInvariant      Code = "cm_internal_invariant"
	CodeNotTrusted             Code = "cm_not_trusted"
	CodeNotYetImplemented      Code = "cm_not_yet_implemented"
	CodeDuplicateName          Code = "cm_duplicate_name"

	// Parse errors (surfaced here too, since pkg/diag is the one
	// accumulation point shared with the external parser per spec.md §1).
	CodeExpectedToken   Code = "pm_expected_token"
	CodeUnexpectedToken Code = "pm_unexpected_token"
	CodeMalformed       Code = "pm_malformed"
)

// Info is a follow-up message attached to a Diagnostic (spec.md §7:
// "optional follow-up info messages (e.g. 'could be: <candidate>')").
type Info struct {
	Message string
}

// Diagnostic is one logged entry.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Loc      source.Location
	Infos    []Info
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: %s [%s] %s", d.Loc, d.Severity, d.Code, d.Message)
	for _, info := range d.Infos {
		s += fmt.Sprintf("\n  info: %s", info.Message)
	}
	return s
}

// poisonSet holds the names/types/values that have already participated
// in an error, so later diagnostics about them are suppressed. Keys are
// whatever stable identity the caller wants to poison — a type name, a
// register key, an AST node pointer formatted as a string.
type poisonSet map[string]bool

// Logger accumulates diagnostics without aborting compilation, and
// tracks the poison set used to deduplicate cascaded errors (spec.md
// §4.3.7).
type Logger struct {
	entries []Diagnostic
	poison  poisonSet
}

// NewLogger creates an empty Logger.
func NewLogger() *Logger {
	return &Logger{poison: make(poisonSet)}
}

// Report appends a diagnostic unless poisonKey (if non-empty) was
// already poisoned by an earlier Error-severity diagnostic — suppressing
// cascaded errors about the same already-broken construct. Reporting an
// Error poisons poisonKey for subsequent calls.
func (l *Logger) Report(sev Severity, code Code, loc source.Location, poisonKey, message string, infos ...Info) {
	if poisonKey != "" && l.poison[poisonKey] {
		return
	}
	l.entries = append(l.entries, Diagnostic{Severity: sev, Code: code, Message: message, Loc: loc, Infos: infos})
	if sev == Error && poisonKey != "" {
		l.poison[poisonKey] = true
	}
}

// Errorf is shorthand for Report(Error, ...) with fmt.Sprintf-style
// formatting — matching spec.md §9's "typed-argument formatting API,
// no unbounded printf-style risk" intent by keeping the format string a
// compile-time constant at every call site (never built from user data).
func (l *Logger) Errorf(code Code, loc source.Location, poisonKey, format string, args ...interface{}) {
	l.Report(Error, code, loc, poisonKey, fmt.Sprintf(format, args...))
}

// IsPoisoned reports whether key has already been marked poisoned.
func (l *Logger) IsPoisoned(key string) bool { return l.poison[key] }

// Poison marks key as poisoned without emitting a diagnostic (used when
// a poisoned placeholder type/value is synthesized to let compilation
// continue past an already-reported error).
func (l *Logger) Poison(key string) { l.poison[key] = true }

// Entries returns every diagnostic reported so far, in report order.
func (l *Logger) Entries() []Diagnostic { return l.entries }

// HasErrors reports whether any Error-severity diagnostic was reported.
// Per spec.md §7: "a compilation with any error-severity entry yields no
// emitted module."
func (l *Logger) HasErrors() bool {
	for _, e := range l.entries {
		if e.Severity == Error {
			return true
		}
	}
	return false
}
