package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"scriptc/pkg/ast"
	"scriptc/pkg/hostapi"
	"scriptc/pkg/module"
)

func i32Ref() *ast.TypeRef { return &ast.TypeRef{Name: "i32"} }

// addProgram builds the AST a parser would produce for:
//
//	func add(a: i32, b: i32): i32 { return a + b; }
func addProgram() *ast.Program {
	fn := &ast.FuncDecl{
		Name:       "add",
		Params:     []ast.Param{{Name: "a", Type: i32Ref()}, {Name: "b", Type: i32Ref()}},
		ReturnType: i32Ref(),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Expr: &ast.Binary{
				Op:    ast.OpAdd,
				Left:  &ast.Ident{Name: "a"},
				Right: &ast.Ident{Name: "b"},
			}},
		}},
	}
	return &ast.Program{Decls: []ast.Decl{fn}}
}

// writeAddModule compiles addProgram, persists it to a module file under
// t.TempDir, and returns its path.
func writeAddModule(t *testing.T) string {
	t.Helper()
	ctx, err := hostapi.New()
	if err != nil {
		t.Fatalf("hostapi.New: %v", err)
	}
	cm, err := ctx.Compile(addProgram(), "arith")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cm.Diag.HasErrors() {
		t.Fatalf("unexpected diagnostics compiling add()")
	}
	m := ctx.Persist(cm, "arith.scm", false, nil)
	data, err := module.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "arith.scmod")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestDumpFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	dumpCmd, _, err := root.Find([]string{"dump"})
	if err != nil {
		t.Fatalf("Find dump: %v", err)
	}
	for _, name := range []string{"dast", "dir", "dreg", "dasm"} {
		if dumpCmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist on dump", name)
		}
	}
}

func TestDumpDefaultPrintsTables(t *testing.T) {
	resetDumpFlags()
	path := writeAddModule(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("dump: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "module arith") {
		t.Errorf("expected output to contain 'module arith', got %q", output)
	}
	if !strings.Contains(output, "add") {
		t.Errorf("expected output to contain function 'add', got %q", output)
	}
}

func TestDumpDasmPrintsInstructions(t *testing.T) {
	resetDumpFlags()
	path := writeAddModule(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", "--dasm", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("dump --dasm: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "function add:") {
		t.Errorf("expected output to contain 'function add:', got %q", output)
	}
	if !strings.Contains(output, "rd=") {
		t.Errorf("expected disassembled instructions (rd=...), got %q", output)
	}
}

func TestDumpDastNoStoredTree(t *testing.T) {
	resetDumpFlags()
	path := writeAddModule(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", "--dast", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("dump --dast: %v", err)
	}
	if !strings.Contains(out.String(), "no syntax tree stored") {
		t.Errorf("expected 'no syntax tree stored' message, got %q", out.String())
	}
}

func TestDumpDastPrintsStoredTree(t *testing.T) {
	resetDumpFlags()
	m := &module.Module{Magic: module.Magic, Version: module.Version, Name: "withast"}
	var node yaml.Node
	if err := node.Encode(map[string]string{"kind": "func", "name": "add"}); err != nil {
		t.Fatalf("node.Encode: %v", err)
	}
	m.AST = &node
	data, err := module.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "withast.scmod")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", "--dast", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("dump --dast: %v", err)
	}
	if !strings.Contains(out.String(), "kind: func") {
		t.Errorf("expected encoded syntax tree in output, got %q", out.String())
	}
}

func TestDumpDirAndDregNotImplemented(t *testing.T) {
	path := writeAddModule(t)

	for _, flag := range []string{"dir", "dreg"} {
		t.Run(flag, func(t *testing.T) {
			resetDumpFlags()
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs([]string{"dump", "--" + flag, path})
			err := cmd.Execute()
			if !errors.Is(err, ErrNotImplemented) {
				t.Errorf("expected ErrNotImplemented, got %v", err)
			}
			if !strings.Contains(errOut.String(), "not persisted") {
				t.Errorf("expected explanatory warning, got %q", errOut.String())
			}
		})
	}
}

func TestCallInvokesFunction(t *testing.T) {
	resetDumpFlags()
	path := writeAddModule(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"call", path, "add", "3", "4"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("call: %v", err)
	}
	if strings.TrimSpace(out.String()) != "7" {
		t.Errorf("add(3, 4) = %q, want 7", out.String())
	}
}

func TestCallBadArgument(t *testing.T) {
	resetDumpFlags()
	path := writeAddModule(t)

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"call", path, "add", "notanumber", "4"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for non-integer argument")
	}
}

func TestDumpMissingFile(t *testing.T) {
	resetDumpFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"dump", filepath.Join(t.TempDir(), "missing.scmod")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing module file")
	}
}
