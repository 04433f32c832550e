// Package module implements the persisted module binary of spec.md
// §6.5: header, type table, function table, data table, and import
// list, serialized with gopkg.in/yaml.v3 rather than a hand-rolled
// binary reader/writer — the teacher's pkg/parser tests already lean on
// yaml.v3 for structured fixtures (parser_test.go's ASTSpec), and a
// text encoding makes the round-trip property of spec.md §8 ("serialize
// -> deserialize -> serialize yields byte-identical output") trivial to
// hand-verify by inspection rather than by diffing binary blobs.
package module

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"scriptc/pkg/bytecode"
	"scriptc/pkg/types"
)

// Magic identifies the file format; Version allows the layout to evolve
// without breaking older modules outright (a Decode of a newer Version
// than this package knows about fails loudly rather than misreading).
const (
	Magic   = "scmod"
	Version = 1
)

// PropertyRecord mirrors types.Property for one Object member.
type PropertyRecord struct {
	Name   string `yaml:"name"`
	Type   int    `yaml:"type"`
	Offset int    `yaml:"offset"`
	Access string `yaml:"access,omitempty"`
}

// TypeRecord is one row of the type table (spec.md §6.5: "id, name,
// meta, property list with offsets").
type TypeRecord struct {
	ID         int              `yaml:"id"`
	Kind       string           `yaml:"kind"` // "object", "alias", "primitive", "pointer", "function", "template"
	Name       string           `yaml:"name,omitempty"`
	Size       int              `yaml:"size"`
	Align      int              `yaml:"align"`
	Of         int              `yaml:"of,omitempty"`   // Alias.Of / Pointer.Elem
	Properties []PropertyRecord `yaml:"properties,omitempty"`
	This       int              `yaml:"this,omitempty"` // Function.This
	Return     int              `yaml:"return,omitempty"`
	Args       []int            `yaml:"args,omitempty"`
}

// FuncRecord is one row of the function table (spec.md §6.5: "id,
// signature-type-id, name, entry address, access, source span").
type FuncRecord struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"`
	Qualified string `yaml:"qualified"`
	Sig       int    `yaml:"sig"`
	Entry     int    `yaml:"entry"`
	Access    string `yaml:"access,omitempty"`
	Class     int    `yaml:"class,omitempty"`
	Native    bool   `yaml:"native,omitempty"`
}

// DataRecord is one row of the module data table (spec.md §6.5: "name,
// type-id, access, initial-bytes").
type DataRecord struct {
	Name   string `yaml:"name"`
	Type   int    `yaml:"type"`
	Access string `yaml:"access,omitempty"`
	Bytes  []byte `yaml:"bytes,omitempty"`
}

// Module is the full persisted unit spec.md §6.5 describes. AST is kept
// as an opaque YAML node rather than a pkg/ast type: pkg/module must not
// import pkg/ast any more than pkg/types does (spec.md §9's cyclic-
// reference design note applies here too), so inline template bodies
// round-trip as an untyped node the host reattaches meaning to.
type Module struct {
	Magic   string           `yaml:"magic"`
	Version int              `yaml:"version"`
	Name    string           `yaml:"name"`
	Path    string           `yaml:"path,omitempty"`
	Trusted bool             `yaml:"trusted,omitempty"`
	Types   []TypeRecord     `yaml:"types,omitempty"`
	Funcs   []FuncRecord     `yaml:"functions,omitempty"`
	Data    []DataRecord     `yaml:"data,omitempty"`
	Imports []string         `yaml:"imports,omitempty"`
	AST     *yaml.Node       `yaml:"ast,omitempty"`
	// Code is the linked bytecode stream a Context.Compile produced
	// (pkg/emit.Function.Code, concatenated). It is a direct dump of
	// bytecode.Instr, the same flat struct pkg/vm executes, kept here
	// so a scriptc CLI can persist a compiled module and run it again
	// without recompiling from source (spec.md §6.5's module format
	// plus the runnable artifact the Host Embedding API actually needs
	// for a round trip through a file).
	Code []bytecode.Instr `yaml:"code,omitempty"`
}

func accessName(a types.PropertyAccess) string {
	switch a {
	case types.AccessPrivate:
		return "private"
	case types.AccessTrusted:
		return "trusted"
	default:
		return "public"
	}
}

func accessFromName(s string) types.PropertyAccess {
	switch s {
	case "private":
		return types.AccessPrivate
	case "trusted":
		return types.AccessTrusted
	default:
		return types.AccessPublic
	}
}

// FromRegistry snapshots every type and function reg knows about into a
// Module ready to Encode. Only TypeIDs/FunctionIDs actually interned are
// walked; primitives are included so a Decode-then-LoadInto round trip
// doesn't depend on the loader re-running Registry.New's implicit
// primitive interning in the same order.
func FromRegistry(reg *types.Registry, name, path string, trusted bool, imports []string) *Module {
	m := &Module{
		Magic:   Magic,
		Version: Version,
		Name:    name,
		Path:    path,
		Trusted: trusted,
		Imports: imports,
	}
	for id := types.TypeID(1); ; id++ {
		entry, ok := reg.Lookup(id)
		if !ok {
			break
		}
		rec := TypeRecord{ID: int(id), Size: entry.Meta.Size, Align: entry.Meta.Align}
		switch t := entry.Type.(type) {
		case types.Object:
			rec.Kind = "object"
			rec.Name = t.Name
			for _, p := range t.Properties {
				rec.Properties = append(rec.Properties, PropertyRecord{
					Name: p.Name, Type: int(p.Type), Offset: p.Offset, Access: accessName(p.Access),
				})
			}
		case types.Alias:
			rec.Kind = "alias"
			rec.Name = t.Name
			rec.Of = int(t.Of)
		case types.Pointer:
			rec.Kind = "pointer"
			rec.Of = int(t.Elem)
		case types.Function:
			rec.Kind = "function"
			rec.This = int(t.This)
			rec.Return = int(t.Return)
			for _, a := range t.Args {
				rec.Args = append(rec.Args, int(a))
			}
		case types.Primitive:
			rec.Kind = "primitive"
			if pname, ok := reg.NameOf(id); ok {
				rec.Name = pname
			}
		default:
			rec.Kind = "template"
		}
		m.Types = append(m.Types, rec)
	}
	for id := types.FunctionID(1); ; id++ {
		fn, ok := reg.Function(id)
		if !ok {
			break
		}
		m.Funcs = append(m.Funcs, FuncRecord{
			ID: int(fn.ID), Name: fn.Name, Qualified: fn.Qualified, Sig: int(fn.Sig),
			Entry: fn.Entry, Access: accessName(fn.Access), Class: int(fn.Class), Native: fn.Native,
		})
	}
	return m
}

// AttachCode records the linked bytecode stream produced by compiling
// the source this Module was snapshotted from, so the persisted file
// is runnable on its own rather than symbol tables only.
func (m *Module) AttachCode(code []bytecode.Instr) {
	m.Code = code
}

// Encode marshals m to its persisted form.
func Encode(m *Module) ([]byte, error) {
	return yaml.Marshal(m)
}

// Decode unmarshals a persisted module, rejecting a bad magic or a
// Version this package doesn't understand rather than silently
// misreading a future format.
func Decode(data []byte) (*Module, error) {
	var m Module
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("module: decode: %w", err)
	}
	if m.Magic != Magic {
		return nil, fmt.Errorf("module: bad magic %q, want %q", m.Magic, Magic)
	}
	if m.Version > Version {
		return nil, fmt.Errorf("module: unsupported version %d (this build knows up to %d)", m.Version, Version)
	}
	return &m, nil
}

// LoadInto reconstitutes m's type and function tables into reg, for the
// host embedding API's "load script modules from source" path (spec.md
// §6.1) when the source was actually a precompiled module rather than
// raw text. m.Types is walked in a single pass, in ascending original-id
// order: the Registry never assigns a type id before every type it
// structurally refers to already has one, so by the time a row is
// reached, every id it names (a property's type, an alias's target, a
// function's args) has already been remapped.
//
// A named type or function already present in reg under the same name
// is reused rather than rejected as a duplicate: a host Context always
// seeds its registry with the built-in String type before a module is
// ever loaded (see hostapi.New), so loading a module that also defines
// that same built-in must be idempotent, not an error.
func LoadInto(reg *types.Registry, m *Module) error {
	idRemap := make(map[int]types.TypeID, len(m.Types))
	remap := func(old int) types.TypeID {
		if id, ok := idRemap[old]; ok {
			return id
		}
		return types.TypeID(old)
	}

	for _, t := range m.Types {
		switch t.Kind {
		case "primitive":
			idRemap[t.ID] = reg.Primitive(t.Name)
		case "object":
			if existing, ok := reg.ByQualifiedName(t.Name); ok {
				idRemap[t.ID] = existing
				continue
			}
			var props []types.Property
			for _, p := range t.Properties {
				props = append(props, types.Property{
					Name: p.Name, Type: remap(p.Type), Offset: p.Offset, Access: accessFromName(p.Access),
				})
			}
			meta := types.Meta{Size: t.Size, Align: t.Align}
			id, err := reg.RegisterNamed(t.Name, types.Object{Name: t.Name, Properties: props}, meta)
			if err != nil {
				return fmt.Errorf("module: load type %q: %w", t.Name, err)
			}
			idRemap[t.ID] = id
		case "alias":
			if existing, ok := reg.ByQualifiedName(t.Name); ok {
				idRemap[t.ID] = existing
				continue
			}
			meta := types.Meta{Size: t.Size, Align: t.Align, IsAlias: true}
			id, err := reg.RegisterNamed(t.Name, types.Alias{Name: t.Name, Of: remap(t.Of)}, meta)
			if err != nil {
				return fmt.Errorf("module: load type %q: %w", t.Name, err)
			}
			idRemap[t.ID] = id
		case "pointer":
			idRemap[t.ID] = reg.PointerTo(remap(t.Of))
		case "function":
			var args []types.TypeID
			for _, a := range t.Args {
				args = append(args, remap(a))
			}
			idRemap[t.ID] = reg.InternFunctionType(types.Function{This: remap(t.This), Return: remap(t.Return), Args: args})
		}
	}
	for _, fn := range m.Funcs {
		if _, ok := reg.FunctionByQualified(fn.Qualified); ok {
			continue
		}
		_, err := reg.RegisterFunction(types.FuncEntry{
			Name: fn.Name, Qualified: fn.Qualified, Sig: remap(fn.Sig),
			Access: accessFromName(fn.Access), Class: remap(fn.Class), Entry: fn.Entry, Native: fn.Native,
		})
		if err != nil {
			return fmt.Errorf("module: load function %q: %w", fn.Qualified, err)
		}
	}
	return nil
}
