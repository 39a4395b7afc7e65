// Package hosttype maps Go types onto field and method descriptors, so
// method bodies can be assembled against signatures described by Go code.
package hosttype

import (
	"errors"
	"fmt"
	"go/types"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/packages"

	"github.com/chazu/classasm/descriptor"
)

var log = commonlog.GetLogger("classasm.hosttype")

var ErrUnsupportedType = errors.New("unsupported host type")

// FieldType returns the field descriptor for a Go type.
//
// Named types with a basic underlying type map like the basic type; other
// named types become a class named after their package path and name.
func FieldType(t types.Type) (descriptor.FieldType, error) {
	switch t := t.(type) {
	case *types.Basic:
		return basicType(t)
	case *types.Alias:
		return FieldType(types.Unalias(t))
	case *types.Pointer:
		return FieldType(t.Elem())
	case *types.Slice:
		return arrayOf(t.Elem())
	case *types.Array:
		return arrayOf(t.Elem())
	case *types.Map:
		return descriptor.ObjectType("java/util/Map"), nil
	case *types.Interface:
		if t.Empty() {
			return descriptor.ObjectType("java/lang/Object"), nil
		}
	case *types.Named:
		obj := t.Obj()
		if obj.Pkg() == nil {
			if obj.Name() == "error" {
				return descriptor.ObjectType("java/lang/Throwable"), nil
			}
			return descriptor.FieldType{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
		}
		if b, ok := t.Underlying().(*types.Basic); ok {
			return basicType(b)
		}
		return descriptor.ObjectType(ClassName(obj.Pkg().Path(), obj.Name())), nil
	}
	return descriptor.FieldType{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

func arrayOf(elem types.Type) (descriptor.FieldType, error) {
	e, err := FieldType(elem)
	if err != nil {
		return descriptor.FieldType{}, err
	}
	return descriptor.ArrayOf(e), nil
}

func basicType(b *types.Basic) (descriptor.FieldType, error) {
	switch b.Kind() {
	case types.Bool, types.UntypedBool:
		return descriptor.BooleanType, nil
	case types.Int8, types.Uint8:
		return descriptor.ByteType, nil
	case types.Int16:
		return descriptor.ShortType, nil
	case types.Uint16:
		return descriptor.CharType, nil
	case types.Int32, types.Uint32, types.UntypedRune:
		return descriptor.IntType, nil
	case types.Int, types.Int64, types.Uint, types.Uint64, types.Uintptr, types.UntypedInt:
		return descriptor.LongType, nil
	case types.Float32:
		return descriptor.FloatType, nil
	case types.Float64, types.UntypedFloat:
		return descriptor.DoubleType, nil
	case types.String, types.UntypedString:
		return descriptor.ObjectType("java/lang/String"), nil
	}
	return descriptor.FieldType{}, fmt.Errorf("%w: %s", ErrUnsupportedType, b)
}

// ClassName builds an internal class name from a Go import path and type
// name. Dots and dashes, which internal names cannot carry, become
// underscores.
func ClassName(importPath, name string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return r.Replace(importPath) + "/" + name
}

// MethodDescriptor maps a signature onto a method descriptor. The receiver
// is ignored. A trailing error result is dropped; at most one other result
// is allowed.
func MethodDescriptor(sig *types.Signature) (descriptor.Method, error) {
	var m descriptor.Method
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		ft, err := FieldType(params.At(i).Type())
		if err != nil {
			return descriptor.Method{}, fmt.Errorf("parameter %d: %w", i, err)
		}
		m.Params = append(m.Params, ft)
	}

	results := sig.Results()
	n := results.Len()
	if n > 0 && isError(results.At(n-1).Type()) {
		n--
	}
	switch n {
	case 0:
		m.Return = descriptor.VoidType
	case 1:
		ft, err := FieldType(results.At(0).Type())
		if err != nil {
			return descriptor.Method{}, fmt.Errorf("result: %w", err)
		}
		m.Return = ft
	default:
		return descriptor.Method{}, fmt.Errorf("%w: %d results", ErrUnsupportedType, n)
	}
	return m, nil
}

func isError(t types.Type) bool {
	named, ok := t.(*types.Named)
	return ok && named.Obj().Pkg() == nil && named.Obj().Name() == "error"
}

// Signature is an exported function of a loaded package.
type Signature struct {
	Name       string
	Descriptor descriptor.Method
}

// LoadSignatures loads a Go package by import path and returns descriptors
// for its exported functions, in name order. Functions whose types have no
// descriptor mapping are skipped.
func LoadSignatures(importPath string) ([]Signature, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes,
	}

	pkgs, err := packages.Load(cfg, importPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", importPath, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", importPath)
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", importPath)
	}

	var out []Signature
	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		sig := fn.Type().(*types.Signature)
		if sig.TypeParams().Len() > 0 {
			continue
		}
		md, err := MethodDescriptor(sig)
		if err != nil {
			log.Debugf("%s.%s skipped: %v", importPath, name, err)
			continue
		}
		out = append(out, Signature{Name: name, Descriptor: md})
	}
	return out, nil
}
