package render

import (
	"sort"
	"strings"

	"github.com/mark3labs/swagger2react/internal/spec"
)

// SymbolFunc maps a model identifier to the TypeScript symbol it is exported
// under.
type SymbolFunc func(model string) string

// TSType renders t as a TypeScript type expression.
func TSType(t spec.TypeRef, symbol SymbolFunc) string {
	switch t.Kind {
	case spec.KindPrimitive:
		if len(t.Enum) > 0 {
			parts := make([]string, 0, len(t.Enum))
			for _, v := range t.Enum {
				if t.Name == spec.PrimString {
					parts = append(parts, quote(v))
				} else {
					parts = append(parts, v)
				}
			}
			return strings.Join(parts, " | ")
		}
		switch t.Name {
		case spec.PrimInteger, spec.PrimNumber:
			return "number"
		case spec.PrimString:
			if t.Format == "binary" {
				return "Blob"
			}
			return "string"
		case spec.PrimBoolean:
			return "boolean"
		default:
			return "unknown"
		}
	case spec.KindArray:
		if t.Elem == nil {
			return "unknown[]"
		}
		inner := TSType(*t.Elem, symbol)
		if strings.Contains(inner, " | ") || strings.Contains(inner, " & ") {
			inner = "(" + inner + ")"
		}
		return inner + "[]"
	case spec.KindRef:
		if symbol == nil {
			return t.Name
		}
		return symbol(t.Name)
	case spec.KindUnion:
		parts := make([]string, 0, len(t.Members))
		for _, m := range t.Members {
			parts = append(parts, TSType(m, symbol))
		}
		if len(parts) == 0 {
			return "unknown"
		}
		return strings.Join(parts, " | ")
	case spec.KindObject:
		if t.Elem == nil {
			return "Record<string, unknown>"
		}
		return "Record<string, " + TSType(*t.Elem, symbol) + ">"
	default:
		return "unknown"
	}
}

// UnionType renders a union model as a discriminated union. Model members
// are intersected with their discriminator literal; primitive and array
// members, which cannot carry the discriminator themselves, are wrapped as
// { <discriminator>: '<type>'; value: <type> }.
func UnionType(u *spec.UnionDescriptor, symbol SymbolFunc) string {
	if u == nil || len(u.Members) == 0 {
		return "unknown"
	}
	disc := u.Discriminator
	if disc == "" {
		disc = "kind"
	}
	tags := make(map[string][]string)
	for value, model := range u.Mapping {
		tags[model] = append(tags[model], value)
	}
	parts := make([]string, 0, len(u.Members))
	for _, m := range u.Members {
		if m.Kind == spec.KindRef {
			name := TSType(m, symbol)
			values := tags[m.Name]
			if len(values) == 0 {
				parts = append(parts, name)
				continue
			}
			sort.Strings(values)
			lits := make([]string, len(values))
			for i, v := range values {
				lits[i] = quote(v)
			}
			parts = append(parts, "({ "+PropertyName(disc)+": "+strings.Join(lits, " | ")+" } & "+name+")")
			continue
		}
		inner := TSType(m, symbol)
		parts = append(parts, "{ "+PropertyName(disc)+": "+quote(m.String())+"; value: "+inner+" }")
	}
	return strings.Join(parts, " | ")
}

// PropertyName quotes name unless it is a plain identifier.
func PropertyName(name string) string {
	if isIdentifier(name) {
		return name
	}
	return quote(name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
