package spec

import (
	"sort"
	"strings"
)

// Intermediate Model (IM) definitions consumed by the spreadsheet projection
// and the code emitters.

type HTTPMethod string

const (
	GET     HTTPMethod = "GET"
	PUT     HTTPMethod = "PUT"
	POST    HTTPMethod = "POST"
	DELETE  HTTPMethod = "DELETE"
	OPTIONS HTTPMethod = "OPTIONS"
	HEAD    HTTPMethod = "HEAD"
	PATCH   HTTPMethod = "PATCH"
	TRACE   HTTPMethod = "TRACE"
)

// TypeKind is the closed set of TypeRef variants.
type TypeKind int

const (
	KindPrimitive TypeKind = iota
	KindArray
	KindRef
	KindUnion
	KindObject
)

// Primitive names used by KindPrimitive.
const (
	PrimString  = "string"
	PrimNumber  = "number"
	PrimInteger = "integer"
	PrimBoolean = "boolean"
	PrimUnknown = "unknown"
)

// TypeRef describes the type of a property, parameter or alias.
//
//	KindPrimitive: Name is one of the Prim* constants, Format/Enum optional
//	KindArray:     Elem is the element type
//	KindRef:       Name is a ModelDescriptor identifier
//	KindUnion:     Members holds the alternatives
//	KindObject:    free-form map, Elem is the value type when known
type TypeRef struct {
	Kind    TypeKind
	Name    string
	Format  string
	Enum    []string
	Elem    *TypeRef
	Members []TypeRef
}

func Primitive(name string) TypeRef { return TypeRef{Kind: KindPrimitive, Name: name} }
func RefTo(model string) TypeRef    { return TypeRef{Kind: KindRef, Name: model} }
func ArrayOf(elem TypeRef) TypeRef  { return TypeRef{Kind: KindArray, Elem: &elem} }

// String renders the type tag used in spreadsheets: "string", "UserData",
// "UserData[]", "Cat | Dog", "object".
func (t TypeRef) String() string {
	switch t.Kind {
	case KindArray:
		if t.Elem == nil {
			return PrimUnknown + "[]"
		}
		inner := t.Elem.String()
		if t.Elem.Kind == KindUnion {
			inner = "(" + inner + ")"
		}
		return inner + "[]"
	case KindUnion:
		parts := make([]string, 0, len(t.Members))
		for _, m := range t.Members {
			parts = append(parts, m.String())
		}
		return strings.Join(parts, " | ")
	case KindObject:
		return "object"
	default:
		return t.Name
	}
}

// Refs returns every model identifier reachable inside t, in visit order.
func (t TypeRef) Refs() []string {
	var out []string
	var walk func(TypeRef)
	walk = func(x TypeRef) {
		switch x.Kind {
		case KindRef:
			out = append(out, x.Name)
		case KindArray, KindObject:
			if x.Elem != nil {
				walk(*x.Elem)
			}
		case KindUnion:
			for _, m := range x.Members {
				walk(m)
			}
		}
	}
	walk(t)
	return out
}

// PropertyDescriptor is one field of an object model.
type PropertyDescriptor struct {
	Name        string
	Type        TypeRef
	Nullable    bool
	Required    bool
	Description string
}

// Strong reports whether the property is a required, non-nullable direct
// reference, the only kind of link that cannot be broken lazily.
func (p PropertyDescriptor) Strong() bool {
	return p.Required && !p.Nullable && p.Type.Kind == KindRef
}

// ModelKind distinguishes object, union and alias models.
type ModelKind string

const (
	ModelObject ModelKind = "object"
	ModelUnion  ModelKind = "union"
	ModelAlias  ModelKind = "alias"
)

// Role tells which operation slot a synthesized model fills.
type Role string

const (
	RoleNone  Role = ""
	RoleIn    Role = "in"
	RoleOut   Role = "out"
	RoleQuery Role = "query"
)

// Origin records where a model came from. Component models have a zero Origin.
type Origin struct {
	// Operation and Role are set for models synthesized for an operation slot.
	Operation string
	Role      Role
	// Parent is set for inline objects hoisted out of another model.
	Parent string
}

// UnionDescriptor describes a oneOf/anyOf model.
type UnionDescriptor struct {
	Members []TypeRef
	// Discriminator is the property holding the member tag.
	Discriminator string
	// Mapping maps discriminator values to member model identifiers.
	Mapping map[string]string
}

// ModelDescriptor is a resolved, named data model.
type ModelDescriptor struct {
	Name        string
	Kind        ModelKind
	Properties  []PropertyDescriptor
	Required    []string
	Description string
	Union       *UnionDescriptor
	Alias       *TypeRef
	Origin      Origin
	// UsedInOperations lists operations that reference the model directly,
	// in declaration order. Filled in by BuildModel.
	UsedInOperations []string
}

// Property returns the named property, if any.
func (m *ModelDescriptor) Property(name string) (PropertyDescriptor, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDescriptor{}, false
}

// Edges returns the model's outgoing references with their strength.
func (m *ModelDescriptor) Edges() []ReferenceEdge {
	var out []ReferenceEdge
	add := func(to string, strong bool) {
		out = append(out, ReferenceEdge{From: m.Name, To: to, Strong: strong})
	}
	for _, p := range m.Properties {
		strong := p.Strong()
		for _, r := range p.Type.Refs() {
			add(r, strong)
		}
	}
	if m.Union != nil {
		for _, mem := range m.Union.Members {
			for _, r := range mem.Refs() {
				add(r, false)
			}
		}
	}
	if m.Alias != nil {
		strong := m.Alias.Kind == KindRef
		for _, r := range m.Alias.Refs() {
			add(r, strong)
		}
	}
	return out
}

// PathParam is one placeholder of an operation's path template.
type PathParam struct {
	Name     string
	Type     string
	Required bool
}

// OperationDescriptor is one resolved path+method pair.
type OperationDescriptor struct {
	SNo             int
	Path            string
	Method          HTTPMethod
	Tag             string
	Tags            []string
	OperationID     string
	Summary         string
	Description     string
	Deprecated      bool
	PathParams      []PathParam
	QueryParamsRef  string
	RequestBodyRef  string
	ResponseBodyRef string
	IsPaginated     bool
	RequiresAuth    bool
	BusinessPurpose string
}

// ModelRefs returns the models the operation references directly, in
// query, request, response order.
func (o *OperationDescriptor) ModelRefs() []string {
	var out []string
	for _, r := range []string{o.QueryParamsRef, o.RequestBodyRef, o.ResponseBodyRef} {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// ReferenceEdge is a directed link between two models, or from an operation
// to a model when Operation is set.
type ReferenceEdge struct {
	From      string
	To        string
	Strong    bool
	Operation string
	Role      Role
}

// Model is the Intermediate Model of one run.
type Model struct {
	Title       string
	Version     string
	Description string

	// Operations are ordered by SNo.
	Operations []*OperationDescriptor
	Models     map[string]*ModelDescriptor
	// ModelOrder lists every model such that no model precedes one it contains.
	ModelOrder []string
	Graph      *Graph
	// Issues lists entities excluded by resolution errors, in discovery order.
	Issues []*EntityError
}

// ModelNames returns model identifiers sorted by name.
func (m *Model) ModelNames() []string {
	names := make([]string, 0, len(m.Models))
	for n := range m.Models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Operation returns the operation with the given id.
func (m *Model) Operation(id string) *OperationDescriptor {
	for _, op := range m.Operations {
		if op.OperationID == id {
			return op
		}
	}
	return nil
}
