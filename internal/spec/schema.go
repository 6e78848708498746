package spec

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/swagger2react/internal/logging"
	"github.com/mark3labs/swagger2react/internal/naming"
)

// ModelRegistry owns every model identifier of one resolution run.
type ModelRegistry struct {
	models map[string]*ModelDescriptor
	taken  map[string]struct{}
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelDescriptor),
		taken:  make(map[string]struct{}),
	}
}

// Reserve claims base, or base with the smallest free numeric suffix.
func (r *ModelRegistry) Reserve(base string) string {
	if base == "" {
		base = "Model"
	}
	name := base
	for i := 2; ; i++ {
		if _, ok := r.taken[name]; !ok {
			r.taken[name] = struct{}{}
			return name
		}
		name = base + strconv.Itoa(i)
	}
}

// Get returns a resolved model.
func (r *ModelRegistry) Get(name string) (*ModelDescriptor, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Models exposes the resolved models keyed by identifier.
func (r *ModelRegistry) Models() map[string]*ModelDescriptor { return r.models }

func (r *ModelRegistry) add(m *ModelDescriptor) { r.models[m.Name] = m }

func (r *ModelRegistry) remove(name string) { delete(r.models, name) }

type frame struct {
	name string
	// strong is the strength of the link that led into this frame.
	strong bool
}

// SchemaResolver turns raw schema fragments into ModelDescriptors. Component
// schemas are resolved on demand and memoized, failures included.
type SchemaResolver struct {
	components map[string]*openapi3.SchemaRef
	names      map[string]string // component key -> model identifier
	reg        *ModelRegistry
	stack      []frame
	failed     map[string]error
	log        logging.Logger
}

// NewSchemaResolver reserves a PascalCase identifier for every component, in
// key order, so that names never depend on resolution order.
func NewSchemaResolver(components openapi3.Schemas, reg *ModelRegistry, log logging.Logger) *SchemaResolver {
	if log == nil {
		log = logging.Nop()
	}
	r := &SchemaResolver{
		components: make(map[string]*openapi3.SchemaRef, len(components)),
		names:      make(map[string]string, len(components)),
		reg:        reg,
		failed:     make(map[string]error),
		log:        log,
	}
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.components[k] = components[k]
		r.names[k] = reg.Reserve(naming.ToPascalCase(k))
	}
	return r
}

// Components returns component keys in sorted order.
func (r *SchemaResolver) Components() []string {
	keys := make([]string, 0, len(r.components))
	for k := range r.components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ModelName returns the identifier reserved for a component key.
func (r *SchemaResolver) ModelName(key string) (string, bool) {
	n, ok := r.names[key]
	return n, ok
}

// Resolve resolves the component schema stored under key.
func (r *SchemaResolver) Resolve(key string) (*ModelDescriptor, error) {
	name, ok := r.names[key]
	if !ok {
		return nil, &UnresolvedReferenceError{Ref: "#/components/schemas/" + key}
	}
	if _, err := r.resolveTarget(name, key, true); err != nil {
		return nil, err
	}
	m, _ := r.reg.Get(name)
	return m, nil
}

// DefineModel builds a model named name from an anonymous fragment, for
// example an inline request body. The name must already be reserved.
func (r *SchemaResolver) DefineModel(name string, sref *openapi3.SchemaRef, origin Origin) (*ModelDescriptor, error) {
	r.push(name, true)
	defer r.pop()
	m, err := r.build(name, sref, origin)
	if err != nil {
		return nil, err
	}
	r.reg.add(m)
	return m, nil
}

// ResolveType resolves an anonymous fragment to a TypeRef. Inline objects,
// compositions and discriminated unions are hoisted into models named after
// hint. strong marks the link from the enclosing model as required and
// non-nullable.
func (r *SchemaResolver) ResolveType(hint string, sref *openapi3.SchemaRef, strong bool) (TypeRef, error) {
	if sref == nil {
		return Primitive(PrimUnknown), nil
	}
	if sref.Ref != "" {
		return r.resolveRef(sref, strong)
	}
	s := sref.Value
	if s == nil {
		return Primitive(PrimUnknown), nil
	}

	// allOf with a single reference is the usual way to annotate a $ref.
	if len(s.AllOf) == 1 && len(s.Properties) == 0 && s.AllOf[0] != nil && s.AllOf[0].Ref != "" {
		return r.ResolveType(hint, s.AllOf[0], strong && !s.Nullable)
	}

	alternatives := unionMembers(s)
	if len(alternatives) > 0 && s.Discriminator == nil && len(s.Properties) == 0 && len(s.AllOf) == 0 {
		members := make([]TypeRef, 0, len(alternatives))
		for i, mem := range alternatives {
			t, err := r.ResolveType(hint+"Option"+strconv.Itoa(i+1), mem, false)
			if err != nil {
				return TypeRef{}, err
			}
			members = append(members, t)
		}
		if len(members) == 1 {
			return members[0], nil
		}
		return TypeRef{Kind: KindUnion, Members: members}, nil
	}

	if len(s.AllOf) > 0 || len(alternatives) > 0 || len(s.Properties) > 0 {
		name := r.reg.Reserve(hint)
		origin := Origin{Parent: r.current()}
		r.push(name, strong)
		m, err := r.build(name, sref, origin)
		r.pop()
		if err != nil {
			return TypeRef{}, err
		}
		r.reg.add(m)
		return RefTo(name), nil
	}

	return r.typeOf(hint, s)
}

func (r *SchemaResolver) push(name string, strong bool) {
	r.stack = append(r.stack, frame{name: name, strong: strong})
}

func (r *SchemaResolver) pop() { r.stack = r.stack[:len(r.stack)-1] }

func (r *SchemaResolver) current() string {
	if len(r.stack) == 0 {
		return ""
	}
	return r.stack[len(r.stack)-1].name
}

func (r *SchemaResolver) onStack(name string) int {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i].name == name {
			return i
		}
	}
	return -1
}

// cycleFrom returns the cycle closed by a link back to stack[i], and whether
// every link on it is strong.
func (r *SchemaResolver) cycleFrom(i int, closing bool) ([]string, bool) {
	allStrong := closing
	cycle := make([]string, 0, len(r.stack)-i+1)
	for j := i; j < len(r.stack); j++ {
		cycle = append(cycle, r.stack[j].name)
		if j > i && !r.stack[j].strong {
			allStrong = false
		}
	}
	cycle = append(cycle, r.stack[i].name)
	return cycle, allStrong
}

func (r *SchemaResolver) resolveRef(sref *openapi3.SchemaRef, strong bool) (TypeRef, error) {
	key, local := refKey(sref.Ref)
	if _, known := r.names[key]; !known && !local && sref.Value != nil {
		r.adopt(key, sref.Value)
	}
	name, ok := r.names[key]
	if !ok {
		return TypeRef{}, &UnresolvedReferenceError{Ref: sref.Ref}
	}
	return r.resolveTarget(name, key, strong)
}

// adopt registers a schema reached through an external reference as a
// component named after the last segment of the reference.
func (r *SchemaResolver) adopt(key string, s *openapi3.Schema) {
	r.components[key] = &openapi3.SchemaRef{Value: s}
	r.names[key] = r.reg.Reserve(naming.ToPascalCase(key))
	r.log.Debug("adopted external schema", "key", key, "model", r.names[key])
}

func (r *SchemaResolver) resolveTarget(name, key string, strong bool) (TypeRef, error) {
	if _, done := r.reg.Get(name); done {
		return RefTo(name), nil
	}
	if err, failed := r.failed[name]; failed {
		return TypeRef{}, err
	}
	if i := r.onStack(name); i >= 0 {
		cycle, fatal := r.cycleFrom(i, strong)
		if fatal {
			return TypeRef{}, &CyclicSchemaError{Cycle: cycle}
		}
		// Broken lazily: the link stays a named reference.
		return RefTo(name), nil
	}

	r.push(name, strong)
	m, err := r.build(name, r.components[key], Origin{})
	r.pop()
	if err != nil {
		r.failed[name] = err
		r.log.Debug("schema resolution failed", "model", name, "error", err)
		return TypeRef{}, err
	}
	r.reg.add(m)
	return RefTo(name), nil
}

func (r *SchemaResolver) build(name string, sref *openapi3.SchemaRef, origin Origin) (*ModelDescriptor, error) {
	m := &ModelDescriptor{Name: name, Origin: origin}
	if sref == nil || (sref.Ref == "" && sref.Value == nil) {
		unknown := Primitive(PrimUnknown)
		m.Kind, m.Alias = ModelAlias, &unknown
		return m, nil
	}
	if sref.Ref != "" {
		t, err := r.resolveRef(sref, true)
		if err != nil {
			return nil, annotate(err, name, "")
		}
		m.Kind, m.Alias = ModelAlias, &t
		return m, nil
	}

	s := sref.Value
	m.Description = strings.TrimSpace(s.Description)
	switch {
	case len(s.AllOf) > 0:
		m.Kind = ModelObject
		if err := r.mergeAllOf(m, s); err != nil {
			return nil, err
		}
	case len(unionMembers(s)) > 0:
		m.Kind = ModelUnion
		u, err := r.union(name, s)
		if err != nil {
			return nil, err
		}
		m.Union = u
	case isObjectSchema(s):
		m.Kind = ModelObject
		if err := r.collectProperties(m, s); err != nil {
			return nil, err
		}
	default:
		t, err := r.typeOf(name, s)
		if err != nil {
			return nil, annotate(err, name, "")
		}
		m.Kind, m.Alias = ModelAlias, &t
	}
	return m, nil
}

func (r *SchemaResolver) collectProperties(m *ModelDescriptor, s *openapi3.Schema) error {
	required := make(map[string]bool, len(s.Required))
	for _, n := range s.Required {
		required[n] = true
	}
	names := make([]string, 0, len(s.Properties))
	for n := range s.Properties {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, pn := range names {
		pref := s.Properties[pn]
		prop := PropertyDescriptor{Name: pn, Required: required[pn]}
		if pref != nil && pref.Ref == "" && pref.Value != nil {
			prop.Nullable = pref.Value.Nullable
			prop.Description = strings.TrimSpace(pref.Value.Description)
		}
		t, err := r.ResolveType(m.Name+naming.ToPascalCase(pn), pref, prop.Required && !prop.Nullable)
		if err != nil {
			return annotate(err, m.Name, pn)
		}
		prop.Type = t
		m.Properties = append(m.Properties, prop)
	}
	m.Required = mergeRequired(m.Required, s.Required)
	return nil
}

// mergeAllOf merges the fragment's own properties first, then each member in
// order. Later definitions win on name collision; required sets union.
func (r *SchemaResolver) mergeAllOf(m *ModelDescriptor, s *openapi3.Schema) error {
	own := &ModelDescriptor{Name: m.Name}
	if err := r.collectProperties(own, s); err != nil {
		return err
	}
	parts := []*ModelDescriptor{own}
	for i, member := range s.AllOf {
		part, err := r.allOfMember(m.Name, i, member)
		if err != nil {
			return err
		}
		if part != nil {
			parts = append(parts, part)
		}
	}

	byName := make(map[string]PropertyDescriptor)
	var required []string
	for _, part := range parts {
		for _, p := range part.Properties {
			byName[p.Name] = p
		}
		required = mergeRequired(required, part.Required)
	}
	reqSet := make(map[string]bool, len(required))
	for _, n := range required {
		reqSet[n] = true
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	m.Properties = m.Properties[:0]
	for _, n := range names {
		p := byName[n]
		p.Required = reqSet[n]
		m.Properties = append(m.Properties, p)
	}
	m.Required = required
	return nil
}

func (r *SchemaResolver) allOfMember(owner string, idx int, member *openapi3.SchemaRef) (*ModelDescriptor, error) {
	if member == nil {
		return nil, nil
	}
	if member.Ref != "" {
		key, _ := refKey(member.Ref)
		if name, ok := r.names[key]; ok {
			// Merging needs the member's full shape, so any cycle through
			// allOf is fatal.
			if i := r.onStack(name); i >= 0 {
				cycle, _ := r.cycleFrom(i, true)
				return nil, &CyclicSchemaError{Cycle: cycle}
			}
		}
		t, err := r.resolveRef(member, true)
		if err != nil {
			return nil, annotate(err, owner, "allOf["+strconv.Itoa(idx)+"]")
		}
		target := r.followAlias(t.Name)
		if target == nil || target.Kind != ModelObject {
			r.log.Warn("allOf member is not an object; skipped", "model", owner, "member", t.Name)
			return nil, nil
		}
		return target, nil
	}

	s := member.Value
	if s == nil {
		return nil, nil
	}
	part := &ModelDescriptor{Name: owner}
	switch {
	case len(s.AllOf) > 0:
		if err := r.mergeAllOf(part, s); err != nil {
			return nil, err
		}
	case len(unionMembers(s)) > 0:
		r.log.Warn("allOf member is a union; skipped", "model", owner, "index", idx)
		return nil, nil
	default:
		if err := r.collectProperties(part, s); err != nil {
			return nil, err
		}
	}
	return part, nil
}

// followAlias returns the first non-alias model reached from name.
func (r *SchemaResolver) followAlias(name string) *ModelDescriptor {
	for depth := 0; depth < 16; depth++ {
		m, ok := r.reg.Get(name)
		if !ok {
			return nil
		}
		if m.Kind != ModelAlias || m.Alias == nil || m.Alias.Kind != KindRef {
			return m
		}
		name = m.Alias.Name
	}
	return nil
}

func (r *SchemaResolver) union(name string, s *openapi3.Schema) (*UnionDescriptor, error) {
	u := &UnionDescriptor{Discriminator: "kind"}
	for i, mem := range unionMembers(s) {
		t, err := r.ResolveType(name+"Option"+strconv.Itoa(i+1), mem, false)
		if err != nil {
			return nil, annotate(err, name, "oneOf["+strconv.Itoa(i)+"]")
		}
		u.Members = append(u.Members, t)
	}
	if d := s.Discriminator; d != nil {
		if d.PropertyName != "" {
			u.Discriminator = d.PropertyName
		}
		if len(d.Mapping) > 0 {
			u.Mapping = make(map[string]string, len(d.Mapping))
			for value, target := range d.Mapping {
				key := target
				if strings.Contains(target, "/") || strings.Contains(target, "#") {
					key, _ = refKey(target)
				}
				if n, ok := r.names[key]; ok {
					u.Mapping[value] = n
				} else {
					u.Mapping[value] = naming.ToPascalCase(key)
				}
			}
		}
	}
	return u, nil
}

// typeOf maps array, map and primitive fragments. Structured fragments never
// reach it; ResolveType hoists them first.
func (r *SchemaResolver) typeOf(hint string, s *openapi3.Schema) (TypeRef, error) {
	switch s.Type {
	case "array":
		elem, err := r.ResolveType(hint+"Item", s.Items, false)
		if err != nil {
			return TypeRef{}, err
		}
		return ArrayOf(elem), nil
	case "string", "number", "integer", "boolean":
		t := Primitive(s.Type)
		t.Format = s.Format
		for _, v := range s.Enum {
			t.Enum = append(t.Enum, fmt.Sprint(v))
		}
		return t, nil
	case "object", "":
		if ap := s.AdditionalProperties.Schema; ap != nil {
			v, err := r.ResolveType(hint+"Value", ap, false)
			if err != nil {
				return TypeRef{}, err
			}
			return TypeRef{Kind: KindObject, Elem: &v}, nil
		}
		if s.Type == "object" || s.AdditionalProperties.Has != nil {
			return TypeRef{Kind: KindObject}, nil
		}
	}
	return Primitive(PrimUnknown), nil
}

func unionMembers(s *openapi3.Schema) openapi3.SchemaRefs {
	if len(s.OneOf) > 0 {
		return s.OneOf
	}
	return s.AnyOf
}

// isObjectSchema reports whether a named fragment becomes an object model
// rather than an alias.
func isObjectSchema(s *openapi3.Schema) bool {
	if len(s.Properties) > 0 {
		return true
	}
	return s.Type == "object" && s.AdditionalProperties.Schema == nil && s.AdditionalProperties.Has == nil
}

func mergeRequired(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// refKey extracts the component key from a schema reference. Local refs
// under #/components/schemas/ and #/definitions/ are supported; external
// refs are keyed by their last path segment.
func refKey(ref string) (string, bool) {
	for _, prefix := range []string{"#/components/schemas/", "#/definitions/"} {
		if strings.HasPrefix(ref, prefix) {
			return unescapePointer(strings.TrimPrefix(ref, prefix)), true
		}
	}
	if strings.HasPrefix(ref, "#") {
		return ref, true
	}
	file, fragment, _ := strings.Cut(ref, "#")
	if fragment != "" {
		return unescapePointer(path.Base(fragment)), false
	}
	base := path.Base(file)
	return strings.TrimSuffix(base, path.Ext(base)), false
}

func unescapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}

// annotate records where an unresolved reference was found.
func annotate(err error, from, field string) error {
	var ure *UnresolvedReferenceError
	if errors.As(err, &ure) && ure.From == "" {
		ure.From = from
		ure.Field = field
	}
	return err
}
