package spec

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/swagger2react/internal/logging"
	"github.com/mark3labs/swagger2react/internal/naming"
)

// Extensions read from operations.
const (
	ExtPaginated       = "x-paginated"
	ExtBusinessPurpose = "x-business-purpose"
)

// paginationFields are normalized names of metadata fields that accompany a
// page of results.
var paginationFields = map[string]bool{
	"total": true, "totalcount": true, "count": true, "totalitems": true,
	"totalelements": true, "totalpages": true, "next": true, "nextpage": true,
	"nextcursor": true, "cursor": true, "hasmore": true, "hasnext": true,
	"offset": true, "limit": true, "page": true, "pagesize": true,
}

var pathParamRe = regexp.MustCompile(`\{([^{}]+)\}`)

// OperationKey identifies an operation by path and method.
type OperationKey struct {
	Path   string
	Method HTTPMethod
}

func (k OperationKey) String() string { return string(k.Method) + " " + k.Path }

// OperationResolver turns path items into OperationDescriptors, defining
// models for inline parameter, request and response shapes.
type OperationResolver struct {
	doc     *openapi3.T
	schemas *SchemaResolver
	reg     *ModelRegistry
	log     logging.Logger
}

// NewOperationResolver binds a resolver to one document.
func NewOperationResolver(doc *openapi3.T, schemas *SchemaResolver, reg *ModelRegistry, log logging.Logger) *OperationResolver {
	if log == nil {
		log = logging.Nop()
	}
	return &OperationResolver{doc: doc, schemas: schemas, reg: reg, log: log}
}

// Resolve builds the descriptor of one operation. id must already be unique.
func (r *OperationResolver) Resolve(key OperationKey, id string, item *openapi3.PathItem, op *openapi3.Operation) (*OperationDescriptor, error) {
	d := &OperationDescriptor{
		Path:        key.Path,
		Method:      key.Method,
		OperationID: id,
		Summary:     safeStr(op.Summary),
		Description: safeStr(op.Description),
		Deprecated:  op.Deprecated,
		Tag:         naming.DefaultTag,
	}
	for _, t := range op.Tags {
		if t = strings.TrimSpace(t); t != "" {
			d.Tags = append(d.Tags, t)
		}
	}
	if len(d.Tags) > 0 {
		d.Tag = d.Tags[0]
	}
	opName := naming.ToPascalCase(id)

	params, err := r.parameters(id, item, op)
	if err != nil {
		return nil, err
	}

	for _, name := range PathTemplateParams(key.Path) {
		p := findParam(params, openapi3.ParameterInPath, name)
		if p == nil {
			return nil, &MissingParameterError{OperationID: id, Path: key.Path, Parameter: name}
		}
		t, err := r.schemas.ResolveType(opName+"Path"+naming.ToPascalCase(name), paramSchema(p), true)
		if err != nil {
			return nil, annotate(err, id, "path."+name)
		}
		d.PathParams = append(d.PathParams, PathParam{Name: name, Type: t.String(), Required: true})
	}

	if ref, err := r.queryModel(id, opName, params); err != nil {
		return nil, err
	} else {
		d.QueryParamsRef = ref
	}

	if rb, err := r.requestBody(id, op); err != nil {
		return nil, err
	} else if rb != nil {
		if mt := pickMedia(rb.Content); mt != nil && mt.Schema != nil {
			ref, err := r.slotModel(id, opName+"InData", mt.Schema, RoleIn)
			if err != nil {
				return nil, annotate(err, id, "requestBody")
			}
			d.RequestBodyRef = ref
		}
	}

	if code, resp, err := r.response(id, op); err != nil {
		return nil, err
	} else if resp != nil {
		if mt := pickMedia(resp.Content); mt != nil && mt.Schema != nil {
			ref, err := r.slotModel(id, opName+"OutData", mt.Schema, RoleOut)
			if err != nil {
				return nil, annotate(err, id, "responses."+code)
			}
			d.ResponseBodyRef = ref
		}
	}

	d.IsPaginated = r.paginated(op, d.ResponseBodyRef)
	d.RequiresAuth = requiresAuth(r.doc.Security, op.Security)
	d.BusinessPurpose, _ = extString(op.Extensions, ExtBusinessPurpose)
	return d, nil
}

// PathTemplateParams returns placeholder names in order of appearance.
func PathTemplateParams(path string) []string {
	var out []string
	for _, m := range pathParamRe.FindAllStringSubmatch(path, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// parameters merges path-level and operation-level parameters. Operation
// parameters replace path-level ones with the same location and name.
func (r *OperationResolver) parameters(id string, item *openapi3.PathItem, op *openapi3.Operation) ([]*openapi3.Parameter, error) {
	var out []*openapi3.Parameter
	index := make(map[string]int)
	for _, list := range []openapi3.Parameters{item.Parameters, op.Parameters} {
		for _, pref := range list {
			p, err := r.derefParameter(pref)
			if err != nil {
				return nil, annotate(err, id, "parameters")
			}
			if p == nil {
				continue
			}
			k := paramKey(p.In, p.Name)
			if i, ok := index[k]; ok {
				out[i] = p
				continue
			}
			index[k] = len(out)
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *OperationResolver) queryModel(id, opName string, params []*openapi3.Parameter) (string, error) {
	props := openapi3.Schemas{}
	var required []string
	for _, p := range params {
		if p.In != openapi3.ParameterInQuery {
			continue
		}
		sref := paramSchema(p)
		if sref == nil {
			sref = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: "string"}}
		}
		if sref.Ref == "" && sref.Value != nil && sref.Value.Description == "" && p.Description != "" {
			cp := *sref.Value
			cp.Description = p.Description
			sref = &openapi3.SchemaRef{Value: &cp}
		}
		props[p.Name] = sref
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if len(props) == 0 {
		return "", nil
	}
	name := r.reg.Reserve(opName + "QueryData")
	schema := &openapi3.Schema{Type: "object", Properties: props, Required: required}
	if _, err := r.schemas.DefineModel(name, &openapi3.SchemaRef{Value: schema}, Origin{Operation: id, Role: RoleQuery}); err != nil {
		return "", annotate(err, id, "query")
	}
	return name, nil
}

// slotModel returns the model filling an operation slot. A direct reference
// names the component itself; anything else defines a synthesized model.
func (r *OperationResolver) slotModel(id, hint string, sref *openapi3.SchemaRef, role Role) (string, error) {
	target := sref
	if v := sref.Value; sref.Ref == "" && v != nil && len(v.AllOf) == 1 && len(v.Properties) == 0 && v.AllOf[0] != nil && v.AllOf[0].Ref != "" {
		target = v.AllOf[0]
	}
	if target.Ref != "" {
		t, err := r.schemas.resolveRef(target, false)
		if err != nil {
			return "", err
		}
		return t.Name, nil
	}
	name := r.reg.Reserve(hint)
	if _, err := r.schemas.DefineModel(name, sref, Origin{Operation: id, Role: role}); err != nil {
		return "", err
	}
	return name, nil
}

func (r *OperationResolver) requestBody(id string, op *openapi3.Operation) (*openapi3.RequestBody, error) {
	rb := op.RequestBody
	if rb == nil {
		return nil, nil
	}
	if rb.Value != nil {
		return rb.Value, nil
	}
	if name, ok := strings.CutPrefix(rb.Ref, "#/components/requestBodies/"); ok && r.doc.Components != nil {
		if c := r.doc.Components.RequestBodies[unescapePointer(name)]; c != nil && c.Value != nil {
			return c.Value, nil
		}
	}
	return nil, &UnresolvedReferenceError{Ref: rb.Ref, From: id, Field: "requestBody"}
}

// response picks the first 2xx response by status code, else "default".
func (r *OperationResolver) response(id string, op *openapi3.Operation) (string, *openapi3.Response, error) {
	codes := make([]string, 0, len(op.Responses))
	for code := range op.Responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	chosen := ""
	for _, code := range codes {
		if len(code) == 3 && code[0] == '2' {
			chosen = code
			break
		}
	}
	if chosen == "" {
		if _, ok := op.Responses["default"]; !ok {
			return "", nil, nil
		}
		chosen = "default"
	}

	ref := op.Responses[chosen]
	if ref == nil {
		return chosen, nil, nil
	}
	if ref.Value != nil {
		return chosen, ref.Value, nil
	}
	if name, ok := strings.CutPrefix(ref.Ref, "#/components/responses/"); ok && r.doc.Components != nil {
		if c := r.doc.Components.Responses[unescapePointer(name)]; c != nil && c.Value != nil {
			return chosen, c.Value, nil
		}
	}
	return chosen, nil, &UnresolvedReferenceError{Ref: ref.Ref, From: id, Field: "responses." + chosen}
}

func (r *OperationResolver) derefParameter(pref *openapi3.ParameterRef) (*openapi3.Parameter, error) {
	if pref == nil {
		return nil, nil
	}
	if pref.Value != nil {
		return pref.Value, nil
	}
	if name, ok := strings.CutPrefix(pref.Ref, "#/components/parameters/"); ok && r.doc.Components != nil {
		if c := r.doc.Components.Parameters[unescapePointer(name)]; c != nil && c.Value != nil {
			return c.Value, nil
		}
	}
	return nil, &UnresolvedReferenceError{Ref: pref.Ref}
}

// paginated applies the x-paginated override, then the response shape
// heuristic.
func (r *OperationResolver) paginated(op *openapi3.Operation, ref string) bool {
	if v, ok := extBool(op.Extensions, ExtPaginated); ok {
		return v
	}
	if ref == "" {
		return false
	}
	return LooksPaginated(r.schemas.followAlias(ref), func(name string) *ModelDescriptor {
		return r.schemas.followAlias(name)
	})
}

// LooksPaginated reports whether m has exactly one collection field and at
// least one sibling page metadata field, directly or inside a sibling object
// such as "meta". Anything else, including two collections, is not paginated.
func LooksPaginated(m *ModelDescriptor, lookup func(string) *ModelDescriptor) bool {
	if m == nil || m.Kind != ModelObject {
		return false
	}
	collections, meta := 0, false
	for _, p := range m.Properties {
		switch {
		case p.Type.Kind == KindArray:
			collections++
		case paginationFields[normalizeField(p.Name)]:
			meta = true
		case p.Type.Kind == KindRef && lookup != nil:
			sub := lookup(p.Type.Name)
			if sub == nil || sub.Kind != ModelObject {
				continue
			}
			for _, sp := range sub.Properties {
				if paginationFields[normalizeField(sp.Name)] {
					meta = true
				}
			}
		}
	}
	return collections == 1 && meta
}

func normalizeField(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// requiresAuth applies operation security over the document default. An empty
// requirement object grants anonymous access.
func requiresAuth(global openapi3.SecurityRequirements, local *openapi3.SecurityRequirements) bool {
	effective := global
	if local != nil {
		effective = *local
	}
	if len(effective) == 0 {
		return false
	}
	for _, req := range effective {
		if len(req) == 0 {
			return false
		}
	}
	return true
}

// pickMedia prefers application/json, then any +json type, then the first
// media type by name.
func pickMedia(content openapi3.Content) *openapi3.MediaType {
	if len(content) == 0 {
		return nil
	}
	types := make([]string, 0, len(content))
	for t := range content {
		types = append(types, t)
	}
	sort.Strings(types)
	base := func(t string) string {
		b, _, _ := strings.Cut(t, ";")
		return strings.ToLower(strings.TrimSpace(b))
	}
	for _, t := range types {
		if base(t) == "application/json" {
			return content[t]
		}
	}
	for _, t := range types {
		if strings.HasSuffix(base(t), "+json") {
			return content[t]
		}
	}
	return content[types[0]]
}

func paramSchema(p *openapi3.Parameter) *openapi3.SchemaRef {
	if p.Schema != nil {
		return p.Schema
	}
	if mt := pickMedia(p.Content); mt != nil {
		return mt.Schema
	}
	return nil
}

func findParam(params []*openapi3.Parameter, in, name string) *openapi3.Parameter {
	for _, p := range params {
		if p.In == in && p.Name == name {
			return p
		}
	}
	return nil
}

func extBool(ext map[string]interface{}, key string) (bool, bool) {
	switch v := ext[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	case json.RawMessage:
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			return b, true
		}
	}
	return false, false
}

func extString(ext map[string]interface{}, key string) (string, bool) {
	switch v := ext[key].(type) {
	case string:
		return strings.TrimSpace(v), true
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}
