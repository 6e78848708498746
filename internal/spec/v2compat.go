package spec

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// v2Fix names one Swagger 2.0 operation that was rewritten before conversion.
type v2Fix struct {
	Key    OperationKey
	Reason string
}

const (
	fixMergedBodies = "merged body parameters into one object"
	fixBodyToForm   = "moved body parameters to formData"
)

// rewriteSwagger2 repairs Swagger 2.0 operations that openapi2conv rejects:
//
//   - several body parameters become one body whose schema has a property per
//     original parameter;
//   - body parameters next to formData parameters become formData themselves
//     and the operation consumes multipart/form-data.
//
// Fixes are returned sorted by operation. When nothing changed, or data cannot
// be decoded, data is returned as is.
func rewriteSwagger2(data []byte) ([]byte, []v2Fix, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return data, nil, err
	}
	paths, _ := doc["paths"].(map[string]any)

	var fixes []v2Fix
	for path, rawItem := range paths {
		item, _ := rawItem.(map[string]any)
		for name, rawOp := range item {
			method := HTTPMethod(strings.ToUpper(name))
			op, _ := rawOp.(map[string]any)
			if !isMethod(method) || op == nil {
				continue
			}
			if reason := rewriteV2Operation(op); reason != "" {
				fixes = append(fixes, v2Fix{Key: OperationKey{Path: path, Method: method}, Reason: reason})
			}
		}
	}
	if len(fixes) == 0 {
		return data, nil, nil
	}
	sort.Slice(fixes, func(i, j int) bool { return fixes[i].Key.String() < fixes[j].Key.String() })

	out, err := yaml.Marshal(doc)
	if err != nil {
		return data, nil, err
	}
	return out, fixes, nil
}

type v2Param map[string]any

func (p v2Param) in() string {
	s, _ := p["in"].(string)
	return strings.ToLower(s)
}

func (p v2Param) name() string {
	if s, _ := p["name"].(string); s != "" {
		return s
	}
	return "field"
}

func (p v2Param) required() bool {
	b, _ := p["required"].(bool)
	return b
}

// rewriteV2Operation fixes op in place and reports what it did.
func rewriteV2Operation(op map[string]any) string {
	raw, _ := op["parameters"].([]any)
	var params []v2Param
	bodies, forms := 0, 0
	for _, r := range raw {
		p, _ := r.(map[string]any)
		if p == nil {
			continue
		}
		params = append(params, p)
		switch v2Param(p).in() {
		case "body":
			bodies++
		case "formdata":
			forms++
		}
	}

	switch {
	case bodies > 0 && forms > 0:
		out := make([]any, 0, len(params))
		for _, p := range params {
			if p.in() == "body" {
				out = append(out, map[string]any(bodyAsFormField(p)))
			} else {
				out = append(out, map[string]any(p))
			}
		}
		op["parameters"] = out
		consumes, _ := op["consumes"].([]any)
		for _, c := range consumes {
			if c == "multipart/form-data" {
				return fixBodyToForm
			}
		}
		op["consumes"] = append(consumes, "multipart/form-data")
		return fixBodyToForm

	case bodies > 1:
		props := map[string]any{}
		var required []any
		rest := make([]any, 0, len(params))
		for _, p := range params {
			if p.in() != "body" {
				rest = append(rest, map[string]any(p))
				continue
			}
			props[p.name()] = paramSchema2(p)
			if p.required() {
				required = append(required, p.name())
			}
		}
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		body := map[string]any{"in": "body", "name": "body", "schema": schema}
		if len(required) > 0 {
			body["required"] = true
		}
		op["parameters"] = append([]any{body}, rest...)
		return fixMergedBodies
	}
	return ""
}

// paramSchema2 is the schema of a Swagger 2.0 parameter, taken from its schema
// member or rebuilt from its inline type. Untyped parameters become strings.
func paramSchema2(p v2Param) map[string]any {
	if s, ok := p["schema"].(map[string]any); ok {
		return s
	}
	typ, _ := p["type"].(string)
	if typ == "" {
		typ = "string"
	}
	s := map[string]any{"type": typ}
	for _, k := range []string{"format", "items", "enum"} {
		if v, ok := p[k]; ok {
			s[k] = v
		}
	}
	return s
}

// bodyAsFormField turns a body parameter into a formData parameter. A
// referenced or object schema has no form encoding and is sent as a string.
func bodyAsFormField(p v2Param) v2Param {
	out := v2Param{"in": "formData", "name": p.name()}
	if d, _ := p["description"].(string); d != "" {
		out["description"] = d
	}
	if req, ok := p["required"].(bool); ok {
		out["required"] = req
	}

	schema := paramSchema2(p)
	typ, _ := schema["type"].(string)
	if _, isRef := schema["$ref"]; isRef || typ == "object" || typ == "" {
		typ = "string"
	}
	out["type"] = typ
	if typ == "array" {
		if items, ok := schema["items"]; ok {
			out["items"] = items
		}
	}
	if f, _ := schema["format"].(string); f != "" {
		out["format"] = f
	}
	return out
}
