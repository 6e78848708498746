package spec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/swagger2react/internal/logging"
)

// BuildOption configures how the Intermediate Model is built from a document.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HTTPMethod]struct{}
	pathRes     []*regexp.Regexp
	log         logging.Logger
}

// WithIncludeTags keeps only endpoints that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		if len(tags) == 0 {
			return
		}
		if c.includeTags == nil {
			c.includeTags = make(map[string]struct{}, len(tags))
		}
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			c.includeTags[t] = struct{}{}
		}
	}
}

// WithExcludeTags removes endpoints that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		if len(tags) == 0 {
			return
		}
		if c.excludeTags == nil {
			c.excludeTags = make(map[string]struct{}, len(tags))
		}
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			c.excludeTags[t] = struct{}{}
		}
	}
}

// WithMethods keeps only endpoints using one of the provided HTTP methods.
func WithMethods(methods []HTTPMethod) BuildOption {
	return func(c *buildConfig) {
		if len(methods) == 0 {
			return
		}
		if c.methods == nil {
			c.methods = make(map[HTTPMethod]struct{}, len(methods))
		}
		for _, m := range methods {
			c.methods[HTTPMethod(strings.ToUpper(string(m)))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only endpoints whose path matches at least one of the
// provided regular expressions. An invalid pattern matches nothing.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				re = regexp.MustCompile("a^$")
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// WithBuildLogger sets the logger used while resolving.
func WithBuildLogger(l logging.Logger) BuildOption {
	return func(c *buildConfig) { c.log = l }
}

// BuildModel resolves a loaded document into the Intermediate Model.
//
// Entities that fail to resolve are excluded and recorded in Model.Issues;
// only a document-level failure returns an error. A strong containment cycle
// returns the error together with the partially ordered model. Operation
// identifiers are assigned before filtering so that filters never change them.
func BuildModel(ctx context.Context, doc *Document, opts ...BuildOption) (*Model, error) {
	if doc == nil || doc.T == nil {
		return nil, fmt.Errorf("nil document")
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = logging.Nop()
	}
	log := cfg.log

	t := doc.T
	model := &Model{}
	if t.Info != nil {
		model.Title = safeStr(t.Info.Title)
		model.Version = safeStr(t.Info.Version)
		model.Description = safeStr(t.Info.Description)
	}

	reg := NewModelRegistry()
	var components openapi3.Schemas
	if t.Components != nil {
		components = t.Components.Schemas
	}
	schemas := NewSchemaResolver(components, reg, log)

	for _, key := range schemas.Components() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := schemas.Resolve(key); err != nil {
			name, _ := schemas.ModelName(key)
			issue := newEntityError(EntityModel, name, err)
			model.Issues = append(model.Issues, issue)
			log.Warn("model excluded", "model", name, "error", err)
		}
	}

	keys := doc.Operations()
	ids := assignOperationIDs(t, keys)
	resolver := NewOperationResolver(t, schemas, reg, log)
	var ops []*OperationDescriptor
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := t.Paths[k.Path]
		op := item.GetOperation(string(k.Method))
		if !cfg.allow(k, op) {
			continue
		}
		d, err := resolver.Resolve(k, ids[k], item, op)
		if err != nil {
			model.Issues = append(model.Issues, newEntityError(EntityOperation, ids[k], err))
			log.Warn("operation excluded", "operation", ids[k], "error", err)
			continue
		}
		ops = append(ops, d)
	}

	ops, issues := enforceIntegrity(reg, schemas, ops)
	for _, issue := range issues {
		log.Warn(string(issue.Kind)+" excluded", "id", issue.ID, "error", issue.Err)
	}
	model.Issues = append(model.Issues, issues...)
	for i, op := range ops {
		op.SNo = i + 1
	}

	graph := BuildGraph(ops, reg.Models())
	for name, m := range reg.Models() {
		m.UsedInOperations = graph.UsedIn(name)
	}
	order, err := graph.Order()
	model.Operations = ops
	model.Models = reg.Models()
	model.ModelOrder = order
	model.Graph = graph
	if err != nil {
		return model, err
	}
	log.Debug("built model", "operations", len(ops), "models", len(model.Models), "issues", len(model.Issues))
	return model, nil
}

func (c *buildConfig) allow(k OperationKey, op *openapi3.Operation) bool {
	if op == nil {
		return false
	}
	if len(c.methods) > 0 {
		if _, ok := c.methods[k.Method]; !ok {
			return false
		}
	}
	if len(c.pathRes) > 0 {
		matched := false
		for _, re := range c.pathRes {
			if re.MatchString(k.Path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	tags := make([]string, 0, len(op.Tags))
	for _, t := range op.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return allowByTags(tags, c)
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

// assignOperationIDs gives every operation a unique identifier, in
// declaration order. The first use of a declared id keeps it; missing and
// repeated ids become "{method}-{path}" with a numeric suffix while taken.
func assignOperationIDs(t *openapi3.T, keys []OperationKey) map[OperationKey]string {
	declared := make(map[string]bool)
	for _, k := range keys {
		if op := t.Paths[k.Path].GetOperation(string(k.Method)); op != nil {
			if id := strings.TrimSpace(op.OperationID); id != "" {
				declared[id] = true
			}
		}
	}

	taken := make(map[string]bool, len(keys))
	out := make(map[OperationKey]string, len(keys))
	var pending []OperationKey
	for _, k := range keys {
		id := strings.TrimSpace(t.Paths[k.Path].GetOperation(string(k.Method)).OperationID)
		if id == "" || taken[id] {
			pending = append(pending, k)
			continue
		}
		taken[id] = true
		out[k] = id
	}
	for _, k := range pending {
		base := synthesizeOperationID(k)
		id := base
		for i := 2; taken[id] || declared[id]; i++ {
			id = base + "-" + strconv.Itoa(i)
		}
		taken[id] = true
		out[k] = id
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func synthesizeOperationID(k OperationKey) string {
	path := nonAlnum.ReplaceAllString(strings.ToLower(k.Path), "-")
	path = strings.Trim(path, "-")
	if path == "" {
		path = "root"
	}
	return strings.ToLower(string(k.Method)) + "-" + path
}

// enforceIntegrity removes models and operations that reference something
// missing until every remaining reference resolves. Models synthesized for a
// removed operation or hoisted out of a removed model go silently; the
// entity that caused their removal already carries the issue.
func enforceIntegrity(reg *ModelRegistry, schemas *SchemaResolver, ops []*OperationDescriptor) ([]*OperationDescriptor, []*EntityError) {
	var issues []*EntityError
	cause := func(missing string) error {
		if err, ok := schemas.failed[missing]; ok {
			return fmt.Errorf("depends on excluded model %s: %w", missing, err)
		}
		return &UnresolvedReferenceError{Ref: missing}
	}

	for changed := true; changed; {
		changed = false
		present := make(map[string]bool, len(ops))
		for _, op := range ops {
			present[op.OperationID] = true
		}

		models := reg.Models()
		names := make([]string, 0, len(models))
		for n := range models {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, name := range names {
			m := models[name]
			if m.Origin.Operation != "" && !present[m.Origin.Operation] {
				reg.remove(name)
				changed = true
				continue
			}
			if m.Origin.Parent != "" {
				if _, ok := models[m.Origin.Parent]; !ok {
					reg.remove(name)
					changed = true
					continue
				}
			}
			for _, e := range m.Edges() {
				if _, ok := models[e.To]; !ok {
					issues = append(issues, &EntityError{Kind: EntityModel, ID: name, Err: cause(e.To)})
					reg.remove(name)
					changed = true
					break
				}
			}
		}

		kept := ops[:0]
		for _, op := range ops {
			var missing string
			for _, ref := range op.ModelRefs() {
				if _, ok := reg.Get(ref); !ok {
					missing = ref
					break
				}
			}
			if missing == "" {
				kept = append(kept, op)
				continue
			}
			issues = append(issues, &EntityError{Kind: EntityOperation, ID: op.OperationID, Err: cause(missing)})
			changed = true
		}
		ops = kept
	}
	return ops, issues
}

func paramKey(in, name string) string { return in + ":" + name }

func safeStr(s string) string { return strings.TrimSpace(s) }
