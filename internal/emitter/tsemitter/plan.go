package tsemitter

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/swagger2react/internal/naming"
	"github.com/mark3labs/swagger2react/internal/render"
	"github.com/mark3labs/swagger2react/internal/spec"
)

// commonTag owns models no operation reaches.
const commonTag = "common"

// unit is one file to render and merge.
type unit struct {
	path string
	kind render.Kind
	view any
}

type roleSlot struct {
	kind naming.Kind
	role spec.Role
	ref  func(*spec.OperationDescriptor) string
}

var roleSlots = []roleSlot{
	{naming.KindModelQuery, spec.RoleQuery, func(o *spec.OperationDescriptor) string { return o.QueryParamsRef }},
	{naming.KindModelIn, spec.RoleIn, func(o *spec.OperationDescriptor) string { return o.RequestBodyRef }},
	{naming.KindModelOut, spec.RoleOut, func(o *spec.OperationDescriptor) string { return o.ResponseBodyRef }},
}

type opInfo struct {
	op        *spec.OperationDescriptor
	tag       string
	constants naming.Plan
	service   naming.Plan
	hook      naming.Plan
	hookKind  render.Kind
	roles     map[spec.Role]naming.Plan
	method    string
}

// alias is a type alias declared in a model file.
type alias struct {
	symbol string
	target spec.TypeRef
}

type modelFile struct {
	path    string
	models  []string
	aliases []alias
}

// planner derives every name and file of the tree before anything is
// rendered, so a naming collision aborts the run with nothing written.
type planner struct {
	m            *spec.Model
	reg          *naming.Registry
	clientImport string

	symbols map[string]string // model -> exported symbol
	homes   map[string]string // model -> file declaring it
	files   map[string]*modelFile

	ops     []*opInfo
	opByID  map[string]*opInfo
	tagOps  map[string][]*opInfo
	methods map[string]map[string]bool // tag -> taken service method names
}

func isRoleModel(md *spec.ModelDescriptor) bool {
	return md.Origin.Operation != "" && md.Origin.Role != spec.RoleNone
}

func newPlanner(m *spec.Model, clientImport string) (*planner, error) {
	p := &planner{
		m:            m,
		reg:          naming.NewRegistry(),
		clientImport: clientImport,
		symbols:      make(map[string]string),
		homes:        make(map[string]string),
		files:        make(map[string]*modelFile),
		opByID:       make(map[string]*opInfo),
		tagOps:       make(map[string][]*opInfo),
		methods:      make(map[string]map[string]bool),
	}

	names := m.ModelNames()
	for _, name := range names {
		if isRoleModel(m.Models[name]) {
			continue
		}
		if err := p.reg.ClaimModel(name); err != nil {
			return nil, err
		}
		p.symbols[name] = name
	}

	for _, op := range m.Operations {
		if err := p.planOperation(op); err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		if _, ok := p.symbols[name]; !ok {
			// role model no operation slot claimed
			if err := p.reg.ClaimModel(name); err != nil {
				return nil, err
			}
			p.symbols[name] = name
		}
	}
	for _, name := range names {
		if _, ok := p.homes[name]; ok {
			continue
		}
		home, err := p.homeOf(name)
		if err != nil {
			return nil, err
		}
		p.homes[name] = home
		p.file(home).models = append(p.file(home).models, name)
	}
	p.sortFileModels()
	return p, nil
}

func (p *planner) file(path string) *modelFile {
	f, ok := p.files[path]
	if !ok {
		f = &modelFile{path: path}
		p.files[path] = f
	}
	return f
}

func (p *planner) planOperation(op *spec.OperationDescriptor) error {
	info := &opInfo{op: op, tag: naming.TagSegment(op.Tag), roles: make(map[spec.Role]naming.Plan)}
	var err error
	if info.constants, err = p.reg.Plan(naming.Entity{Tag: op.Tag, Kind: naming.KindConstants}); err != nil {
		return err
	}
	if info.service, err = p.reg.Plan(naming.Entity{Tag: op.Tag, Kind: naming.KindService}); err != nil {
		return err
	}

	hookKind := naming.KindMutation
	info.hookKind = render.KindMutation
	if op.Method == spec.GET {
		hookKind = naming.KindQueryHook
		info.hookKind = render.KindQuery
	}
	if info.hook, err = p.reg.Plan(naming.Entity{Tag: op.Tag, OperationID: op.OperationID, Kind: hookKind}); err != nil {
		return err
	}

	for _, slot := range roleSlots {
		ref := slot.ref(op)
		if ref == "" {
			continue
		}
		plan, err := p.reg.Plan(naming.Entity{Tag: op.Tag, OperationID: op.OperationID, Kind: slot.kind})
		if err != nil {
			return err
		}
		info.roles[slot.role] = plan
		md := p.m.Models[ref]
		if md != nil && md.Origin.Operation == op.OperationID && md.Origin.Role == slot.role {
			p.symbols[ref] = plan.Symbol
			p.homes[ref] = plan.Path
			p.file(plan.Path).models = append(p.file(plan.Path).models, ref)
			continue
		}
		f := p.file(plan.Path)
		f.aliases = append(f.aliases, alias{symbol: plan.Symbol, target: spec.RefTo(ref)})
	}

	if op.IsPaginated {
		result, err := p.reg.Plan(naming.Entity{Tag: op.Tag, OperationID: op.OperationID, Kind: naming.KindModelResult})
		if err != nil {
			return err
		}
		record, err := p.reg.Plan(naming.Entity{Tag: op.Tag, OperationID: op.OperationID, Kind: naming.KindModelRecord})
		if err != nil {
			return err
		}
		target := spec.Primitive(spec.PrimUnknown)
		if op.ResponseBodyRef != "" {
			target = spec.RefTo(op.ResponseBodyRef)
		}
		f := p.file(result.Path)
		f.aliases = append(f.aliases, alias{symbol: result.Symbol, target: target})
		f = p.file(record.Path)
		f.aliases = append(f.aliases, alias{symbol: record.Symbol, target: recordElement(p.m.Models, op.ResponseBodyRef)})
	}

	info.method = p.methodName(info.tag, op.OperationID)
	p.ops = append(p.ops, info)
	p.opByID[op.OperationID] = info
	p.tagOps[info.tag] = append(p.tagOps[info.tag], info)
	return nil
}

// methodName is the service property of an operation, unique within its tag.
func (p *planner) methodName(tag, operationID string) string {
	taken := p.methods[tag]
	if taken == nil {
		taken = make(map[string]bool)
		p.methods[tag] = taken
	}
	base := naming.ToCamelCase(operationID)
	if base == "" {
		base = "call"
	}
	name := base
	for i := 2; taken[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	taken[name] = true
	return name
}

// homeOf picks the file declaring a model that is not an operation slot.
// Hoisted models live with their outermost parent; component models live in
// the base file of the first operation that reaches them.
func (p *planner) homeOf(name string) (string, error) {
	root := name
	seen := map[string]bool{}
	for {
		md := p.m.Models[root]
		if md == nil || md.Origin.Parent == "" || seen[root] {
			break
		}
		seen[root] = true
		root = md.Origin.Parent
	}
	if root != name {
		if home, ok := p.homes[root]; ok {
			return home, nil
		}
	}

	tag := commonTag
	if p.m.Graph != nil {
		for _, id := range p.m.Graph.Lineage(root) {
			if info := p.opByID[id]; info != nil {
				tag = info.op.Tag
				break
			}
		}
	}
	plan, err := p.reg.Plan(naming.Entity{Tag: tag, Kind: naming.KindBaseModel})
	if err != nil {
		return "", err
	}
	return plan.Path, nil
}

// sortFileModels orders each file so a model follows the models it contains.
func (p *planner) sortFileModels() {
	rank := make(map[string]int, len(p.m.ModelOrder))
	for i, name := range p.m.ModelOrder {
		rank[name] = i
	}
	for _, f := range p.files {
		sort.SliceStable(f.models, func(i, j int) bool {
			ri, oki := rank[f.models[i]]
			rj, okj := rank[f.models[j]]
			switch {
			case oki && okj:
				return ri < rj
			case oki != okj:
				return oki
			default:
				return f.models[i] < f.models[j]
			}
		})
	}
}

// recordElement is the item type of a paginated response: the element of
// its single array property, or of the array it aliases.
func recordElement(models map[string]*spec.ModelDescriptor, ref string) spec.TypeRef {
	unknown := spec.Primitive(spec.PrimUnknown)
	md := models[ref]
	for hops := 0; md != nil && md.Kind == spec.ModelAlias && hops <= len(models); hops++ {
		switch {
		case md.Alias == nil:
			return unknown
		case md.Alias.Kind == spec.KindArray && md.Alias.Elem != nil:
			return *md.Alias.Elem
		case md.Alias.Kind == spec.KindRef:
			md = models[md.Alias.Name]
		default:
			return unknown
		}
	}
	if md == nil || md.Kind != spec.ModelObject {
		return unknown
	}
	var elem *spec.TypeRef
	arrays := 0
	for _, prop := range md.Properties {
		if prop.Type.Kind == spec.KindArray {
			arrays++
			elem = prop.Type.Elem
		}
	}
	if arrays != 1 || elem == nil {
		return unknown
	}
	return *elem
}

// units returns every file of the tree sorted by path.
func (p *planner) units() []unit {
	var out []unit
	tags := make([]string, 0, len(p.tagOps))
	for tag := range p.tagOps {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		ops := p.tagOps[tag]
		out = append(out,
			unit{path: ops[0].constants.Path, kind: render.KindConstants, view: p.constantsView(ops)},
			unit{path: ops[0].service.Path, kind: render.KindService, view: p.serviceView(ops)},
		)
	}
	for _, info := range p.ops {
		out = append(out, unit{path: info.hook.Path, kind: info.hookKind, view: p.hookView(info)})
	}
	for _, f := range p.files {
		out = append(out, unit{path: f.path, kind: render.KindModel, view: p.modelFileView(f)})
	}

	paths := make([]string, len(out))
	for i, u := range out {
		paths[i] = u.path
	}
	out = append(out, indexUnits(paths)...)
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// indexUnits builds one index.ts per directory re-exporting its files and
// subdirectories.
func indexUnits(paths []string) []unit {
	exports := map[string]map[string]bool{}
	add := func(dir, specifier string) {
		if exports[dir] == nil {
			exports[dir] = map[string]bool{}
		}
		exports[dir][specifier] = true
	}
	for _, p := range paths {
		dir := path.Dir(p)
		add(dir, "./"+strings.TrimSuffix(path.Base(p), ".ts"))
		for d := dir; d != "."; d = path.Dir(d) {
			add(path.Dir(d), "./"+path.Base(d))
		}
	}
	out := make([]unit, 0, len(exports))
	for dir, set := range exports {
		list := make([]string, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Strings(list)
		out = append(out, unit{path: path.Join(dir, "index.ts"), kind: render.KindIndex, view: render.IndexView{Exports: list}})
	}
	return out
}
