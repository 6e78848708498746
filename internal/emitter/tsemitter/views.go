package tsemitter

import (
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/swagger2react/internal/naming"
	"github.com/mark3labs/swagger2react/internal/render"
	"github.com/mark3labs/swagger2react/internal/spec"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

// importSet collects the imports of one file, keyed by target file.
type importSet struct {
	from    string
	names   map[string]map[string]bool
	isValue map[string]bool
}

func newImportSet(from string) *importSet {
	return &importSet{from: from, names: map[string]map[string]bool{}, isValue: map[string]bool{}}
}

func (s *importSet) add(symbol, target string, value bool) {
	if target == "" || target == s.from {
		return
	}
	if s.names[target] == nil {
		s.names[target] = map[string]bool{}
	}
	s.names[target][symbol] = true
	if value {
		s.isValue[target] = true
	}
}

func (s *importSet) list() []render.Import {
	out := make([]render.Import, 0, len(s.names))
	for target, set := range s.names {
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		sort.Strings(names)
		out = append(out, render.Import{Names: names, From: relativeImport(s.from, target), Type: !s.isValue[target]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

// relativeImport is the module specifier of file to as seen from file from.
func relativeImport(from, to string) string {
	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(from)), filepath.FromSlash(to))
	if err != nil {
		rel = to
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".ts")
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}

// typeOf renders t and records the imports it needs.
func (p *planner) typeOf(t spec.TypeRef, imports *importSet) string {
	return render.TSType(t, p.symbolFunc(imports))
}

func (p *planner) symbolFunc(imports *importSet) render.SymbolFunc {
	return func(model string) string {
		symbol, ok := p.symbols[model]
		if !ok {
			return "unknown"
		}
		imports.add(symbol, p.homes[model], false)
		return symbol
	}
}

func (p *planner) modelFileView(f *modelFile) render.ModelFileView {
	imports := newImportSet(f.path)
	views := make([]render.ModelView, 0, len(f.models)+len(f.aliases))
	for _, name := range f.models {
		views = append(views, p.modelView(p.m.Models[name], imports))
	}
	for _, a := range f.aliases {
		views = append(views, render.ModelView{Symbol: a.symbol, Type: p.typeOf(a.target, imports)})
	}
	return render.ModelFileView{Imports: imports.list(), Models: views}
}

func (p *planner) modelView(md *spec.ModelDescriptor, imports *importSet) render.ModelView {
	v := render.ModelView{Symbol: p.symbols[md.Name], Description: md.Description}
	switch md.Kind {
	case spec.ModelObject:
		v.Interface = true
		for _, prop := range md.Properties {
			t := p.typeOf(prop.Type, imports)
			if prop.Nullable {
				t += " | null"
			}
			v.Fields = append(v.Fields, render.FieldView{
				Name:        render.PropertyName(prop.Name),
				Type:        t,
				Optional:    !prop.Required,
				Description: prop.Description,
			})
		}
	case spec.ModelUnion:
		v.Type = render.UnionType(md.Union, p.symbolFunc(imports))
	default:
		v.Type = "unknown"
		if md.Alias != nil {
			v.Type = p.typeOf(*md.Alias, imports)
		}
	}
	return v
}

func (p *planner) constantsView(ops []*opInfo) render.ConstantsView {
	v := render.ConstantsView{Symbol: ops[0].constants.Symbol}
	for _, info := range ops {
		op := info.op
		r := render.RouteView{Name: info.hook.RouteConstant, Summary: op.Summary}
		if len(op.PathParams) == 0 {
			r.Path = op.Path
		} else {
			args := routeArgs(op.PathParams)
			sig := make([]string, len(args))
			for i, a := range args {
				sig[i] = a + ": string | number"
			}
			r.Signature = strings.Join(sig, ", ")
			r.Template = routeTemplate(op.Path, op.PathParams, args)
		}
		v.Routes = append(v.Routes, r)
	}
	return v
}

// routeArgs are the argument names of a parameterized route function.
func routeArgs(params []spec.PathParam) []string {
	args := make([]string, len(params))
	taken := map[string]bool{}
	for i, pp := range params {
		a := naming.ToCamelCase(pp.Name)
		if a == "" || (a[0] >= '0' && a[0] <= '9') {
			a = "param" + a
		}
		base := a
		for n := 2; taken[a]; n++ {
			a = base + strconv.Itoa(n)
		}
		taken[a] = true
		args[i] = a
	}
	return args
}

func routeTemplate(p string, params []spec.PathParam, args []string) string {
	argOf := make(map[string]string, len(params))
	for i, pp := range params {
		argOf[pp.Name] = args[i]
	}
	var b strings.Builder
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(p, -1) {
		b.WriteString(escapeTemplateLiteral(p[last:loc[0]]))
		name := strings.TrimSpace(p[loc[2]:loc[3]])
		if arg, ok := argOf[name]; ok {
			b.WriteString("${encodeURIComponent(String(" + arg + "))}")
		} else {
			b.WriteString(escapeTemplateLiteral(p[loc[0]:loc[1]]))
		}
		last = loc[1]
	}
	b.WriteString(escapeTemplateLiteral(p[last:]))
	return b.String()
}

func escapeTemplateLiteral(s string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`", "${", "\\${").Replace(s)
}

func pathParamType(t string) string {
	switch t {
	case spec.PrimInteger, spec.PrimNumber:
		return "number"
	case spec.PrimBoolean:
		return "boolean"
	default:
		return "string"
	}
}

func (p *planner) serviceView(ops []*opInfo) render.ServiceView {
	first := ops[0]
	imports := newImportSet(first.service.Path)
	imports.add(first.constants.Symbol, first.constants.Path, true)
	v := render.ServiceView{ClientImport: p.clientImport, Symbol: first.service.Symbol}
	for _, info := range ops {
		v.Methods = append(v.Methods, p.methodView(info, imports))
	}
	v.Imports = imports.list()
	return v
}

func (p *planner) methodView(info *opInfo, imports *importSet) render.MethodView {
	op := info.op
	m := render.MethodView{
		Name:       info.method,
		Summary:    op.Summary,
		Deprecated: op.Deprecated,
		Method:     string(op.Method),
		Response:   "void",
		URL:        info.constants.Symbol + "." + info.hook.RouteConstant,
		Auth:       op.RequiresAuth,
	}

	var fields []string
	if len(op.PathParams) > 0 {
		members := make([]string, len(op.PathParams))
		access := make([]string, len(op.PathParams))
		for i, pp := range op.PathParams {
			key := render.PropertyName(pp.Name)
			members[i] = key + ": " + pathParamType(pp.Type)
			if key == pp.Name {
				access[i] = "request.path." + pp.Name
			} else {
				access[i] = "request.path[" + key + "]"
			}
		}
		fields = append(fields, "path: { "+strings.Join(members, "; ")+" }")
		m.URL += "(" + strings.Join(access, ", ") + ")"
	}
	if plan, ok := info.roles[spec.RoleQuery]; ok {
		imports.add(plan.Symbol, plan.Path, false)
		optional := "?"
		if md := p.m.Models[op.QueryParamsRef]; md != nil && len(md.Required) > 0 {
			optional = ""
		}
		fields = append(fields, "query"+optional+": "+plan.Symbol)
		m.Query = true
	}
	if plan, ok := info.roles[spec.RoleIn]; ok {
		imports.add(plan.Symbol, plan.Path, false)
		fields = append(fields, "body: "+plan.Symbol)
		m.Body = true
	}
	if plan, ok := info.roles[spec.RoleOut]; ok {
		imports.add(plan.Symbol, plan.Path, false)
		m.Response = plan.Symbol
	}
	if len(fields) > 0 {
		m.Request = "{ " + strings.Join(fields, "; ") + " }"
	}
	return m
}

func (p *planner) hookView(info *opInfo) render.HookView {
	imports := newImportSet(info.hook.Path)
	imports.add(info.service.Symbol, info.service.Path, true)
	v := render.HookView{
		Symbol:     info.hook.Symbol,
		Summary:    info.op.Summary,
		Tag:        info.tag,
		Service:    info.service.Symbol,
		Method:     info.method,
		HasRequest: len(info.op.PathParams) > 0 || hasInput(info),
		Response:   "void",
	}
	if plan, ok := info.roles[spec.RoleOut]; ok {
		imports.add(plan.Symbol, plan.Path, false)
		v.Response = plan.Symbol
	}
	v.Imports = imports.list()
	return v
}

func hasInput(info *opInfo) bool {
	_, query := info.roles[spec.RoleQuery]
	_, body := info.roles[spec.RoleIn]
	return query || body
}
