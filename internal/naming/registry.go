package naming

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-openapi/inflect"
)

// ErrNamingCollision reports two entities that derive the same name even after
// disambiguation.
var ErrNamingCollision = errors.New("naming collision")

// NamingCollisionError names both entities competing for a symbol or path.
type NamingCollisionError struct {
	Name   string
	First  string
	Second string
}

func (e *NamingCollisionError) Error() string {
	return fmt.Sprintf("naming collision: %q is derived by both %s and %s", e.Name, e.First, e.Second)
}

func (e *NamingCollisionError) Is(target error) bool { return target == ErrNamingCollision }

// Kind selects the convention used to derive names for an entity.
type Kind string

const (
	KindConstants   Kind = "constants"
	KindModelIn     Kind = "model-in"
	KindModelOut    Kind = "model-out"
	KindModelQuery  Kind = "model-query"
	KindModelResult Kind = "model-result"
	KindModelRecord Kind = "model-record"
	KindBaseModel   Kind = "base-model"
	KindService     Kind = "service"
	KindQueryHook   Kind = "query-hook"
	KindMutation    Kind = "mutation-hook"
)

// DefaultTag groups operations that declare no tag.
const DefaultTag = "default"

// Entity identifies one generated artifact. Tag-level kinds (constants, base
// model, service) leave OperationID empty.
type Entity struct {
	Tag         string
	OperationID string
	Kind        Kind
}

func (e Entity) owner() string {
	if e.OperationID == "" {
		return fmt.Sprintf("tag %q", e.Tag)
	}
	return fmt.Sprintf("operation %q (tag %q)", e.OperationID, e.Tag)
}

// Plan is the full set of names derived for one entity.
type Plan struct {
	Entity Entity
	// Path is slash separated and relative to the output root.
	Path string
	// Symbol is the primary exported identifier of the file.
	Symbol string
	// RouteConstant is set for operation-level kinds.
	RouteConstant string
}

// Registry memoizes plans and enforces global uniqueness of symbols and
// paths. A Registry belongs to one run and is not safe for concurrent use.
type Registry struct {
	plans   map[Entity]Plan
	symbols map[string]string
	paths   map[string]string

	segments  map[string]string // segment -> operation key
	segmentOf map[string]string // operation key -> segment
	routeOf   map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plans:     make(map[Entity]Plan),
		symbols:   make(map[string]string),
		paths:     make(map[string]string),
		segments:  make(map[string]string),
		segmentOf: make(map[string]string),
		routeOf:   make(map[string]string),
	}
}

// TagSegment is the directory and file segment for a tag.
func TagSegment(tag string) string {
	seg := ToKebabCase(tag)
	if seg == "" {
		return DefaultTag
	}
	return seg
}

// EntitySegment is the singular form of a tag, used for base model files.
func EntitySegment(tag string) string {
	return inflect.Singularize(TagSegment(tag))
}

// ClaimModel reserves a model identifier in the symbol space. Models are
// claimed before operation plans so their names never move.
func (r *Registry) ClaimModel(name string) error {
	owner := fmt.Sprintf("model %q", name)
	if prev, ok := r.symbols[name]; ok && prev != owner {
		return &NamingCollisionError{Name: name, First: prev, Second: owner}
	}
	r.symbols[name] = owner
	return nil
}

// Plan returns the names for e, deriving and registering them on first use.
func (r *Registry) Plan(e Entity) (Plan, error) {
	e.Tag = TagSegment(e.Tag)
	if p, ok := r.plans[e]; ok {
		return p, nil
	}
	p, err := r.derive(e)
	if err != nil {
		return Plan{}, err
	}
	r.plans[e] = p
	return p, nil
}

func (r *Registry) derive(e Entity) (Plan, error) {
	tag := e.Tag
	p := Plan{Entity: e}
	claimSymbol := true
	switch e.Kind {
	case KindConstants:
		p.Path = path.Join("constants", tag+".constant.ts")
		p.Symbol = ToScreamingSnake(tag) + "_ROUTES"
	case KindBaseModel:
		entity := EntitySegment(tag)
		p.Path = path.Join("models", tag, entity+"-data.model.ts")
		p.Symbol = ToPascalCase(entity) + "Data"
		// the base file exports its models, never this symbol
		claimSymbol = false
	case KindService:
		p.Path = path.Join("services", tag+".service.ts")
		p.Symbol = ToCamelCase(tag) + "Service"
	case KindModelIn, KindModelOut, KindModelQuery, KindModelResult, KindModelRecord, KindQueryHook, KindMutation:
		if e.OperationID == "" {
			return Plan{}, fmt.Errorf("naming: %s requires an operation id", e.Kind)
		}
		seg, err := r.operationSegment(e)
		if err != nil {
			return Plan{}, err
		}
		route, err := r.routeConstant(e)
		if err != nil {
			return Plan{}, err
		}
		p.RouteConstant = route
		p.Path, p.Symbol = operationNames(tag, seg, e)
	default:
		return Plan{}, fmt.Errorf("naming: unknown entity kind %q", e.Kind)
	}

	owner := e.owner()
	if prev, ok := r.paths[p.Path]; ok && prev != owner {
		return Plan{}, &NamingCollisionError{Name: p.Path, First: prev, Second: owner}
	}
	if claimSymbol {
		if err := r.claimSymbol(&p); err != nil {
			return Plan{}, err
		}
	}
	r.paths[p.Path] = owner
	return p, nil
}

func operationNames(tag, seg string, e Entity) (string, string) {
	base := ToPascalCase(seg)
	switch e.Kind {
	case KindModelIn:
		return modelPath(tag, seg, "in"), base + "InData"
	case KindModelOut:
		return modelPath(tag, seg, "out"), base + "OutData"
	case KindModelQuery:
		return modelPath(tag, seg, "query"), base + "QueryData"
	case KindModelResult:
		return modelPath(tag, seg, "result"), base + "ResultData"
	case KindModelRecord:
		return modelPath(tag, seg, "record"), base + "RecordData"
	case KindQueryHook:
		return path.Join("queries", tag, "use-"+seg+"-query.query.ts"), "use" + base + "Query"
	default:
		return path.Join("queries", tag, "use-"+seg+"-mutation.query.ts"), "use" + base + "Mutation"
	}
}

func modelPath(tag, seg, role string) string {
	return path.Join("models", tag, seg, seg+"-"+role+"-data.model.ts")
}

func operationKey(e Entity) string { return e.Tag + "\x00" + e.OperationID }

// operationSegment is the kebab file segment of an operation, shared by every
// kind derived from it. A second operation landing on a taken segment gets the
// tag as a prefix.
func (r *Registry) operationSegment(e Entity) (string, error) {
	key := operationKey(e)
	if seg, ok := r.segmentOf[key]; ok {
		return seg, nil
	}
	seg := ToKebabCase(e.OperationID)
	if _, taken := r.segments[seg]; taken {
		seg = e.Tag + "-" + seg
		if prev, still := r.segments[seg]; still {
			return "", &NamingCollisionError{Name: seg, First: describeKey(prev), Second: e.owner()}
		}
	}
	r.segments[seg] = key
	r.segmentOf[key] = seg
	return seg, nil
}

func (r *Registry) routeConstant(e Entity) (string, error) {
	key := operationKey(e)
	if name, ok := r.routeOf[key]; ok {
		return name, nil
	}
	owner := e.owner()
	name := ToScreamingSnake(e.OperationID)
	if prev, taken := r.symbols[name]; taken {
		name = ToScreamingSnake(e.Tag) + "_" + name
		if _, still := r.symbols[name]; still {
			return "", &NamingCollisionError{Name: name, First: prev, Second: owner}
		}
	}
	r.routeOf[key] = name
	r.symbols[name] = owner
	return name, nil
}

// claimSymbol registers p.Symbol. Operation symbols that are already taken get
// the tag as a prefix; tag-level symbols already carry the tag.
func (r *Registry) claimSymbol(p *Plan) error {
	owner := p.Entity.owner()
	prev, taken := r.symbols[p.Symbol]
	if !taken || prev == owner {
		r.symbols[p.Symbol] = owner
		return nil
	}
	if p.Entity.OperationID == "" {
		return &NamingCollisionError{Name: p.Symbol, First: prev, Second: owner}
	}
	prefixed := ToPascalCase(p.Entity.Tag) + p.Symbol
	if rest, ok := strings.CutPrefix(p.Symbol, "use"); ok {
		prefixed = "use" + ToPascalCase(p.Entity.Tag) + rest
	}
	if _, still := r.symbols[prefixed]; still {
		return &NamingCollisionError{Name: p.Symbol, First: prev, Second: owner}
	}
	p.Symbol = prefixed
	r.symbols[prefixed] = owner
	return nil
}

func describeKey(key string) string {
	tag, op, _ := strings.Cut(key, "\x00")
	return Entity{Tag: tag, OperationID: op}.owner()
}
