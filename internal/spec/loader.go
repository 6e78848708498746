package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	version "github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/swagger2react/internal/logging"
)

// Document formats.
const (
	FormatOpenAPI = "openapi"
	FormatSwagger = "swagger"
)

// Document is a loaded API description together with what the typed model
// loses: the raw bytes and the declaration order of operations.
type Document struct {
	T        *openapi3.T
	Raw      []byte
	Version  *version.Version
	Format   string
	Location string
	// Order lists operations as declared in the source document.
	Order []OperationKey
	// Permissive is set when dangling references prevented full resolution
	// and the document was decoded without them.
	Permissive bool
}

// Operations returns every operation of T in declaration order. Operations
// the raw scan missed, such as those from external path items, follow in
// path and method order.
func (d *Document) Operations() []OperationKey {
	if d == nil || d.T == nil {
		return nil
	}
	seen := make(map[OperationKey]bool)
	var out []OperationKey
	for _, k := range d.Order {
		if item := d.T.Paths[k.Path]; item != nil && item.GetOperation(string(k.Method)) != nil && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	paths := make([]string, 0, len(d.T.Paths))
	for p := range d.T.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		item := d.T.Paths[p]
		if item == nil {
			continue
		}
		for _, m := range methodOrder {
			k := OperationKey{Path: p, Method: m}
			if item.GetOperation(string(m)) != nil && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

var methodOrder = []HTTPMethod{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS, TRACE}

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// AllowFileRefs controls whether file:// refs are allowed for external references.
	// Default false, but automatically allowed when the root input is a local file
	// to enable typical multi-file specs.
	AllowFileRefs bool
	Logger        logging.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Logger:      logging.Nop(),
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option            { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }
func WithAllowFileRefs(allow bool) Option    { return func(s *Settings) { s.AllowFileRefs = allow } }
func WithLogger(l logging.Logger) Option     { return func(s *Settings) { s.Logger = l } }

// Load reads and validates an OpenAPI v3 or Swagger v2 document. Swagger
// input is converted to v3 via openapi2conv.
//
// input may be a filesystem path or an http/https URL. file:// URLs are blocked
// by default (use WithAllowFileRefs(true) when loading from local files and you
// want to permit file-based external refs).
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}
	settings := settingsFrom(opts)

	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""
	if uerr == nil && strings.EqualFold(u.Scheme, "file") {
		return nil, &SpecError{Code: InputError, Message: "spec: file:// URLs are blocked by default", Location: input}
	}

	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		raw, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		return load(ctx, raw, input, settings, func(l *openapi3.Loader) (*openapi3.T, error) {
			return l.LoadFromDataWithPath(raw, u)
		}, false)
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}
	return load(ctx, raw, abs, settings, func(l *openapi3.Loader) (*openapi3.T, error) {
		return l.LoadFromFile(abs)
	}, true)
}

// LoadData loads a document held in memory. External references are not
// followed.
func LoadData(ctx context.Context, raw []byte, location string, opts ...Option) (*Document, error) {
	settings := settingsFrom(opts)
	return load(ctx, raw, location, settings, func(l *openapi3.Loader) (*openapi3.T, error) {
		return l.LoadFromData(raw)
	}, false)
}

func settingsFrom(opts []Option) Settings {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Logger == nil {
		settings.Logger = logging.Nop()
	}
	return settings
}

func load(ctx context.Context, raw []byte, location string, settings Settings, loadV3 func(*openapi3.Loader) (*openapi3.T, error), rootIsFile bool) (*Document, error) {
	log := settings.Logger
	format, ver, err := detectSpecVersion(raw)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: err.Error(), Location: location, Cause: err}
	}
	doc := &Document{Raw: raw, Version: ver, Format: format, Location: location, Order: declarationOrder(raw)}

	switch format {
	case FormatOpenAPI:
		t, err := loadV3(newLoader(settings, rootIsFile))
		if err != nil {
			if !isRefResolutionError(err) {
				return nil, mapValidateOrParseErr(err, location)
			}
			log.Warn("dangling references; continuing without them", "location", location, "error", err)
			t, err = decodePermissive(raw)
			if err != nil {
				return nil, mapValidateOrParseErr(err, location)
			}
			doc.Permissive = true
		}
		doc.T = t
	case FormatSwagger:
		if fixed, fixes, _ := rewriteSwagger2(raw); len(fixes) > 0 {
			for _, f := range fixes {
				log.Warn("rewrote swagger operation for conversion", "operation", f.Key.String(), "fix", f.Reason)
			}
			raw = fixed
		}
		t, err := convertV2ToV3(raw)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: location, Cause: err}
		}
		if err := newLoader(settings, rootIsFile).ResolveRefsIn(t, nil); err != nil {
			log.Warn("failed to resolve refs after conversion", "location", location, "error", err)
			doc.Permissive = true
		}
		doc.T = t
	}

	if !doc.Permissive {
		if err := doc.T.Validate(ctx); err != nil {
			if !canProceedDespiteValidation(err) {
				return nil, mapValidateOrParseErr(err, location)
			}
			log.Warn("validation found unresolved refs; proceeding", "location", location)
		}
	}
	log.Debug("loaded document", "location", location, "format", format, "version", ver.String(), "operations", len(doc.Operations()))
	return doc, nil
}

func newLoader(settings Settings, rootIsFile bool) *openapi3.Loader {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	client := &http.Client{Timeout: settings.HTTPTimeout}
	// Allow file refs only when configured or when loading from a local file root.
	allowFile := settings.AllowFileRefs || rootIsFile
	loader.ReadFromURIFunc = func(l *openapi3.Loader, uri *url.URL) ([]byte, error) {
		switch strings.ToLower(uri.Scheme) {
		case "", "file":
			if !allowFile {
				return nil, fmt.Errorf("blocked file ref: %s", uri.String())
			}
			path := uri.Path
			if path == "" {
				path = uri.Opaque
			}
			return os.ReadFile(path)
		case "http", "https":
			req, err := http.NewRequest("GET", uri.String(), nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, uri.String())
			}
			return io.ReadAll(resp.Body)
		default:
			return nil, fmt.Errorf("unsupported ref scheme: %s", uri.Scheme)
		}
	}
	return loader
}

var (
	minOpenAPI = version.Must(version.NewVersion("3.0.0"))
	maxOpenAPI = version.Must(version.NewVersion("4.0.0"))
)

// detectSpecVersion reads the openapi or swagger field.
func detectSpecVersion(data []byte) (string, *version.Version, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", nil, fmt.Errorf("parse spec: %w", err)
	}
	if v, ok := root["openapi"]; ok {
		ver, err := version.NewVersion(strings.TrimSpace(fmt.Sprint(v)))
		if err == nil && ver.GreaterThanOrEqual(minOpenAPI) && ver.LessThan(maxOpenAPI) {
			return FormatOpenAPI, ver, nil
		}
	}
	if v, ok := root["swagger"]; ok {
		ver, err := version.NewVersion(strings.TrimSpace(fmt.Sprint(v)))
		if err == nil && ver.Segments()[0] == 2 {
			return FormatSwagger, ver, nil
		}
	}
	return "", nil, fmt.Errorf("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

func convertV2ToV3(data []byte) (*openapi3.T, error) {
	js, err := yamlToJSON(data)
	if err != nil {
		return nil, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(js, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

// decodePermissive decodes the document without resolving references.
func decodePermissive(data []byte) (*openapi3.T, error) {
	js, err := yamlToJSON(data)
	if err != nil {
		return nil, err
	}
	t := &openapi3.T{}
	if err := t.UnmarshalJSON(js); err != nil {
		return nil, err
	}
	return t, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	return json.Marshal(stringKeys(v))
}

// stringKeys converts YAML maps with non-string keys, such as unquoted
// status codes, into JSON-compatible maps.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = stringKeys(val)
		}
		return x
	}
	return v
}

// declarationOrder scans the raw document for path and method keys in the
// order they are written.
func declarationOrder(data []byte) []OperationKey {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		return nil
	}
	paths := mappingValue(root.Content[0], "paths")
	if paths == nil || paths.Kind != yaml.MappingNode {
		return nil
	}
	var out []OperationKey
	for i := 0; i+1 < len(paths.Content); i += 2 {
		path, item := paths.Content[i].Value, paths.Content[i+1]
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			m := HTTPMethod(strings.ToUpper(item.Content[j].Value))
			if isMethod(m) {
				out = append(out, OperationKey{Path: path, Method: m})
			}
		}
	}
	return out
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func isMethod(m HTTPMethod) bool {
	for _, x := range methodOrder {
		if x == m {
			return true
		}
	}
	return false
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil && resp.StatusCode < 300 {
			defer resp.Body.Close()
			return io.ReadAll(resp.Body)
		}
		if err != nil {
			lastErr = err
		} else {
			defer resp.Body.Close()
			if resp.StatusCode >= 500 || resp.StatusCode == 429 {
				lastErr = fmt.Errorf("transient http error %d", resp.StatusCode)
			} else {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
		}
		settings.Logger.Debug("fetch attempt failed", "url", rawURL, "attempt", i+1, "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

func mapValidateOrParseErr(err error, location string) error {
	pointer := extractJSONPointer(err)
	code := ValidationError
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "parse") || strings.Contains(msg, "invalid character") || strings.Contains(msg, "unmarshal") {
		code = ParseError
	}
	return &SpecError{Code: code, Message: err.Error(), Location: location, JSONPointer: pointer, Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'\"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	// Unwrap MultiError and take the first for brevity.
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}

// isRefResolutionError reports loader failures caused by references whose
// targets are missing.
func isRefResolutionError(err error) bool {
	s := strings.ToLower(err.Error())
	for _, marker := range []string{"error resolving reference", "resolving ref", "not found", "bad data in", "unresolved ref"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// canProceedDespiteValidation returns true for validation errors where a
// best-effort build can still proceed. Unresolved $ref entries and
// undeclared path parameters are reported per operation by BuildModel;
// duplicate operation ids are replaced there.
func canProceedDespiteValidation(err error) bool {
	if err == nil {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, marker := range []string{"unresolved ref", "must define exactly all path parameters", "have the same operation id"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
