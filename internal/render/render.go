// Package render turns view data into TypeScript source using text/template.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/mark3labs/swagger2react/internal/merge"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Header opens every generated file.
const Header = "// Code generated by swagger2react. Edit only inside custom regions."

// Kind selects a template.
type Kind string

const (
	KindConstants Kind = "constants"
	KindModel     Kind = "model"
	KindService   Kind = "service"
	KindQuery     Kind = "query"
	KindMutation  Kind = "mutation"
	KindIndex     Kind = "index"
)

// Kinds lists every template kind.
var Kinds = []Kind{KindConstants, KindModel, KindService, KindQuery, KindMutation, KindIndex}

func (k Kind) templateName() string { return string(k) + ".tmpl" }

// MandatoryRegions are the custom regions a template of kind must declare.
func MandatoryRegions(kind Kind) []string {
	switch kind {
	case KindConstants:
		return []string{"routes"}
	case KindModel:
		return []string{"extensions"}
	case KindService:
		return []string{"imports", "methods"}
	case KindQuery, KindMutation:
		return []string{"imports"}
	default:
		return nil
	}
}

// ErrTemplateRender is matched by every TemplateRenderError.
var ErrTemplateRender = errors.New("template render failed")

// TemplateRenderError is scoped to one generation unit.
type TemplateRenderError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *TemplateRenderError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("render %s template for %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("render %s template: %v", e.Kind, e.Err)
}

func (e *TemplateRenderError) Is(target error) bool { return target == ErrTemplateRender }
func (e *TemplateRenderError) Unwrap() error        { return e.Err }

// Renderer produces the content of one file from its view data.
type Renderer interface {
	Render(kind Kind, slice any) ([]byte, error)
}

// TemplateRenderer renders the embedded templates, optionally overridden from
// a directory. It is safe for concurrent use.
type TemplateRenderer struct {
	set *template.Template
}

// Option configures NewTemplateRenderer.
type Option func(*rendererConfig)

type rendererConfig struct {
	dir string
}

// WithTemplateDir overrides any embedded template whose file name
// (constants.tmpl, model.tmpl, ...) exists in dir.
func WithTemplateDir(dir string) Option { return func(c *rendererConfig) { c.dir = dir } }

// NewTemplateRenderer parses the templates.
func NewTemplateRenderer(opts ...Option) (*TemplateRenderer, error) {
	cfg := rendererConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	set, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	if cfg.dir != "" {
		if err := overrideFrom(set, cfg.dir); err != nil {
			return nil, err
		}
	}
	return &TemplateRenderer{set: set}, nil
}

func overrideFrom(set *template.Template, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("template directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("template directory %q is not a directory", dir)
	}
	for _, k := range Kinds {
		name := k.templateName()
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read template %s: %w", name, err)
		}
		if _, err := set.New(name).Parse(string(b)); err != nil {
			return &TemplateRenderError{Kind: k, Path: filepath.Join(dir, name), Err: err}
		}
	}
	return nil
}

// Render executes the template of kind. Output is normalized: trailing
// spaces are stripped, blank lines collapsed, and the file ends in one
// newline.
func (r *TemplateRenderer) Render(kind Kind, slice any) ([]byte, error) {
	if r.set.Lookup(kind.templateName()) == nil {
		return nil, &TemplateRenderError{Kind: kind, Err: fmt.Errorf("no template named %s", kind.templateName())}
	}
	var buf bytes.Buffer
	if err := r.set.ExecuteTemplate(&buf, kind.templateName(), slice); err != nil {
		return nil, &TemplateRenderError{Kind: kind, Err: err}
	}
	return tidy(buf.Bytes()), nil
}

var templateFuncs = template.FuncMap{
	"header":    func() string { return Header },
	"region":    merge.Begin,
	"endregion": merge.End,
	"join":      strings.Join,
	"quote":     quote,
	"doc":       docComment,
}

// quote renders s as a single-quoted TypeScript string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}

// docComment renders text as a JSDoc block at indent, or nothing when text
// is blank. A true deprecated flag appends a @deprecated tag.
func docComment(indent, text string, deprecated ...bool) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "*/", "*\\/"))
	if len(deprecated) > 0 && deprecated[0] {
		text = strings.TrimSpace(text + "\n@deprecated")
	}
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 1 {
		return indent + "/** " + lines[0] + " */\n"
	}
	var b strings.Builder
	b.WriteString(indent + "/**\n")
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			b.WriteString(indent + " *\n")
			continue
		}
		b.WriteString(indent + " * " + l + "\n")
	}
	b.WriteString(indent + " */\n")
	return b.String()
}

func tidy(b []byte) []byte {
	lines := strings.Split(string(b), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return []byte(strings.Join(out, "\n") + "\n")
}
