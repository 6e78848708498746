// Package tsemitter projects the Intermediate Model into a TypeScript/React
// source tree: route constants, models, services and query hooks.
package tsemitter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/swagger2react/internal/logging"
	"github.com/mark3labs/swagger2react/internal/merge"
	"github.com/mark3labs/swagger2react/internal/render"
	"github.com/mark3labs/swagger2react/internal/spec"
)

// DefaultHTTPClientImport is the module services import httpClient from,
// relative to the services directory.
const DefaultHTTPClientImport = "../lib/http-client"

// Options controls how the TypeScript emitter renders a project.
type Options struct {
	OutDir           string          // required; root of the generated tree
	HTTPClientImport string          // module providing httpClient; DefaultHTTPClientImport when empty
	Renderer         render.Renderer // embedded templates when nil
	Concurrency      int             // render/merge workers; runtime.NumCPU() when <= 0
	DryRun           bool            // merge in memory, don't write
	Logger           logging.Logger
}

// PlannedFile describes one generated file after merging.
type PlannedFile struct {
	RelPath   string
	Kind      render.Kind
	State     merge.State
	Size      int
	Changed   bool
	Written   bool
	Preserved []string
}

// Orphan is a region whose anchor disappeared from the template output. Its
// text was kept at the end of the file.
type Orphan struct {
	RelPath string
	Region  string
}

// Failure is a file that could not be rendered, merged or written.
type Failure struct {
	RelPath string
	Kind    render.Kind
	Err     error
}

// Result lists every file of the run, sorted by path.
type Result struct {
	Planned  []PlannedFile
	Orphans  []Orphan
	Failures []Failure
}

// Emit renders, merges and writes the generated tree for m. Errors that make
// the whole tree inconsistent (naming collisions, unusable output directory)
// are returned; per-file problems are collected in Result.Failures.
func Emit(ctx context.Context, m *spec.Model, opts Options) (*Result, error) {
	if m == nil {
		return nil, fmt.Errorf("tsemitter: nil Model")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("tsemitter: OutDir is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	renderer := opts.Renderer
	if renderer == nil {
		r, err := render.NewTemplateRenderer()
		if err != nil {
			return nil, fmt.Errorf("tsemitter: %w", err)
		}
		renderer = r
	}
	clientImport := strings.TrimSpace(opts.HTTPClientImport)
	if clientImport == "" {
		clientImport = DefaultHTTPClientImport
	}

	abs, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("tsemitter: resolve output directory: %w", err)
	}
	if err := validateOutputDirectory(abs); err != nil {
		return nil, err
	}

	p, err := newPlanner(m, clientImport)
	if err != nil {
		return nil, err
	}
	units := p.units()
	log.Debug("planned generation units", "units", len(units), "out", abs)

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	res := &Result{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, u := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pf, err := processUnit(abs, u, renderer, opts.DryRun)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("generation failed", "file", u.path, "error", err)
				res.Failures = append(res.Failures, Failure{RelPath: u.path, Kind: u.kind, Err: err})
				return nil
			}
			log.Debug("generated file", "file", u.path, "state", pf.State.String(), "changed", pf.Changed)
			res.Planned = append(res.Planned, pf.PlannedFile)
			for _, o := range pf.orphans {
				log.Warn("orphaned custom region kept at end of file", "file", u.path, "region", o)
				res.Orphans = append(res.Orphans, Orphan{RelPath: u.path, Region: o})
			}
			return nil
		})
	}
	waitErr := g.Wait()

	sort.Slice(res.Planned, func(i, j int) bool { return res.Planned[i].RelPath < res.Planned[j].RelPath })
	sort.Slice(res.Orphans, func(i, j int) bool {
		if res.Orphans[i].RelPath != res.Orphans[j].RelPath {
			return res.Orphans[i].RelPath < res.Orphans[j].RelPath
		}
		return res.Orphans[i].Region < res.Orphans[j].Region
	})
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].RelPath < res.Failures[j].RelPath })

	if waitErr != nil {
		return res, waitErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

type processed struct {
	PlannedFile
	orphans []string
}

func processUnit(outDir string, u unit, renderer render.Renderer, dryRun bool) (processed, error) {
	content, err := renderer.Render(u.kind, u.view)
	if err != nil {
		var te *render.TemplateRenderError
		if errors.As(err, &te) {
			te.Path = u.path
			return processed{}, te
		}
		return processed{}, &render.TemplateRenderError{Kind: u.kind, Path: u.path, Err: err}
	}

	target := filepath.Join(outDir, filepath.FromSlash(u.path))
	existing, err := merge.ReadExisting(target)
	if err != nil {
		return processed{}, fmt.Errorf("read %s: %w", u.path, err)
	}
	out, err := merge.Merge(existing, content, render.MandatoryRegions(u.kind))
	if err != nil {
		var mc *merge.MergeConflictError
		if errors.As(err, &mc) {
			mc.Path = u.path
		}
		return processed{}, err
	}

	pf := processed{
		PlannedFile: PlannedFile{
			RelPath:   u.path,
			Kind:      u.kind,
			State:     out.State,
			Size:      len(out.Content),
			Changed:   out.Changed,
			Preserved: out.Preserved,
		},
		orphans: out.Orphans,
	}
	if dryRun || !out.Changed {
		return pf, nil
	}
	written, err := merge.WriteFile(target, out.Content)
	if err != nil {
		return processed{}, fmt.Errorf("write %s: %w", u.path, err)
	}
	pf.Written = written
	return pf, nil
}

// validateOutputDirectory checks that the output path is usable. Existing
// content is expected: regeneration merges into it.
func validateOutputDirectory(absPath string) error {
	stat, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access output directory %q: %w", absPath, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("output path %q is not a directory", absPath)
	}
	return nil
}
