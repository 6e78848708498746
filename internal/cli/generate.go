package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/swagger2react/internal/emitter/tsemitter"
	"github.com/mark3labs/swagger2react/internal/logging"
	"github.com/mark3labs/swagger2react/internal/render"
	"github.com/mark3labs/swagger2react/internal/report"
	"github.com/mark3labs/swagger2react/internal/sheet"
	genspec "github.com/mark3labs/swagger2react/internal/spec"
)

const (
	defaultOut       = "src/api"
	defaultSheetsOut = "docs/api"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input            string
	Out              string
	SheetsOut        string
	IncludeTags      []string
	ExcludeTags      []string
	Templates        string
	HTTPClientImport string
	Concurrency      int
	ConfigPath       string
	DryRun           bool
	SkipSheets       bool
	SkipCode         bool
	Verbose          bool
	LogFile          string

	// Stdout receives the run summary; Stderr the console log.
	Stdout io.Writer
	Stderr io.Writer
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Out:              defaultOut,
		SheetsOut:        defaultSheetsOut,
		HTTPClientImport: tsemitter.DefaultHTTPClientImport,
	}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate API sheets and a React client from an OpenAPI/Swagger document",
		Long: "Generate apis.xlsx, models.xlsx and a TypeScript React client from an OpenAPI/Swagger document. " +
			"Options can be provided via flags, config files, or defaults. " +
			"Existing files are merged: code between custom region markers is kept.",
		Example: strings.TrimSpace(`  swagger2react generate --input openapi.yaml --out ./src/api
  swagger2react --config swagger2react.yaml generate --dry-run
  swagger2react generate --input https://example.com/swagger.json --include-tags users,orgs --skip-sheets`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Stdout = cmd.OutOrStdout()
			cfg.Stderr = cmd.ErrOrStderr()
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document")
	flags.String("out", "", "Root directory of the generated TypeScript tree (default "+defaultOut+")")
	flags.String("sheets-out", "", "Directory for apis.xlsx and models.xlsx (default "+defaultSheetsOut+")")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.String("templates", "", "Directory with template overrides (<kind>.tmpl)")
	flags.String("http-client-import", "", "Module specifier of the app's httpClient, relative to services/")
	flags.Int("concurrency", 0, "Files generated in parallel (default: number of CPUs)")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("skip-sheets", false, "Do not write the spreadsheets")
	flags.Bool("skip-code", false, "Do not generate the TypeScript tree")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"out", &cfg.Out},
		{"sheets-out", &cfg.SheetsOut},
		{"templates", &cfg.Templates},
		{"http-client-import", &cfg.HTTPClientImport},
		{"log-file", &cfg.LogFile},
	}
	for _, s := range strs {
		if !flags.Changed(s.name) {
			continue
		}
		value, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}

	if flags.Changed("include-tags") {
		value, err := flags.GetStringSlice("include-tags")
		if err != nil {
			return err
		}
		cfg.IncludeTags = sanitizeTags(value)
	}
	if flags.Changed("exclude-tags") {
		value, err := flags.GetStringSlice("exclude-tags")
		if err != nil {
			return err
		}
		cfg.ExcludeTags = sanitizeTags(value)
	}
	if flags.Changed("concurrency") {
		value, err := flags.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = value
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"dry-run", &cfg.DryRun},
		{"skip-sheets", &cfg.SkipSheets},
		{"skip-code", &cfg.SkipCode},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range bools {
		if !flags.Changed(b.name) {
			continue
		}
		value, err := flags.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	if c.Out == "" {
		c.Out = defaultOut
	}
	c.SheetsOut = strings.TrimSpace(c.SheetsOut)
	if c.SheetsOut == "" {
		c.SheetsOut = defaultSheetsOut
	}
	c.Templates = strings.TrimSpace(c.Templates)
	c.HTTPClientImport = strings.TrimSpace(c.HTTPClientImport)
	if c.HTTPClientImport == "" {
		c.HTTPClientImport = tsemitter.DefaultHTTPClientImport
	}
	c.LogFile = strings.TrimSpace(c.LogFile)
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return newUsageError("generate: --input is required (set via flag or config file)")
	}
	if c.Concurrency < 0 {
		return newUsageError(fmt.Sprintf("generate: --concurrency must not be negative, got %d", c.Concurrency))
	}
	if c.SkipSheets && c.SkipCode {
		return newUsageError("generate: --skip-sheets and --skip-code together leave nothing to do")
	}

	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}

	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	log, flush, err := logging.New(logging.Options{Verbose: cfg.Verbose, File: cfg.LogFile, Console: cfg.Stderr})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = flush() }()

	// 1) Load the document (file or http/https URL) with validation and conversion
	doc, err := genspec.Load(ctx, cfg.Input, genspec.WithLogger(log))
	if err != nil {
		// Map structured spec errors into friendly messages
		var se *genspec.SpecError
		if errors.As(err, &se) {
			msg := fmt.Sprintf("spec: %s", se.Message)
			if se.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
			}
			if se.JSONPointer != "" {
				msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
			}
			return newUsageError(msg)
		}
		return err
	}

	// 2) Build the Intermediate Model with tag filters
	m, err := genspec.BuildModel(
		ctx,
		doc,
		genspec.WithIncludeTags(cfg.IncludeTags),
		genspec.WithExcludeTags(cfg.ExcludeTags),
		genspec.WithBuildLogger(log),
	)
	if m == nil {
		return fmt.Errorf("build model: %w", err)
	}
	summary := &report.Summary{
		Input:      cfg.Input,
		Operations: len(m.Operations),
		Models:     len(m.Models),
		DryRun:     cfg.DryRun,
		Issues:     m.Issues,
	}
	if err != nil {
		return abort(stdout, summary, fmt.Errorf("build model: %w", err))
	}
	log.Info("model built", "operations", len(m.Operations), "models", len(m.Models), "skipped", len(m.Issues))

	// 3) Spreadsheets
	if !cfg.SkipSheets {
		written, err := sheet.Write(cfg.SheetsOut, m, sheet.Options{DryRun: cfg.DryRun})
		summary.Sheets = written
		if err != nil {
			return abort(stdout, summary, wrapOutputError(err, absPath(cfg.SheetsOut)))
		}
	}

	// 4) TypeScript tree
	if !cfg.SkipCode {
		var opts []render.Option
		if cfg.Templates != "" {
			opts = append(opts, render.WithTemplateDir(cfg.Templates))
		}
		renderer, err := render.NewTemplateRenderer(opts...)
		if err != nil {
			return newUsageError(fmt.Sprintf("templates: %v", err))
		}
		res, err := tsemitter.Emit(ctx, m, tsemitter.Options{
			OutDir:           cfg.Out,
			HTTPClientImport: cfg.HTTPClientImport,
			Renderer:         renderer,
			Concurrency:      cfg.Concurrency,
			DryRun:           cfg.DryRun,
			Logger:           log,
		})
		summary.Code = res
		if err != nil {
			return abort(stdout, summary, wrapOutputError(err, absPath(cfg.Out)))
		}
	}

	if err := summary.Write(stdout); err != nil {
		return err
	}
	if summary.HasProblems() {
		return ErrProblems
	}
	return nil
}

// abort prints what the run resolved before err stopped it and returns err.
func abort(w io.Writer, summary *report.Summary, err error) error {
	summary.Err = err
	if werr := summary.Write(w); werr != nil {
		return errors.Join(err, werr)
	}
	return err
}

func absPath(p string) string {
	if ap, err := filepath.Abs(p); err == nil {
		return ap
	}
	return p
}

func wrapOutputError(err error, outDir string) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") || strings.Contains(lower, "not a directory") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or --sheets-out.", outDir, msg))
	}
	return err
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	strs := map[string]*string{
		"input":            &cfg.Input,
		"out":              &cfg.Out,
		"sheetsout":        &cfg.SheetsOut,
		"templates":        &cfg.Templates,
		"httpclientimport": &cfg.HTTPClientImport,
		"logfile":          &cfg.LogFile,
	}
	bools := map[string]*bool{
		"dryrun":     &cfg.DryRun,
		"skipsheets": &cfg.SkipSheets,
		"skipcode":   &cfg.SkipCode,
		"verbose":    &cfg.Verbose,
	}

	for key, value := range raw {
		normalized := normalizeKey(key)
		if dst, ok := strs[normalized]; ok {
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = str
			continue
		}
		if dst, ok := bools[normalized]; ok {
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = val
			continue
		}
		switch normalized {
		case "includetags":
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.IncludeTags = sanitizeTags(list)
		case "excludetags":
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.ExcludeTags = sanitizeTags(list)
		case "concurrency":
			n, err := valueAsInt(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Concurrency = n
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("expected integer, got %v", val)
		}
		return int(val), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
