package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/swagger2react/internal/merge"
)

const defaultConfigFile = "swagger2react.yaml"

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
	Stdout     io.Writer
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample swagger2react configuration file",
		Long:  "Scaffold a commented swagger2react configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
				Stdout:     cmd.OutOrStdout(),
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", defaultConfigFile, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigFile
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"
	if _, err := merge.WriteFile(absPath, []byte(content)); err != nil {
		return newUsageError(fmt.Sprintf("init: %v\nHint: choose a different --out or check directory permissions.", err))
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	fmt.Fprintf(stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# swagger2react configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Path or URL to the Swagger/OpenAPI document (http/https or local file).
# input: ./openapi.yaml

# Root of the generated TypeScript tree.
# out: ./src/api

# Where apis.xlsx and models.xlsx are written.
# sheetsOut: ./docs/api

# Only include operations with these tags (comma-separated or list).
# includeTags: [users,orgs]

# Exclude operations with these tags (comma-separated or list).
# excludeTags: [internal]

# Directory holding template overrides named <kind>.tmpl
# (constants, model, service, query, mutation, index).
# templates: ./templates

# Module the generated services import httpClient from, relative to services/.
# httpClientImport: ../lib/http-client

# Files generated in parallel. 0 uses the number of CPUs.
# concurrency: 0

# Preview planned outputs without writing files.
# dryRun: false

# Skip one of the two outputs.
# skipSheets: false
# skipCode: false

# Enable verbose logging, optionally mirrored to a rotating JSON log file.
# verbose: false
# logFile: ./swagger2react.log
`
