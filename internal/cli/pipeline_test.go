package cli

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/swagger2react/internal/naming"
)

const minimalSpecYAML = "" +
	"openapi: 3.0.0\n" +
	"info:\n" +
	"  title: Test API\n" +
	"  version: '1.0.0'\n" +
	"paths:\n" +
	"  /hello:\n" +
	"    get:\n" +
	"      operationId: sayHello\n" +
	"      tags: [greetings]\n" +
	"      summary: Hello\n" +
	"      responses:\n" +
	"        '200':\n" +
	"          description: ok\n" +
	"          content:\n" +
	"            application/json:\n" +
	"              schema:\n" +
	"                type: object\n" +
	"                properties:\n" +
	"                  message: {type: string}\n"

// brokenSpecYAML declares a path placeholder without its parameter.
const brokenSpecYAML = minimalSpecYAML +
	"  /hello/{name}:\n" +
	"    get:\n" +
	"      operationId: greetByName\n" +
	"      tags: [greetings]\n" +
	"      responses:\n" +
	"        '204':\n" +
	"          description: ok\n"

// collidingSpecYAML has three operation ids that derive the same file names.
const collidingSpecYAML = "" +
	"openapi: 3.0.0\n" +
	"info:\n" +
	"  title: Test API\n" +
	"  version: '1.0.0'\n" +
	"paths:\n" +
	"  /a:\n" +
	"    get:\n" +
	"      operationId: getUser\n" +
	"      tags: [users]\n" +
	"      responses:\n" +
	"        '204': {description: ok}\n" +
	"  /b:\n" +
	"    get:\n" +
	"      operationId: get_user\n" +
	"      tags: [users]\n" +
	"      responses:\n" +
	"        '204': {description: ok}\n" +
	"  /c:\n" +
	"    get:\n" +
	"      operationId: GetUser\n" +
	"      tags: [users]\n" +
	"      responses:\n" +
	"        '204': {description: ok}\n"

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestGeneratePipeline_DryRun(t *testing.T) {
	t.Parallel()
	specPath := writeSpec(t, minimalSpecYAML)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "src")
	sheetsDir := filepath.Join(dir, "docs")

	out, err := execute(t, "generate", "--input", specPath, "--out", outDir, "--sheets-out", sheetsDir, "--dry-run")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{
		"swagger2react dry-run:",
		"operations: 1",
		"apis.xlsx",
		"queries/greetings/use-say-hello-query.query.ts",
		"services/greetings.service.ts",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	for _, d := range []string{outDir, sheetsDir} {
		if _, err := os.Stat(d); err == nil {
			t.Fatalf("expected no writes on dry-run, found %s", d)
		}
	}
}

func TestGeneratePipeline_Writes(t *testing.T) {
	t.Parallel()
	specPath := writeSpec(t, minimalSpecYAML)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "src")
	sheetsDir := filepath.Join(dir, "docs")

	if _, err := execute(t, "generate", "--input", specPath, "--out", outDir, "--sheets-out", sheetsDir); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, p := range []string{
		filepath.Join(sheetsDir, "apis.xlsx"),
		filepath.Join(sheetsDir, "models.xlsx"),
		filepath.Join(outDir, "constants", "greetings.constant.ts"),
		filepath.Join(outDir, "index.ts"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}

	out, err := execute(t, "generate", "--input", specPath, "--out", outDir, "--skip-sheets")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out, "new: 0") {
		t.Errorf("second run should create nothing:\n%s", out)
	}
	if strings.Contains(out, "Sheets:") {
		t.Errorf("sheets were skipped:\n%s", out)
	}
}

func TestGeneratePipeline_SkippedEntitiesFailTheRun(t *testing.T) {
	t.Parallel()
	specPath := writeSpec(t, brokenSpecYAML)
	dir := t.TempDir()

	out, err := execute(t, "generate", "--input", specPath, "--out", filepath.Join(dir, "src"), "--skip-sheets")
	if !errors.Is(err, ErrProblems) {
		t.Fatalf("expected ErrProblems, got %v", err)
	}
	if !strings.Contains(out, "Skipped:") || !strings.Contains(out, "greetByName") {
		t.Errorf("summary should list the skipped operation:\n%s", out)
	}
	// the healthy operation is still generated
	if _, err := os.Stat(filepath.Join(dir, "src", "services", "greetings.service.ts")); err != nil {
		t.Errorf("expected service for the remaining operation: %v", err)
	}
}

func TestGeneratePipeline_MissingInput(t *testing.T) {
	t.Parallel()
	_, err := execute(t, "generate", "--input", filepath.Join(t.TempDir(), "nope.yaml"), "--dry-run")
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "spec: ") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestGeneratePipeline_AbortReportsProgress(t *testing.T) {
	t.Parallel()
	specPath := writeSpec(t, collidingSpecYAML)
	dir := t.TempDir()
	sheetsDir := filepath.Join(dir, "docs")

	out, err := execute(t, "generate", "--input", specPath, "--out", filepath.Join(dir, "src"), "--sheets-out", sheetsDir)
	if !errors.Is(err, naming.ErrNamingCollision) {
		t.Fatalf("expected naming collision, got %v", err)
	}
	for _, want := range []string{
		"swagger2react write:",
		"operations: 3",
		"Sheets:",
		"apis.xlsx",
		"aborted: ",
		"naming collision",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "src")); err == nil {
		t.Errorf("no code should be written after a naming collision")
	}
}
