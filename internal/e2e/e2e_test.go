package e2e

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	cli "github.com/mark3labs/swagger2react/internal/cli"
)

const usersSpec = `openapi: 3.0.3
info:
  title: Users API
  version: "1.0.0"
security:
  - bearer: []
components:
  securitySchemes:
    bearer: {type: http, scheme: bearer}
  schemas:
    UserData:
      type: object
      required: [id, name]
      properties:
        id: {type: string}
        name: {type: string}
        email: {type: string, format: email}
paths:
  /users:
    get:
      tags: [users]
      operationId: listUsers
      parameters:
        - {name: page, in: query, schema: {type: integer}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                properties:
                  items: {type: array, items: {$ref: '#/components/schemas/UserData'}}
                  total: {type: integer}
  /users/{id}:
    get:
      tags: [users]
      operationId: getUserById
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/UserData'}
    delete:
      tags: [users]
      operationId: deleteUser
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
      responses:
        "204": {description: deleted}
`

func writeTempSpec(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	root := cli.NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("cli execute %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func digestDir(t *testing.T, dir string) (files []string, sum string) {
	t.Helper()
	var list []string
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		list = append(list, rel)
		// hash path + contents to be robust
		_, _ = h.Write([]byte(rel))
		b, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		_, _ = h.Write(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	sort.Strings(list)
	return list, hex.EncodeToString(h.Sum(nil))
}

func TestE2E_Generate_Deterministic(t *testing.T) {
	t.Parallel()
	spec := writeTempSpec(t, usersSpec)
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	runCLI(t, "generate", "--input", spec, "--out", dir1, "--skip-sheets")
	runCLI(t, "generate", "--input", spec, "--out", dir2, "--skip-sheets", "--concurrency", "1")

	files1, sum1 := digestDir(t, dir1)
	files2, sum2 := digestDir(t, dir2)
	assert.Equal(t, files1, files2)
	assert.Equal(t, sum1, sum2, "generated outputs differ between runs")

	assert.Contains(t, files1, "models/users/get-user-by-id/get-user-by-id-out-data.model.ts")
	assert.Contains(t, files1, "queries/users/use-get-user-by-id-query.query.ts")
	assert.Contains(t, files1, "queries/users/use-delete-user-mutation.query.ts")
	assert.Contains(t, files1, "services/users.service.ts")
	assert.Contains(t, files1, "index.ts")
	for _, f := range files1 {
		assert.False(t, strings.Contains(f, ".tmp-"), "temp file left behind: %s", f)
	}
}

func TestE2E_Regenerate_PreservesCustomCode(t *testing.T) {
	t.Parallel()
	spec := writeTempSpec(t, usersSpec)
	dir := t.TempDir()

	runCLI(t, "generate", "--input", spec, "--out", dir, "--skip-sheets")
	_, before := digestDir(t, dir)

	// a rerun over unchanged input rewrites nothing
	out := runCLI(t, "generate", "--input", spec, "--out", dir, "--skip-sheets")
	assert.Contains(t, out, "new: 0")
	_, again := digestDir(t, dir)
	assert.Equal(t, before, again)

	svcPath := filepath.Join(dir, "services", "users.service.ts")
	svc, err := os.ReadFile(svcPath)
	require.NoError(t, err)
	custom := "  ping: () => httpClient.request<void>({ method: 'GET', url: '/ping', auth: false }),\n"
	edited := strings.Replace(string(svc), "// #region custom:methods\n", "// #region custom:methods\n"+custom, 1)
	require.NotEqual(t, string(svc), edited, "methods region not found")
	require.NoError(t, os.WriteFile(svcPath, []byte(edited), 0o644))

	// drop an operation: the service changes around the preserved region
	trimmed := strings.Replace(usersSpec, "    delete:\n      tags: [users]\n      operationId: deleteUser\n      parameters:\n        - {name: id, in: path, required: true, schema: {type: string}}\n      responses:\n        \"204\": {description: deleted}\n", "", 1)
	require.NotEqual(t, usersSpec, trimmed)
	spec2 := writeTempSpec(t, trimmed)
	out = runCLI(t, "generate", "--input", spec2, "--out", dir, "--skip-sheets")
	assert.Contains(t, out, "merged")

	regenerated, err := os.ReadFile(svcPath)
	require.NoError(t, err)
	s := string(regenerated)
	assert.Contains(t, s, custom)
	assert.NotContains(t, s, "deleteUser")
	assert.Contains(t, s, "getUserById")
	assert.Equal(t, 1, strings.Count(s, "// #region custom:methods\n"))
}

func TestE2E_Sheets(t *testing.T) {
	t.Parallel()
	spec := writeTempSpec(t, usersSpec)
	dir := t.TempDir()

	runCLI(t, "generate", "--input", spec, "--sheets-out", dir, "--skip-code")

	b, err := os.ReadFile(filepath.Join(dir, "apis.xlsx"))
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("apis")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	var getUser []string
	for _, r := range rows[1:] {
		if len(r) > 4 && r[4] == "getUserById" {
			getUser = r
		}
	}
	require.NotNil(t, getUser, "getUserById row missing")
	assert.Equal(t, "/users/{id}", getUser[1])
	assert.Equal(t, "GET", getUser[2])
	assert.Equal(t, "users", getUser[3])
	assert.Equal(t, `{"id":{"type":"string","required":true}}`, getUser[6])
	assert.Equal(t, "UserData", getUser[9])
	assert.Equal(t, "FALSE", getUser[10])
	assert.Equal(t, "TRUE", getUser[11])

	mb, err := os.ReadFile(filepath.Join(dir, "models.xlsx"))
	require.NoError(t, err)
	mf, err := excelize.OpenReader(bytes.NewReader(mb))
	require.NoError(t, err)
	defer mf.Close()
	models, err := mf.GetRows("models")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, r := range models[1:] {
		names[r[1]] = true
	}
	// every reference in the apis sheet names a model row
	for _, r := range rows[1:] {
		for _, col := range []int{7, 8, 9} {
			if col < len(r) && r[col] != "" {
				assert.True(t, names[r[col]], "dangling reference %q in row %v", r[col], r)
			}
		}
	}
}
