package tsemitter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mark3labs/swagger2react/internal/merge"
	"github.com/mark3labs/swagger2react/internal/naming"
	"github.com/mark3labs/swagger2react/internal/render"
	"github.com/mark3labs/swagger2react/internal/spec"
)

const usersAPI = `openapi: 3.0.3
info: {title: Users, version: "1"}
security:
  - bearer: []
components:
  securitySchemes:
    bearer: {type: http, scheme: bearer}
  schemas:
    UserData:
      type: object
      description: A registered user.
      required: [id]
      properties:
        id: {type: string}
        name: {type: string}
        role: {$ref: '#/components/schemas/Role'}
    Role:
      type: string
      enum: [admin, member]
    UserPage:
      type: object
      properties:
        items:
          type: array
          items: {$ref: '#/components/schemas/UserData'}
        total: {type: integer}
paths:
  /users:
    get:
      tags: [users]
      operationId: listUsers
      summary: List users
      parameters:
        - {name: limit, in: query, schema: {type: integer}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/UserPage'}
    post:
      tags: [users]
      operationId: createUser
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name: {type: string}
      responses:
        "201":
          description: created
          content:
            application/json:
              schema: {$ref: '#/components/schemas/UserData'}
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
  /health:
    get:
      operationId: health
      security: []
      responses:
        "204": {description: no content}
`

func usersModel(t *testing.T) *spec.Model {
	t.Helper()
	ctx := context.Background()
	doc, err := spec.LoadData(ctx, []byte(usersAPI), "users.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m, err := spec.BuildModel(ctx, doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(m.Issues) != 0 {
		t.Fatalf("unexpected issues: %v", m.Issues)
	}
	return m
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(b)
}

func assertContains(t *testing.T, content string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(content, w) {
			t.Errorf("missing %q in:\n%s", w, content)
		}
	}
}

func TestEmit_FileTree(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	res, err := Emit(context.Background(), usersModel(t), Options{OutDir: dir})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("failures: %+v", res.Failures)
	}

	have := map[string]bool{}
	for _, pf := range res.Planned {
		have[pf.RelPath] = true
		if pf.State != merge.NotExists || !pf.Written {
			t.Errorf("%s: state %s written %v", pf.RelPath, pf.State, pf.Written)
		}
	}
	for _, want := range []string{
		"index.ts",
		"constants/index.ts",
		"constants/users.constant.ts",
		"constants/default.constant.ts",
		"services/users.service.ts",
		"services/default.service.ts",
		"models/index.ts",
		"models/users/index.ts",
		"models/users/user-data.model.ts",
		"models/users/get-user-by-id/get-user-by-id-out-data.model.ts",
		"models/users/get-user-by-id/index.ts",
		"models/users/create-user/create-user-in-data.model.ts",
		"models/users/create-user/create-user-out-data.model.ts",
		"models/users/list-users/list-users-query-data.model.ts",
		"models/users/list-users/list-users-out-data.model.ts",
		"models/users/list-users/list-users-result-data.model.ts",
		"models/users/list-users/list-users-record-data.model.ts",
		"queries/users/use-get-user-by-id-query.query.ts",
		"queries/users/use-list-users-query.query.ts",
		"queries/users/use-create-user-mutation.query.ts",
		"queries/default/use-health-query.query.ts",
		"queries/index.ts",
	} {
		if !have[want] {
			t.Errorf("missing planned file %s", want)
		}
	}
	for i := 1; i < len(res.Planned); i++ {
		if res.Planned[i-1].RelPath >= res.Planned[i].RelPath {
			t.Fatalf("planned files not sorted at %d", i)
		}
	}
}

func TestEmit_Contents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if _, err := Emit(context.Background(), usersModel(t), Options{OutDir: dir}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	assertContains(t, readFile(t, dir, "models/users/get-user-by-id/get-user-by-id-out-data.model.ts"),
		"import type { UserData } from '../user-data.model';",
		"export type GetUserByIdOutData = UserData;",
	)
	assertContains(t, readFile(t, dir, "models/users/user-data.model.ts"),
		"export type Role = 'admin' | 'member';",
		"/** A registered user. */\nexport interface UserData {\n  id: string;\n  name?: string;\n  role?: Role;\n}",
		"  items?: UserData[];",
		"// #region custom:extensions",
	)
	assertContains(t, readFile(t, dir, "models/users/create-user/create-user-in-data.model.ts"),
		"export interface CreateUserInData {\n  name: string;\n}",
	)
	assertContains(t, readFile(t, dir, "models/users/list-users/list-users-record-data.model.ts"),
		"export type ListUsersRecordData = UserData;",
	)
	assertContains(t, readFile(t, dir, "models/users/list-users/list-users-result-data.model.ts"),
		"export type ListUsersResultData = UserPage;",
	)
	assertContains(t, readFile(t, dir, "constants/users.constant.ts"),
		"export const USERS_ROUTES = {",
		"  /** List users */\n  LIST_USERS: '/users',",
		"  GET_USER_BY_ID: (id: string | number) => `/users/${encodeURIComponent(String(id))}`,",
		"// #region custom:routes",
	)
	assertContains(t, readFile(t, dir, "services/users.service.ts"),
		"import { httpClient } from '../lib/http-client';",
		"import { USERS_ROUTES } from '../constants/users.constant';",
		"import type { GetUserByIdOutData } from '../models/users/get-user-by-id/get-user-by-id-out-data.model';",
		"export const usersService = {",
		"  getUserById: (request: { path: { id: string } }) =>\n    httpClient.request<GetUserByIdOutData>({",
		"      url: USERS_ROUTES.GET_USER_BY_ID(request.path.id),",
		"  listUsers: (request: { query?: ListUsersQueryData }) =>",
		"      params: request.query,",
		"  createUser: (request: { body: CreateUserInData }) =>",
		"      data: request.body,",
		"      auth: true,",
	)
	assertContains(t, readFile(t, dir, "services/default.service.ts"),
		"  health: () =>\n    httpClient.request<void>({",
		"      auth: false,",
	)
	assertContains(t, readFile(t, dir, "queries/users/use-get-user-by-id-query.query.ts"),
		"import { usersService } from '../../services/users.service';",
		"import type { GetUserByIdOutData } from '../../models/users/get-user-by-id/get-user-by-id-out-data.model';",
		"export function useGetUserByIdQuery(",
		"  request: Parameters<typeof usersService.getUserById>[0],",
	)
	assertContains(t, readFile(t, dir, "queries/users/use-create-user-mutation.query.ts"),
		"export function useCreateUserMutation(",
		"UseMutationOptions<CreateUserOutData, Error, Parameters<typeof usersService.createUser>[0]>",
	)
	assertContains(t, readFile(t, dir, "index.ts"),
		"export * from './constants';\nexport * from './models';\nexport * from './queries';\nexport * from './services';\n",
	)
	assertContains(t, readFile(t, dir, "models/users/index.ts"),
		"export * from './get-user-by-id';",
		"export * from './user-data.model';",
	)
}

func TestEmit_IdempotentAndPreservesRegions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	m := usersModel(t)
	if _, err := Emit(ctx, m, Options{OutDir: dir}); err != nil {
		t.Fatalf("first emit: %v", err)
	}

	second, err := Emit(ctx, m, Options{OutDir: dir, Concurrency: 1})
	if err != nil {
		t.Fatalf("second emit: %v", err)
	}
	for _, pf := range second.Planned {
		if pf.Changed || pf.Written {
			t.Errorf("%s changed on an unchanged model", pf.RelPath)
		}
	}

	rel := "constants/users.constant.ts"
	path := filepath.Join(dir, filepath.FromSlash(rel))
	edited := strings.Replace(readFile(t, dir, rel),
		"  // #region custom:routes\n",
		"  // #region custom:routes\n  LEGACY_EXPORT: '/legacy/export',\n", 1)
	edited += "// #region custom:scratch\nconst note = 1;\n// #endregion custom:scratch\n"
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("edit: %v", err)
	}
	// drop an operation so surrounding content changes
	m.Operations = m.Operations[1:]

	third, err := Emit(ctx, m, Options{OutDir: dir})
	if err != nil {
		t.Fatalf("third emit: %v", err)
	}
	got := readFile(t, dir, rel)
	assertContains(t, got,
		"  // #region custom:routes\n  LEGACY_EXPORT: '/legacy/export',\n  // #endregion custom:routes",
		"// #region custom:scratch (orphaned)\nconst note = 1;\n// #endregion custom:scratch\n",
	)
	if strings.Contains(got, "LIST_USERS") {
		t.Errorf("generated content was not updated:\n%s", got)
	}
	want := []Orphan{{RelPath: rel, Region: "scratch"}}
	if diff := cmp.Diff(want, third.Orphans); diff != "" {
		t.Errorf("orphans (-want +got):\n%s", diff)
	}
}

func TestEmit_DryRunWritesNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	res, err := Emit(context.Background(), usersModel(t), Options{OutDir: dir, DryRun: true})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(res.Planned) == 0 {
		t.Fatalf("expected a plan")
	}
	for _, pf := range res.Planned {
		if pf.Written || pf.Size == 0 {
			t.Errorf("%s: written=%v size=%d", pf.RelPath, pf.Written, pf.Size)
		}
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("expected no files written on dry-run")
	}
}

type failingRenderer struct {
	render.Renderer
	fail render.Kind
}

func (f failingRenderer) Render(kind render.Kind, slice any) ([]byte, error) {
	if kind == f.fail {
		return nil, errors.New("boom")
	}
	return f.Renderer.Render(kind, slice)
}

func TestEmit_FailuresAreIsolatedPerFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	base, err := render.NewTemplateRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	broken := filepath.Join(dir, "constants", "users.constant.ts")
	if err := os.MkdirAll(filepath.Dir(broken), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(broken, []byte("// #region custom:routes\nunterminated\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := Emit(context.Background(), usersModel(t), Options{
		OutDir:   dir,
		Renderer: failingRenderer{Renderer: base, fail: render.KindService},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var paths []string
	for _, f := range res.Failures {
		paths = append(paths, f.RelPath)
	}
	want := []string{"constants/users.constant.ts", "services/default.service.ts", "services/users.service.ts"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("failures (-want +got):\n%s", diff)
	}
	if !errors.Is(res.Failures[0].Err, merge.ErrMergeConflict) {
		t.Errorf("expected merge conflict, got %v", res.Failures[0].Err)
	}
	var te *render.TemplateRenderError
	if !errors.As(res.Failures[1].Err, &te) || te.Path != "services/default.service.ts" {
		t.Errorf("expected template error with path, got %v", res.Failures[1].Err)
	}
	if got := readFile(t, dir, "constants/users.constant.ts"); !strings.Contains(got, "unterminated") {
		t.Errorf("conflicting file must be left untouched")
	}
	if _, err := os.Stat(filepath.Join(dir, "constants", "default.constant.ts")); err != nil {
		t.Errorf("unrelated files must still be written: %v", err)
	}
}

func TestEmit_NamingCollisionIsFatal(t *testing.T) {
	t.Parallel()
	m := &spec.Model{
		Models: map[string]*spec.ModelDescriptor{},
		Operations: []*spec.OperationDescriptor{
			{SNo: 1, Path: "/a", Method: spec.GET, Tag: "users", OperationID: "getUser"},
			{SNo: 2, Path: "/b", Method: spec.GET, Tag: "admin", OperationID: "get_user"},
			{SNo: 3, Path: "/c", Method: spec.GET, Tag: "admin", OperationID: "GetUser"},
		},
	}
	dir := t.TempDir()
	_, err := Emit(context.Background(), m, Options{OutDir: dir})
	if !errors.Is(err, naming.ErrNamingCollision) {
		t.Fatalf("expected naming collision, got %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("nothing should be written after a naming collision")
	}
}

func TestEmit_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Emit(ctx, usersModel(t), Options{OutDir: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEmit_RejectsFileAsOutDir(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "out.ts")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Emit(context.Background(), usersModel(t), Options{OutDir: file}); err == nil {
		t.Fatalf("expected error for non-directory output")
	}
	if _, err := Emit(context.Background(), nil, Options{OutDir: file}); err == nil {
		t.Fatalf("expected error for nil model")
	}
}

func TestRouteTemplate(t *testing.T) {
	t.Parallel()
	params := []spec.PathParam{{Name: "org-id"}, {Name: "id"}}
	args := routeArgs(params)
	if diff := cmp.Diff([]string{"orgId", "id"}, args); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}
	got := routeTemplate("/orgs/{org-id}/users/{ id }/`raw`", params, args)
	want := "/orgs/${encodeURIComponent(String(orgId))}/users/${encodeURIComponent(String(id))}/\\`raw\\`"
	if got != want {
		t.Fatalf("template:\n got %s\nwant %s", got, want)
	}
}

func TestRelativeImport(t *testing.T) {
	t.Parallel()
	cases := []struct{ from, to, want string }{
		{"services/users.service.ts", "constants/users.constant.ts", "../constants/users.constant"},
		{"models/users/user-data.model.ts", "models/users/user-data.model.ts", "./user-data.model"},
		{"models/users/a/a-out-data.model.ts", "models/common/common-data.model.ts", "../../common/common-data.model"},
	}
	for _, c := range cases {
		if got := relativeImport(c.from, c.to); got != c.want {
			t.Errorf("relativeImport(%s, %s) = %s, want %s", c.from, c.to, got, c.want)
		}
	}
}

func TestRecordElement(t *testing.T) {
	t.Parallel()
	str := spec.Primitive(spec.PrimString)
	models := map[string]*spec.ModelDescriptor{
		"Page":  {Name: "Page", Kind: spec.ModelObject, Properties: []spec.PropertyDescriptor{{Name: "data", Type: spec.ArrayOf(str)}, {Name: "next", Type: str}}},
		"List":  {Name: "List", Kind: spec.ModelAlias, Alias: &spec.TypeRef{Kind: spec.KindArray, Elem: &spec.TypeRef{Kind: spec.KindRef, Name: "Page"}}},
		"Alias": {Name: "Alias", Kind: spec.ModelAlias, Alias: &spec.TypeRef{Kind: spec.KindRef, Name: "Page"}},
	}
	if got := recordElement(models, "Page"); got.String() != "string" {
		t.Errorf("page: %s", got.String())
	}
	if got := recordElement(models, "Alias"); got.String() != "string" {
		t.Errorf("alias: %s", got.String())
	}
	if got := recordElement(models, "List"); got.String() != "Page" {
		t.Errorf("list: %s", got.String())
	}
	if got := recordElement(models, ""); got.String() != "unknown" {
		t.Errorf("missing: %s", got.String())
	}
}
