package sheet

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mark3labs/swagger2react/internal/spec"
)

const usersAPI = `openapi: 3.0.3
info: {title: Users, version: "1"}
components:
  schemas:
    UserData:
      type: object
      description: A user.
      required: [id]
      properties:
        id: {type: string}
        tags: {type: array, items: {type: string}}
paths:
  /users/{id}:
    get:
      tags: [users]
      operationId: getUserById
      x-business-purpose: Show a profile
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/UserData'}
  /orgs/{orgId}/members/{memberId}:
    delete:
      tags: [orgs]
      operationId: removeMember
      parameters:
        - {name: memberId, in: path, required: true, schema: {type: integer}}
        - {name: orgId, in: path, required: true, schema: {type: string}}
      responses:
        "204": {description: removed}
`

func usersModel(t *testing.T) *spec.Model {
	t.Helper()
	doc, err := spec.LoadData(context.Background(), []byte(usersAPI), "users.yaml")
	require.NoError(t, err)
	m, err := spec.BuildModel(context.Background(), doc)
	require.NoError(t, err)
	return m
}

func TestAPIRows(t *testing.T) {
	t.Parallel()
	rows := APIRows(usersModel(t))
	require.Len(t, rows, 2)

	assert.Equal(t, APIRow{
		SNo:             1,
		Endpoint:        "/users/{id}",
		Method:          "GET",
		Tag:             "users",
		OperationID:     "getUserById",
		PathParams:      `{"id":{"type":"string","required":true}}`,
		ResponseBodyRef: "UserData",
		BusinessPurpose: "Show a profile",
	}, rows[0])

	// template order, not declaration order
	assert.Equal(t, `{"orgId":{"type":"string","required":true},"memberId":{"type":"integer","required":true}}`, rows[1].PathParams)
	assert.Equal(t, "DELETE", rows[1].Method)
}

func TestModelRows(t *testing.T) {
	t.Parallel()
	rows := ModelRows(usersModel(t))
	require.Len(t, rows, 1)
	assert.Equal(t, ModelRow{
		SNo:              1,
		ModelName:        "UserData",
		Properties:       `{"id":"string","tags":"string[]"}`,
		Required:         `["id"]`,
		Description:      "A user.",
		UsedInOperations: "getUserById",
	}, rows[0])
}

func TestWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := usersModel(t)

	written, err := Write(dir, m, Options{})
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, filepath.Join(dir, APIsFile), written[0].Path)
	assert.Equal(t, 2, written[0].Rows)

	b, err := os.ReadFile(filepath.Join(dir, APIsFile))
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(APIsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, APIColumns, rows[0])
	assert.Equal(t, "getUserById", rows[1][4])
	assert.Equal(t, `{"id":{"type":"string","required":true}}`, rows[1][6])

	mb, err := os.ReadFile(filepath.Join(dir, ModelsFile))
	require.NoError(t, err)
	mf, err := excelize.OpenReader(bytes.NewReader(mb))
	require.NoError(t, err)
	defer mf.Close()
	mrows, err := mf.GetRows(ModelsSheet)
	require.NoError(t, err)
	require.Len(t, mrows, 2)
	assert.Equal(t, ModelColumns, mrows[0])
	assert.Equal(t, "UserData", mrows[1][1])
}

func TestWrite_DryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	written, err := Write(dir, usersModel(t), Options{DryRun: true})
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Positive(t, written[1].Size)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
