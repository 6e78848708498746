// Package sheet projects the Intermediate Model into the apis and models
// spreadsheets.
package sheet

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mark3labs/swagger2react/internal/spec"
)

// APIColumns is the fixed header of the apis sheet.
var APIColumns = []string{
	"sNo", "endpoint", "method", "tag", "operationId", "summary", "pathParams",
	"queryParamsRef", "requestBodyRef", "responseBodyRef", "isPaginated", "requiresAuth", "businessPurpose",
}

// ModelColumns is the fixed header of the models sheet.
var ModelColumns = []string{"sNo", "modelName", "properties", "required", "description", "usedInOperations"}

// APIRow is one operation.
type APIRow struct {
	SNo             int
	Endpoint        string
	Method          string
	Tag             string
	OperationID     string
	Summary         string
	PathParams      string // JSON object in path template order
	QueryParamsRef  string
	RequestBodyRef  string
	ResponseBodyRef string
	IsPaginated     bool
	RequiresAuth    bool
	BusinessPurpose string
}

func (r APIRow) cells() []any {
	return []any{
		r.SNo, r.Endpoint, r.Method, r.Tag, r.OperationID, r.Summary, r.PathParams,
		r.QueryParamsRef, r.RequestBodyRef, r.ResponseBodyRef, r.IsPaginated, r.RequiresAuth, r.BusinessPurpose,
	}
}

// ModelRow is one model.
type ModelRow struct {
	SNo              int
	ModelName        string
	Properties       string // JSON object, property name -> type tag
	Required         string // JSON array
	Description      string
	UsedInOperations string // comma separated, declaration order
}

func (r ModelRow) cells() []any {
	return []any{r.SNo, r.ModelName, r.Properties, r.Required, r.Description, r.UsedInOperations}
}

// APIRows projects every operation, in sNo order.
func APIRows(m *spec.Model) []APIRow {
	rows := make([]APIRow, 0, len(m.Operations))
	for _, op := range m.Operations {
		rows = append(rows, APIRow{
			SNo:             op.SNo,
			Endpoint:        op.Path,
			Method:          string(op.Method),
			Tag:             op.Tag,
			OperationID:     op.OperationID,
			Summary:         op.Summary,
			PathParams:      pathParamsJSON(op.PathParams),
			QueryParamsRef:  op.QueryParamsRef,
			RequestBodyRef:  op.RequestBodyRef,
			ResponseBodyRef: op.ResponseBodyRef,
			IsPaginated:     op.IsPaginated,
			RequiresAuth:    op.RequiresAuth,
			BusinessPurpose: op.BusinessPurpose,
		})
	}
	return rows
}

// ModelRows projects every model sorted by name.
func ModelRows(m *spec.Model) []ModelRow {
	names := m.ModelNames()
	rows := make([]ModelRow, 0, len(names))
	for i, name := range names {
		md := m.Models[name]
		props := make([]keyValue, 0, len(md.Properties))
		for _, p := range md.Properties {
			props = append(props, keyValue{key: p.Name, value: p.Type.String()})
		}
		required := md.Required
		if required == nil {
			required = []string{}
		}
		req, _ := json.Marshal(required)
		rows = append(rows, ModelRow{
			SNo:              i + 1,
			ModelName:        name,
			Properties:       orderedObject(props),
			Required:         string(req),
			Description:      md.Description,
			UsedInOperations: strings.Join(md.UsedInOperations, ","),
		})
	}
	return rows
}

type keyValue struct {
	key   string
	value any
}

// orderedObject encodes pairs as a JSON object keeping their order.
func orderedObject(pairs []keyValue) string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(kv.key)
		v, _ := json.Marshal(kv.value)
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.String()
}

type pathParamCell struct {
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

func pathParamsJSON(params []spec.PathParam) string {
	pairs := make([]keyValue, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, keyValue{key: p.Name, value: pathParamCell{Type: p.Type, Required: p.Required}})
	}
	return orderedObject(pairs)
}
