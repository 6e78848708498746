package spec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrSpecParse matches SpecErrors caused by a malformed document.
	ErrSpecParse = errors.New("malformed spec")
	// ErrCyclicSchema matches CyclicSchemaError.
	ErrCyclicSchema = errors.New("cyclic schema")
	// ErrMissingParameter matches MissingParameterError.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrUnresolvedReference matches UnresolvedReferenceError.
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecError is a structured loader error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Is reports parse, validation and conversion failures as ErrSpecParse.
func (e *SpecError) Is(target error) bool {
	if target != ErrSpecParse {
		return false
	}
	switch e.Code {
	case ParseError, ValidationError, ConversionError:
		return true
	}
	return false
}

// CyclicSchemaError reports a containment cycle in which every link is a
// required, non-nullable, non-array reference.
type CyclicSchemaError struct {
	// Cycle lists the models on the cycle; the first name is repeated last.
	Cycle []string
}

func (e *CyclicSchemaError) Error() string {
	return "cyclic schema: " + strings.Join(e.Cycle, " -> ")
}

func (e *CyclicSchemaError) Is(target error) bool { return target == ErrCyclicSchema }

// MissingParameterError reports a path template placeholder with no matching
// path parameter declaration.
type MissingParameterError struct {
	OperationID string
	Path        string
	Parameter   string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("operation %q: path %q uses {%s} but declares no such path parameter", e.OperationID, e.Path, e.Parameter)
}

func (e *MissingParameterError) Is(target error) bool { return target == ErrMissingParameter }

// UnresolvedReferenceError reports a $ref whose target does not exist.
type UnresolvedReferenceError struct {
	Ref string
	// From names the model or operation holding the reference.
	From string
	// Field is the property or parameter path holding the reference, if any.
	Field string
}

func (e *UnresolvedReferenceError) Error() string {
	where := e.From
	if e.Field != "" {
		where += "." + e.Field
	}
	if where == "" {
		return fmt.Sprintf("unresolved reference %q", e.Ref)
	}
	return fmt.Sprintf("unresolved reference %q at %s", e.Ref, where)
}

func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }

// EntityKind names the kind of entity an EntityError excluded.
type EntityKind string

const (
	EntityModel     EntityKind = "model"
	EntityOperation EntityKind = "operation"
)

// EntityError records an entity excluded from the model and why.
type EntityError struct {
	Kind  EntityKind
	ID    string
	Field string
	Err   error
}

func (e *EntityError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q (%s): %v", e.Kind, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// newEntityError wraps err, lifting the offending field out of known error types.
func newEntityError(kind EntityKind, id string, err error) *EntityError {
	ee := &EntityError{Kind: kind, ID: id, Err: err}
	var ure *UnresolvedReferenceError
	var mpe *MissingParameterError
	switch {
	case errors.As(err, &ure):
		ee.Field = ure.Field
		if ure.From != "" && ure.From != id {
			ee.Field = strings.TrimPrefix(ure.From+"."+ure.Field, ".")
			ee.Field = strings.TrimSuffix(ee.Field, ".")
		}
	case errors.As(err, &mpe):
		ee.Field = "path." + mpe.Parameter
	}
	return ee
}
