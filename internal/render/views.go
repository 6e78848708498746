package render

// Import is one import statement of a generated file.
type Import struct {
	Names []string
	From  string
	// Type marks a type-only import.
	Type bool
}

// RouteView is one entry of a route constants object.
type RouteView struct {
	Name    string
	Summary string
	// Path is used for routes without parameters.
	Path string
	// Signature and Template are set for parameterized routes:
	// (id: string | number) => `/users/${...}`.
	Signature string
	Template  string
}

// ConstantsView feeds constants.tmpl.
type ConstantsView struct {
	Symbol string
	Routes []RouteView
}

// FieldView is one property of an interface.
type FieldView struct {
	Name        string
	Type        string
	Optional    bool
	Description string
}

// ModelView is one exported model declaration. Interface models list
// Fields; the others are type aliases of Type.
type ModelView struct {
	Symbol      string
	Description string
	Interface   bool
	Fields      []FieldView
	Type        string
}

// ModelFileView feeds model.tmpl.
type ModelFileView struct {
	Imports []Import
	Models  []ModelView
}

// MethodView is one service method.
type MethodView struct {
	Name       string
	Summary    string
	Deprecated bool
	// Method is the upper-case HTTP method.
	Method string
	// Request is the TypeScript type of the single request argument, empty
	// when the operation takes no input.
	Request  string
	Response string
	// URL is a TypeScript expression for the request path.
	URL   string
	Query bool
	Body  bool
	Auth  bool
}

// ServiceView feeds service.tmpl.
type ServiceView struct {
	Imports      []Import
	ClientImport string
	Symbol       string
	Methods      []MethodView
}

// HookView feeds query.tmpl and mutation.tmpl.
type HookView struct {
	Imports []Import
	Symbol  string
	Summary string
	Tag     string
	Service string
	Method  string
	// HasRequest is false when the service method takes no argument.
	HasRequest bool
	Response   string
}

// IndexView feeds index.tmpl. Exports are module specifiers like './users'.
type IndexView struct {
	Exports []string
}
