package naming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  []string
	}{
		{"getUserById", []string{"get", "User", "By", "Id"}},
		{"getHTTPStatus", []string{"get", "HTTP", "Status"}},
		{"user_profile-data", []string{"user", "profile", "data"}},
		{"/users/{id}", []string{"users", "id"}},
		{"v2Users", []string{"v2", "Users"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Words(tt.input), "Words(%q)", tt.input)
	}
}

func TestCaseConversions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		pascal   string
		camel    string
		kebab    string
		screamer string
	}{
		{"getUserById", "GetUserById", "getUserById", "get-user-by-id", "GET_USER_BY_ID"},
		{"get_http_status", "GetHttpStatus", "getHttpStatus", "get-http-status", "GET_HTTP_STATUS"},
		{"getHTTPStatus", "GetHTTPStatus", "getHTTPStatus", "get-http-status", "GET_HTTP_STATUS"},
		{"User Accounts", "UserAccounts", "userAccounts", "user-accounts", "USER_ACCOUNTS"},
		{"get-users-id", "GetUsersId", "getUsersId", "get-users-id", "GET_USERS_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.pascal, ToPascalCase(tt.input))
			assert.Equal(t, tt.camel, ToCamelCase(tt.input))
			assert.Equal(t, tt.kebab, ToKebabCase(tt.input))
			assert.Equal(t, tt.screamer, ToScreamingSnake(tt.input))
			assert.Equal(t, tt.screamer, ToScreamingSnake(ToKebabCase(tt.input)))
		})
	}
}

func TestRegistry_OperationPlans(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	out, err := r.Plan(Entity{Tag: "users", OperationID: "getUserById", Kind: KindModelOut})
	require.NoError(t, err)
	assert.Equal(t, "models/users/get-user-by-id/get-user-by-id-out-data.model.ts", out.Path)
	assert.Equal(t, "GetUserByIdOutData", out.Symbol)
	assert.Equal(t, "GET_USER_BY_ID", out.RouteConstant)

	hook, err := r.Plan(Entity{Tag: "users", OperationID: "getUserById", Kind: KindQueryHook})
	require.NoError(t, err)
	assert.Equal(t, "queries/users/use-get-user-by-id-query.query.ts", hook.Path)
	assert.Equal(t, "useGetUserByIdQuery", hook.Symbol)

	mut, err := r.Plan(Entity{Tag: "users", OperationID: "createUser", Kind: KindMutation})
	require.NoError(t, err)
	assert.Equal(t, "queries/users/use-create-user-mutation.query.ts", mut.Path)
	assert.Equal(t, "useCreateUserMutation", mut.Symbol)

	base, err := r.Plan(Entity{Tag: "users", Kind: KindBaseModel})
	require.NoError(t, err)
	assert.Equal(t, "models/users/user-data.model.ts", base.Path)

	svc, err := r.Plan(Entity{Tag: "users", Kind: KindService})
	require.NoError(t, err)
	assert.Equal(t, "services/users.service.ts", svc.Path)
	assert.Equal(t, "usersService", svc.Symbol)

	consts, err := r.Plan(Entity{Tag: "users", Kind: KindConstants})
	require.NoError(t, err)
	assert.Equal(t, "constants/users.constant.ts", consts.Path)
	assert.Equal(t, "USERS_ROUTES", consts.Symbol)
}

func TestRegistry_EmptyTagUsesDefault(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	p, err := r.Plan(Entity{OperationID: "ping", Kind: KindQueryHook})
	require.NoError(t, err)
	assert.Equal(t, "queries/default/use-ping-query.query.ts", p.Path)
}

func TestRegistry_Memoized(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	e := Entity{Tag: "Pets", OperationID: "listPets", Kind: KindModelRecord}
	first, err := r.Plan(e)
	require.NoError(t, err)
	second, err := r.Plan(e)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "models/pets/list-pets/list-pets-record-data.model.ts", first.Path)
}

func TestRegistry_DeterministicAcrossInstances(t *testing.T) {
	t.Parallel()

	entities := []Entity{
		{Tag: "users", OperationID: "getUser", Kind: KindModelOut},
		{Tag: "admin", OperationID: "get-user", Kind: KindModelOut},
		{Tag: "admin", OperationID: "get-user", Kind: KindQueryHook},
	}
	plan := func() []Plan {
		r := NewRegistry()
		var out []Plan
		for _, e := range entities {
			p, err := r.Plan(e)
			require.NoError(t, err)
			out = append(out, p)
		}
		return out
	}
	assert.Equal(t, plan(), plan())
}

func TestRegistry_CollisionGetsTagPrefix(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first, err := r.Plan(Entity{Tag: "users", OperationID: "getUser", Kind: KindModelOut})
	require.NoError(t, err)
	second, err := r.Plan(Entity{Tag: "admin", OperationID: "get_user", Kind: KindModelOut})
	require.NoError(t, err)

	assert.Equal(t, "GetUserOutData", first.Symbol)
	assert.Equal(t, "AdminGetUserOutData", second.Symbol)
	assert.Equal(t, "ADMIN_GET_USER", second.RouteConstant)
	assert.Equal(t, "models/admin/admin-get-user/admin-get-user-out-data.model.ts", second.Path)

	hook, err := r.Plan(Entity{Tag: "admin", OperationID: "get_user", Kind: KindQueryHook})
	require.NoError(t, err)
	assert.Equal(t, "useAdminGetUserQuery", hook.Symbol)
}

func TestRegistry_CollisionWithModelName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.ClaimModel("CreateUserInData"))
	p, err := r.Plan(Entity{Tag: "users", OperationID: "createUser", Kind: KindModelIn})
	require.NoError(t, err)
	assert.Equal(t, "UsersCreateUserInData", p.Symbol)
}

func TestRegistry_UnresolvableCollision(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Plan(Entity{Tag: "users", OperationID: "usersGetUser", Kind: KindModelOut})
	require.NoError(t, err)
	_, err = r.Plan(Entity{Tag: "users", OperationID: "getUser", Kind: KindModelOut})
	require.NoError(t, err)
	_, err = r.Plan(Entity{Tag: "users", OperationID: "get-user", Kind: KindModelOut})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNamingCollision))

	var nce *NamingCollisionError
	require.ErrorAs(t, err, &nce)
	assert.Contains(t, nce.First, "usersGetUser")
	assert.Contains(t, nce.Second, "get-user")
}
