package tests

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/gamifica/apps/api/echo"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
	"github.com/trezcool/gamifica/tests"
)

func Test_home(t *testing.T) {
	_, srv := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Gamifica API!", rec.Body.String())
}

func Test_userApi_register(t *testing.T) {
	s, srv := setup(t)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name": reqMsg, "username": reqMsg, "email": reqMsg, "ru": reqMsg, "password": reqMsg, "password_confirm": reqMsg,
			}),
		},
		{
			name: "password confirmation", wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{
				Name: "Hero", Username: "hero01", Email: "hero@test.cd", RU: "2024001", Password: "Pa$$w0rd!", PasswordConfirm: "lol",
			}),
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name: "registered", wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewUser{
				Name: "Hero", Username: "Hero01", Email: "hero@test.cd", RU: "2024001", Password: "Pa$$w0rd!", PasswordConfirm: "Pa$$w0rd!",
			}),
		},
		{
			name: "username taken", wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{
				Name: "Hero", Username: "hero01", Email: "other@test.cd", RU: "2024002", Password: "Pa$$w0rd!", PasswordConfirm: "Pa$$w0rd!",
			}),
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/register"
	}
	runTests(t, srv, tests)

	usr, err := s.Users.GetByUsernameOrEmail(t.Context(), "hero01")
	require.NoError(t, err)
	assert.True(t, usr.IsStudent())
	assert.Len(t, s.Mail.SentMessages(), 1)
}

func Test_userApi_login(t *testing.T) {
	s, srv := setup(t)

	testutil.CreateUser(t, s.UserRepo, "Hero", "hero", "hero@test.cd", "2024001", "Pa$$w0rd!", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, s.UserRepo, "N Dog", "ndog", "ndog@test.cd", "2024002", "Pa$$w0rd!", []string{user.RoleStudent}, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{name: "unknown user", body: login("lol", "Pa$$w0rd!"), wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"})},
		{name: "wrong password", body: login("hero", "lol"), wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"})},
		{name: "inactive user", body: login("ndog", "Pa$$w0rd!"), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	runTests(t, srv, tests)

	for _, uname := range []string{"HERO", "hero@test.cd"} {
		t.Run("logged in as "+uname, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", login(uname, "Pa$$w0rd!"))
			srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp echoapi.LoginResponse
			decode(t, rec, &resp)
			assert.NotEmpty(t, resp.Token)

			// the token opens the authed endpoints
			req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
			srv.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func Test_userApi_auth(t *testing.T) {
	s, srv := setup(t)
	student := s.Student(t, "hero")

	expired := echoapi.GetUserClaims(student, s.Conf)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expiredToken, err := echoapi.GenerateToken(expired, s.Conf.SecretKey)
	require.NoError(t, err)

	forged, err := echoapi.GenerateToken(echoapi.GetUserClaims(student, s.Conf), "not-the-secret")
	require.NoError(t, err)

	ghost := student
	ghost.ID = "unknown"

	invalid := marchallObj(t, httpErr{Error: "invalid or expired jwt"})
	tests := []httpTest{
		{name: "missing token", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "garbage token", token: "lol", wantCode: http.StatusUnauthorized, wantData: invalid},
		{name: "expired token", token: expiredToken, wantCode: http.StatusUnauthorized, wantData: invalid},
		{name: "forged token", token: forged, wantCode: http.StatusUnauthorized, wantData: invalid},
		{
			name: "unknown user", token: getToken(t, s, ghost), wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{name: "valid token", token: getToken(t, s, student)},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].path = "/v1/users/me"
	}
	runTests(t, srv, tests)
}

func Test_userApi_me(t *testing.T) {
	s, srv := setup(t)
	student := s.Student(t, "hero")
	_, err := s.Gamified.Adjust(t.Context(), student.ID, 333, "seed")
	require.NoError(t, err)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", getToken(t, s, student))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.MeResponse
	decode(t, rec, &resp)
	assert.Equal(t, student.ID, resp.User.ID)
	assert.Equal(t, 333, resp.User.XP)
	assert.Equal(t, gamification.Rank{Label: "Explorer", Tier: 3}, resp.Rank)
	assert.Equal(t, gamification.RankProgress{Percent: 66, Missing: 167, NextLabel: "Specialist"}, resp.NextRank)
}

func Test_userApi_userQuery(t *testing.T) {
	s, srv := setup(t)

	now := time.Now()
	usr1 := testutil.CreateUser(t, s.UserRepo, "User", "awe", "awe@test.cd", "2024001", "", nil, true, now.Add(1*time.Hour))
	usr2 := testutil.CreateUser(t, s.UserRepo, "King", "user02", "king@test.cd", "2024002", "", nil, true, now.Add(2*time.Hour))
	student := testutil.CreateUser(t, s.UserRepo, "Hero", "hero", "user3@test.cd", "2024003", "", []string{user.RoleStudent}, true, now.Add(3*time.Hour))
	admin := testutil.CreateUser(t, s.UserRepo, "Admin", "admin", "admin@test.cd", "2024004", "", []string{user.RoleAdmin}, true, now.Add(4*time.Hour))

	path := func(search, ordering string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	adminToken := getToken(t, s, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, s, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Get all", path: "/v1/users", token: adminToken, wantData: marchallList(t, admin, student, usr2, usr1)},
		{name: "search (unknown)", path: path("lol", ""), token: adminToken, wantData: empty},
		{name: "search=USE", path: path("USE", ""), token: adminToken, wantData: marchallList(t, student, usr2, usr1)},
		{name: "role=admin:", path: path("", "", user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin)},
		{name: "order by created_at", path: path("", "created_at"), token: adminToken, wantData: marchallList(t, usr1, usr2, student, admin)},
		{name: "order by -name", path: path("", "-name"), token: adminToken, wantData: marchallList(t, usr1, usr2, student, admin)},
		{name: "order by -name, repeated field ignored", path: path("", "-name,name"), token: adminToken, wantData: marchallList(t, usr1, usr2, student, admin)},
		{
			name: "order by unknown field", path: path("", "username,-password_hash"), token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"ordering": "unknown field(s) password_hash; use one of created_at, email, name, ru, username, xp",
			}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runTests(t, srv, tests)
}

func Test_userApi_userRefreshToken(t *testing.T) {
	s, srv := setup(t)

	naughty := testutil.CreateUser(t, s.UserRepo, "N Dog", "ndog", "ndog@test.cd", "2024001", "", []string{user.RoleStudent}, false) // 😂
	student := s.Student(t, "hero")

	// issued before the refresh threshold
	oriat := time.Now().Add(-2 * s.Conf.Server.JWTRefreshExpirationDelta).Unix()
	unrefreshableToken, err := echoapi.GenerateToken(echoapi.GetUserClaims(student, s.Conf, oriat), s.Conf.SecretKey)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, s, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runTests(t, srv, tests)

	// cannot guess new token.. just check that it's not empty
	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, s, student))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
}

func Test_userApi_checkout(t *testing.T) {
	s, srv := setup(t)
	student := s.Student(t, "hero")

	req, rec := newAuthRequest(http.MethodPost, "/v1/checkout", getToken(t, s, student))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var usr user.User
	decode(t, rec, &usr)
	assert.True(t, usr.IsPlus)
	assert.True(t, usr.IsPremiumMember())
}
