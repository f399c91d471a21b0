package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/gamifica/apps/api/echo"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
)

func Test_gamificationApi_adminRoutes(t *testing.T) {
	s, srv := setup(t)
	student := s.Student(t, "hero")
	admin := s.Admin(t, "boss")

	studentToken := getToken(t, s, student)
	adminToken := getToken(t, s, admin)
	denied := marchallObj(t, httpErr{Error: "permission denied"})
	adjust := func(qty int, reason string) []byte {
		return marchallObj(t, echoapi.AdjustRequest{Quantity: qty, Reason: reason})
	}

	tests := []httpTest{
		{name: "adjust: auth required", method: http.MethodPost, path: "/v1/users/" + student.ID + "/adjust", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "adjust: admin required", method: http.MethodPost, path: "/v1/users/" + student.ID + "/adjust", token: studentToken, body: adjust(10, "lol"), wantCode: http.StatusForbidden, wantData: denied},
		{name: "balance: admin required", method: http.MethodGet, path: "/v1/users/" + student.ID + "/balance", token: studentToken, wantCode: http.StatusForbidden, wantData: denied},
		{name: "evaluate: admin required", method: http.MethodPost, path: "/v1/medals/evaluate/" + student.ID, token: studentToken, wantCode: http.StatusForbidden, wantData: denied},
		{
			name: "adjust: zero quantity", method: http.MethodPost, path: "/v1/users/" + student.ID + "/adjust", token: adminToken,
			body: adjust(0, "nothing"), wantCode: http.StatusBadRequest,
		},
		{
			name: "adjust: unknown user", method: http.MethodPost, path: "/v1/users/lol/adjust", token: adminToken,
			body: adjust(10, "lol"), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: user.ErrNotFound.Error()}),
		},
		{name: "balance: unknown user", method: http.MethodGet, path: "/v1/users/lol/balance", token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
	}
	runTests(t, srv, tests)

	s.Medals(t, map[string]int{"Bronze": 5})

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/"+student.ID+"/adjust", adminToken, adjust(50, "hackathon winner"))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var award gamification.AwardResult
	decode(t, rec, &award)
	assert.Equal(t, gamification.KindAdjustment, award.Kind)
	assert.Equal(t, 50, award.Credited)
	assert.Equal(t, 50, award.XP)
	assert.Equal(t, []string{"Bronze"}, award.NewMedals)

	req, rec = newAuthRequest(http.MethodGet, "/v1/users/"+student.ID+"/balance", adminToken)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var balance echoapi.BalanceResponse
	decode(t, rec, &balance)
	assert.Equal(t, 50, balance.CachedXP)
	assert.Equal(t, 50, balance.LedgerXP)
	assert.Equal(t, 1, balance.EntryCount)
	assert.Zero(t, balance.Drift)

	// already granted
	req, rec = newAuthRequest(http.MethodPost, "/v1/medals/evaluate/"+student.ID, adminToken)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var evaluated echoapi.EvaluateResponse
	decode(t, rec, &evaluated)
	assert.Empty(t, evaluated.NewMedals)
}

func Test_gamificationApi_dashboard(t *testing.T) {
	s, srv := setup(t)
	student := s.Student(t, "hero")
	rival := s.Student(t, "ace")
	s.Medals(t, map[string]int{"Bronze": 5, "Gold": 1000})
	_, chapters := s.Trail(t, "Go", []int{10, 20})
	ctx := t.Context()

	_, err := s.Gamified.CompleteReading(ctx, student, chapters[0].ID)
	require.NoError(t, err)
	_, err = s.Gamified.Adjust(ctx, rival.ID, 40, "seed")
	require.NoError(t, err)

	token := getToken(t, s, student)
	req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dash gamification.Dashboard
	decode(t, rec, &dash)
	assert.Equal(t, 3, dash.XP)
	assert.Equal(t, "Novice", dash.Rank.Label)
	assert.Empty(t, dash.Medals)
	assert.Equal(t, 2, dash.TotalChapters)
	assert.Zero(t, dash.CompletedChapters)
	require.Len(t, dash.Leaderboard, 2)
	assert.Equal(t, "ace", dash.Leaderboard[0].Username)
	assert.Equal(t, "hero", dash.Leaderboard[1].Username)

	req, rec = newAuthRequest(http.MethodGet, "/v1/ledger", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entries []gamification.PointTransaction
	decode(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, gamification.KindReading, entries[0].Kind)
	assert.Equal(t, 3, entries[0].Quantity)

	req, rec = newAuthRequest(http.MethodGet, "/v1/medals", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var medals []gamification.Medal
	decode(t, rec, &medals)
	require.Len(t, medals, 2)
	assert.Equal(t, "Bronze", medals[0].Name)
	assert.Equal(t, "Gold", medals[1].Name)
}
