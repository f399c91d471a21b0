package gamification_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
	"github.com/trezcool/gamifica/tests"
)

var errGrantFailed = errors.New("grant failed")

// failingMedals fails every grant, to check that awards roll back as a whole.
type failingMedals struct {
	gamification.MedalRepository
}

func (failingMedals) GrantMedal(context.Context, string, string, time.Time, ...core.DBExecutor) (bool, error) {
	return false, errGrantFailed
}

func TestService_CompleteReading(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")
	_, chapters := s.Trail(t, "Go", []int{25})

	res, err := s.Gamified.CompleteReading(ctx, student, chapters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, gamification.KindReading, res.Kind)
	assert.False(t, res.AlreadyAwarded)
	assert.Equal(t, 7, res.Credited) // floor(25 * 30%)
	assert.Equal(t, 7, res.XP)

	res, err = s.Gamified.CompleteReading(ctx, student, chapters[0].ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyAwarded)
	assert.Zero(t, res.Credited)
	assert.Equal(t, 7, res.XP)

	view, err := s.Gamified.OpenChapter(ctx, student, chapters[0].ID)
	require.NoError(t, err)
	require.NotNil(t, view.Progress)
	assert.False(t, view.Progress.IsCompleted())

	entries, err := s.Gamified.Ledger(ctx, student)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_SubmitQuiz(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")
	_, chapters := s.Trail(t, "Go", []int{25})
	ch := chapters[0]
	questions := s.Quiz(t, ch.ID, 10)

	// failed attempt: nothing changes
	out, err := s.Gamified.SubmitQuiz(ctx, student, ch.ID, testutil.Answers(questions, 6))
	require.NoError(t, err)
	assert.Equal(t, 6, out.Result.Correct)
	assert.Equal(t, 10, out.Result.Total)
	assert.False(t, out.Award.Passed)
	assert.Zero(t, out.Award.Credited)
	assert.Nil(t, out.Award.CompletedAt)

	view, err := s.Gamified.OpenChapter(ctx, student, ch.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Progress)

	// 70% passes
	out, err = s.Gamified.SubmitQuiz(ctx, student, ch.ID, testutil.Answers(questions, 7))
	require.NoError(t, err)
	assert.Equal(t, float64(70), out.Result.Percent)
	assert.True(t, out.Award.Passed)
	assert.Equal(t, 18, out.Award.Credited) // 25 - floor(25 * 30%)
	assert.Equal(t, 18, out.Award.XP)
	require.NotNil(t, out.Award.CompletedAt)
	firstCompletion := *out.Award.CompletedAt

	// passing again keeps the first completion and credits nothing
	out, err = s.Gamified.SubmitQuiz(ctx, student, ch.ID, testutil.Answers(questions, 10))
	require.NoError(t, err)
	assert.True(t, out.Award.Passed)
	assert.True(t, out.Award.AlreadyAwarded)
	assert.Zero(t, out.Award.Credited)
	require.NotNil(t, out.Award.CompletedAt)
	assert.True(t, firstCompletion.Equal(*out.Award.CompletedAt))

	// reading after the quiz still pays its share, and both shares add up to the chapter's XP
	res, err := s.Gamified.CompleteReading(ctx, student, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, res.XP)

	// a failed retake reports the points the user holds
	out, err = s.Gamified.SubmitQuiz(ctx, student, ch.ID, testutil.Answers(questions, 6))
	require.NoError(t, err)
	assert.False(t, out.Award.Passed)
	assert.Zero(t, out.Award.Credited)
	assert.Equal(t, 25, out.Award.XP)
}

func TestRewardEngine_shares(t *testing.T) {
	tests := []struct {
		sharePercent int
		xpValue      int
		wantReading  int
	}{
		{1, 100, 1},
		{30, 100, 30},
		{33, 100, 33},
		{50, 100, 50},
		{99, 100, 99},
		{100, 100, 100},
		{1, 37, 0},
		{30, 37, 11},
		{33, 37, 12},
		{50, 37, 18},
		{99, 37, 36},
		{100, 37, 37},
		{30, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d%% of %d", tt.sharePercent, tt.xpValue), func(t *testing.T) {
			conf := testutil.Conf()
			conf.Reward.ReadingSharePercent = tt.sharePercent
			re := gamification.NewRewardEngine(nil, nil, nil, nil, nil, nil, conf)

			assert.Equal(t, tt.wantReading, re.ReadingShare(tt.xpValue))
			assert.Equal(t, tt.xpValue, re.ReadingShare(tt.xpValue)+re.QuizShare(tt.xpValue))
		})
	}
}

func TestRewardEngine_Passed(t *testing.T) {
	re := gamification.NewRewardEngine(nil, nil, nil, nil, nil, nil, testutil.Conf())

	tests := []struct {
		correct, total int
		want           bool
	}{
		{7, 10, true},
		{6, 10, false},
		{6, 9, false},
		{7, 9, true},
		{10, 10, true},
		{0, 10, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d of %d", tt.correct, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, re.Passed(course.ScorePercent(tt.correct, tt.total)))
		})
	}
	assert.True(t, re.Passed(70))
	assert.False(t, re.Passed(69.99))
}

func TestService_Access(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")
	admin := s.Admin(t, "boss")
	_, chapters := s.Trail(t, "Go", []int{10, 10, 10}, 3)
	q1 := s.Quiz(t, chapters[0].ID, 3)
	q2 := s.Quiz(t, chapters[1].ID, 3)

	_, err := s.Gamified.OpenChapter(ctx, student, chapters[1].ID)
	assert.Equal(t, gamification.ErrChapterLocked, errors.Cause(err))
	_, err = s.Gamified.CompleteReading(ctx, student, chapters[1].ID)
	assert.Equal(t, gamification.ErrChapterLocked, errors.Cause(err))
	_, err = s.Gamified.SubmitQuiz(ctx, student, chapters[1].ID, testutil.Answers(q2, 3))
	assert.Equal(t, gamification.ErrChapterLocked, errors.Cause(err))

	// reading alone does not unlock the next chapter
	_, err = s.Gamified.CompleteReading(ctx, student, chapters[0].ID)
	require.NoError(t, err)
	_, err = s.Gamified.OpenChapter(ctx, student, chapters[1].ID)
	assert.Equal(t, gamification.ErrChapterLocked, errors.Cause(err))

	_, err = s.Gamified.SubmitQuiz(ctx, student, chapters[0].ID, testutil.Answers(q1, 3))
	require.NoError(t, err)
	_, err = s.Gamified.OpenChapter(ctx, student, chapters[1].ID)
	assert.NoError(t, err)

	_, err = s.Gamified.SubmitQuiz(ctx, student, chapters[1].ID, testutil.Answers(q2, 3))
	require.NoError(t, err)

	// chapter 3 is premium
	_, err = s.Gamified.OpenChapter(ctx, student, chapters[2].ID)
	assert.Equal(t, gamification.ErrPremiumRequired, errors.Cause(err))
	_, err = s.Gamified.Quiz(ctx, student, chapters[2].ID)
	assert.Equal(t, gamification.ErrPremiumRequired, errors.Cause(err))

	student, err = s.Users.ActivatePremium(ctx, student.ID)
	require.NoError(t, err)
	_, err = s.Gamified.OpenChapter(ctx, student, chapters[2].ID)
	assert.NoError(t, err)

	// admins pass the premium gate, not the unlock gate
	_, err = s.Gamified.OpenChapter(ctx, admin, chapters[2].ID)
	assert.Equal(t, gamification.ErrChapterLocked, errors.Cause(err))

	_, err = s.Gamified.OpenChapter(ctx, student, "unknown")
	assert.Error(t, err)
}

func TestService_Trail(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")
	trail, chapters := s.Trail(t, "Go", []int{10, 20})
	q1 := s.Quiz(t, chapters[0].ID, 2)
	q2 := s.Quiz(t, chapters[1].ID, 2)

	view, err := s.Gamified.Trail(ctx, student, trail.ID)
	require.NoError(t, err)
	require.Len(t, view.Chapters, 2)
	assert.True(t, view.Chapters[0].Unlocked)
	assert.False(t, view.Chapters[1].Unlocked)
	assert.False(t, view.Completed)
	assert.Empty(t, view.Chapters[0].Content)

	_, err = s.Gamified.SubmitQuiz(ctx, student, chapters[0].ID, testutil.Answers(q1, 2))
	require.NoError(t, err)
	_, err = s.Gamified.SubmitQuiz(ctx, student, chapters[1].ID, testutil.Answers(q2, 2))
	require.NoError(t, err)

	views, err := s.Gamified.Trails(ctx, student)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Completed)
	for _, ch := range views[0].Chapters {
		assert.True(t, ch.Unlocked)
		assert.True(t, ch.Completed)
	}
}

func TestService_Medals(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")
	_, chapters := s.Trail(t, "Go", []int{25})
	questions := s.Quiz(t, chapters[0].ID, 2)
	s.Medals(t, map[string]int{"Bronze": 5, "Silver": 20, "Gold": 1000})

	res, err := s.Gamified.CompleteReading(ctx, student, chapters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bronze"}, res.NewMedals)

	sent := s.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "You earned the Bronze medal", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Bronze")

	out, err := s.Gamified.SubmitQuiz(ctx, student, chapters[0].ID, testutil.Answers(questions, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"Silver"}, out.Award.NewMedals)

	names, err := s.Gamified.EvaluateMedals(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, names)

	dash, err := s.Gamified.Dashboard(ctx, student)
	require.NoError(t, err)
	require.Len(t, dash.Medals, 2)

	// a medal created later is granted on the next evaluation
	s.Medals(t, map[string]int{"Starter": 1})
	names, err = s.Gamified.EvaluateMedals(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Starter"}, names)

	_, err = s.Gamified.CreateMedal(ctx, gamification.Medal{Name: " ", MinPoints: -1})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Fields, 2)
}

func TestService_MedalThreshold(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")
	s.Medals(t, map[string]int{"Century": 100})

	res, err := s.Gamified.Adjust(ctx, student.ID, 99, "migration")
	require.NoError(t, err)
	assert.Equal(t, 99, res.XP)
	assert.Empty(t, res.NewMedals)

	res, err = s.Gamified.Adjust(ctx, student.ID, 1, "migration")
	require.NoError(t, err)
	assert.Equal(t, 100, res.XP)
	assert.Equal(t, []string{"Century"}, res.NewMedals)

	names, err := s.Gamified.EvaluateMedals(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestService_AwardRollsBack(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t, testutil.WithMedalRepository(func(repo gamification.MedalRepository) gamification.MedalRepository {
		return failingMedals{repo}
	}))
	student := s.Student(t, "hero")
	_, chapters := s.Trail(t, "Go", []int{25})
	s.Medals(t, map[string]int{"Bronze": 5})

	_, err := s.Gamified.CompleteReading(ctx, student, chapters[0].ID)
	require.Error(t, err)
	assert.Equal(t, errGrantFailed, errors.Cause(err))

	usr, err := s.Users.GetByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Zero(t, usr.XP)

	entries, err := s.Gamified.Ledger(ctx, student)
	require.NoError(t, err)
	assert.Empty(t, entries)

	view, err := s.Gamified.OpenChapter(ctx, student, chapters[0].ID)
	require.NoError(t, err)
	assert.Nil(t, view.Progress)
	assert.Empty(t, s.Mail.SentMessages())
}

func TestService_ConcurrentAwards(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")
	_, chapters := s.Trail(t, "Go", []int{25})
	questions := s.Quiz(t, chapters[0].ID, 2)

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := s.Gamified.CompleteReading(ctx, student, chapters[0].ID)
			assert.NoError(t, err)
			mu.Lock()
			credited += res.Credited
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			out, err := s.Gamified.SubmitQuiz(ctx, student, chapters[0].ID, testutil.Answers(questions, 2))
			assert.NoError(t, err)
			mu.Lock()
			credited += out.Award.Credited
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, credited)
	usr, err := s.Users.GetByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, usr.XP)

	entries, err := s.Gamified.Ledger(ctx, student)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_Adjust(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	student := s.Student(t, "hero")

	_, err := s.Gamified.Adjust(ctx, student.ID, 0, "nothing")
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))

	_, err = s.Gamified.Adjust(ctx, "unknown", 10, "")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	res, err := s.Gamified.Adjust(ctx, student.ID, 50, " hackathon winner ")
	require.NoError(t, err)
	assert.Equal(t, 50, res.XP)

	res, err = s.Gamified.Adjust(ctx, student.ID, -20, "")
	require.NoError(t, err)
	assert.Equal(t, -20, res.Credited)
	assert.Equal(t, 30, res.XP)

	entries, err := s.Gamified.Ledger(ctx, student)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Adjustment: -20 XP", entries[0].Description) // newest first
	assert.Equal(t, "Adjustment: hackathon winner", entries[1].Description)
	for _, e := range entries {
		assert.Equal(t, gamification.KindAdjustment, e.Kind)
		assert.Empty(t, e.ChapterID)
	}
}

func TestService_Dashboard(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	hero := s.Student(t, "hero")
	ace := s.Student(t, "ace")
	zed := s.Student(t, "zed")
	ghost := testutil.CreateUser(t, s.UserRepo, "Ghost", "ghost", "ghost@test.cd", "202499999", "", []string{user.RoleStudent}, false)

	_, goChapters := s.Trail(t, "Go", []int{10, 10})
	_, sqlChapters := s.Trail(t, "SQL", []int{20})
	q := s.Quiz(t, goChapters[0].ID, 1)
	sqlQ := s.Quiz(t, sqlChapters[0].ID, 1)

	_, err := s.Gamified.SubmitQuiz(ctx, hero, goChapters[0].ID, testutil.Answers(q, 1))
	require.NoError(t, err)
	_, err = s.Gamified.SubmitQuiz(ctx, hero, sqlChapters[0].ID, testutil.Answers(sqlQ, 1))
	require.NoError(t, err)
	for _, adj := range []struct {
		userID string
		qty    int
	}{{ace.ID, 150}, {zed.ID, 21}, {ghost.ID, 5000}} {
		_, err = s.Gamified.Adjust(ctx, adj.userID, adj.qty, "")
		require.NoError(t, err)
	}

	dash, err := s.Gamified.Dashboard(ctx, hero)
	require.NoError(t, err)
	assert.Equal(t, 21, dash.XP) // 7 + 14
	assert.Equal(t, "Novice", dash.Rank.Label)
	assert.Equal(t, 79, dash.NextRank.Missing)
	assert.Equal(t, 2, dash.CompletedChapters)
	assert.Equal(t, 3, dash.TotalChapters)
	assert.Equal(t, 1, dash.CompletedTrails)
	assert.Equal(t, 66, dash.GlobalProgress)

	// inactive users are left out; ties sort by username
	require.Len(t, dash.Leaderboard, 3)
	assert.Equal(t, "ace", dash.Leaderboard[0].Username)
	assert.Equal(t, "Apprentice", dash.Leaderboard[0].Rank.Label)
	assert.Equal(t, "hero", dash.Leaderboard[1].Username)
	assert.Equal(t, "zed", dash.Leaderboard[2].Username)
}

func TestService_VerifyLedger(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	hero := s.Student(t, "hero")
	ace := s.Student(t, "ace")
	_, chapters := s.Trail(t, "Go", []int{25})

	_, err := s.Gamified.CompleteReading(ctx, hero, chapters[0].ID)
	require.NoError(t, err)
	_, err = s.Gamified.Adjust(ctx, ace.ID, 40, "")
	require.NoError(t, err)
	_, err = s.Gamified.Adjust(ctx, ace.ID, -15, "")
	require.NoError(t, err)

	balances, err := s.Gamified.VerifyLedger(ctx, "")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	for _, b := range balances {
		assert.Zero(t, b.Drift(), b.Username)
	}

	balances, err = s.Gamified.VerifyLedger(ctx, ace.ID)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, gamification.Balance{UserID: ace.ID, Username: "ace", CachedXP: 25, LedgerXP: 25, EntryCount: 2}, balances[0])

	_, err = s.Gamified.VerifyLedger(ctx, "unknown")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}
