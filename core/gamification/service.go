package gamification

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/user"
)

const defaultLeaderboardSize = 5

type (
	Service interface {
		// Access checks the premium gate, then the unlock gate.
		Access(ctx context.Context, usr user.User, ch course.Chapter) error
		OpenChapter(ctx context.Context, usr user.User, chapterID string) (ChapterView, error)
		Trail(ctx context.Context, usr user.User, trailID string) (TrailView, error)
		Trails(ctx context.Context, usr user.User) ([]TrailView, error)
		CompleteReading(ctx context.Context, usr user.User, chapterID string) (AwardResult, error)
		Quiz(ctx context.Context, usr user.User, chapterID string) ([]course.Question, error)
		SubmitQuiz(ctx context.Context, usr user.User, chapterID string, answers course.Answers) (QuizOutcome, error)
		Adjust(ctx context.Context, userID string, quantity int, reason string) (AwardResult, error)
		EvaluateMedals(ctx context.Context, userID string) ([]string, error)
		Dashboard(ctx context.Context, usr user.User) (Dashboard, error)
		Ledger(ctx context.Context, usr user.User) ([]PointTransaction, error)
		VerifyLedger(ctx context.Context, userID string) ([]Balance, error)
		CreateMedal(ctx context.Context, medal Medal) (Medal, error)
		ListMedals(ctx context.Context) ([]Medal, error)
		Ranks() *RankCalculator
	}

	service struct {
		users    user.Service
		courses  course.Service
		ledger   LedgerRepository
		progress ProgressRepository
		medals   MedalRepository

		engine    *RewardEngine
		evaluator *MedalEvaluator
		unlock    *UnlockPolicy
		ranks     *RankCalculator

		leaderboardSize int
	}
)

var _ Service = (*service)(nil)

func NewService(
	users user.Service,
	courses course.Service,
	ledger LedgerRepository,
	progress ProgressRepository,
	medals MedalRepository,
	tx core.Transactor,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) (Service, error) {
	ranks, err := NewRankCalculator(conf.Rank.Bands)
	if err != nil {
		return nil, errors.Wrap(err, "creating rank calculator")
	}
	evaluator := NewMedalEvaluator(medals, ledger, tx)
	svc := &service{
		users:           users,
		courses:         courses,
		ledger:          ledger,
		progress:        progress,
		medals:          medals,
		engine:          NewRewardEngine(ledger, progress, evaluator, tx, mailSvc, logger, conf),
		evaluator:       evaluator,
		unlock:          NewUnlockPolicy(courses, progress),
		ranks:           ranks,
		leaderboardSize: defaultLeaderboardSize,
	}
	if conf.Dashboard.LeaderboardSize > 0 {
		svc.leaderboardSize = conf.Dashboard.LeaderboardSize
	}
	return svc, nil
}

func (svc *service) Ranks() *RankCalculator { return svc.ranks }

func (svc *service) Access(ctx context.Context, usr user.User, ch course.Chapter) error {
	if ch.IsPremium && !usr.IsPremiumMember() {
		return ErrPremiumRequired
	}
	unlocked, err := svc.unlock.IsUnlocked(ctx, usr.ID, ch)
	if err != nil {
		return err
	}
	if !unlocked {
		return ErrChapterLocked
	}
	return nil
}

// accessibleChapter loads a chapter the user may open.
func (svc *service) accessibleChapter(ctx context.Context, usr user.User, chapterID string) (course.Chapter, error) {
	ch, err := svc.courses.GetChapter(ctx, chapterID)
	if err != nil {
		return course.Chapter{}, err
	}
	if err = svc.Access(ctx, usr, ch); err != nil {
		return course.Chapter{}, err
	}
	return ch, nil
}

func (svc *service) OpenChapter(ctx context.Context, usr user.User, chapterID string) (ChapterView, error) {
	ch, err := svc.accessibleChapter(ctx, usr, chapterID)
	if err != nil {
		return ChapterView{}, err
	}

	view := ChapterView{
		Chapter:  ch,
		Unlocked: true,
		Rank:     svc.ranks.Rank(usr.XP),
		NextRank: svc.ranks.ProgressToNext(usr.XP),
	}
	rec, err := svc.progress.GetRecord(ctx, usr.ID, ch.ID)
	switch errors.Cause(err) {
	case nil:
		view.Progress = &rec
	case ErrNoProgress:
	default:
		return ChapterView{}, errors.Wrap(err, "finding progress record")
	}
	return view, nil
}

func (svc *service) trailView(trail course.Trail, completed map[string]bool, records []ProgressRecord) TrailView {
	unlocked := UnlockedSet(trail.Chapters, records)
	view := TrailView{
		ID:          trail.ID,
		Title:       trail.Title,
		Description: trail.Description,
		Chapters:    make([]TrailChapter, 0, len(trail.Chapters)),
		Completed:   len(trail.Chapters) > 0,
	}
	for _, ch := range trail.Chapters {
		ch.Content = ""
		tc := TrailChapter{Chapter: ch, Unlocked: unlocked[ch.ID], Completed: completed[ch.ID]}
		if !tc.Completed {
			view.Completed = false
		}
		view.Chapters = append(view.Chapters, tc)
	}
	return view
}

func (svc *service) userRecords(ctx context.Context, userID string) ([]ProgressRecord, map[string]bool, error) {
	records, err := svc.progress.ListRecords(ctx, userID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing progress records")
	}
	completed := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.IsCompleted() {
			completed[rec.ChapterID] = true
		}
	}
	return records, completed, nil
}

// Trail returns the trail's chapters with the user's unlocked and completed flags.
func (svc *service) Trail(ctx context.Context, usr user.User, trailID string) (TrailView, error) {
	trail, err := svc.courses.GetTrail(ctx, trailID)
	if err != nil {
		return TrailView{}, err
	}
	records, completed, err := svc.userRecords(ctx, usr.ID)
	if err != nil {
		return TrailView{}, err
	}
	return svc.trailView(trail, completed, records), nil
}

func (svc *service) Trails(ctx context.Context, usr user.User) ([]TrailView, error) {
	trails, err := svc.courses.ListTrails(ctx)
	if err != nil {
		return nil, err
	}
	records, completed, err := svc.userRecords(ctx, usr.ID)
	if err != nil {
		return nil, err
	}
	views := make([]TrailView, 0, len(trails))
	for _, trail := range trails {
		views = append(views, svc.trailView(trail, completed, records))
	}
	return views, nil
}

func (svc *service) CompleteReading(ctx context.Context, usr user.User, chapterID string) (AwardResult, error) {
	ch, err := svc.accessibleChapter(ctx, usr, chapterID)
	if err != nil {
		return AwardResult{}, err
	}
	return svc.engine.AwardReading(ctx, usr, ch)
}

func (svc *service) Quiz(ctx context.Context, usr user.User, chapterID string) ([]course.Question, error) {
	if _, err := svc.accessibleChapter(ctx, usr, chapterID); err != nil {
		return nil, err
	}
	return svc.courses.Questions(ctx, chapterID)
}

func (svc *service) SubmitQuiz(ctx context.Context, usr user.User, chapterID string, answers course.Answers) (QuizOutcome, error) {
	ch, err := svc.accessibleChapter(ctx, usr, chapterID)
	if err != nil {
		return QuizOutcome{}, err
	}
	result, err := svc.courses.Grade(ctx, ch.ID, answers)
	if err != nil {
		return QuizOutcome{}, err
	}
	award, err := svc.engine.AwardQuiz(ctx, usr, ch, result.Percent)
	if err != nil {
		return QuizOutcome{}, err
	}
	return QuizOutcome{Result: result, Award: award}, nil
}

func (svc *service) Adjust(ctx context.Context, userID string, quantity int, reason string) (AwardResult, error) {
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return AwardResult{}, err
	}
	return svc.engine.Adjust(ctx, usr, quantity, reason)
}

func (svc *service) EvaluateMedals(ctx context.Context, userID string) ([]string, error) {
	return svc.evaluator.EvaluateAndGrant(ctx, userID)
}

func (svc *service) Dashboard(ctx context.Context, usr user.User) (Dashboard, error) {
	usr, err := svc.users.GetByID(ctx, usr.ID) // cached XP may have moved since the caller loaded usr
	if err != nil {
		return Dashboard{}, err
	}

	dash := Dashboard{
		XP:       usr.XP,
		Rank:     svc.ranks.Rank(usr.XP),
		NextRank: svc.ranks.ProgressToNext(usr.XP),
	}

	if dash.Medals, err = svc.medals.ListUserMedals(ctx, usr.ID); err != nil {
		return Dashboard{}, errors.Wrap(err, "listing user medals")
	}

	if dash.Leaderboard, err = svc.ledger.Leaderboard(ctx, svc.leaderboardSize); err != nil {
		return Dashboard{}, errors.Wrap(err, "building leaderboard")
	}
	for i := range dash.Leaderboard {
		dash.Leaderboard[i].Rank = svc.ranks.Rank(dash.Leaderboard[i].XP)
	}

	chapters, err := svc.courses.ListChapters(ctx, "")
	if err != nil {
		return Dashboard{}, err
	}
	_, completed, err := svc.userRecords(ctx, usr.ID)
	if err != nil {
		return Dashboard{}, err
	}

	trailDone := make(map[string]bool)
	for _, ch := range chapters {
		done, seen := trailDone[ch.TrailID]
		if !seen {
			done = true
		}
		if completed[ch.ID] {
			dash.CompletedChapters++
		} else {
			done = false
		}
		trailDone[ch.TrailID] = done
	}
	for _, done := range trailDone {
		if done {
			dash.CompletedTrails++
		}
	}
	dash.TotalChapters = len(chapters)
	if dash.TotalChapters > 0 {
		dash.GlobalProgress = dash.CompletedChapters * 100 / dash.TotalChapters
	}
	return dash, nil
}

func (svc *service) Ledger(ctx context.Context, usr user.User) ([]PointTransaction, error) {
	entries, err := svc.ledger.ListEntries(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing ledger entries")
	}
	return entries, nil
}

// VerifyLedger compares cached XP with ledger sums, for one user or everyone when userID is empty.
// Balances with a drift come first.
func (svc *service) VerifyLedger(ctx context.Context, userID string) ([]Balance, error) {
	if userID != "" {
		if _, err := svc.users.GetByID(ctx, userID); err != nil {
			return nil, err
		}
	}
	balances, err := svc.ledger.Balances(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "computing balances")
	}
	sort.SliceStable(balances, func(i, j int) bool {
		return balances[i].Drift() != 0 && balances[j].Drift() == 0
	})
	return balances, nil
}

func (svc *service) CreateMedal(ctx context.Context, medal Medal) (Medal, error) {
	medal.Name = core.CleanString(medal.Name)
	medal.Description = core.CleanString(medal.Description)
	var flds []core.FieldError
	if medal.Name == "" {
		flds = append(flds, core.FieldError{Field: "name", Error: "this field is required"})
	}
	if medal.MinPoints < 0 {
		flds = append(flds, core.FieldError{Field: "min_points", Error: "min_points must be 0 or greater"})
	}
	if len(flds) > 0 {
		return Medal{}, core.NewValidationError(errors.New("invalid medal"), flds...)
	}
	return svc.medals.CreateMedal(ctx, medal)
}

func (svc *service) ListMedals(ctx context.Context) ([]Medal, error) {
	return svc.medals.ListMedals(ctx)
}
