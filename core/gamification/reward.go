package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/user"
)

const (
	defaultReadingSharePercent = 30
	defaultPassPercent         = 70.0
)

// RewardEngine credits XP for reading chapters and passing their quizzes.
// Each credit, the matching cached XP increment, progress change and medal grants commit together or not at all.
type RewardEngine struct {
	ledger   LedgerRepository
	progress ProgressRepository
	medals   *MedalEvaluator
	tx       core.Transactor
	mailSvc  core.EmailService
	logger   core.Logger

	readingShare    int
	passPercent     float64
	frontendBaseURL string
}

func NewRewardEngine(
	ledger LedgerRepository,
	progress ProgressRepository,
	medals *MedalEvaluator,
	tx core.Transactor,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *RewardEngine {
	re := &RewardEngine{
		ledger:       ledger,
		progress:     progress,
		medals:       medals,
		tx:           tx,
		mailSvc:      mailSvc,
		logger:       logger,
		readingShare: defaultReadingSharePercent,
		passPercent:  defaultPassPercent,
	}
	if conf != nil {
		if pct := conf.Reward.ReadingSharePercent; pct > 0 && pct <= 100 {
			re.readingShare = pct
		}
		if conf.Reward.PassPercent > 0 {
			re.passPercent = conf.Reward.PassPercent
		}
		re.frontendBaseURL = conf.FrontendBaseURL
	}
	return re
}

// ReadingShare is the part of xpValue credited for reading, floored.
func (re *RewardEngine) ReadingShare(xpValue int) int {
	return xpValue * re.readingShare / 100
}

// QuizShare is what remains of xpValue after the reading share, so both always add up to xpValue.
func (re *RewardEngine) QuizShare(xpValue int) int {
	return xpValue - re.ReadingShare(xpValue)
}

func (re *RewardEngine) Passed(scorePercent float64) bool {
	return scorePercent >= re.passPercent
}

// AwardReading credits the reading share of ch once per user and starts the chapter's progress record.
// A repeated call credits nothing and reports AlreadyAwarded.
func (re *RewardEngine) AwardReading(ctx context.Context, usr user.User, ch course.Chapter) (AwardResult, error) {
	res := AwardResult{Kind: KindReading, ChapterID: ch.ID, NewMedals: []string{}}

	err := re.tx.InTx(ctx, func(exec core.DBExecutor) error {
		xp, err := re.ledger.LockUser(ctx, usr.ID, exec)
		if err != nil {
			return err
		}
		res.XP = xp

		if _, err = re.progress.EnsureRecord(ctx, usr.ID, ch.ID, time.Now().UTC(), exec); err != nil {
			return errors.Wrap(err, "starting progress record")
		}
		return re.credit(ctx, &res, PointTransaction{
			UserID:      usr.ID,
			ChapterID:   ch.ID,
			Kind:        KindReading,
			Quantity:    re.ReadingShare(ch.XPValue),
			Description: "Reading: " + ch.Title,
		}, exec)
	})
	if err != nil {
		return AwardResult{}, err
	}

	re.notifyMedals(usr, res)
	return res, nil
}

// AwardQuiz records a quiz attempt. A failed attempt changes nothing.
// The first pass completes the chapter and credits the quiz share. Later passes keep the original
// completion time and credit nothing.
func (re *RewardEngine) AwardQuiz(ctx context.Context, usr user.User, ch course.Chapter, scorePercent float64) (AwardResult, error) {
	res := AwardResult{Kind: KindQuiz, ChapterID: ch.ID, Passed: re.Passed(scorePercent), NewMedals: []string{}}
	if !res.Passed {
		xp, err := re.ledger.CachedXP(ctx, usr.ID)
		if err != nil {
			return AwardResult{}, errors.Wrap(err, "reading user XP")
		}
		res.XP = xp
		return res, nil
	}

	err := re.tx.InTx(ctx, func(exec core.DBExecutor) error {
		xp, err := re.ledger.LockUser(ctx, usr.ID, exec)
		if err != nil {
			return err
		}
		res.XP = xp

		now := time.Now().UTC()
		if _, err = re.progress.EnsureRecord(ctx, usr.ID, ch.ID, now, exec); err != nil {
			return errors.Wrap(err, "starting progress record")
		}
		rec, err := re.progress.MarkCompleted(ctx, usr.ID, ch.ID, now, exec)
		if err != nil {
			return errors.Wrap(err, "completing progress record")
		}
		res.CompletedAt = rec.CompletedAt

		return re.credit(ctx, &res, PointTransaction{
			UserID:      usr.ID,
			ChapterID:   ch.ID,
			Kind:        KindQuiz,
			Quantity:    re.QuizShare(ch.XPValue),
			Description: "Quiz: " + ch.Title,
		}, exec)
	})
	if err != nil {
		return AwardResult{}, err
	}

	re.notifyMedals(usr, res)
	return res, nil
}

// Adjust credits (or debits) an arbitrary amount, for corrections made by staff.
func (re *RewardEngine) Adjust(ctx context.Context, usr user.User, quantity int, reason string) (AwardResult, error) {
	if quantity == 0 {
		return AwardResult{}, core.NewValidationError(
			errors.New("invalid adjustment"),
			core.FieldError{Field: "quantity", Error: "quantity must not be 0"},
		)
	}
	reason = core.CleanString(reason)
	if reason == "" {
		reason = fmt.Sprintf("Adjustment: %+d XP", quantity)
	} else {
		reason = "Adjustment: " + reason
	}

	res := AwardResult{Kind: KindAdjustment, NewMedals: []string{}}
	err := re.tx.InTx(ctx, func(exec core.DBExecutor) error {
		xp, err := re.ledger.LockUser(ctx, usr.ID, exec)
		if err != nil {
			return err
		}
		res.XP = xp
		return re.credit(ctx, &res, PointTransaction{
			UserID:      usr.ID,
			Kind:        KindAdjustment,
			Quantity:    quantity,
			Description: reason,
		}, exec)
	})
	if err != nil {
		return AwardResult{}, err
	}

	re.notifyMedals(usr, res)
	return res, nil
}

// credit writes entry, then grants medals on the new total. Must run inside the caller's transaction,
// after the user's row has been locked.
func (re *RewardEngine) credit(ctx context.Context, res *AwardResult, entry PointTransaction, exec core.DBExecutor) error {
	if entry.Kind != KindAdjustment {
		exists, err := re.ledger.HasEntry(ctx, entry.UserID, entry.ChapterID, entry.Kind, exec)
		if err != nil {
			return errors.Wrap(err, "checking ledger")
		}
		if exists {
			res.AlreadyAwarded = true
			return nil
		}
	}

	entry.CreatedAt = time.Now().UTC()
	xp, err := re.ledger.Credit(ctx, entry, exec)
	if errors.Cause(err) == ErrAlreadyAwarded {
		res.AlreadyAwarded = true
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "crediting points")
	}
	res.Credited = entry.Quantity
	res.XP = xp

	names, err := re.medals.grant(ctx, entry.UserID, xp, exec)
	if err != nil {
		return err
	}
	res.NewMedals = names
	return nil
}

// notifyMedals emails the user about medals granted by a committed award.
func (re *RewardEngine) notifyMedals(usr user.User, res AwardResult) {
	if len(res.NewMedals) == 0 || re.mailSvc == nil {
		return
	}
	if re.logger != nil {
		re.logger.Info(fmt.Sprintf("medals granted to %s: %v", usr.Username, res.NewMedals))
	}
	re.mailSvc.SendMessages(medalMessages(usr, res.XP, res.NewMedals, re.frontendBaseURL)...)
}
