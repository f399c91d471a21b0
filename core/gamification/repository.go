package gamification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core"
)

var (
	// errors
	ErrChapterLocked   = errors.New("complete the previous chapter's quiz to unlock this chapter")
	ErrPremiumRequired = errors.New("this chapter is reserved to premium members")
	ErrNoProgress      = errors.New("no progress recorded for this chapter")
	ErrMedalNotFound   = errors.New("medal not found")

	// ErrAlreadyAwarded is returned by LedgerRepository.Credit on a duplicate (user, chapter, kind) entry.
	// The reward engine turns it into AwardResult.AlreadyAwarded: callers never see it.
	ErrAlreadyAwarded = errors.New("points already awarded")
)

// Every repository method takes an optional core.DBExecutor to join a transaction.
type (
	// LedgerRepository is the only writer of point transactions and of the users' cached XP.
	LedgerRepository interface {
		// LockUser returns the user's cached XP, holding the user's row until the transaction ends.
		// Returns user.ErrNotFound for unknown users.
		LockUser(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error)
		// CachedXP reads the user's cached XP without locking.
		CachedXP(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error)
		// Credit appends entry and adds entry.Quantity to the user's cached XP in the same statement batch.
		// Returns the new cached XP.
		Credit(ctx context.Context, entry PointTransaction, exec ...core.DBExecutor) (int, error)
		HasEntry(ctx context.Context, userID, chapterID string, kind Kind, exec ...core.DBExecutor) (bool, error)
		// ListEntries returns the user's entries, newest first.
		ListEntries(ctx context.Context, userID string, exec ...core.DBExecutor) ([]PointTransaction, error)
		// Balances compares cached and ledger XP, for one user or every user when userID is empty.
		Balances(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Balance, error)
		// Leaderboard returns the top users by XP, ties broken by username.
		Leaderboard(ctx context.Context, limit int, exec ...core.DBExecutor) ([]LeaderboardEntry, error)
	}

	ProgressRepository interface {
		// GetRecord returns ErrNoProgress when the user never started the chapter.
		GetRecord(ctx context.Context, userID, chapterID string, exec ...core.DBExecutor) (ProgressRecord, error)
		// EnsureRecord creates the (user, chapter) record if absent and returns it.
		EnsureRecord(ctx context.Context, userID, chapterID string, at time.Time, exec ...core.DBExecutor) (ProgressRecord, error)
		// MarkCompleted sets CompletedAt unless it is already set.
		MarkCompleted(ctx context.Context, userID, chapterID string, at time.Time, exec ...core.DBExecutor) (ProgressRecord, error)
		ListRecords(ctx context.Context, userID string, exec ...core.DBExecutor) ([]ProgressRecord, error)
	}

	MedalRepository interface {
		CreateMedal(ctx context.Context, medal Medal, exec ...core.DBExecutor) (Medal, error)
		// ListMedals returns every medal by threshold.
		ListMedals(ctx context.Context, exec ...core.DBExecutor) ([]Medal, error)
		// PendingMedals returns the medals reachable with xp that the user does not hold yet.
		PendingMedals(ctx context.Context, userID string, xp int, exec ...core.DBExecutor) ([]Medal, error)
		// GrantMedal reports false when the user already holds the medal.
		GrantMedal(ctx context.Context, userID, medalID string, at time.Time, exec ...core.DBExecutor) (bool, error)
		// ListUserMedals returns the user's medals, newest first.
		ListUserMedals(ctx context.Context, userID string, exec ...core.DBExecutor) ([]EarnedMedal, error)
	}
)
