package gamification

import (
	"time"

	"github.com/trezcool/gamifica/core/course"
)

// Kind tags what a ledger entry was credited for.
type Kind string

const (
	KindReading    Kind = "reading"
	KindQuiz       Kind = "quiz"
	KindAdjustment Kind = "adjustment"
)

type (
	// PointTransaction is an immutable ledger entry. Reading and quiz entries carry the chapter they reward
	// and are unique per (user, chapter, kind).
	PointTransaction struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		ChapterID   string    `json:"chapter_id,omitempty"`
		Kind        Kind      `json:"kind"`
		Quantity    int       `json:"quantity"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"` // UTC
	}

	// ProgressRecord exists once a user has started a chapter. CompletedAt is set on the first passed quiz
	// and never changes afterwards.
	ProgressRecord struct {
		ID          string     `json:"id"`
		UserID      string     `json:"user_id"`
		ChapterID   string     `json:"chapter_id"`
		StartedAt   time.Time  `json:"started_at"`             // UTC
		CompletedAt *time.Time `json:"completed_at,omitempty"` // UTC
	}

	Medal struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		MinPoints   int    `json:"min_points"`
	}

	EarnedMedal struct {
		Medal
		GrantedAt time.Time `json:"granted_at"` // UTC
	}

	LeaderboardEntry struct {
		UserID   string `json:"user_id"`
		Name     string `json:"name"`
		Username string `json:"username"`
		XP       int    `json:"xp"`
		Rank     Rank   `json:"rank"`
	}

	// Balance compares a user's cached XP with the sum of their ledger.
	Balance struct {
		UserID     string `json:"user_id"`
		Username   string `json:"username"`
		CachedXP   int    `json:"cached_xp"`
		LedgerXP   int    `json:"ledger_xp"`
		EntryCount int    `json:"entry_count"`
	}
)

func (r ProgressRecord) IsCompleted() bool {
	return r.CompletedAt != nil
}

// Drift is the amount the cached XP is off by. Anything but 0 is a bug.
func (b Balance) Drift() int {
	return b.CachedXP - b.LedgerXP
}

type (
	// AwardResult describes what a reward call credited.
	AwardResult struct {
		Kind           Kind       `json:"kind"`
		ChapterID      string     `json:"chapter_id"`
		Passed         bool       `json:"passed"`
		AlreadyAwarded bool       `json:"already_awarded"`
		Credited       int        `json:"credited"`
		XP             int        `json:"xp"`
		NewMedals      []string   `json:"new_medals"`
		CompletedAt    *time.Time `json:"completed_at,omitempty"`
	}

	ChapterView struct {
		Chapter  course.Chapter  `json:"chapter"`
		Unlocked bool            `json:"unlocked"`
		Progress *ProgressRecord `json:"progress,omitempty"`
		Rank     Rank            `json:"rank"`
		NextRank RankProgress    `json:"next_rank"`
	}

	TrailChapter struct {
		course.Chapter
		Unlocked  bool `json:"unlocked"`
		Completed bool `json:"completed"`
	}

	TrailView struct {
		ID          string         `json:"id"`
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Chapters    []TrailChapter `json:"chapters"`
		Completed   bool           `json:"completed"`
	}

	QuizOutcome struct {
		Result course.QuizResult `json:"result"`
		Award  AwardResult       `json:"award"`
	}

	Dashboard struct {
		XP                int                `json:"xp"`
		Rank              Rank               `json:"rank"`
		NextRank          RankProgress       `json:"next_rank"`
		Medals            []EarnedMedal      `json:"medals"`
		Leaderboard       []LeaderboardEntry `json:"leaderboard"`
		CompletedTrails   int                `json:"completed_trails"`
		CompletedChapters int                `json:"completed_chapters"`
		TotalChapters     int                `json:"total_chapters"`
		GlobalProgress    int                `json:"global_progress"` // percent, floored
	}
)
