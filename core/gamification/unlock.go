package gamification

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core/course"
)

// Unlocked applies the sequential unlock rule. The first chapter of a trail is always open.
// Any other chapter opens once the quiz of its immediate predecessor has been passed.
// prev is nil when no chapter holds the previous position: the chapter is then open.
// prevRecord is nil when the user never started prev.
func Unlocked(ch course.Chapter, prev *course.Chapter, prevRecord *ProgressRecord) bool {
	if ch.Order <= 1 || prev == nil {
		return true
	}
	return prevRecord != nil && prevRecord.ChapterID == prev.ID && prevRecord.IsCompleted()
}

// ChapterLookup finds a chapter by position. course.Service satisfies it.
type ChapterLookup interface {
	GetChapterByOrder(ctx context.Context, trailID string, order int) (course.Chapter, error)
}

type UnlockPolicy struct {
	chapters ChapterLookup
	progress ProgressRepository
}

func NewUnlockPolicy(chapters ChapterLookup, progress ProgressRepository) *UnlockPolicy {
	return &UnlockPolicy{chapters: chapters, progress: progress}
}

func (up *UnlockPolicy) IsUnlocked(ctx context.Context, userID string, ch course.Chapter) (bool, error) {
	if ch.Order <= 1 {
		return true, nil
	}

	prev, err := up.chapters.GetChapterByOrder(ctx, ch.TrailID, ch.Order-1)
	switch errors.Cause(err) {
	case nil:
	case course.ErrChapterNotFound:
		return Unlocked(ch, nil, nil), nil
	default:
		return false, errors.Wrap(err, "finding previous chapter")
	}

	rec, err := up.progress.GetRecord(ctx, userID, prev.ID)
	switch errors.Cause(err) {
	case nil:
		return Unlocked(ch, &prev, &rec), nil
	case ErrNoProgress:
		return Unlocked(ch, &prev, nil), nil
	default:
		return false, errors.Wrap(err, "finding progress record")
	}
}

// UnlockedSet evaluates the rule over a whole trail at once.
// chapters must belong to one trail; records are the user's progress records.
func UnlockedSet(chapters []course.Chapter, records []ProgressRecord) map[string]bool {
	byOrder := make(map[int]course.Chapter, len(chapters))
	for _, ch := range chapters {
		byOrder[ch.Order] = ch
	}
	byChapter := make(map[string]ProgressRecord, len(records))
	for _, rec := range records {
		byChapter[rec.ChapterID] = rec
	}

	unlocked := make(map[string]bool, len(chapters))
	for _, ch := range chapters {
		var prev *course.Chapter
		var prevRecord *ProgressRecord
		if p, ok := byOrder[ch.Order-1]; ok {
			prev = &p
			if rec, ok := byChapter[p.ID]; ok {
				prevRecord = &rec
			}
		}
		unlocked[ch.ID] = Unlocked(ch, prev, prevRecord)
	}
	return unlocked
}
