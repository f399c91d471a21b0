package gamification_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
)

func TestUnlocked(t *testing.T) {
	now := time.Now().UTC()
	ch1 := course.Chapter{ID: "ch1", TrailID: "t1", Order: 1}
	ch2 := course.Chapter{ID: "ch2", TrailID: "t1", Order: 2}
	started := gamification.ProgressRecord{ChapterID: "ch1", StartedAt: now}
	completed := gamification.ProgressRecord{ChapterID: "ch1", StartedAt: now, CompletedAt: &now}
	otherChapter := gamification.ProgressRecord{ChapterID: "ch9", StartedAt: now, CompletedAt: &now}

	tests := []struct {
		name       string
		ch         course.Chapter
		prev       *course.Chapter
		prevRecord *gamification.ProgressRecord
		want       bool
	}{
		{name: "first chapter", ch: ch1, want: true},
		{name: "missing predecessor", ch: ch2, want: true},
		{name: "predecessor never started", ch: ch2, prev: &ch1},
		{name: "predecessor read only", ch: ch2, prev: &ch1, prevRecord: &started},
		{name: "record of another chapter", ch: ch2, prev: &ch1, prevRecord: &otherChapter},
		{name: "predecessor quiz passed", ch: ch2, prev: &ch1, prevRecord: &completed, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gamification.Unlocked(tt.ch, tt.prev, tt.prevRecord))
		})
	}
}

func TestUnlockedSet(t *testing.T) {
	now := time.Now().UTC()
	chapters := []course.Chapter{
		{ID: "ch1", Order: 1},
		{ID: "ch2", Order: 2},
		{ID: "ch3", Order: 3},
		{ID: "ch5", Order: 5}, // gap: order 4 was never created
	}
	records := []gamification.ProgressRecord{
		{ChapterID: "ch1", StartedAt: now, CompletedAt: &now},
		{ChapterID: "ch2", StartedAt: now},
	}

	got := gamification.UnlockedSet(chapters, records)
	assert.Equal(t, map[string]bool{"ch1": true, "ch2": true, "ch3": false, "ch5": true}, got)
}
