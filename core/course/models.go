package course

import (
	"strings"
	"time"

	"github.com/trezcool/gamifica/core"
)

type (
	// Trail is an ordered sequence of chapters.
	Trail struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"` // UTC
		Chapters    []Chapter `json:"chapters,omitempty"`
	}

	// Chapter is a lesson unit. Order is its 1-based position in the trail
	// and defines the unlock sequence.
	Chapter struct {
		ID        string    `json:"id"`
		TrailID   string    `json:"trail_id"`
		Title     string    `json:"title"`
		Slug      string    `json:"slug"`
		Order     int       `json:"order"`
		XPValue   int       `json:"xp_value"`
		IsPremium bool      `json:"is_premium"`
		Content   string    `json:"content,omitempty"`
		CreatedAt time.Time `json:"created_at"` // UTC
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	Question struct {
		ID           string        `json:"id"`
		ChapterID    string        `json:"chapter_id"`
		Statement    string        `json:"statement"`
		XP           int           `json:"xp"`
		Alternatives []Alternative `json:"alternatives"`
	}

	Alternative struct {
		ID         string `json:"id"`
		QuestionID string `json:"question_id"`
		Text       string `json:"text"`
		IsCorrect  bool   `json:"is_correct"`
	}
)

// Correct returns the question's correct alternative, if any.
func (q Question) Correct() (Alternative, bool) {
	for _, alt := range q.Alternatives {
		if alt.IsCorrect {
			return alt, true
		}
	}
	return Alternative{}, false
}

type NewTrail struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
}

func (nt *NewTrail) Clean() {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
}

type NewChapter struct {
	TrailID   string `json:"trail_id" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
	Slug      string `json:"slug" validate:"omitempty,slug"`
	XPValue   int    `json:"xp_value" validate:"gte=0"`
	IsPremium bool   `json:"is_premium"`
	Content   string `json:"content"`
}

func (nc *NewChapter) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	if nc.Slug == "" {
		nc.Slug = Slugify(nc.Title)
	}
}

type NewQuestion struct {
	Statement    string           `json:"statement" validate:"required"`
	XP           int              `json:"xp" validate:"gte=0"`
	Alternatives []NewAlternative `json:"alternatives" validate:"required,min=2,dive"`
}

type NewAlternative struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// Answers maps a question ID to the chosen alternative ID.
type Answers map[string]string

type (
	// QuizResult is the outcome of grading a chapter's quiz.
	QuizResult struct {
		Correct int            `json:"correct"`
		Total   int            `json:"total"`
		Percent float64        `json:"percent"`
		Details []AnswerDetail `json:"details"`
	}

	AnswerDetail struct {
		QuestionID  string `json:"question_id"`
		Statement   string `json:"statement"`
		ChosenID    string `json:"chosen_id"`
		CorrectID   string `json:"correct_id"`
		CorrectText string `json:"correct_text"`
		IsCorrect   bool   `json:"is_correct"`
	}
)

// ScorePercent returns correct/total as a percentage. An empty quiz scores 0.
func ScorePercent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) * 100 / float64(total)
}

// Slugify lowers s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}
