package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
)

type courseApi struct {
	userSvc user.Service
	gameSvc gamification.Service
}

func registerCourseAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		userSvc: deps.UserSvc,
		gameSvc: deps.GameSvc,
	}

	tg := g.Group("/trails", auth...)
	tg.GET("", api.listTrails)
	tg.GET("/:id", api.retrieveTrail)

	cg := g.Group("/chapters/:id", auth...)
	cg.GET("", api.openChapter)
	cg.POST("/complete-reading", api.completeReading)
	cg.GET("/quiz", api.quiz)
	cg.POST("/quiz", api.submitQuiz)
}

// Handlers

func (api *courseApi) listTrails(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	trails, err := api.gameSvc.Trails(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing trails")
	}
	return ctx.JSON(http.StatusOK, trails)
}

func (api *courseApi) retrieveTrail(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	trail, err := api.gameSvc.Trail(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding trail")
	}
	return ctx.JSON(http.StatusOK, trail)
}

func (api *courseApi) openChapter(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	view, err := api.gameSvc.OpenChapter(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening chapter")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *courseApi) completeReading(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	chapterID := ctx.Param("id")
	award, err := api.gameSvc.CompleteReading(ctx.Request().Context(), usr, chapterID)
	if err != nil {
		return errors.Wrap(err, "completing reading")
	}
	return ctx.JSON(http.StatusOK, ReadingResponse{Award: award, Next: "/v1/chapters/" + chapterID + "/quiz"})
}

func (api *courseApi) quiz(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	questions, err := api.gameSvc.Quiz(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "loading quiz")
	}
	return ctx.JSON(http.StatusOK, newQuizQuestions(questions))
}

func (api *courseApi) submitQuiz(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data QuizRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizRequest")
	}
	out, err := api.gameSvc.SubmitQuiz(ctx.Request().Context(), usr, ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting quiz")
	}
	return ctx.JSON(http.StatusOK, out)
}

type (
	ReadingResponse struct {
		Award gamification.AwardResult `json:"award"`
		Next  string                   `json:"next"`
	}

	// QuizQuestion is a question as shown to the learner, without the answer.
	QuizQuestion struct {
		ID           string            `json:"id"`
		Statement    string            `json:"statement"`
		XP           int               `json:"xp"`
		Alternatives []QuizAlternative `json:"alternatives"`
	}

	QuizAlternative struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}

	QuizRequest struct {
		Answers course.Answers `json:"answers"`
	}
)

func newQuizQuestions(questions []course.Question) []QuizQuestion {
	out := make([]QuizQuestion, 0, len(questions))
	for _, q := range questions {
		qq := QuizQuestion{
			ID:           q.ID,
			Statement:    q.Statement,
			XP:           q.XP,
			Alternatives: make([]QuizAlternative, 0, len(q.Alternatives)),
		}
		for _, alt := range q.Alternatives {
			qq.Alternatives = append(qq.Alternatives, QuizAlternative{ID: alt.ID, Text: alt.Text})
		}
		out = append(out, qq)
	}
	return out
}
