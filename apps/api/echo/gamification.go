package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
)

type gamificationApi struct {
	userSvc user.Service
	gameSvc gamification.Service
}

func registerGamificationAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := gamificationApi{
		userSvc: deps.UserSvc,
		gameSvc: deps.GameSvc,
	}
	admin := with(auth, adminMiddleware())

	g.GET("/dashboard", api.dashboard, auth...)
	g.GET("/ledger", api.ledger, auth...)
	g.GET("/medals", api.listMedals, auth...)

	// admin endpoints
	g.POST("/medals/evaluate/:id", api.evaluateMedals, admin...)
	g.POST("/users/:id/adjust", api.adjust, admin...)
	g.GET("/users/:id/balance", api.balance, admin...)
}

// Handlers

func (api *gamificationApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	dash, err := api.gameSvc.Dashboard(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *gamificationApi) ledger(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	entries, err := api.gameSvc.Ledger(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing ledger")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *gamificationApi) listMedals(ctx echo.Context) error {
	medals, err := api.gameSvc.ListMedals(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing medals")
	}
	return ctx.JSON(http.StatusOK, medals)
}

func (api *gamificationApi) evaluateMedals(ctx echo.Context) error {
	names, err := api.gameSvc.EvaluateMedals(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "evaluating medals")
	}
	return ctx.JSON(http.StatusOK, EvaluateResponse{NewMedals: names})
}

func (api *gamificationApi) adjust(ctx echo.Context) error {
	var data AdjustRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdjustRequest")
	}
	award, err := api.gameSvc.Adjust(ctx.Request().Context(), ctx.Param("id"), data.Quantity, data.Reason)
	if err != nil {
		return errors.Wrap(err, "adjusting points")
	}
	return ctx.JSON(http.StatusOK, award)
}

func (api *gamificationApi) balance(ctx echo.Context) error {
	balances, err := api.gameSvc.VerifyLedger(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "verifying ledger")
	}
	if len(balances) == 0 {
		return errHttpNotFound
	}
	b := balances[0]
	return ctx.JSON(http.StatusOK, BalanceResponse{Balance: b, Drift: b.Drift()})
}

type (
	EvaluateResponse struct {
		NewMedals []string `json:"new_medals"`
	}

	AdjustRequest struct {
		Quantity int    `json:"quantity"`
		Reason   string `json:"reason"`
	}

	BalanceResponse struct {
		gamification.Balance
		Drift int `json:"drift"`
	}
)
