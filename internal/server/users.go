package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/onchainos/steward/internal/agent/core"
)

// UsersHandler serves per-wallet preferences and intent memory.
type UsersHandler struct {
	Memory core.MemoryStore
}

// Register mounts the user memory endpoints on an authenticated group.
func (h *UsersHandler) Register(g *echo.Group) {
	g.GET("/:address/preferences", h.getPreferences)
	g.PUT("/:address/preferences", h.putPreferences)
	g.GET("/:address/history", h.history)
	g.GET("/:address/history/frequency", h.frequency)
	g.DELETE("/:address/memory", h.clearMemory)
}

// Get preferences
//
//	@Summary	Stored preferences for a wallet, defaults before any save
//	@Tags		users
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		address	path		string	true	"Wallet address"
//	@Success	200		{object}	core.UserPreferences
//	@Router		/api/users/{address}/preferences [get]
func (h *UsersHandler) getPreferences(c echo.Context) error {
	prefs, err := h.Memory.Preferences(c.Request().Context(), c.Param("address"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, prefs)
}

// Update preferences
//
//	@Summary	Replace the stored preferences for a wallet
//	@Tags		users
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Accept		json
//	@Produce	json
//	@Param		address	path		string					true	"Wallet address"
//	@Param		payload	body		core.UserPreferences	true	"Preferences"
//	@Success	200		{object}	core.UserPreferences
//	@Failure	400		{object}	HTTPError
//	@Router		/api/users/{address}/preferences [put]
func (h *UsersHandler) putPreferences(c echo.Context) error {
	var prefs core.UserPreferences
	if err := c.Bind(&prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if prefs.MaxSpendPerIntent < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "max_spend_per_intent must not be negative")
	}
	if prefs.DefaultSlippage < 0 || prefs.DefaultSlippage > 50 {
		return echo.NewHTTPError(http.StatusBadRequest, "default_slippage must be between 0 and 50")
	}
	if prefs.RiskTolerance != "" && prefs.RiskTolerance.Rank() < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "risk_tolerance must be low, medium, high or critical")
	}
	if err := h.Memory.SavePreferences(c.Request().Context(), c.Param("address"), prefs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, prefs)
}

// Intent history
//
//	@Summary	Recorded intents for a wallet, newest first
//	@Tags		users
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		address	path		string	true	"Wallet address"
//	@Param		limit	query		int		false	"Maximum records"
//	@Success	200		{array}		core.IntentRecord
//	@Router		/api/users/{address}/history [get]
func (h *UsersHandler) history(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > core.MemoryHistoryLimit {
		limit = core.MemoryHistoryLimit
	}
	records, err := h.Memory.History(c.Request().Context(), c.Param("address"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if records == nil {
		records = []core.IntentRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// Intent frequency
//
//	@Summary	Lifetime intent counts for a wallet
//	@Tags		users
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		address	path		string	true	"Wallet address"
//	@Success	200		{object}	map[string]int
//	@Router		/api/users/{address}/history/frequency [get]
func (h *UsersHandler) frequency(c echo.Context) error {
	freq, err := h.Memory.Frequency(c.Request().Context(), c.Param("address"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if freq == nil {
		freq = map[string]int{}
	}
	return c.JSON(http.StatusOK, freq)
}

// Clear memory
//
//	@Summary	Forget stored preferences, history and frequency for a wallet
//	@Tags		users
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Param		address	path	string	true	"Wallet address"
//	@Success	204
//	@Router		/api/users/{address}/memory [delete]
func (h *UsersHandler) clearMemory(c echo.Context) error {
	if err := h.Memory.ClearUserMemory(c.Request().Context(), c.Param("address")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
