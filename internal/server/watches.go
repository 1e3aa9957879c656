package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/onchainos/steward/internal/store"
)

// WatchesHandler manages recurring natural-language requests replayed by the
// scheduler.
type WatchesHandler struct {
	Store store.Store
}

// Register mounts the watch endpoints on an authenticated group.
func (h *WatchesHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
}

// List watches
//
//	@Summary	Stored watches for a wallet, newest first
//	@Tags		watches
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		address	query		string	true	"Wallet address"
//	@Success	200		{array}		store.Watch
//	@Failure	400		{object}	HTTPError
//	@Router		/api/watches [get]
func (h *WatchesHandler) list(c echo.Context) error {
	address := strings.TrimSpace(c.QueryParam("address"))
	if address == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "address query parameter is required")
	}
	watches, err := h.Store.ListWatches(c.Request().Context(), address)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if watches == nil {
		watches = []store.Watch{}
	}
	return c.JSON(http.StatusOK, watches)
}

// Create watch
//
//	@Summary	Register a recurring natural-language request
//	@Tags		watches
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreateWatchRequest	true	"Watch payload"
//	@Success	201		{object}	store.Watch
//	@Failure	400		{object}	HTTPError
//	@Router		/api/watches [post]
func (h *WatchesHandler) create(c echo.Context) error {
	var req CreateWatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.UserAddress) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_address is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "description is required")
	}
	cron := strings.TrimSpace(req.ScheduleCron)
	if cron == "" {
		cron = "@hourly"
	}
	watch, err := h.Store.CreateWatch(c.Request().Context(), store.Watch{
		UserAddress:  req.UserAddress,
		Description:  req.Description,
		ScheduleCron: cron,
		Enabled:      true,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, watch)
}

// Update watch
//
//	@Summary	Change a watch's description, schedule or enabled flag
//	@Tags		watches
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Watch ID"
//	@Param		payload	body		UpdateWatchRequest	true	"Watch payload"
//	@Success	200		{object}	store.Watch
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/watches/{id} [put]
func (h *WatchesHandler) update(c echo.Context) error {
	var req UpdateWatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.UserAddress) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_address is required")
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	watch := store.Watch{
		ID:           c.Param("id"),
		UserAddress:  req.UserAddress,
		Description:  req.Description,
		ScheduleCron: req.ScheduleCron,
		Enabled:      enabled,
	}
	if err := h.Store.UpdateWatch(c.Request().Context(), watch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "watch not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, watch)
}

// Delete watch
//
//	@Summary	Remove a watch
//	@Tags		watches
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Param		id		path	string	true	"Watch ID"
//	@Param		address	query	string	true	"Wallet address"
//	@Success	204
//	@Failure	400	{object}	HTTPError
//	@Failure	404	{object}	HTTPError
//	@Router		/api/watches/{id} [delete]
func (h *WatchesHandler) remove(c echo.Context) error {
	address := strings.TrimSpace(c.QueryParam("address"))
	if address == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "address query parameter is required")
	}
	if err := h.Store.DeleteWatch(c.Request().Context(), c.Param("id"), address); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "watch not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
