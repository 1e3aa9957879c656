package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/onchainos/steward/internal/agent/core"
	"github.com/onchainos/steward/internal/budget"
	"github.com/onchainos/steward/internal/store"
)

// IntentsHandler turns natural-language requests into plans and drives the
// stored plans through simulation and execution.
type IntentsHandler struct {
	Store store.Store
	Orch  *core.Orchestrator
}

// Register mounts the intent and plan endpoints on an authenticated group.
func (h *IntentsHandler) Register(g *echo.Group) {
	g.POST("/intents", h.create)
	g.GET("/plans", h.list)
	g.GET("/plans/:id", h.get)
	g.GET("/plans/:id/status", h.status)
	g.POST("/plans/:id/simulate", h.simulate)
	g.POST("/plans/:id/execute", h.execute)
	g.GET("/plans/:id/explain", h.explain)
}

// Create intent
//
//	@Summary		Parse a natural-language intent into an execution plan
//	@Description	Classifies the message, builds steps, aggregates estimates and persists the plan
//	@Tags			intents
//	@Security		BearerAuth
//	@Security		CookieAuth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		IntentRequest	true	"Intent payload"
//	@Success		201		{object}	core.ExecutionPlan
//	@Failure		400		{object}	HTTPError
//	@Failure		502		{object}	HTTPError
//	@Router			/api/intents [post]
func (h *IntentsHandler) create(c echo.Context) error {
	var req IntentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.UserAddress) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_address is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	plan, err := h.Orch.ParseIntent(c.Request().Context(), req.UserAddress, req.Message)
	if err != nil {
		// Classification and planning ride on the LLM; surface those
		// failures as an upstream error rather than a server fault.
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, plan)
}

// List plans
//
//	@Summary	List stored plans for a wallet, newest first
//	@Tags		intents
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		address	query		string	true	"Wallet address"
//	@Param		limit	query		int		false	"Maximum number of plans"
//	@Success	200		{array}		core.ExecutionPlan
//	@Failure	400		{object}	HTTPError
//	@Router		/api/plans [get]
func (h *IntentsHandler) list(c echo.Context) error {
	address := strings.TrimSpace(c.QueryParam("address"))
	if address == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "address query parameter is required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	plans, err := h.Store.ListPlans(c.Request().Context(), address, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, plans)
}

// Get plan
//
//	@Summary	Fetch a stored plan with its simulation and execution records
//	@Tags		intents
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		id	path		string	true	"Plan ID"
//	@Success	200	{object}	PlanDetailResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/plans/{id} [get]
func (h *IntentsHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	planID := c.Param("id")
	plan, ok, err := h.Store.GetPlan(ctx, planID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	resp := PlanDetailResponse{Plan: plan}
	if sim, ok, err := h.Store.GetSimulation(ctx, planID); err == nil && ok {
		resp.Simulation = sim
	}
	if exec, ok, err := h.Store.GetExecution(ctx, planID); err == nil && ok {
		resp.Execution = exec
	}
	return c.JSON(http.StatusOK, resp)
}

// Plan status
//
//	@Summary	Report in-flight pipeline state for a plan
//	@Tags		intents
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		id	path		string	true	"Plan ID"
//	@Success	200	{object}	core.ProcessingStatus
//	@Failure	404	{object}	HTTPError
//	@Router		/api/plans/{id}/status [get]
func (h *IntentsHandler) status(c echo.Context) error {
	status, ok := h.Orch.GetProcessingStatus(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no processing record for plan")
	}
	return c.JSON(http.StatusOK, status)
}

// Simulate plan
//
//	@Summary	Dry-run every step of a stored plan
//	@Tags		intents
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		id	path		string	true	"Plan ID"
//	@Success	200	{array}		core.SimulationResult
//	@Failure	404	{object}	HTTPError
//	@Failure	500	{object}	HTTPError
//	@Router		/api/plans/{id}/simulate [post]
func (h *IntentsHandler) simulate(c echo.Context) error {
	ctx := c.Request().Context()
	plan, ok, err := h.Store.GetPlan(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	results, err := h.Orch.SimulatePlan(ctx, &plan)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

// Execute plan
//
//	@Summary		Execute a stored plan through the execution boundary
//	@Description	Steps run sequentially; a failed non-low step stops the plan
//	@Tags			intents
//	@Security		BearerAuth
//	@Security		CookieAuth
//	@Produce		json
//	@Param			id	path		string	true	"Plan ID"
//	@Success		200	{array}		core.ExecutionResult
//	@Failure		404	{object}	HTTPError
//	@Failure		409	{object}	HTTPError
//	@Failure		500	{object}	HTTPError
//	@Router			/api/plans/{id}/execute [post]
func (h *IntentsHandler) execute(c echo.Context) error {
	ctx := c.Request().Context()
	plan, ok, err := h.Store.GetPlan(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	results, err := h.Orch.ExecutePlan(ctx, &plan)
	if err != nil {
		var approval budget.ErrApprovalRequired
		if errors.As(err, &approval) {
			return echo.NewHTTPError(http.StatusConflict, approval.Error())
		}
		var exceeded budget.ErrExceeded
		if errors.As(err, &exceeded) {
			return echo.NewHTTPError(http.StatusConflict, exceeded.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

// Explain plan
//
//	@Summary	Render a human-readable narrative for executed results
//	@Tags		intents
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Param		id	path		string	true	"Plan ID"
//	@Success	200	{object}	ExplainResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/plans/{id}/explain [get]
func (h *IntentsHandler) explain(c echo.Context) error {
	ctx := c.Request().Context()
	planID := c.Param("id")
	plan, ok, err := h.Store.GetPlan(ctx, planID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	results, ok, err := h.Store.GetExecution(ctx, planID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		// Nothing executed yet; fall back to the stored plan explanation.
		return c.JSON(http.StatusOK, ExplainResponse{PlanID: planID, Explanation: plan.Explanation})
	}
	return c.JSON(http.StatusOK, ExplainResponse{PlanID: planID, Explanation: h.Orch.ExplainResults(plan, results)})
}
