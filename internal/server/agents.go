package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onchainos/steward/internal/agent/telemetry"
	"github.com/onchainos/steward/internal/capability"
)

// AgentsHandler exposes the signed capability cards of registered agents.
type AgentsHandler struct {
	Registry *capability.Registry
}

// Register mounts the agent discovery endpoint.
func (h *AgentsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
}

// List agents
//
//	@Summary	Signed capability cards for every registered agent, in registration order
//	@Tags		agents
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Success	200	{array}	capability.AgentCard
//	@Router		/api/agents [get]
func (h *AgentsHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Registry.Cards())
}

// OpsHandler exposes operational endpoints (metrics, performance summaries).
type OpsHandler struct {
	tele *telemetry.Telemetry
}

func NewOpsHandler(tele *telemetry.Telemetry) *OpsHandler { return &OpsHandler{tele: tele} }

// Register mounts ops endpoints under the provided group. It expects
// authentication to be applied by the caller.
func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/performance", h.performance)
}

// performance returns aggregated pipeline metrics, cost totals and the
// rendered report.
//
//	@Summary	Performance metrics and cost summaries
//	@Tags		ops
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}
//	@Router		/api/ops/performance [get]
func (h *OpsHandler) performance(c echo.Context) error {
	data := map[string]interface{}{
		"metrics": h.tele.GetMetrics(),
		"costs":   h.tele.GetCostSummary(),
		"report":  h.tele.GetPerformanceReport(),
	}
	return c.JSON(http.StatusOK, data)
}
