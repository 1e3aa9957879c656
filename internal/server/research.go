package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onchainos/steward/internal/research"
)

// PageFetcher pulls readable text for one URL. research.Fetcher is the live
// implementation; tests stub it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (research.Page, error)
}

// ResearchHandler searches the note index built up by research runs and, when
// live fetching is enabled, ingests pages into it.
type ResearchHandler struct {
	Index   *research.Index
	Fetcher PageFetcher
}

// Register mounts the research endpoints on an authenticated group.
func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/search", h.search)
	g.POST("/ingest", h.ingest)
}

// Search research notes
//
//	@Summary	Full-text search over stored research notes
//	@Tags		research
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ResearchSearchRequest	true	"Search payload"
//	@Success	200		{array}		research.Hit
//	@Failure	400		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/api/research/search [post]
func (h *ResearchHandler) search(c echo.Context) error {
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "research index not available")
	}
	var req ResearchSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	hits, err := h.Index.Search(req.Query, req.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []research.Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}

// Ingest a web page as a research note
//
//	@Summary	Fetch a URL and index its readable text as a research note
//	@Tags		research
//	@Security	BearerAuth
//	@Security	CookieAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ResearchIngestRequest	true	"Ingest payload"
//	@Success	200		{object}	research.Page
//	@Failure	400		{object}	HTTPError
//	@Failure	502		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/api/research/ingest [post]
func (h *ResearchHandler) ingest(c echo.Context) error {
	if h.Fetcher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "live fetching is not enabled")
	}
	var req ResearchIngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	page, err := h.Fetcher.Fetch(c.Request().Context(), req.URL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if h.Index != nil {
		note := research.Note{
			UserAddress: req.UserAddress,
			Operation:   "web_ingest",
			Query:       page.URL,
			Summary:     ingestSummary(page),
			CreatedAt:   time.Now(),
		}
		if err := h.Index.Add(note); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusOK, page)
}

// ingestSummary keeps the indexed note searchable without storing a full page.
func ingestSummary(p research.Page) string {
	text := p.Text
	if len(text) > 1000 {
		text = text[:1000]
	}
	if p.Title == "" {
		return text
	}
	return p.Title + ": " + text
}
