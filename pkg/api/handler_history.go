package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// listHistoryHandler handles GET /history?limit=N&q=text.
// Results are scoped to the caller identity.
func (s *Server) listHistoryHandler(c *echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid limit: must be an integer")
		}
		limit = n
	}

	reports, err := s.researchService.ListHistory(c.Request().Context(), extractOwner(c), c.QueryParam("q"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &HistoryListResponse{Reports: reports, Count: len(reports)})
}

// getHistoryHandler handles GET /history/:id.
func (s *Server) getHistoryHandler(c *echo.Context) error {
	rec, err := s.researchService.GetHistory(c.Request().Context(), extractOwner(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}
