package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// startStockHandler handles POST /research/stock.
// Queues the session and returns immediately with its id.
func (s *Server) startStockHandler(c *echo.Context) error {
	var req StockResearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sess, err := s.researchService.StartStock(services.StartStockInput{
		Symbol:   req.Symbol,
		Exchange: req.Exchange,
		Owner:    extractOwner(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, startResponse(sess))
}

// startSectorHandler handles POST /research/sector.
func (s *Server) startSectorHandler(c *echo.Context) error {
	var req SectorResearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sess, err := s.researchService.StartSector(services.StartSectorInput{
		Sector:       req.Sector,
		Exchange:     req.Exchange,
		NumCompanies: req.NumCompanies,
		Owner:        extractOwner(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, startResponse(sess))
}

func startResponse(sess *session.Session) *StartResponse {
	return &StartResponse{
		Success:   true,
		SessionID: sess.ID,
		Status:    string(session.StatusQueued),
		Message:   fmt.Sprintf("Research on %s queued", sess.Request.Subject),
	}
}

// progressHandler handles GET /research/progress/:id as a Server-Sent
// Events stream. The stream starts with a connected event, replays the
// session log after Last-Event-ID, and ends after the terminal event.
func (s *Server) progressHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	sub, err := s.researchService.Subscribe(sessionID, lastEventID(c))
	if err != nil {
		return writeError(c, err)
	}

	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	ctx := c.Request().Context()
	log := slog.With("session_id", sessionID)

	for {
		evt, err := sub.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, events.ErrChannelClosed):
			log.Debug("Progress stream ended: session expired")
			return nil
		default:
			// Client went away.
			return nil
		}

		if err := writeSSE(w, evt); err != nil {
			log.Debug("Progress stream write failed", "error", err)
			return nil
		}
		if err := rc.Flush(); err != nil {
			log.Debug("Progress stream flush failed", "error", err)
			return nil
		}
	}
}

// writeSSE writes one event frame. Logged events carry an id line so a
// reconnecting client can resume with Last-Event-ID.
func writeSSE(w io.Writer, evt events.ProgressEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	var b strings.Builder
	if evt.ID > 0 {
		fmt.Fprintf(&b, "id: %d\n", evt.ID)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)
	_, err = io.WriteString(w, b.String())
	return err
}

// lastEventID reads the resume cursor from the Last-Event-ID header or the
// last_event_id query parameter. Anything unparsable means "from the start".
func lastEventID(c *echo.Context) int {
	v := c.Request().Header.Get("Last-Event-ID")
	if v == "" {
		v = c.QueryParam("last_event_id")
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// getSessionHandler handles GET /research/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	snap, err := s.researchService.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// cancelSessionHandler handles POST /research/:id/cancel. Cancelling a
// finished session succeeds without effect.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	requested, err := s.researchService.Cancel(sessionID)
	if err != nil {
		return writeError(c, err)
	}

	msg := "Cancellation requested"
	if !requested {
		msg = "Session already finished"
	}
	return c.JSON(http.StatusOK, &CancelResponse{SessionID: sessionID, Message: msg})
}
