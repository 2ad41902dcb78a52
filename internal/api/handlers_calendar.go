package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/calendar"
)

func (s *Server) handleGetCalendar(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		badRequest(c, "symbol query parameter is required")
		return
	}

	events := s.calendar.GetContext(c.Request.Context(), symbol)
	if events == nil {
		events = []calendar.Event{}
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
