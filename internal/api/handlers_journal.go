package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/auth"
	"chartpilot/internal/database"
)

// tradeRequest carries the mutable journal trade fields
type tradeRequest struct {
	Symbol     string     `json:"symbol"`
	Direction  string     `json:"direction"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	Quantity   float64    `json:"quantity"`
	Fees       float64    `json:"fees"`
	RiskAmount *float64   `json:"risk_amount,omitempty"`
	Status     string     `json:"status"`
	SetupTag   string     `json:"setup_tag"`
	Notes      string     `json:"notes"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// closeTradeRequest carries the fields needed to close a trade
type closeTradeRequest struct {
	ExitPrice float64    `json:"exit_price"`
	Fees      float64    `json:"fees"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func (s *Server) handleListTrades(c *gin.Context) {
	userID := auth.GetUserID(c)

	limit := parseIntQuery(c, "limit", 50, 200)
	offset := parseIntQuery(c, "offset", 0, 100000)
	status := database.TradeStatus(c.Query("status"))

	trades, err := s.journal.ListTrades(c.Request.Context(), userID, status, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) handleCreateTrade(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	trade := &database.JournalTrade{UserID: userID}
	applyTradeRequest(trade, req)

	if err := s.journal.CreateTrade(c.Request.Context(), trade); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, trade)
}

func (s *Server) handleGetTrade(c *gin.Context) {
	userID := auth.GetUserID(c)

	trade, err := s.journal.GetTrade(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleUpdateTrade(c *gin.Context) {
	userID := auth.GetUserID(c)

	trade, err := s.journal.GetTrade(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	applyTradeRequest(trade, req)

	if err := s.journal.UpdateTrade(c.Request.Context(), trade); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req closeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	trade, err := s.journal.CloseTrade(c.Request.Context(), c.Param("id"), userID, req.ExitPrice, req.Fees, req.ClosedAt)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleDeleteTrade(c *gin.Context) {
	userID := auth.GetUserID(c)

	if err := s.journal.DeleteTrade(c.Request.Context(), c.Param("id"), userID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "trade deleted"})
}

// handleGetJournalStats serves monthly performance stats. With a month
// parameter it returns that single month; otherwise the whole year.
func (s *Server) handleGetJournalStats(c *gin.Context) {
	userID := auth.GetUserID(c)

	now := time.Now().UTC()
	year := parseIntQuery(c, "year", now.Year(), 9999)

	if monthRaw := c.Query("month"); monthRaw != "" {
		month := parseIntQuery(c, "month", 0, 12)
		stats, err := s.journal.GetMonthlyStats(c.Request.Context(), userID, year, month)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if stats == nil {
			stats = &database.MonthlyStats{UserID: userID, Year: year, Month: month}
		}
		c.JSON(http.StatusOK, stats)
		return
	}

	stats, err := s.journal.ListMonthlyStats(c.Request.Context(), userID, year)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"year": year, "months": stats})
}

// applyTradeRequest copies the non-empty request fields onto the trade
func applyTradeRequest(trade *database.JournalTrade, req tradeRequest) {
	if req.Symbol != "" {
		trade.Symbol = req.Symbol
	}
	if req.Direction != "" {
		trade.Direction = database.TradeDirection(req.Direction)
	}
	if req.EntryPrice > 0 {
		trade.EntryPrice = req.EntryPrice
	}
	if req.ExitPrice != nil {
		trade.ExitPrice = req.ExitPrice
	}
	if req.Quantity > 0 {
		trade.Quantity = req.Quantity
	}
	if req.Fees > 0 {
		trade.Fees = req.Fees
	}
	if req.RiskAmount != nil {
		trade.RiskAmount = req.RiskAmount
	}
	if req.Status != "" {
		trade.Status = database.TradeStatus(req.Status)
	}
	if req.SetupTag != "" {
		trade.SetupTag = req.SetupTag
	}
	if req.Notes != "" {
		trade.Notes = req.Notes
	}
	if req.OpenedAt != nil {
		trade.OpenedAt = *req.OpenedAt
	}
	if req.ClosedAt != nil {
		trade.ClosedAt = req.ClosedAt
	}
}
