// Package journal manages the trading journal: trade lifecycle plus the
// monthly statistics kept in lockstep with the trades.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chartpilot/internal/database"
	"chartpilot/internal/logging"
)

// ErrTradeNotFound is returned when the trade does not exist or belongs to
// another user.
var ErrTradeNotFound = errors.New("trade not found")

// ErrValidation wraps input validation failures so handlers can map them to
// a 400 response.
var ErrValidation = errors.New("invalid trade")

// Store is the repository surface the journal needs. Implemented by
// *database.Repository.
type Store interface {
	CreateJournalTrade(ctx context.Context, trade *database.JournalTrade, compute database.StatsFunc) error
	GetJournalTradeByID(ctx context.Context, tradeID, userID string) (*database.JournalTrade, error)
	ListJournalTrades(ctx context.Context, userID string, status database.TradeStatus, limit, offset int) ([]*database.JournalTrade, error)
	UpdateJournalTrade(ctx context.Context, trade *database.JournalTrade, compute database.StatsFunc) error
	DeleteJournalTrade(ctx context.Context, tradeID, userID string, compute database.StatsFunc) error
	GetMonthlyStats(ctx context.Context, userID string, year, month int) (*database.MonthlyStats, error)
	ListMonthlyStats(ctx context.Context, userID string, year int) ([]*database.MonthlyStats, error)
}

// Service orchestrates trade mutations and keeps monthly stats current
type Service struct {
	repo   Store
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates the journal service
func NewService(repo Store) *Service {
	return &Service{
		repo:   repo,
		logger: logging.WithComponent("journal"),
		now:    time.Now,
	}
}

// CreateTrade validates and persists a new trade. Trades may be recorded
// after the fact in the closed state, in which case the realized PnL is
// derived here and the month's stats are recomputed by the repository.
func (s *Service) CreateTrade(ctx context.Context, trade *database.JournalTrade) error {
	if err := validateTrade(trade); err != nil {
		return err
	}

	if trade.Status == "" {
		trade.Status = database.TradeOpen
	}
	if trade.OpenedAt.IsZero() {
		trade.OpenedAt = s.now()
	}

	if trade.Status == database.TradeClosed {
		if err := s.finalize(trade); err != nil {
			return err
		}
	}

	if err := s.repo.CreateJournalTrade(ctx, trade, ComputeMonthlyStats); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
		"status":   string(trade.Status),
	}).Info("Journal trade created")

	return nil
}

// GetTrade returns a single trade owned by the user
func (s *Service) GetTrade(ctx context.Context, tradeID, userID string) (*database.JournalTrade, error) {
	trade, err := s.repo.GetJournalTradeByID(ctx, tradeID, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	return trade, nil
}

// ListTrades returns the user's trades, optionally filtered by status
func (s *Service) ListTrades(ctx context.Context, userID string, status database.TradeStatus, limit, offset int) ([]*database.JournalTrade, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListJournalTrades(ctx, userID, status, limit, offset)
}

// UpdateTrade applies edits to an existing trade. Changing the exit price,
// quantity, or fees of a closed trade rederives its PnL.
func (s *Service) UpdateTrade(ctx context.Context, trade *database.JournalTrade) error {
	if err := validateTrade(trade); err != nil {
		return err
	}

	existing, err := s.repo.GetJournalTradeByID(ctx, trade.ID, trade.UserID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrTradeNotFound
	}

	if trade.Status == database.TradeClosed {
		if trade.ClosedAt == nil {
			trade.ClosedAt = existing.ClosedAt
		}
		if err := s.finalize(trade); err != nil {
			return err
		}
	} else {
		trade.ExitPrice = nil
		trade.PnL = nil
		trade.ClosedAt = nil
	}

	return s.repo.UpdateJournalTrade(ctx, trade, ComputeMonthlyStats)
}

// CloseTrade marks an open trade closed at the given exit price and derives
// its realized PnL. The repository recomputes the affected month's stats in
// the same transaction.
func (s *Service) CloseTrade(ctx context.Context, tradeID, userID string, exitPrice, fees float64, closedAt *time.Time) (*database.JournalTrade, error) {
	trade, err := s.repo.GetJournalTradeByID(ctx, tradeID, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if trade.Status == database.TradeClosed {
		return nil, fmt.Errorf("%w: trade is already closed", ErrValidation)
	}
	if exitPrice <= 0 {
		return nil, fmt.Errorf("%w: exit price must be positive", ErrValidation)
	}

	trade.Status = database.TradeClosed
	trade.ExitPrice = &exitPrice
	if fees > 0 {
		trade.Fees = fees
	}
	if closedAt != nil {
		trade.ClosedAt = closedAt
	} else {
		now := s.now()
		trade.ClosedAt = &now
	}

	if err := s.finalize(trade); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateJournalTrade(ctx, trade, ComputeMonthlyStats); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
		"pnl":      *trade.PnL,
	}).Info("Journal trade closed")

	return trade, nil
}

// DeleteTrade removes a trade and recomputes the month it belonged to
func (s *Service) DeleteTrade(ctx context.Context, tradeID, userID string) error {
	trade, err := s.repo.GetJournalTradeByID(ctx, tradeID, userID)
	if err != nil {
		return err
	}
	if trade == nil {
		return ErrTradeNotFound
	}
	return s.repo.DeleteJournalTrade(ctx, tradeID, userID, ComputeMonthlyStats)
}

// GetMonthlyStats returns the stats row for one month, or nil when the
// month has no closed trades
func (s *Service) GetMonthlyStats(ctx context.Context, userID string, year, month int) (*database.MonthlyStats, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: month must be between 1 and 12", ErrValidation)
	}
	return s.repo.GetMonthlyStats(ctx, userID, year, month)
}

// ListMonthlyStats returns all stats rows for a year, most recent first
func (s *Service) ListMonthlyStats(ctx context.Context, userID string, year int) ([]*database.MonthlyStats, error) {
	return s.repo.ListMonthlyStats(ctx, userID, year)
}

// finalize derives the realized PnL for a closed trade and ensures the
// close timestamp is set
func (s *Service) finalize(trade *database.JournalTrade) error {
	if trade.ExitPrice == nil || *trade.ExitPrice <= 0 {
		return fmt.Errorf("%w: closed trade requires a positive exit price", ErrValidation)
	}
	if trade.ClosedAt == nil {
		now := s.now()
		trade.ClosedAt = &now
	}
	if trade.ClosedAt.Before(trade.OpenedAt) {
		return fmt.Errorf("%w: close time precedes open time", ErrValidation)
	}

	pnl := ComputePnL(trade.Direction, trade.EntryPrice, *trade.ExitPrice, trade.Quantity, trade.Fees)
	trade.PnL = &pnl
	return nil
}

func validateTrade(trade *database.JournalTrade) error {
	if trade.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if trade.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if trade.Direction != database.DirectionLong && trade.Direction != database.DirectionShort {
		return fmt.Errorf("%w: direction must be long or short", ErrValidation)
	}
	if trade.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive", ErrValidation)
	}
	if trade.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if trade.Fees < 0 {
		return fmt.Errorf("%w: fees cannot be negative", ErrValidation)
	}
	if trade.RiskAmount != nil && *trade.RiskAmount < 0 {
		return fmt.Errorf("%w: risk amount cannot be negative", ErrValidation)
	}
	return nil
}
