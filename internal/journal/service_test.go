package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"chartpilot/internal/database"
)

type fakeJournalStore struct {
	trades  map[string]*database.JournalTrade
	created []*database.JournalTrade
	updated []*database.JournalTrade
	deleted []string
	nextID  int
}

func newFakeJournalStore() *fakeJournalStore {
	return &fakeJournalStore{trades: map[string]*database.JournalTrade{}}
}

func (f *fakeJournalStore) CreateJournalTrade(_ context.Context, trade *database.JournalTrade, _ database.StatsFunc) error {
	f.nextID++
	trade.ID = "trade-" + string(rune('0'+f.nextID))
	copied := *trade
	f.trades[trade.ID] = &copied
	f.created = append(f.created, &copied)
	return nil
}

func (f *fakeJournalStore) GetJournalTradeByID(_ context.Context, tradeID, userID string) (*database.JournalTrade, error) {
	trade, ok := f.trades[tradeID]
	if !ok || trade.UserID != userID {
		return nil, nil
	}
	copied := *trade
	return &copied, nil
}

func (f *fakeJournalStore) ListJournalTrades(_ context.Context, userID string, status database.TradeStatus, _, _ int) ([]*database.JournalTrade, error) {
	var out []*database.JournalTrade
	for _, t := range f.trades {
		if t.UserID != userID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeJournalStore) UpdateJournalTrade(_ context.Context, trade *database.JournalTrade, _ database.StatsFunc) error {
	copied := *trade
	f.trades[trade.ID] = &copied
	f.updated = append(f.updated, &copied)
	return nil
}

func (f *fakeJournalStore) DeleteJournalTrade(_ context.Context, tradeID, userID string, _ database.StatsFunc) error {
	delete(f.trades, tradeID)
	f.deleted = append(f.deleted, tradeID)
	return nil
}

func (f *fakeJournalStore) GetMonthlyStats(_ context.Context, _ string, _, _ int) (*database.MonthlyStats, error) {
	return nil, nil
}

func (f *fakeJournalStore) ListMonthlyStats(_ context.Context, _ string, _ int) ([]*database.MonthlyStats, error) {
	return nil, nil
}

func newTestService(store *fakeJournalStore) *Service {
	svc := NewService(store)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func openTrade() *database.JournalTrade {
	return &database.JournalTrade{
		UserID:     "user-1",
		Symbol:     "BTCUSDT",
		Direction:  database.DirectionLong,
		EntryPrice: 42000,
		Quantity:   0.5,
	}
}

func TestCreateTradeDefaults(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	trade := openTrade()
	if err := svc.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("CreateTrade() error = %v", err)
	}

	if trade.Status != database.TradeOpen {
		t.Errorf("Status = %q, want open", trade.Status)
	}
	if trade.OpenedAt.IsZero() {
		t.Error("expected OpenedAt to default to now")
	}
	if trade.PnL != nil {
		t.Error("open trade should have no PnL")
	}
}

func TestCreateTradeClosedDerivesPnL(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	exit := 43000.0
	trade := openTrade()
	trade.Status = database.TradeClosed
	trade.ExitPrice = &exit
	trade.Fees = 10

	if err := svc.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("CreateTrade() error = %v", err)
	}

	if trade.PnL == nil {
		t.Fatal("expected PnL to be derived")
	}
	// (43000 - 42000) * 0.5 - 10
	if !floatEquals(*trade.PnL, 490) {
		t.Errorf("PnL = %v, want 490", *trade.PnL)
	}
	if trade.ClosedAt == nil {
		t.Error("expected ClosedAt to default to now")
	}
}

func TestCreateTradeValidation(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	tests := []struct {
		name   string
		mutate func(*database.JournalTrade)
	}{
		{"missing symbol", func(tr *database.JournalTrade) { tr.Symbol = "" }},
		{"bad direction", func(tr *database.JournalTrade) { tr.Direction = "sideways" }},
		{"zero entry", func(tr *database.JournalTrade) { tr.EntryPrice = 0 }},
		{"zero quantity", func(tr *database.JournalTrade) { tr.Quantity = 0 }},
		{"negative fees", func(tr *database.JournalTrade) { tr.Fees = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := openTrade()
			tt.mutate(trade)
			err := svc.CreateTrade(context.Background(), trade)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("CreateTrade() error = %v, want ErrValidation", err)
			}
		})
	}

	if len(store.created) != 0 {
		t.Errorf("expected no trades persisted, got %d", len(store.created))
	}
}

func TestCloseTrade(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	trade := openTrade()
	trade.Direction = database.DirectionShort
	if err := svc.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("CreateTrade() error = %v", err)
	}

	closed, err := svc.CloseTrade(context.Background(), trade.ID, "user-1", 41000, 5, nil)
	if err != nil {
		t.Fatalf("CloseTrade() error = %v", err)
	}

	if closed.Status != database.TradeClosed {
		t.Errorf("Status = %q, want closed", closed.Status)
	}
	if closed.PnL == nil {
		t.Fatal("expected PnL after close")
	}
	// Short: (42000 - 41000) * 0.5 - 5
	if !floatEquals(*closed.PnL, 495) {
		t.Errorf("PnL = %v, want 495", *closed.PnL)
	}
	if closed.ClosedAt == nil || !closed.ClosedAt.Equal(svc.now()) {
		t.Errorf("ClosedAt = %v, want test clock", closed.ClosedAt)
	}
	if len(store.updated) != 1 {
		t.Fatalf("expected one update, got %d", len(store.updated))
	}
}

func TestCloseTradeAlreadyClosed(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	exit := 43000.0
	trade := openTrade()
	trade.Status = database.TradeClosed
	trade.ExitPrice = &exit
	if err := svc.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("CreateTrade() error = %v", err)
	}

	_, err := svc.CloseTrade(context.Background(), trade.ID, "user-1", 44000, 0, nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("CloseTrade() error = %v, want ErrValidation", err)
	}
}

func TestCloseTradeNotFound(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	_, err := svc.CloseTrade(context.Background(), "missing", "user-1", 100, 0, nil)
	if !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("CloseTrade() error = %v, want ErrTradeNotFound", err)
	}
}

func TestCloseTradeForeignUserInvisible(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	trade := openTrade()
	if err := svc.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("CreateTrade() error = %v", err)
	}

	_, err := svc.CloseTrade(context.Background(), trade.ID, "user-2", 43000, 0, nil)
	if !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("CloseTrade() error = %v, want ErrTradeNotFound", err)
	}
}

func TestUpdateTradeReopenClearsClose(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	exit := 43000.0
	trade := openTrade()
	trade.Status = database.TradeClosed
	trade.ExitPrice = &exit
	if err := svc.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("CreateTrade() error = %v", err)
	}

	trade.Status = database.TradeOpen
	if err := svc.UpdateTrade(context.Background(), trade); err != nil {
		t.Fatalf("UpdateTrade() error = %v", err)
	}

	if trade.ExitPrice != nil || trade.PnL != nil || trade.ClosedAt != nil {
		t.Error("reopening a trade should clear exit price, PnL, and close time")
	}
}

func TestDeleteTrade(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	trade := openTrade()
	if err := svc.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("CreateTrade() error = %v", err)
	}

	if err := svc.DeleteTrade(context.Background(), trade.ID, "user-1"); err != nil {
		t.Fatalf("DeleteTrade() error = %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != trade.ID {
		t.Errorf("deleted = %v, want [%s]", store.deleted, trade.ID)
	}

	if err := svc.DeleteTrade(context.Background(), trade.ID, "user-1"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("second delete error = %v, want ErrTradeNotFound", err)
	}
}

func TestGetMonthlyStatsValidation(t *testing.T) {
	store := newFakeJournalStore()
	svc := newTestService(store)

	if _, err := svc.GetMonthlyStats(context.Background(), "user-1", 2026, 13); !errors.Is(err, ErrValidation) {
		t.Errorf("GetMonthlyStats() error = %v, want ErrValidation", err)
	}
}
