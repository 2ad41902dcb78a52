package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"chartpilot/internal/database"
)

type fakeStore struct {
	schedules map[string]*database.AutomationSchedule
	user      *database.User
	layout    *database.Layout
	deleted   []string
}

func (f *fakeStore) CreateSchedule(_ context.Context, sched *database.AutomationSchedule) error {
	f.schedules[sched.ID] = sched
	return nil
}

func (f *fakeStore) GetScheduleByID(_ context.Context, scheduleID, userID string) (*database.AutomationSchedule, error) {
	sched, ok := f.schedules[scheduleID]
	if !ok || sched.UserID != userID {
		return nil, nil
	}
	return sched, nil
}

func (f *fakeStore) GetSchedulesByUserID(_ context.Context, userID string) ([]*database.AutomationSchedule, error) {
	var out []*database.AutomationSchedule
	for _, sched := range f.schedules {
		if sched.UserID == userID {
			out = append(out, sched)
		}
	}
	return out, nil
}

func (f *fakeStore) CountSchedulesByUserID(_ context.Context, userID string) (int, error) {
	scheds, _ := f.GetSchedulesByUserID(context.Background(), userID)
	return len(scheds), nil
}

func (f *fakeStore) UpdateSchedule(_ context.Context, sched *database.AutomationSchedule) error {
	f.schedules[sched.ID] = sched
	return nil
}

func (f *fakeStore) DeleteSchedule(_ context.Context, scheduleID, _ string) error {
	delete(f.schedules, scheduleID)
	f.deleted = append(f.deleted, scheduleID)
	return nil
}

func (f *fakeStore) GetJobLogsByScheduleID(_ context.Context, _, _ string, _ int) ([]*database.AutomationJobLog, error) {
	return nil, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, _ string) (*database.User, error) {
	return f.user, nil
}

func (f *fakeStore) GetLayoutByID(_ context.Context, _, _ string) (*database.Layout, error) {
	return f.layout, nil
}

func newTestService(store *fakeStore) *Service {
	svc := NewService(store)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func traderStore() *fakeStore {
	return &fakeStore{
		schedules: map[string]*database.AutomationSchedule{},
		user:      &database.User{ID: "user-1", SubscriptionTier: database.TierTrader},
		layout:    &database.Layout{ID: "layout-1", UserID: "user-1", Symbol: "BINANCE:BTCUSDT"},
	}
}

func TestDeleteScheduleNotFound(t *testing.T) {
	store := traderStore()
	svc := newTestService(store)

	err := svc.DeleteSchedule(context.Background(), "missing", "user-1")
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("expected no delete call, got %v", store.deleted)
	}
}

func TestDeleteScheduleOtherUser(t *testing.T) {
	store := traderStore()
	store.schedules["sched-1"] = testSchedule()
	svc := newTestService(store)

	err := svc.DeleteSchedule(context.Background(), "sched-1", "user-2")
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
	if _, ok := store.schedules["sched-1"]; !ok {
		t.Fatal("schedule should not have been deleted")
	}
}

func TestDeleteScheduleRemoves(t *testing.T) {
	store := traderStore()
	store.schedules["sched-1"] = testSchedule()
	svc := newTestService(store)

	if err := svc.DeleteSchedule(context.Background(), "sched-1", "user-1"); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "sched-1" {
		t.Fatalf("expected sched-1 deleted, got %v", store.deleted)
	}
}
