package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"chartpilot/internal/ai/llm"
	"chartpilot/internal/calendar"
	"chartpilot/internal/database"
	"chartpilot/internal/snapshot"
)

type fakeStore struct {
	layouts   map[string]*database.Layout
	snapshots map[string]*database.Snapshot
	analyses  []*database.Analysis
}

func (f *fakeStore) GetLayoutByID(ctx context.Context, layoutID, userID string) (*database.Layout, error) {
	layout := f.layouts[layoutID]
	if layout == nil || layout.UserID != userID {
		return nil, nil
	}
	return layout, nil
}

func (f *fakeStore) GetSnapshotByID(ctx context.Context, snapshotID, userID string) (*database.Snapshot, error) {
	snap := f.snapshots[snapshotID]
	if snap == nil || snap.UserID != userID {
		return nil, nil
	}
	return snap, nil
}

func (f *fakeStore) CreateAnalysis(ctx context.Context, analysis *database.Analysis) error {
	analysis.ID = "analysis-1"
	f.analyses = append(f.analyses, analysis)
	return nil
}

type fakeCapturer struct {
	snap     *database.Snapshot
	err      error
	imageErr error
}

func (f *fakeCapturer) Capture(ctx context.Context, layout *database.Layout) (*database.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeCapturer) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	if f.imageErr != nil {
		return nil, "", f.imageErr
	}
	return []byte("png"), "image/png", nil
}

type fakeAnalyzer struct {
	result  *llm.AnalyzeResult
	err     error
	lastReq llm.AnalyzeRequest
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalyzeResult, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeCalendar struct {
	events []calendar.Event
}

func (f *fakeCalendar) GetContext(ctx context.Context, symbol string) []calendar.Event {
	return f.events
}

func buySignalResult() *llm.AnalyzeResult {
	return &llm.AnalyzeResult{
		Signal: &llm.Signal{
			Action:     llm.ActionBuy,
			Confidence: 72,
			Entry:      43250.5,
			StopLoss:   42800,
			TakeProfit: 44500,
			Reasons:    []string{"breakout"},
		},
		Provider: llm.ProviderOpenAI,
		Model:    "gpt-4o",
		Raw:      `{"action":"buy"}`,
		Latency:  420 * time.Millisecond,
	}
}

func TestRunPipeline(t *testing.T) {
	layout := &database.Layout{ID: "layout-1", UserID: "user-1", Symbol: "BINANCE:BTCUSDT", Interval: "4h"}
	snap := &database.Snapshot{ID: "snap-1", LayoutID: "layout-1", UserID: "user-1", Status: database.SnapshotReady, ImageURL: "https://cdn/img.png"}

	store := &fakeStore{layouts: map[string]*database.Layout{"layout-1": layout}}
	analyzer := &fakeAnalyzer{result: buySignalResult()}
	cal := &fakeCalendar{events: []calendar.Event{{ID: "cpi", Title: "CPI", Currency: "USD", Timestamp: time.Now()}}}

	svc := NewService(store, &fakeCapturer{snap: snap}, analyzer, cal, nil)

	record, err := svc.Run(context.Background(), "user-1", "layout-1", "openai:gpt-4o")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if record.Action != database.ActionBuy || record.Confidence != 72 {
		t.Errorf("record = %+v", record)
	}
	if record.EntryPrice == nil || *record.EntryPrice != 43250.5 {
		t.Error("entry price not persisted")
	}
	if len(record.CalendarContext) == 0 {
		t.Error("calendar context should be attached")
	}
	if record.LatencyMs != 420 {
		t.Errorf("latencyMs = %d", record.LatencyMs)
	}
	if len(store.analyses) != 1 {
		t.Fatalf("persisted %d analyses", len(store.analyses))
	}

	// The image was downloaded and inlined for the provider
	if analyzer.lastReq.Image == nil || analyzer.lastReq.Image.Data == "" {
		t.Error("expected inline image data in the provider request")
	}
}

func TestRunUnknownLayout(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeCapturer{}, &fakeAnalyzer{}, &fakeCalendar{}, nil)

	_, err := svc.Run(context.Background(), "user-1", "missing", "")
	if !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("err = %v, want ErrLayoutNotFound", err)
	}
}

func TestRunCaptureFailurePropagates(t *testing.T) {
	layout := &database.Layout{ID: "layout-1", UserID: "user-1"}
	store := &fakeStore{layouts: map[string]*database.Layout{"layout-1": layout}}
	capturer := &fakeCapturer{
		snap: &database.Snapshot{Status: database.SnapshotFailed},
		err:  snapshot.ErrCaptureFailed,
	}

	svc := NewService(store, capturer, &fakeAnalyzer{}, &fakeCalendar{}, nil)

	_, err := svc.Run(context.Background(), "user-1", "layout-1", "")
	if !errors.Is(err, snapshot.ErrCaptureFailed) {
		t.Errorf("err = %v, want ErrCaptureFailed", err)
	}
}

func TestImageDownloadFailureIsBestEffort(t *testing.T) {
	layout := &database.Layout{ID: "layout-1", UserID: "user-1", Symbol: "BINANCE:BTCUSDT"}
	snap := &database.Snapshot{ID: "snap-1", LayoutID: "layout-1", UserID: "user-1", Status: database.SnapshotReady, ImageURL: "https://cdn/img.png"}

	store := &fakeStore{layouts: map[string]*database.Layout{"layout-1": layout}}
	analyzer := &fakeAnalyzer{result: buySignalResult()}
	capturer := &fakeCapturer{snap: snap, imageErr: errors.New("cdn down")}

	svc := NewService(store, capturer, analyzer, &fakeCalendar{}, nil)

	if _, err := svc.Run(context.Background(), "user-1", "layout-1", ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Falls back to passing the URL only
	if analyzer.lastReq.Image == nil || analyzer.lastReq.Image.Data != "" || analyzer.lastReq.Image.URL == "" {
		t.Errorf("image input = %+v", analyzer.lastReq.Image)
	}
}

func TestAnalyzeExistingValidations(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	layout := &database.Layout{ID: "layout-1", UserID: "user-1", Symbol: "BINANCE:BTCUSDT"}
	store := &fakeStore{
		layouts: map[string]*database.Layout{"layout-1": layout},
		snapshots: map[string]*database.Snapshot{
			"failed":  {ID: "failed", LayoutID: "layout-1", UserID: "user-1", Status: database.SnapshotFailed},
			"expired": {ID: "expired", LayoutID: "layout-1", UserID: "user-1", Status: database.SnapshotReady, ExpiresAt: &past},
			"ready":   {ID: "ready", LayoutID: "layout-1", UserID: "user-1", Status: database.SnapshotReady, ImageURL: "https://cdn/i.png"},
		},
	}
	analyzer := &fakeAnalyzer{result: buySignalResult()}
	svc := NewService(store, &fakeCapturer{}, analyzer, &fakeCalendar{}, nil)

	for _, id := range []string{"failed", "expired"} {
		if _, err := svc.AnalyzeExisting(context.Background(), "user-1", id, ""); !errors.Is(err, ErrSnapshotNotReady) {
			t.Errorf("%s: err = %v, want ErrSnapshotNotReady", id, err)
		}
	}

	if _, err := svc.AnalyzeExisting(context.Background(), "user-1", "ready", ""); err != nil {
		t.Errorf("ready snapshot should analyze: %v", err)
	}

	// Another user's snapshot is invisible
	if _, err := svc.AnalyzeExisting(context.Background(), "user-2", "ready", ""); err == nil {
		t.Error("expected error for foreign snapshot")
	}
}

func TestProviderErrorPropagates(t *testing.T) {
	layout := &database.Layout{ID: "layout-1", UserID: "user-1"}
	snap := &database.Snapshot{ID: "snap-1", LayoutID: "layout-1", UserID: "user-1", Status: database.SnapshotReady}
	store := &fakeStore{layouts: map[string]*database.Layout{"layout-1": layout}}
	analyzer := &fakeAnalyzer{err: llm.ErrProviderUnavailable}

	svc := NewService(store, &fakeCapturer{snap: snap}, analyzer, &fakeCalendar{}, nil)

	_, err := svc.Run(context.Background(), "user-1", "layout-1", "")
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
	if len(store.analyses) != 0 {
		t.Error("no analysis should be persisted on provider failure")
	}
}
