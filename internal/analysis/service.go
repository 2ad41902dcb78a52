// Package analysis orchestrates the capture, AI, and calendar pipeline
// behind both the interactive API and the automation scheduler.
package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"chartpilot/internal/ai/llm"
	"chartpilot/internal/calendar"
	"chartpilot/internal/database"
	"chartpilot/internal/events"
	"chartpilot/internal/logging"
	"chartpilot/internal/snapshot"
)

// ErrLayoutNotFound is returned when the layout does not exist or belongs
// to another user.
var ErrLayoutNotFound = errors.New("layout not found")

// ErrSnapshotNotFound is returned when the snapshot does not exist or
// belongs to another user.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrSnapshotNotReady is returned when an analysis is requested for a
// snapshot that failed or expired.
var ErrSnapshotNotReady = errors.New("snapshot is not ready for analysis")

// Store is the repository surface the pipeline needs. Implemented by
// *database.Repository.
type Store interface {
	GetLayoutByID(ctx context.Context, layoutID, userID string) (*database.Layout, error)
	GetSnapshotByID(ctx context.Context, snapshotID, userID string) (*database.Snapshot, error)
	CreateAnalysis(ctx context.Context, analysis *database.Analysis) error
}

// Capturer captures chart snapshots and fetches image bytes
type Capturer interface {
	Capture(ctx context.Context, layout *database.Layout) (*database.Snapshot, error)
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}

// SignalSource produces trading signals from chart images
type SignalSource interface {
	Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalyzeResult, error)
}

// CalendarSource supplies economic events for a symbol
type CalendarSource interface {
	GetContext(ctx context.Context, symbol string) []calendar.Event
}

// Service runs the snapshot -> AI -> calendar -> persist pipeline
type Service struct {
	repo      Store
	snapshots Capturer
	analyzer  SignalSource
	calendar  CalendarSource
	bus       *events.EventBus
	logger    *logging.Logger
}

// NewService creates the analysis pipeline service
func NewService(repo Store, snapshots Capturer, analyzer SignalSource, calendarSource CalendarSource, bus *events.EventBus) *Service {
	return &Service{
		repo:      repo,
		snapshots: snapshots,
		analyzer:  analyzer,
		calendar:  calendarSource,
		bus:       bus,
		logger:    logging.WithComponent("analysis"),
	}
}

// Run captures a fresh snapshot for the layout and analyzes it. This is the
// path used by the automation scheduler and the one-shot analyze endpoint.
func (s *Service) Run(ctx context.Context, userID, layoutID, selector string) (*database.Analysis, error) {
	layout, err := s.repo.GetLayoutByID(ctx, layoutID, userID)
	if err != nil {
		return nil, err
	}
	if layout == nil {
		return nil, ErrLayoutNotFound
	}

	snap, err := s.snapshots.Capture(ctx, layout)
	if err != nil {
		if s.bus != nil && snap != nil {
			s.bus.PublishSnapshotCaptured(userID, snap.ID, layout.ID, string(snap.Status))
		}
		return nil, err
	}
	if s.bus != nil {
		s.bus.PublishSnapshotCaptured(userID, snap.ID, layout.ID, string(snap.Status))
	}

	return s.AnalyzeSnapshot(ctx, layout, snap, selector)
}

// AnalyzeExisting analyzes a previously captured snapshot
func (s *Service) AnalyzeExisting(ctx context.Context, userID, snapshotID, selector string) (*database.Analysis, error) {
	snap, err := s.repo.GetSnapshotByID(ctx, snapshotID, userID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrSnapshotNotFound
	}
	if snap.Status != database.SnapshotReady || snapshot.IsExpired(snap, time.Now()) {
		return nil, ErrSnapshotNotReady
	}

	layout, err := s.repo.GetLayoutByID(ctx, snap.LayoutID, userID)
	if err != nil {
		return nil, err
	}
	if layout == nil {
		return nil, ErrLayoutNotFound
	}

	return s.AnalyzeSnapshot(ctx, layout, snap, selector)
}

// AnalyzeSnapshot runs the AI and calendar stages for a ready snapshot and
// persists the resulting analysis. Calendar enrichment and image download
// are best-effort; only the provider call and the database write can fail
// the pipeline.
func (s *Service) AnalyzeSnapshot(ctx context.Context, layout *database.Layout, snap *database.Snapshot, selector string) (*database.Analysis, error) {
	calendarEvents := s.calendar.GetContext(ctx, layout.Symbol)
	summary := calendar.Summary(calendarEvents)

	image := &llm.ImageInput{URL: snap.ImageURL, MIMEType: "image/png"}
	if data, contentType, err := s.snapshots.FetchImage(ctx, snap.ImageURL); err == nil {
		image.Data = base64.StdEncoding.EncodeToString(data)
		image.MIMEType = contentType
	} else {
		s.logger.WithError(err).Warn("image download failed, using URL only")
	}

	result, err := s.analyzer.Analyze(ctx, llm.AnalyzeRequest{
		UserID:          layout.UserID,
		Selector:        selector,
		Symbol:          layout.Symbol,
		Interval:        layout.Interval,
		Image:           image,
		CalendarSummary: summary,
	})
	if err != nil {
		return nil, err
	}

	record := &database.Analysis{
		SnapshotID:  snap.ID,
		LayoutID:    layout.ID,
		UserID:      layout.UserID,
		Provider:    string(result.Provider),
		Model:       result.Model,
		Action:      database.SignalAction(result.Signal.Action),
		Confidence:  float64(result.Signal.Confidence),
		Reasons:     result.Signal.Reasons,
		RiskNotes:   result.Signal.RiskNotes,
		RawResponse: result.Raw,
		LatencyMs:   result.Latency.Milliseconds(),
	}
	if result.Signal.Entry > 0 {
		record.EntryPrice = &result.Signal.Entry
	}
	if result.Signal.StopLoss > 0 {
		record.StopLoss = &result.Signal.StopLoss
	}
	if result.Signal.TakeProfit > 0 {
		record.TakeProfit = &result.Signal.TakeProfit
	}
	if len(calendarEvents) > 0 {
		if raw, err := json.Marshal(calendarEvents); err == nil {
			record.CalendarContext = raw
		}
	}

	if err := s.repo.CreateAnalysis(ctx, record); err != nil {
		return nil, err
	}

	// Picks up the per-run trace logger when invoked from the scheduler.
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"analysis_id": record.ID,
		"layout_id":   layout.ID,
		"provider":    record.Provider,
		"action":      string(record.Action),
		"confidence":  record.Confidence,
	}).Info("analysis completed")

	if s.bus != nil {
		s.bus.PublishAnalysisCompleted(layout.UserID, record.ID, layout.ID, layout.Symbol, string(record.Action), record.Confidence)
	}

	return record, nil
}
