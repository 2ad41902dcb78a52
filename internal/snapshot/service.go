package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chartpilot/config"
	"chartpilot/internal/database"
	"chartpilot/internal/logging"
)

// ErrCaptureFailed wraps upstream Chart-IMG failures. Handlers map it to 502.
var ErrCaptureFailed = errors.New("chart capture failed")

// ErrSessionRequired is returned when a private layout has no stored
// TradingView session credentials.
var ErrSessionRequired = errors.New("private layout requires session credentials")

// SecretDecrypter decrypts stored session cookie ciphertext
type SecretDecrypter interface {
	DecryptSecret(ciphertext string) (string, error)
}

// Store persists snapshot rows. Implemented by *database.Repository.
type Store interface {
	CreateSnapshot(ctx context.Context, snap *database.Snapshot) error
}

// Service captures chart images through the Chart-IMG API
type Service struct {
	cfg        config.ChartImgConfig
	repo       Store
	secrets    SecretDecrypter
	httpClient *http.Client
	logger     *logging.Logger
}

// NewService creates a new snapshot service
func NewService(cfg config.ChartImgConfig, repo Store, secrets SecretDecrypter) *Service {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		cfg:     cfg,
		repo:    repo,
		secrets: secrets,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.WithComponent("snapshot"),
	}
}

// captureResponse is the Chart-IMG storage response
type captureResponse struct {
	URL      string `json:"url"`
	Expire   string `json:"expire,omitempty"`
	ExpireAt string `json:"expireAt,omitempty"`
	Message  string `json:"message,omitempty"`
}

// standardRequest is the public advanced-chart request body
type standardRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Theme    string `json:"theme,omitempty"`
}

// layoutRequest is the session-authenticated layout-chart request body
type layoutRequest struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Capture requests a chart image for a layout and persists the outcome as a
// snapshot row. A failed capture still produces a snapshot row with status
// failed so the attempt is visible, and the returned error wraps
// ErrCaptureFailed.
func (s *Service) Capture(ctx context.Context, layout *database.Layout) (*database.Snapshot, error) {
	snap := &database.Snapshot{
		LayoutID:   layout.ID,
		UserID:     layout.UserID,
		Source:     database.SourceAdvancedChart,
		CapturedAt: time.Now(),
	}
	if layout.IsPrivate {
		snap.Source = database.SourceLayoutChart
	}

	result, err := s.capture(ctx, layout)
	if err != nil {
		snap.Status = database.SnapshotFailed
		snap.ErrorMessage = err.Error()
		if createErr := s.repo.CreateSnapshot(ctx, snap); createErr != nil {
			s.logger.WithError(createErr).Error("failed to record failed snapshot")
		}
		logging.SnapshotContext(layout.ID, layout.Symbol).WithError(err).Warn("chart capture failed")
		return snap, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	snap.Status = database.SnapshotReady
	snap.ImageURL = result.URL
	if expiresAt := parseExpiry(result); expiresAt != nil {
		snap.ExpiresAt = expiresAt
	}

	if err := s.repo.CreateSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"snapshot_id": snap.ID,
		"layout_id":   layout.ID,
		"source":      string(snap.Source),
	}).Info("chart snapshot captured")

	return snap, nil
}

func (s *Service) capture(ctx context.Context, layout *database.Layout) (*captureResponse, error) {
	if layout.IsPrivate {
		return s.captureLayoutChart(ctx, layout)
	}
	return s.captureStandardChart(ctx, layout)
}

// captureStandardChart renders a public chart from symbol and interval
func (s *Service) captureStandardChart(ctx context.Context, layout *database.Layout) (*captureResponse, error) {
	theme := layout.Theme
	if theme == "" {
		theme = s.cfg.DefaultTheme
	}

	body := standardRequest{
		Symbol:   layout.Symbol,
		Interval: layout.Interval,
		Width:    s.cfg.DefaultWidth,
		Height:   s.cfg.DefaultHeight,
		Theme:    theme,
	}

	url := s.cfg.BaseURL + "/v2/tradingview/advanced-chart/storage"
	return s.post(ctx, url, body, nil)
}

// captureLayoutChart renders the user's saved TradingView layout using the
// decrypted session cookies
func (s *Service) captureLayoutChart(ctx context.Context, layout *database.Layout) (*captureResponse, error) {
	if layout.ChartLayoutID == "" || layout.SessionCipher == "" || layout.SessionSignCipher == "" {
		return nil, ErrSessionRequired
	}

	sessionID, err := s.secrets.DecryptSecret(layout.SessionCipher)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session cookie: %w", err)
	}
	sessionSign, err := s.secrets.DecryptSecret(layout.SessionSignCipher)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session sign cookie: %w", err)
	}

	body := layoutRequest{
		Width:  s.cfg.DefaultWidth,
		Height: s.cfg.DefaultHeight,
	}

	url := fmt.Sprintf("%s/v2/tradingview/layout-chart/storage/%s", s.cfg.BaseURL, layout.ChartLayoutID)
	headers := map[string]string{
		"tradingview-session-id":      sessionID,
		"tradingview-session-id-sign": sessionSign,
	}
	return s.post(ctx, url, body, headers)
}

func (s *Service) post(ctx context.Context, url string, payload interface{}, headers map[string]string) (*captureResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.cfg.APIKey)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result captureResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unexpected response (status %d)", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := result.Message
		if msg == "" {
			msg = string(respBody)
		}
		return nil, fmt.Errorf("chart-img returned status %d: %s", resp.StatusCode, msg)
	}

	if result.URL == "" {
		return nil, fmt.Errorf("chart-img response missing image URL")
	}

	return &result, nil
}

// parseExpiry reads the expiry timestamp from either response field
func parseExpiry(result *captureResponse) *time.Time {
	raw := result.Expire
	if raw == "" {
		raw = result.ExpireAt
	}
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// FetchImage downloads a captured image for providers that need inline
// bytes. Returns the raw bytes and the content type.
func (s *Service) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	return data, contentType, nil
}

// IsExpired reports whether a snapshot's image URL has lapsed
func IsExpired(snap *database.Snapshot, now time.Time) bool {
	return snap.ExpiresAt != nil && now.After(*snap.ExpiresAt)
}
