package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chartpilot/config"
	"chartpilot/internal/database"
)

type fakeStore struct {
	snapshots []*database.Snapshot
	err       error
}

func (f *fakeStore) CreateSnapshot(ctx context.Context, snap *database.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	snap.ID = "snap-1"
	f.snapshots = append(f.snapshots, snap)
	return nil
}

type fakeDecrypter struct{}

func (fakeDecrypter) DecryptSecret(ciphertext string) (string, error) {
	if ciphertext == "bad" {
		return "", errors.New("decrypt failed")
	}
	return "plain-" + ciphertext, nil
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *fakeStore, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := &fakeStore{}
	svc := NewService(config.ChartImgConfig{
		APIKey:        "test-key",
		BaseURL:       server.URL,
		DefaultWidth:  800,
		DefaultHeight: 600,
		DefaultTheme:  "dark",
	}, store, fakeDecrypter{})

	return svc, store, server
}

func TestCaptureStandardChart(t *testing.T) {
	expire := time.Now().Add(30 * time.Minute).UTC().Format(time.RFC3339)

	svc, store, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/tradingview/advanced-chart/storage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing api key header")
		}

		var body standardRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if body.Symbol != "BINANCE:BTCUSDT" || body.Interval != "4h" {
			t.Errorf("unexpected body: %+v", body)
		}
		if body.Theme != "light" {
			t.Errorf("theme = %q, want layout theme", body.Theme)
		}

		json.NewEncoder(w).Encode(map[string]string{
			"url":    "https://cdn.chart-img.com/abc.png",
			"expire": expire,
		})
	})

	snap, err := svc.Capture(context.Background(), &database.Layout{
		ID:       "layout-1",
		UserID:   "user-1",
		Symbol:   "BINANCE:BTCUSDT",
		Interval: "4h",
		Theme:    "light",
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if snap.Status != database.SnapshotReady {
		t.Errorf("status = %s, want ready", snap.Status)
	}
	if snap.ImageURL != "https://cdn.chart-img.com/abc.png" {
		t.Errorf("imageURL = %q", snap.ImageURL)
	}
	if snap.Source != database.SourceAdvancedChart {
		t.Errorf("source = %s, want advanced-chart", snap.Source)
	}
	if snap.ExpiresAt == nil {
		t.Error("expected expiry to be recorded")
	}
	if len(store.snapshots) != 1 {
		t.Errorf("persisted %d snapshots, want 1", len(store.snapshots))
	}
}

func TestCapturePrivateLayoutSendsSessionHeaders(t *testing.T) {
	svc, _, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/tradingview/layout-chart/storage/chart123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("tradingview-session-id") != "plain-enc-sid" {
			t.Errorf("session header = %q", r.Header.Get("tradingview-session-id"))
		}
		if r.Header.Get("tradingview-session-id-sign") != "plain-enc-sign" {
			t.Errorf("session sign header = %q", r.Header.Get("tradingview-session-id-sign"))
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.chart-img.com/priv.png"})
	})

	snap, err := svc.Capture(context.Background(), &database.Layout{
		ID:                "layout-2",
		UserID:            "user-1",
		Symbol:            "BINANCE:ETHUSDT",
		Interval:          "1h",
		ChartLayoutID:     "chart123",
		IsPrivate:         true,
		SessionCipher:     "enc-sid",
		SessionSignCipher: "enc-sign",
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if snap.Source != database.SourceLayoutChart {
		t.Errorf("source = %s, want layout-chart", snap.Source)
	}
}

func TestCapturePrivateLayoutWithoutSession(t *testing.T) {
	svc, store, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no upstream call expected")
	})

	_, err := svc.Capture(context.Background(), &database.Layout{
		ID:        "layout-3",
		UserID:    "user-1",
		IsPrivate: true,
	})
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("err = %v, want ErrCaptureFailed", err)
	}

	// Failure is still recorded
	if len(store.snapshots) != 1 || store.snapshots[0].Status != database.SnapshotFailed {
		t.Error("expected a failed snapshot row")
	}
}

func TestCaptureUpstreamError(t *testing.T) {
	svc, store, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid API key"})
	})

	snap, err := svc.Capture(context.Background(), &database.Layout{
		ID:     "layout-4",
		UserID: "user-1",
		Symbol: "BINANCE:BTCUSDT",
	})
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("err = %v, want ErrCaptureFailed", err)
	}
	if snap.Status != database.SnapshotFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
	if snap.ErrorMessage == "" {
		t.Error("expected error message on failed snapshot")
	}
	if len(store.snapshots) != 1 {
		t.Errorf("persisted %d snapshots, want 1", len(store.snapshots))
	}
}

func TestFetchImage(t *testing.T) {
	svc, _, server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	})

	data, contentType, err := svc.FetchImage(context.Background(), server.URL+"/img.png")
	if err != nil {
		t.Fatalf("FetchImage failed: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("data = %q", data)
	}
	if contentType != "image/png" {
		t.Errorf("contentType = %q", contentType)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if IsExpired(&database.Snapshot{}, now) {
		t.Error("snapshot with no expiry is never expired")
	}
	if !IsExpired(&database.Snapshot{ExpiresAt: &past}, now) {
		t.Error("expected expired")
	}
	if IsExpired(&database.Snapshot{ExpiresAt: &future}, now) {
		t.Error("expected not expired")
	}
}
