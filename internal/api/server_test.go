package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/config"
	"github.com/reelsweep/reelsweep/internal/dedup"
	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/subtitles"
)

type stubLibrary struct {
	items []media.ItemVersions
}

func (s *stubLibrary) ListItems(ctx context.Context, scope media.Scope) ([]media.ItemVersions, error) {
	return s.items, nil
}
func (s *stubLibrary) DeleteVersion(ctx context.Context, itemID string, mediaID int64) error {
	return nil
}
func (s *stubLibrary) RefreshAll(ctx context.Context) error { return nil }

type stubFiles struct{}

func (stubFiles) Remove(path string) error            { return nil }
func (stubFiles) Relocate(path, destDir string) error { return nil }

type stubProvider struct{}

func (stubProvider) Search(ctx context.Context, req subtitles.SearchRequest) ([]subtitles.Candidate, error) {
	return nil, nil
}
func (stubProvider) Download(ctx context.Context, c subtitles.Candidate) ([]byte, error) {
	return nil, nil
}

type stubStore struct{}

func (stubStore) Exists(path string) bool                  { return false }
func (stubStore) WriteFile(path string, data []byte) error { return nil }

func duplicateCatalog() []media.ItemVersions {
	return []media.ItemVersions{{
		Item: media.Item{ID: "1", Title: "Heat", Year: 1995, Kind: media.KindMovie},
		Versions: []media.Version{
			{Path: "a.mkv", Resolution: media.Resolution1080p, Size: 8 << 30, AddedAt: time.Now()},
			{Path: "b.mkv", Resolution: media.Resolution4K, Size: 60 << 30, AddedAt: time.Now()},
		},
	}}
}

func newTestServer(t *testing.T, checks []ConnectionCheck) *Server {
	t.Helper()
	cfg := &config.Config{
		Dedup:     config.DedupConfig{KeepStrategy: "best_quality", DryRun: true, Unmonitor: true, DeleteFiles: true, Workers: 2},
		Subtitles: config.SubtitlesConfig{Languages: []string{"en"}, Workers: 1},
	}

	lib := &stubLibrary{items: duplicateCatalog()}
	executor := dedup.NewExecutor(lib, nil, nil, stubFiles{}, zerolog.Nop())
	dedupSvc := dedup.NewService(cfg.Dedup, lib, executor, zerolog.Nop())
	subSvc := subtitles.NewService(cfg.Subtitles, lib, stubProvider{}, stubStore{}, zerolog.Nop())

	return NewServer(cfg, dedupSvc, subSvc, nil, nil, checks, zerolog.Nop())
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSystemStatusReportsConnections(t *testing.T) {
	srv := newTestServer(t, []ConnectionCheck{
		{Name: "plex", Test: func(ctx context.Context) error { return nil }},
		{Name: "radarr", Test: func(ctx context.Context) error { return errors.New("connection refused") }},
	})

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Connections []struct {
			Name  string `json:"name"`
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		} `json:"connections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Connections) != 2 {
		t.Fatalf("connections = %d, want 2", len(body.Connections))
	}
	if !body.Connections[0].OK || body.Connections[1].OK {
		t.Errorf("connection results = %+v", body.Connections)
	}
	if body.Connections[1].Error == "" {
		t.Error("failed check must carry the error")
	}
}

func TestDedupScanEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dedup/scan?scope=movies", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var report dedup.ScanReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Plans) != 1 {
		t.Errorf("plans = %d, want 1", len(report.Plans))
	}
	if report.Plans[0].Keeper.Path != "b.mkv" {
		t.Errorf("keeper = %s, want the 4K version", report.Plans[0].Keeper.Path)
	}
}

func TestDedupScanRejectsBadScope(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dedup/scan?scope=songs", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubtitleScanEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/subtitles/scan", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var report subtitles.ScanReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	// Two versions, one wanted language, nothing present anywhere.
	if report.Summary.MissingTotal != 2 {
		t.Errorf("missing = %d, want 2", report.Summary.MissingTotal)
	}
}
