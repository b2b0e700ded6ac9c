package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/config"
	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
)

type fakeRecorder struct {
	mu     sync.Mutex
	scans  []*ScanReport
	applys []*ApplyReport
}

func (f *fakeRecorder) RecordDedupScan(ctx context.Context, r *ScanReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, r)
}

func (f *fakeRecorder) RecordDedupApply(ctx context.Context, r *ApplyReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applys = append(f.applys, r)
}

func serviceConfig() config.DedupConfig {
	return config.DedupConfig{
		KeepStrategy: "best_quality",
		Unmonitor:    true,
		DeleteFiles:  true,
		Workers:      2,
	}
}

func catalogWithDuplicates() []media.ItemVersions {
	dup := testGroup()
	return []media.ItemVersions{
		{Item: dup.Item, Versions: dup.Versions},
		{
			Item: media.Item{ID: "7", Title: "Single", Year: 2001, Kind: media.KindMovie},
			Versions: []media.Version{
				{Path: "single.mkv", Resolution: media.Resolution1080p, Size: 5 << 30, AddedAt: day(4)},
			},
		},
		{
			Item: media.Item{
				ID: "9", Title: "Pilot", Kind: media.KindEpisode,
				ShowTitle: "The Wire", SeasonNumber: 1, EpisodeNumber: 1,
			},
			Versions: []media.Version{
				{Path: "pilot-720.mkv", MediaID: 91, Resolution: media.Resolution720p, Source: media.SourceHDTV, Size: 1 << 30, AddedAt: day(5)},
				{Path: "pilot-1080.mkv", MediaID: 92, Resolution: media.Resolution1080p, Source: media.SourceWebDL, Size: 3 << 30, AddedAt: day(6)},
			},
		},
	}
}

func newTestService(lib *fakeLibrary, src *fakeSource, files *fakeFiles, cfg config.DedupConfig) *Service {
	ex := NewExecutor(lib, src, src, files, zerolog.Nop())
	return NewService(cfg, lib, ex, zerolog.Nop())
}

func TestScanBuildsPlansForDuplicateGroupsOnly(t *testing.T) {
	lib := &fakeLibrary{items: catalogWithDuplicates()}
	svc := newTestService(lib, &fakeSource{found: true}, &fakeFiles{}, serviceConfig())

	report, err := svc.Scan(context.Background(), media.ScopeAll)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(report.Plans) != 2 {
		t.Fatalf("plans = %d, want 2 (single-version items excluded)", len(report.Plans))
	}
	if report.ScanID == "" {
		t.Error("scan must carry a run identifier")
	}
	if report.Summary.MovieGroups != 1 || report.Summary.EpisodeGroups != 1 {
		t.Errorf("summary kinds = %d/%d, want 1/1",
			report.Summary.MovieGroups, report.Summary.EpisodeGroups)
	}
	// Movie group sheds two versions, episode group sheds one.
	if report.Summary.FilesToRemove != 3 {
		t.Errorf("FilesToRemove = %d, want 3", report.Summary.FilesToRemove)
	}
	want := int64(8<<30) + int64(15<<30) + int64(1<<30)
	if report.Summary.SpaceSavedBytes != want {
		t.Errorf("SpaceSavedBytes = %d, want %d", report.Summary.SpaceSavedBytes, want)
	}
}

func TestScanRetriesTransientCatalogError(t *testing.T) {
	lib := &fakeLibrary{items: catalogWithDuplicates(), listFailures: 1}
	svc := newTestService(lib, &fakeSource{found: true}, &fakeFiles{}, serviceConfig())
	svc.policy = fastRetryPolicy()

	report, err := svc.Scan(context.Background(), media.ScopeAll)
	if err != nil {
		t.Fatalf("Scan() error = %v, a recovered server error must not fail the scan", err)
	}
	if lib.listCalls != 2 {
		t.Errorf("list calls = %d, want 2 (one failure, one retry)", lib.listCalls)
	}
	if len(report.Plans) != 2 {
		t.Errorf("plans = %d, want 2", len(report.Plans))
	}
}

func TestScanAuthErrorAbortsWithoutRetry(t *testing.T) {
	lib := &fakeLibrary{listErr: faults.Auth("plex", errors.New("token rejected"))}
	svc := newTestService(lib, &fakeSource{}, &fakeFiles{}, serviceConfig())

	_, err := svc.Scan(context.Background(), media.ScopeAll)
	if err == nil {
		t.Fatal("Scan() should fail on auth error")
	}
	if lib.listCalls != 1 {
		t.Errorf("list calls = %d, auth errors must not be retried", lib.listCalls)
	}
}

func TestScanRejectsUnknownStrategy(t *testing.T) {
	cfg := serviceConfig()
	cfg.KeepStrategy = "coin_flip"
	svc := newTestService(&fakeLibrary{}, &fakeSource{}, &fakeFiles{}, cfg)

	if _, err := svc.Scan(context.Background(), media.ScopeAll); err == nil {
		t.Error("Scan() should reject an unknown keep strategy")
	}
}

func TestApplyDryRunConfigOverridesRequestedMode(t *testing.T) {
	cfg := serviceConfig()
	cfg.DryRun = true
	lib := &fakeLibrary{items: catalogWithDuplicates()}
	svc := newTestService(lib, &fakeSource{found: true}, &fakeFiles{}, cfg)

	scan, err := svc.Scan(context.Background(), media.ScopeAll)
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.Apply(context.Background(), scan.Plans, ModeApply)
	if err != nil {
		t.Fatal(err)
	}

	if report.Mode != ModeSimulate {
		t.Errorf("mode = %s, configured dry-run must downgrade apply to simulate", report.Mode)
	}
	if len(lib.deleted) != 0 {
		t.Errorf("catalog deletes = %d, want 0 under dry-run", len(lib.deleted))
	}
	if report.Summary.Simulated != len(scan.Plans) {
		t.Errorf("simulated groups = %d, want %d", report.Summary.Simulated, len(scan.Plans))
	}
}

func TestApplyLiveRefreshesLibraryAndRecordsHistory(t *testing.T) {
	lib := &fakeLibrary{items: catalogWithDuplicates()}
	rec := &fakeRecorder{}
	svc := newTestService(lib, &fakeSource{found: true}, &fakeFiles{}, serviceConfig())
	svc.SetRecorder(rec)

	scan, err := svc.Scan(context.Background(), media.ScopeAll)
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.Apply(context.Background(), scan.Plans, ModeApply)
	if err != nil {
		t.Fatal(err)
	}

	if report.Summary.Succeeded != 2 {
		t.Errorf("succeeded groups = %d, want 2", report.Summary.Succeeded)
	}
	if report.Summary.FreedBytes == 0 {
		t.Error("live apply should report freed bytes")
	}
	if lib.refreshed != 1 {
		t.Errorf("library refreshes = %d, want 1 after live apply", lib.refreshed)
	}
	if len(rec.scans) != 1 || len(rec.applys) != 1 {
		t.Errorf("recorded scans/applys = %d/%d, want 1/1", len(rec.scans), len(rec.applys))
	}
}

func TestApplySimulateSkipsRefresh(t *testing.T) {
	lib := &fakeLibrary{items: catalogWithDuplicates()}
	svc := newTestService(lib, &fakeSource{found: true}, &fakeFiles{}, serviceConfig())

	scan, err := svc.Scan(context.Background(), media.ScopeAll)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(context.Background(), scan.Plans, ModeSimulate); err != nil {
		t.Fatal(err)
	}
	if lib.refreshed != 0 {
		t.Errorf("library refreshes = %d, want 0 for a simulation", lib.refreshed)
	}
}
