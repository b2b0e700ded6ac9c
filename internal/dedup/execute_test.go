package dedup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/retry"
)

type fakeLibrary struct {
	mu           sync.Mutex
	items        []media.ItemVersions
	listErr      error
	listFailures int // transient failures before listing succeeds
	listCalls    int
	deleted      []int64
	deleteErr    error
	refreshed    int
}

func (f *fakeLibrary) ListItems(ctx context.Context, scope media.Scope) ([]media.ItemVersions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listFailures > 0 {
		f.listFailures--
		return nil, faults.Connectivity("catalog", errors.New("status 500"))
	}
	return f.items, nil
}

func (f *fakeLibrary) DeleteVersion(ctx context.Context, itemID string, mediaID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, mediaID)
	return nil
}

func (f *fakeLibrary) RefreshAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return nil
}

type fakeSource struct {
	mu          sync.Mutex
	unmonitored []string
	err         error
	failures    int // transient failures before unmonitoring succeeds
	calls       int
	found       bool
}

func (f *fakeSource) Unmonitor(ctx context.Context, item media.Item) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.failures > 0 {
		f.failures--
		return false, faults.Connectivity("source", errors.New("status 503"))
	}
	f.unmonitored = append(f.unmonitored, item.ID)
	return f.found, nil
}

type fakeFiles struct {
	mu        sync.Mutex
	removed   []string
	relocated map[string]string
	removeErr error
}

func (f *fakeFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeFiles) Relocate(path, destDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.relocated == nil {
		f.relocated = make(map[string]string)
	}
	f.relocated[path] = destDir
	return nil
}

func newTestExecutor(lib *fakeLibrary, src *fakeSource, files *fakeFiles) *Executor {
	ex := NewExecutor(lib, src, src, files, zerolog.Nop())
	ex.policy = fastRetryPolicy()
	return ex
}

func fastRetryPolicy() retry.Policy {
	return retry.Policy{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		MaxAttempts:  3,
		Multiplier:   1,
	}
}

func liveOptions() ExecOptions {
	return ExecOptions{Unmonitor: true, DeleteFiles: true, Workers: 2}
}

func buildTestPlan(t *testing.T) Plan {
	t.Helper()
	group := testGroup()
	sel, err := SelectKeeper(group, StrategyBestQuality)
	if err != nil {
		t.Fatal(err)
	}
	return BuildPlan(group, sel)
}

func TestExecuteSimulateMatchesLiveShape(t *testing.T) {
	plan := buildTestPlan(t)
	lib := &fakeLibrary{}
	src := &fakeSource{found: true}
	files := &fakeFiles{}
	ex := newTestExecutor(lib, src, files)

	dry := ex.Execute(context.Background(), plan, ModeSimulate, liveOptions())
	live := ex.Execute(context.Background(), plan, ModeApply, liveOptions())

	if dry.Outcome != OutcomeSimulated {
		t.Errorf("dry outcome = %s, want simulated", dry.Outcome)
	}
	if live.Outcome != OutcomeSucceeded {
		t.Errorf("live outcome = %s, want succeeded", live.Outcome)
	}

	// Replayability: same action list, same types and paths, only the
	// state values differ.
	if len(dry.Actions) != len(live.Actions) {
		t.Fatalf("dry actions = %d, live actions = %d", len(dry.Actions), len(live.Actions))
	}
	for i := range dry.Actions {
		if dry.Actions[i].Type != live.Actions[i].Type {
			t.Errorf("action %d type mismatch: %s vs %s", i, dry.Actions[i].Type, live.Actions[i].Type)
		}
		if dry.Actions[i].Path != live.Actions[i].Path {
			t.Errorf("action %d path mismatch", i)
		}
		if dry.Actions[i].State != StateSimulated {
			t.Errorf("dry action %d state = %s, want simulated", i, dry.Actions[i].State)
		}
	}

	// Simulate must have touched nothing.
	if len(src.unmonitored) != 2 {
		t.Errorf("unmonitor calls = %d, want 2 (live run only)", len(src.unmonitored))
	}
	if len(lib.deleted) != 2 {
		t.Errorf("delete calls = %d, want 2 (live run only)", len(lib.deleted))
	}
}

func TestExecutePartialFailureIsIsolatedAndReported(t *testing.T) {
	plan := buildTestPlan(t)
	lib := &fakeLibrary{deleteErr: errors.New("catalog refused")}
	src := &fakeSource{found: true}
	files := &fakeFiles{removeErr: errors.New("permission denied")}
	ex := newTestExecutor(lib, src, files)

	report := ex.Execute(context.Background(), plan, ModeApply, liveOptions())

	if report.Outcome != OutcomePartial {
		t.Fatalf("outcome = %s, want partially_failed", report.Outcome)
	}

	// Unmonitor succeeded, removal failed: both outcomes must be present
	// and independent for every pair.
	for i := 0; i < len(report.Actions); i += 2 {
		if report.Actions[i].State != StateSucceeded {
			t.Errorf("unmonitor %d state = %s, want succeeded", i, report.Actions[i].State)
		}
		if report.Actions[i+1].State != StateFailed {
			t.Errorf("remove %d state = %s, want failed", i+1, report.Actions[i+1].State)
		}
		if report.Actions[i+1].Reason == "" {
			t.Errorf("failed remove %d must carry a reason", i+1)
		}
	}

	if report.FreedBytes != 0 {
		t.Errorf("FreedBytes = %d, want 0 when nothing was removed", report.FreedBytes)
	}
}

func TestExecuteRelocateMode(t *testing.T) {
	plan := buildTestPlan(t)
	lib := &fakeLibrary{}
	src := &fakeSource{found: true}
	files := &fakeFiles{}
	ex := newTestExecutor(lib, src, files)

	opts := liveOptions()
	opts.RecycleDir = "/recycle"
	report := ex.Execute(context.Background(), plan, ModeApply, opts)

	if report.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %s", report.Outcome)
	}
	if len(files.relocated) != 2 {
		t.Errorf("relocated = %d files, want 2", len(files.relocated))
	}
	if len(lib.deleted) != 0 {
		t.Errorf("catalog delete called %d times in relocate mode", len(lib.deleted))
	}
	if report.FreedBytes != plan.SpaceSaved {
		t.Errorf("FreedBytes = %d, want %d", report.FreedBytes, plan.SpaceSaved)
	}
}

func TestExecuteUnmonitorDisabled(t *testing.T) {
	plan := buildTestPlan(t)
	src := &fakeSource{found: true}
	ex := newTestExecutor(&fakeLibrary{}, src, &fakeFiles{})

	opts := liveOptions()
	opts.Unmonitor = false
	report := ex.Execute(context.Background(), plan, ModeApply, opts)

	for _, a := range report.Actions {
		if a.Type == ActionUnmonitor && a.State != StateSkipped {
			t.Errorf("unmonitor state = %s, want skipped", a.State)
		}
	}
	if len(src.unmonitored) != 0 {
		t.Error("source service called despite unmonitor disabled")
	}
}

func TestExecuteUnmonitorNotFoundIsNoOpSuccess(t *testing.T) {
	plan := buildTestPlan(t)
	src := &fakeSource{found: false}
	ex := newTestExecutor(&fakeLibrary{}, src, &fakeFiles{})

	report := ex.Execute(context.Background(), plan, ModeApply, liveOptions())
	for _, a := range report.Actions {
		if a.Type == ActionUnmonitor && a.State != StateSucceeded {
			t.Errorf("unmonitor of untracked item state = %s, want succeeded", a.State)
		}
	}
}

func TestExecuteUnmonitorRetriesTransientFailure(t *testing.T) {
	plan := buildTestPlan(t)
	src := &fakeSource{found: true, failures: 1}
	ex := newTestExecutor(&fakeLibrary{}, src, &fakeFiles{})

	report := ex.Execute(context.Background(), plan, ModeApply, liveOptions())

	for _, a := range report.Actions {
		if a.Type == ActionUnmonitor && a.State != StateSucceeded {
			t.Errorf("unmonitor state = %s, want succeeded after retry", a.State)
		}
	}
	// Two unmonitor actions, the first one retried once.
	if src.calls != 3 {
		t.Errorf("unmonitor calls = %d, want 3", src.calls)
	}
}

func TestExecuteCatalogDeleteFallbackLogsError(t *testing.T) {
	var buf bytes.Buffer
	plan := buildTestPlan(t)
	lib := &fakeLibrary{deleteErr: errors.New("catalog refused")}
	files := &fakeFiles{}
	ex := NewExecutor(lib, &fakeSource{found: true}, &fakeSource{found: true}, files, zerolog.New(&buf))

	report := ex.Execute(context.Background(), plan, ModeApply, liveOptions())

	if report.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %s, want succeeded via direct removal", report.Outcome)
	}
	if len(files.removed) != 2 {
		t.Errorf("removed = %d files, want 2", len(files.removed))
	}
	if !strings.Contains(buf.String(), "catalog delete failed") {
		t.Error("catalog delete failure must be logged before the fallback")
	}
	if !strings.Contains(buf.String(), "catalog refused") {
		t.Error("log must carry the catalog error")
	}
}

func TestExecuteAllIsolatesGroups(t *testing.T) {
	good := buildTestPlan(t)

	badGroup := testGroup()
	badGroup.Item.ID = "666"
	sel, err := SelectKeeper(badGroup, StrategyBestQuality)
	if err != nil {
		t.Fatal(err)
	}
	bad := BuildPlan(badGroup, sel)

	lib := &fakeLibrary{}
	src := &fakeSource{found: true}
	ex := newTestExecutor(lib, src, &fakeFiles{})

	reports := ex.ExecuteAll(context.Background(), []Plan{bad, good}, ModeApply, liveOptions())
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	for _, r := range reports {
		if r.Outcome != OutcomeSucceeded {
			t.Errorf("group %s outcome = %s", r.Item.ID, r.Outcome)
		}
	}
}

func TestExecuteAllHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := newTestExecutor(&fakeLibrary{}, &fakeSource{found: true}, &fakeFiles{})
	reports := ex.ExecuteAll(ctx, []Plan{buildTestPlan(t), buildTestPlan(t)}, ModeApply, liveOptions())

	// Cancelled before any unit started: nothing reported, nothing half done.
	if len(reports) != 0 {
		t.Errorf("reports = %d, want 0 after pre-cancellation", len(reports))
	}
}

func TestExecuteEmptyPlanIsNothingToDo(t *testing.T) {
	ex := newTestExecutor(&fakeLibrary{}, &fakeSource{}, &fakeFiles{})
	report := ex.Execute(context.Background(), Plan{Item: media.Item{ID: "1"}}, ModeApply, liveOptions())
	if report.Outcome != OutcomeNothingToDo {
		t.Errorf("outcome = %s, want nothing_to_do", report.Outcome)
	}
}
