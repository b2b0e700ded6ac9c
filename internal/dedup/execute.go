package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/retry"
)

// Mode selects between previewing and applying a plan.
type Mode string

const (
	ModeSimulate Mode = "simulate"
	ModeApply    Mode = "apply"
)

// GroupOutcome summarizes a whole group's execution.
type GroupOutcome string

const (
	OutcomeNothingToDo GroupOutcome = "nothing_to_do"
	OutcomeSimulated   GroupOutcome = "simulated"
	OutcomeSucceeded   GroupOutcome = "succeeded"
	OutcomePartial     GroupOutcome = "partially_failed"
	OutcomeFailed      GroupOutcome = "failed"
)

// ActionReport is the recorded outcome of one action.
type ActionReport struct {
	Type   ActionType  `json:"type"`
	Path   string      `json:"path"`
	State  ActionState `json:"state"`
	Reason string      `json:"reason,omitempty"`
}

// GroupReport aggregates one plan's execution. A simulated report carries
// the same fields as a live one; only the state values differ. That is the
// dry-run safety contract.
type GroupReport struct {
	Item       media.Item     `json:"item"`
	Keeper     media.Version  `json:"keeper"`
	Mode       Mode           `json:"mode"`
	Outcome    GroupOutcome   `json:"outcome"`
	Actions    []ActionReport `json:"actions"`
	FreedBytes int64          `json:"freedBytes"`
}

// ExecOptions carries the execution-relevant slice of configuration.
type ExecOptions struct {
	Unmonitor   bool
	DeleteFiles bool
	RecycleDir  string
	Workers     int
}

// Executor runs execution plans against the catalog, the source services
// and the filesystem. Failure isolation is per action; one bad file never
// aborts its siblings or other groups.
type Executor struct {
	library MediaLibrary
	sources map[media.Kind]SourceService
	files   FileStore
	policy  retry.Policy
	logger  zerolog.Logger
}

// NewExecutor creates an executor. movieSource or episodeSource may be nil
// when the corresponding service is not configured; unmonitor actions for
// that kind are then skipped.
func NewExecutor(library MediaLibrary, movieSource, episodeSource SourceService, files FileStore, logger zerolog.Logger) *Executor {
	sources := make(map[media.Kind]SourceService)
	if movieSource != nil {
		sources[media.KindMovie] = movieSource
	}
	if episodeSource != nil {
		sources[media.KindEpisode] = episodeSource
	}
	return &Executor{
		library: library,
		sources: sources,
		files:   files,
		policy:  retry.DefaultPolicy(),
		logger:  logger.With().Str("component", "dedup-executor").Logger(),
	}
}

// ExecuteAll runs every plan on a bounded worker pool. Cancellation is
// honored between groups, never mid-action: already-completed reports are
// returned, remaining plans are simply not started.
func (e *Executor) ExecuteAll(ctx context.Context, plans []Plan, mode Mode, opts ExecOptions) []GroupReport {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(plans) {
		workers = len(plans)
	}
	if workers == 0 {
		return nil
	}

	type indexed struct {
		idx    int
		report GroupReport
	}

	jobs := make(chan int)
	results := make(chan indexed, len(plans))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case i, ok := <-jobs:
					if !ok {
						return
					}
					// Cancellation is checked at the group boundary, never
					// mid-action.
					if ctx.Err() != nil {
						return
					}
					results <- indexed{idx: i, report: e.Execute(ctx, plans[i], mode, opts)}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range plans {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := make(map[int]GroupReport, len(plans))
	for r := range results {
		done[r.idx] = r.report
	}

	reports := make([]GroupReport, 0, len(done))
	for i := range plans {
		if r, ok := done[i]; ok {
			reports = append(reports, r)
		}
	}
	return reports
}

// Execute runs one plan. Actions run in planned order; every action's
// outcome is recorded, independent of its pair sibling.
func (e *Executor) Execute(ctx context.Context, plan Plan, mode Mode, opts ExecOptions) GroupReport {
	report := GroupReport{
		Item:    plan.Item,
		Keeper:  plan.Keeper,
		Mode:    mode,
		Actions: make([]ActionReport, 0, len(plan.Actions)),
	}

	for _, action := range plan.Actions {
		result := e.runAction(ctx, plan.Item, action, mode, opts)
		report.Actions = append(report.Actions, result)
		// Freed bytes count only removals that actually happened.
		if result.Type == ActionRemoveFile && result.State == StateSucceeded {
			report.FreedBytes += action.Version.Size
		}
	}

	report.Outcome = summarize(mode, report.Actions)

	e.logger.Info().
		Str("title", plan.Item.DisplayTitle()).
		Str("mode", string(mode)).
		Str("outcome", string(report.Outcome)).
		Int("actions", len(report.Actions)).
		Msg("plan executed")

	return report
}

func (e *Executor) runAction(ctx context.Context, item media.Item, action Action, mode Mode, opts ExecOptions) ActionReport {
	report := ActionReport{
		Type: action.Type,
		Path: action.Version.Path,
	}

	switch action.Type {
	case ActionUnmonitor:
		return e.runUnmonitor(ctx, item, report, mode, opts)
	case ActionRemoveFile:
		return e.runRemove(ctx, item, action.Version, report, mode, opts)
	default:
		report.State = StateFailed
		report.Reason = fmt.Sprintf("unknown action type %q", action.Type)
		return report
	}
}

func (e *Executor) runUnmonitor(ctx context.Context, item media.Item, report ActionReport, mode Mode, opts ExecOptions) ActionReport {
	if !opts.Unmonitor {
		report.State = StateSkipped
		report.Reason = "unmonitoring disabled"
		return report
	}

	source, ok := e.sources[item.Kind]
	if !ok {
		report.State = StateSkipped
		report.Reason = fmt.Sprintf("no source service configured for %s", item.Kind)
		return report
	}

	if mode == ModeSimulate {
		report.State = StateSimulated
		report.Reason = "would unmonitor in source service"
		return report
	}

	report.State = StateExecuting
	var found bool
	err := retry.Do(ctx, "unmonitor", e.policy, e.logger, func() error {
		var unmonErr error
		found, unmonErr = source.Unmonitor(ctx, item)
		return unmonErr
	})
	if err != nil {
		report.State = StateFailed
		report.Reason = err.Error()
		e.logger.Warn().Err(err).Str("title", item.DisplayTitle()).Msg("unmonitor failed")
		return report
	}
	report.State = StateSucceeded
	if !found {
		report.Reason = "item not tracked by source service"
	}
	return report
}

func (e *Executor) runRemove(ctx context.Context, item media.Item, version media.Version, report ActionReport, mode Mode, opts ExecOptions) ActionReport {
	if !opts.DeleteFiles {
		report.State = StateSkipped
		report.Reason = "file deletion disabled"
		return report
	}

	if mode == ModeSimulate {
		report.State = StateSimulated
		if opts.RecycleDir != "" {
			report.Reason = fmt.Sprintf("would relocate to %s", opts.RecycleDir)
		} else {
			report.Reason = "would delete file"
		}
		return report
	}

	report.State = StateExecuting

	if opts.RecycleDir != "" {
		if err := e.files.Relocate(version.Path, opts.RecycleDir); err != nil {
			report.State = StateFailed
			report.Reason = err.Error()
			e.logger.Warn().Err(err).Str("path", version.Path).Msg("relocate failed, file remains on disk")
			return report
		}
		report.State = StateSucceeded
		report.Reason = fmt.Sprintf("relocated to %s", opts.RecycleDir)
		return report
	}

	// Catalog-managed delete first; fall back to removing the file directly
	// when the catalog refuses (older servers do not allow media deletes).
	err := e.library.DeleteVersion(ctx, item.ID, version.MediaID)
	if err == nil {
		report.State = StateSucceeded
		report.Reason = "deleted via catalog"
		return report
	}
	e.logger.Warn().Err(err).Str("path", version.Path).
		Msg("catalog delete failed, falling back to direct file removal")

	if err := e.files.Remove(version.Path); err != nil {
		report.State = StateFailed
		report.Reason = err.Error()
		e.logger.Warn().Err(err).Str("path", version.Path).Msg("remove failed, file remains on disk")
		return report
	}
	report.State = StateSucceeded
	report.Reason = "deleted from disk"
	return report
}

// summarize collapses action states into the group outcome without losing
// the distinctions the report must keep.
func summarize(mode Mode, actions []ActionReport) GroupOutcome {
	if len(actions) == 0 {
		return OutcomeNothingToDo
	}
	if mode == ModeSimulate {
		return OutcomeSimulated
	}

	var succeeded, failed, skipped int
	for _, a := range actions {
		switch a.State {
		case StateSucceeded:
			succeeded++
		case StateFailed:
			failed++
		case StateSkipped:
			skipped++
		}
	}

	switch {
	case failed == 0 && succeeded == 0:
		return OutcomeNothingToDo
	case failed == 0:
		return OutcomeSucceeded
	case succeeded == 0 && skipped == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}
