package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/config"
	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/retry"
)

// Recorder persists run reports. Nil recorder means no history.
type Recorder interface {
	RecordDedupScan(ctx context.Context, report *ScanReport)
	RecordDedupApply(ctx context.Context, report *ApplyReport)
}

// ScanReport is the result of a dedup scan: one plan per duplicate group,
// with full score breakdowns for preview.
type ScanReport struct {
	ScanID    string        `json:"scanId"`
	Scope     media.Scope   `json:"scope"`
	Strategy  Strategy      `json:"strategy"`
	StartedAt time.Time     `json:"startedAt"`
	Plans     []Plan        `json:"plans"`
	Summary   ScanSummary   `json:"summary"`
}

// ScanSummary aggregates a scan.
type ScanSummary struct {
	Groups          int     `json:"groups"`
	MovieGroups     int     `json:"movieGroups"`
	EpisodeGroups   int     `json:"episodeGroups"`
	FilesToRemove   int     `json:"filesToRemove"`
	SpaceSavedBytes int64   `json:"spaceSavedBytes"`
	SpaceSavedGB    float64 `json:"spaceSavedGb"`
}

// ApplyReport is the result of executing a plan set.
type ApplyReport struct {
	RunID     string        `json:"runId"`
	Mode      Mode          `json:"mode"`
	StartedAt time.Time     `json:"startedAt"`
	Groups    []GroupReport `json:"groups"`
	Summary   ApplySummary  `json:"summary"`
}

// ApplySummary counts group outcomes. The five buckets are deliberately
// distinct; collapsing them would hide partial failures.
type ApplySummary struct {
	Simulated   int   `json:"simulated"`
	Succeeded   int   `json:"succeeded"`
	Partial     int   `json:"partiallyFailed"`
	Failed      int   `json:"failed"`
	NothingToDo int   `json:"nothingToDo"`
	FreedBytes  int64 `json:"freedBytes"`
}

// Service orchestrates dedup scans and plan execution.
type Service struct {
	cfg      config.DedupConfig
	library  MediaLibrary
	executor *Executor
	policy   retry.Policy
	recorder Recorder
	logger   zerolog.Logger
}

// NewService creates the dedup service.
func NewService(cfg config.DedupConfig, library MediaLibrary, executor *Executor, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		library:  library,
		executor: executor,
		policy:   retry.DefaultPolicy(),
		logger:   logger.With().Str("component", "dedup").Logger(),
	}
}

// SetRecorder attaches a history recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Scan lists the catalog, groups duplicates and builds one execution plan
// per group. It never touches the network beyond the catalog read and never
// touches the filesystem.
func (s *Service) Scan(ctx context.Context, scope media.Scope) (*ScanReport, error) {
	strategy, err := ParseStrategy(s.cfg.KeepStrategy)
	if err != nil {
		return nil, err
	}

	var items []media.ItemVersions
	err = retry.Do(ctx, "list catalog items", s.policy, s.logger, func() error {
		var listErr error
		items, listErr = s.library.ListItems(ctx, scope)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("catalog listing failed: %w", err)
	}

	groups := Groups(items)
	report := &ScanReport{
		ScanID:    uuid.NewString(),
		Scope:     scope,
		Strategy:  strategy,
		StartedAt: time.Now().UTC(),
		Plans:     make([]Plan, 0, len(groups)),
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sel, err := SelectKeeper(group, strategy)
		if err != nil {
			// Contract violation from the grouper; not a user-facing state.
			return nil, fmt.Errorf("selection failed for %s: %w", group.Item.DisplayTitle(), err)
		}
		report.Plans = append(report.Plans, BuildPlan(group, sel))
	}

	report.Summary = summarizeScan(report.Plans)

	s.logger.Info().
		Str("scanId", report.ScanID).
		Str("scope", string(scope)).
		Int("groups", report.Summary.Groups).
		Float64("spaceSavedGb", report.Summary.SpaceSavedGB).
		Msg("dedup scan complete")

	if s.recorder != nil {
		s.recorder.RecordDedupScan(ctx, report)
	}
	return report, nil
}

// Apply executes a previously produced plan set. mode selects simulation or
// live execution; a simulated report has the exact shape of a live one.
func (s *Service) Apply(ctx context.Context, plans []Plan, mode Mode) (*ApplyReport, error) {
	if mode != ModeSimulate && mode != ModeApply {
		return nil, fmt.Errorf("unknown execution mode %q", mode)
	}
	// The configured dry-run flag is a safety net: it can only downgrade.
	if s.cfg.DryRun {
		mode = ModeSimulate
	}

	opts := ExecOptions{
		Unmonitor:   s.cfg.Unmonitor,
		DeleteFiles: s.cfg.DeleteFiles,
		RecycleDir:  s.cfg.RecycleDir,
		Workers:     s.cfg.Workers,
	}

	report := &ApplyReport{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		Groups:    s.executor.ExecuteAll(ctx, plans, mode, opts),
	}
	report.Summary = summarizeApply(report.Groups)

	// A live run that actually removed files leaves the catalog stale;
	// refresh is best-effort.
	if mode == ModeApply && report.Summary.FreedBytes > 0 {
		if err := s.library.RefreshAll(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("library refresh failed after apply")
		}
	}

	s.logger.Info().
		Str("runId", report.RunID).
		Str("mode", string(mode)).
		Int("succeeded", report.Summary.Succeeded).
		Int("partiallyFailed", report.Summary.Partial).
		Int("failed", report.Summary.Failed).
		Msg("dedup apply complete")

	if s.recorder != nil {
		s.recorder.RecordDedupApply(ctx, report)
	}
	return report, nil
}

func summarizeScan(plans []Plan) ScanSummary {
	sum := ScanSummary{Groups: len(plans)}
	for _, p := range plans {
		switch p.Item.Kind {
		case media.KindMovie:
			sum.MovieGroups++
		case media.KindEpisode:
			sum.EpisodeGroups++
		}
		for _, a := range p.Actions {
			if a.Type == ActionRemoveFile {
				sum.FilesToRemove++
			}
		}
		sum.SpaceSavedBytes += p.SpaceSaved
	}
	sum.SpaceSavedGB = float64(int64(float64(sum.SpaceSavedBytes)/(1<<30)*100)) / 100
	return sum
}

func summarizeApply(groups []GroupReport) ApplySummary {
	var sum ApplySummary
	for _, g := range groups {
		switch g.Outcome {
		case OutcomeSimulated:
			sum.Simulated++
		case OutcomeSucceeded:
			sum.Succeeded++
		case OutcomePartial:
			sum.Partial++
		case OutcomeFailed:
			sum.Failed++
		case OutcomeNothingToDo:
			sum.NothingToDo++
		}
		sum.FreedBytes += g.FreedBytes
	}
	return sum
}
