package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/dedup"
	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/subtitles"
)

// SweepTaskID identifies the recurring maintenance sweep.
const SweepTaskID = "library-sweep"

// Sweep is the scheduled maintenance run: resolve duplicates, then fill
// subtitle gaps. The dedup service's own dry-run setting governs whether
// the sweep actually removes files.
type Sweep struct {
	dedup     *dedup.Service
	subtitles *subtitles.Service
	logger    zerolog.Logger
}

// NewSweep creates the sweep task.
func NewSweep(dedupSvc *dedup.Service, subtitleSvc *subtitles.Service, logger zerolog.Logger) *Sweep {
	return &Sweep{
		dedup:     dedupSvc,
		subtitles: subtitleSvc,
		logger:    logger.With().Str("component", "sweep").Logger(),
	}
}

// Run executes one full sweep. The two phases are independent: a dedup
// failure does not stop subtitle filling, and both errors are reported.
func (s *Sweep) Run(ctx context.Context) error {
	var dedupErr, subErr error

	scan, err := s.dedup.Scan(ctx, media.ScopeAll)
	if err != nil {
		dedupErr = fmt.Errorf("dedup scan: %w", err)
	} else if len(scan.Plans) > 0 {
		if _, err := s.dedup.Apply(ctx, scan.Plans, dedup.ModeApply); err != nil {
			dedupErr = fmt.Errorf("dedup apply: %w", err)
		}
	}

	gaps, err := s.subtitles.Scan(ctx, media.ScopeAll, 0)
	if err != nil {
		subErr = fmt.Errorf("subtitle scan: %w", err)
	} else if len(gaps.Requests) > 0 {
		if _, err := s.subtitles.Apply(ctx, gaps.Requests); err != nil {
			subErr = fmt.Errorf("subtitle apply: %w", err)
		}
	}

	if dedupErr != nil && subErr != nil {
		return fmt.Errorf("sweep failed: %v; %v", dedupErr, subErr)
	}
	if dedupErr != nil {
		return dedupErr
	}
	return subErr
}

// Task builds the scheduler registration for this sweep.
func (s *Sweep) Task(cron string) TaskConfig {
	return TaskConfig{
		ID:   SweepTaskID,
		Name: "Library sweep",
		Cron: cron,
		Func: s.Run,
	}
}
