// Package history persists immutable run reports. The catalog itself is
// never stored; every scan starts from a fresh snapshot.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/dedup"
	"github.com/reelsweep/reelsweep/internal/subtitles"
)

// Run kinds.
const (
	KindDedupScan     = "dedup_scan"
	KindDedupApply    = "dedup_apply"
	KindSubtitleScan  = "subtitle_scan"
	KindSubtitleApply = "subtitle_apply"
)

// Entry is one recorded run.
type Entry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Mode       string          `json:"mode,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	RecordedAt time.Time       `json:"recordedAt"`
	Summary    json.RawMessage `json:"summary"`
	Report     json.RawMessage `json:"report,omitempty"`
}

// ListOptions filters and pages the history listing.
type ListOptions struct {
	Kind     string
	Page     int
	PageSize int
	// WithReports includes the full report payloads, which can be large.
	WithReports bool
}

// ListResult is one page of history.
type ListResult struct {
	Entries    []Entry `json:"entries"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalCount int     `json:"totalCount"`
}

// Service records and lists run history. It implements the recorder
// interfaces of the dedup and subtitle services.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// RecordDedupScan stores a dedup scan report.
func (s *Service) RecordDedupScan(ctx context.Context, report *dedup.ScanReport) {
	s.record(ctx, report.ScanID, KindDedupScan, "", report.StartedAt, report.Summary, report)
}

// RecordDedupApply stores a dedup apply report.
func (s *Service) RecordDedupApply(ctx context.Context, report *dedup.ApplyReport) {
	s.record(ctx, report.RunID, KindDedupApply, string(report.Mode), report.StartedAt, report.Summary, report)
}

// RecordSubtitleScan stores a subtitle gap-scan report.
func (s *Service) RecordSubtitleScan(ctx context.Context, report *subtitles.ScanReport) {
	s.record(ctx, report.ScanID, KindSubtitleScan, "", report.StartedAt, report.Summary, report)
}

// RecordSubtitleApply stores a subtitle download-run report.
func (s *Service) RecordSubtitleApply(ctx context.Context, report *subtitles.ApplyReport) {
	s.record(ctx, report.RunID, KindSubtitleApply, "", report.StartedAt, report.Summary, report)
}

// record persists one run. History is an observability aid: failures are
// logged and swallowed so they never fail the run they describe.
func (s *Service) record(ctx context.Context, id, kind, mode string, startedAt time.Time, summary, report interface{}) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("failed to encode summary")
		return
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("failed to encode report")
		return
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, mode, started_at, recorded_at, summary, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, kind, mode, startedAt.UTC(), time.Now().UTC(), string(summaryJSON), string(reportJSON))
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Str("id", id).Msg("failed to record run")
		return
	}
	s.logger.Debug().Str("kind", kind).Str("id", id).Msg("run recorded")
}

// List returns a page of recorded runs, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}

	where := ""
	args := []interface{}{}
	if opts.Kind != "" {
		where = "WHERE kind = ?"
		args = append(args, opts.Kind)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM runs %s", where), args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	columns := "id, kind, mode, started_at, recorded_at, summary"
	if opts.WithReports {
		columns += ", report"
	}
	query := fmt.Sprintf(
		"SELECT %s FROM runs %s ORDER BY recorded_at DESC LIMIT ? OFFSET ?",
		columns, where)
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	result := &ListResult{
		Entries:    []Entry{},
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: total,
	}
	for rows.Next() {
		var e Entry
		var summary string
		var report sql.NullString
		dest := []interface{}{&e.ID, &e.Kind, &e.Mode, &e.StartedAt, &e.RecordedAt, &summary}
		if opts.WithReports {
			dest = append(dest, &report)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		e.Summary = json.RawMessage(summary)
		if report.Valid {
			e.Report = json.RawMessage(report.String)
		}
		result.Entries = append(result.Entries, e)
	}
	return result, rows.Err()
}

// Get returns one run with its full report.
func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	var summary, report string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, mode, started_at, recorded_at, summary, report
		 FROM runs WHERE id = ?`, id).
		Scan(&e.ID, &e.Kind, &e.Mode, &e.StartedAt, &e.RecordedAt, &summary, &report)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	e.Summary = json.RawMessage(summary)
	e.Report = json.RawMessage(report)
	return &e, nil
}

// DeleteAll clears the history.
func (s *Service) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
